package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/nodecfg/bootstrap"
	"github.com/artpar/nodecfg/core/formatter"
)

var itemsCmd = &cobra.Command{
	Use:   "items [type]",
	Short: "List registered item types, or the attributes of one",
	Long: `List the item types of the node config registry in form order, or
the full attribute surface of one item type.

Examples:
  nodecfg items
  nodecfg items --hidden
  nodecfg items core.interfaces.ethernet -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runItems,
}

var choicesCmd = &cobra.Command{
	Use:   "choices [key]",
	Short: "List choice keys, or the values of one key",
	Long: `List the registered choice keys, or the values of one key in
registration order.

Examples:
  nodecfg choices
  nodecfg choices core.general#router`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChoices,
}

var itemsHidden bool

func init() {
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(choicesCmd)

	itemsCmd.Flags().BoolVar(&itemsHidden, "hidden", false, "include hidden slot items")
}

func loadDomain() (*bootstrap.Domain, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.LoadDomain(cfg, zerolog.Nop())
}

func runItems(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	domain, err := loadDomain()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		surface, err := domain.Point.Schema(args[0])
		if err != nil {
			return err
		}
		var records []map[string]any
		for _, a := range surface.Attrs() {
			records = append(records, map[string]any{
				"name":     a.Name,
				"type":     string(a.Type),
				"required": a.Required,
				"owner":    a.Owner,
				"proxy":    a.Proxy,
			})
		}
		view := formatter.ViewOf(args[0], "name", "type", "required", "owner", "proxy")
		return f.FormatList(cmd.OutOrStdout(), view, records, opts)
	}

	var records []map[string]any
	for _, t := range domain.Point.Items() {
		if t.Hidden && !itemsHidden {
			continue
		}
		records = append(records, map[string]any{
			"id":       t.ID,
			"slot":     t.Slot,
			"name":     t.Name,
			"multiple": t.Multiple,
			"parents":  t.Parents(),
		})
	}
	view := formatter.ViewOf("items", "id", "slot", "name", "multiple", "parents")
	return f.FormatList(cmd.OutOrStdout(), view, records, opts)
}

func runChoices(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	domain, err := loadDomain()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		var records []map[string]any
		for _, key := range domain.Point.ChoiceKeys() {
			values := make([]string, 0)
			for _, c := range domain.Point.Choices(key) {
				values = append(values, c.Value)
			}
			records = append(records, map[string]any{"key": key, "values": strings.Join(values, ", ")})
		}
		return f.FormatList(cmd.OutOrStdout(), formatter.ViewOf("choices", "key", "values"), records, opts)
	}

	choices := domain.Point.Choices(args[0])
	if choices == nil {
		return fmt.Errorf("unknown choice key %q", args[0])
	}
	records := make([]map[string]any, len(choices))
	for i, c := range choices {
		records[i] = map[string]any{"value": c.Value, "label": c.Label}
	}
	return f.FormatList(cmd.OutOrStdout(), formatter.ViewOf(args[0], "value", "label"), records, opts)
}
