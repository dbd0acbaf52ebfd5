package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/nodecfg/adapters/idgen"
	"github.com/artpar/nodecfg/app"
	"github.com/artpar/nodecfg/core/formatter"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage nodes and their config trees",
	Long: `Manage the nodes of the fleet.

Examples:
  nodecfg node list
  nodecfg node create node-1 --name "Node One"
  nodecfg node import node-1.yaml node-2.yaml
  nodecfg node show node-1
  nodecfg node delete node-1`,
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all nodes",
	RunE:  runNodeList,
}

var nodeCreateCmd = &cobra.Command{
	Use:   "create <node-id>",
	Short: "Create a node with an empty config tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodeCreate,
}

var nodeImportCmd = &cobra.Command{
	Use:   "import <fixture.yaml>...",
	Short: "Import nodes from YAML fixtures",
	Long: `Import nodes from YAML fixtures. Each fixture is validated and stored
in one update; an invalid fixture leaves no node behind.

Fixture format:
  node: node-1
  name: Node One
  items:
    - type: core.general
      values: {name: node-1, platform: openwrt, router: R1}
    - type: core.interfaces.ethernet
      id: wan
      values: {eth_port: wan0, uplink: true}`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNodeImport,
}

var nodeShowCmd = &cobra.Command{
	Use:   "show <node-id>",
	Short: "Show a node's config instances in form order",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodeShow,
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete <node-id>",
	Short: "Delete a node and its config tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodeDelete,
}

var nodeName string

func init() {
	rootCmd.AddCommand(nodeCmd)

	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeCreateCmd)
	nodeCmd.AddCommand(nodeImportCmd)
	nodeCmd.AddCommand(nodeShowCmd)
	nodeCmd.AddCommand(nodeDeleteCmd)

	nodeCreateCmd.Flags().StringVar(&nodeName, "name", "", "display name (default: the node id)")
}

var nodeView = formatter.ViewOf("nodes", "id", "name", "created_at", "updated_at")

func runNodeList(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	nodes, err := a.Store.ListNodes(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	records := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		records[i] = map[string]any{"id": n.ID, "name": n.Name, "created_at": n.CreatedAt, "updated_at": n.UpdatedAt}
	}
	return f.FormatList(cmd.OutOrStdout(), nodeView, records, opts)
}

func runNodeCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := nodeName
	if name == "" {
		name = args[0]
	}
	n, err := a.Service.CreateNode(commandContext(cmd), args[0], name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Node created: %s\n", n.ID)
	return nil
}

func runNodeImport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, path := range args {
		f, err := readFixture(path)
		if err != nil {
			return err
		}
		n, err := a.Service.Import(commandContext(cmd), f)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%d items)\n", n.ID, len(f.Items))
	}
	return nil
}

func readFixture(path string) (*app.Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := app.DecodeFixture(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.AssignIDs(idgen.Derived)
	return f, nil
}

func runNodeShow(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tr, err := a.Service.Tree(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	var records []map[string]any
	for _, inst := range tr.All() {
		parent := ""
		if inst.Parent != nil {
			parent = inst.Parent.String()
		}
		records = append(records, map[string]any{
			"type":   inst.Type,
			"id":     inst.ID,
			"parent": parent,
			"values": len(inst.Values) + len(inst.Refs),
		})
	}
	view := formatter.ViewOf(tr.Node, "type", "id", "parent", "values")
	return f.FormatList(cmd.OutOrStdout(), view, records, opts)
}

func runNodeDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Service.DeleteNode(commandContext(cmd), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Node deleted: %s\n", args[0])
	return nil
}
