package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/nodecfg/core/artifact"
	"github.com/artpar/nodecfg/core/formatter"
)

var compileCmd = &cobra.Command{
	Use:   "compile <node-id>",
	Short: "Compile one node into a platform artifact",
	Long: `Compile a node's config tree into its platform artifact.

Examples:
  nodecfg compile node-1
  nodecfg compile node-1 --format yaml
  nodecfg compile node-1 --format cbor --out node-1.cbor`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

var fleetCmd = &cobra.Command{
	Use:   "fleet [node-id...]",
	Short: "Compile many nodes in parallel",
	Long: `Compile the given nodes, or every stored node, over a bounded worker
pool. A failing node does not stop the others. Successful artifacts can be
written to one zstd-compressed bundle.

Examples:
  nodecfg fleet
  nodecfg fleet node-1 node-2 --workers 8
  nodecfg fleet --out fleet.bundle`,
	RunE: runFleet,
}

var (
	compileFormat string
	compileOut    string
	fleetWorkers  int
	fleetOut      string
)

func init() {
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(fleetCmd)

	compileCmd.Flags().StringVar(&compileFormat, "format", "json", "artifact format: json, yaml or cbor")
	compileCmd.Flags().StringVar(&compileOut, "out", "", "write the artifact to a file instead of stdout")

	fleetCmd.Flags().IntVar(&fleetWorkers, "workers", 0, "concurrent compiles (default: compile.workers)")
	fleetCmd.Flags().StringVar(&fleetOut, "out", "", "write successful artifacts to a bundle file")
}

func runCompile(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	art, err := app.Compiler.Compile(commandContext(cmd), args[0])
	if err != nil {
		return err
	}

	data, err := encodeArtifact(art, compileFormat)
	if err != nil {
		return err
	}
	if compileOut != "" {
		if err := os.WriteFile(compileOut, data, 0644); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", compileOut, art.Digest)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func encodeArtifact(art *artifact.Artifact, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(art, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return yaml.Marshal(art)
	case "cbor":
		return art.Encode()
	}
	return nil, fmt.Errorf("unknown artifact format %q", format)
}

func runFleet(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := commandContext(cmd)
	ids := args
	if len(ids) == 0 {
		nodes, err := app.Store.ListNodes(ctx)
		if err != nil {
			return fmt.Errorf("list nodes: %w", err)
		}
		for _, n := range nodes {
			ids = append(ids, n.ID)
		}
	}

	workers := fleetWorkers
	if workers <= 0 {
		workers = app.Workers()
	}

	result, err := app.Compiler.CompileFleet(ctx, ids, workers)
	if err != nil {
		return err
	}

	if fleetOut != "" && len(result.Artifacts) > 0 {
		if err := writeBundle(fleetOut, result.Artifacts); err != nil {
			return err
		}
		app.Logger.Info().Str("path", fleetOut).Int("artifacts", len(result.Artifacts)).Msg("bundle written")
	}

	records := make([]map[string]any, 0, len(ids))
	for _, a := range result.Artifacts {
		records = append(records, map[string]any{
			"node": a.Node, "status": "ok", "router": a.Router, "detail": a.Digest,
		})
	}
	for _, cerr := range result.Failures {
		records = append(records, map[string]any{
			"node": cerr.Node, "status": "failed", "router": "", "detail": fmt.Sprintf("%s: %v", cerr.Stage, cerr.Err),
		})
	}
	view := formatter.ViewOf("fleet", "node", "status", "router", "detail")
	if err := f.FormatList(cmd.OutOrStdout(), view, records, opts); err != nil {
		return err
	}

	if len(result.Failures) > 0 {
		return fmt.Errorf("%d of %d nodes failed to compile", len(result.Failures), len(ids))
	}
	return nil
}

func writeBundle(path string, arts []*artifact.Artifact) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return artifact.WriteBundle(file, arts)
}
