package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/nodecfg/bootstrap"
	"github.com/artpar/nodecfg/config"
	"github.com/artpar/nodecfg/core/formatter"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	noHeader     bool

	formatters = formatter.NewRegistry()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nodecfg",
	Short: "Node configuration registry and firmware config compiler",
	Long: `nodecfg manages the configuration of a fleet of wireless nodes and
compiles each node's config tree into a platform artifact.

Quick start:
  nodecfg node import node-1.yaml   # Import a node from a YAML fixture
  nodecfg compile node-1            # Compile one node
  nodecfg serve                     # Start the read-only HTTP API

Inspection:
  nodecfg items      # List registered item types
  nodecfg choices    # List choice keys and values
  nodecfg validate   # Validate configuration and device descriptors`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "nodecfg.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeader, "no-header", false, "omit table headers")
}

// loadConfig reads the config file, or the environment when the file is
// absent.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openApp wires the application without serving it.
func openApp() (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := bootstrap.SetupLogger(cfg.Logging, os.Stderr)
	a, err := bootstrap.New(config.NewStaticHolder(cfg, logger), bootstrap.Options{
		Version: version,
		Logger:  &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}

func output() (formatter.Formatter, formatter.FormatOptions, error) {
	f, err := formatters.Lookup(outputFormat)
	if err != nil {
		return nil, formatter.FormatOptions{}, err
	}
	return f, formatter.FormatOptions{NoHeader: noHeader}, nil
}
