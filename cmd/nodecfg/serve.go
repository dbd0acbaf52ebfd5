package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artpar/nodecfg/bootstrap"
	"github.com/artpar/nodecfg/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP API",
	Long: `Start the nodecfg HTTP API.

The server will:
  - Load configuration from nodecfg.yaml (or --config)
  - Or load configuration from NODECFG_* environment variables
  - Register the node config schema and device descriptors
  - Open the node store
  - Serve item types, devices, node configs and compiled artifacts

With a config file, logging level, fleet workers and cache TTL are
reloaded when the file changes or on SIGHUP.

Examples:
  nodecfg serve
  nodecfg serve --config /etc/nodecfg/nodecfg.yaml
  nodecfg serve --hot-reload=false

  # Env vars only:
  NODECFG_DATABASE_DSN=/var/lib/nodecfg/nodes.db nodecfg serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.SetupLogger(cfg.Logging, os.Stderr)

	var holder *config.Holder
	if hasConfigFile && hotReload {
		if holder, err = config.NewHolder(cfgFile, logger); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		if !hasConfigFile {
			logger.Info().Msg("running with environment variables (no config file)")
		}
		holder = config.NewStaticHolder(cfg, logger)
	}

	app, err := bootstrap.New(holder, bootstrap.Options{Version: version, Logger: &logger})
	if err != nil {
		holder.Stop()
		return fmt.Errorf("initialize: %w", err)
	}

	if holder.Path() != "" {
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watching disabled")
		}
		holder.WatchSignals()
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run (blocks until shutdown)
	return app.Run(ctx)
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
