package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/nodecfg/adapters/idgen"
	"github.com/artpar/nodecfg/adapters/sqlite"
	"github.com/artpar/nodecfg/app"
	"github.com/artpar/nodecfg/bootstrap"
	"github.com/artpar/nodecfg/config"
	"github.com/artpar/nodecfg/platforms/openwrt"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, device descriptors and fixtures",
	Long: `Validate the nodecfg configuration.

Checks:
  - YAML syntax is valid
  - Device descriptors parse and register
  - The regulatory domain is known
  - Database is writable (optional)
  - Node fixtures validate against the schema (optional, not stored)

Examples:
  nodecfg validate
  nodecfg validate --check-database
  nodecfg validate --fixture node-1.yaml --fixture node-2.yaml`,
	RunE: runValidate,
}

var (
	validateCheckDatabase bool
	validateFixtures      []string
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
	validateCmd.Flags().StringArrayVar(&validateFixtures, "fixture", nil, "node fixture to validate (repeatable)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Fprintf(out, "  %s Config file exists\n", checkMark)
	} else {
		fmt.Fprintf(out, "  %s Config file not found, using environment\n", checkMark)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  %s Config syntax valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Config syntax valid\n", checkMark)
	fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)

	domain, err := bootstrap.LoadDomain(cfg, zerolog.Nop())
	if err != nil {
		fmt.Fprintf(out, "  %s Domain registered\n", crossMark)
		return err
	}
	routers := 0
	for _, p := range domain.Catalogue.Platforms() {
		routers += len(p.Routers())
	}
	fmt.Fprintf(out, "  %s Item types: %d\n", checkMark, len(domain.Point.Items()))
	fmt.Fprintf(out, "  %s Routers: %d (%d extra descriptor paths)\n", checkMark, routers, len(cfg.Devices.Paths))
	fmt.Fprintf(out, "  %s OpenWrt modules: %d\n", checkMark, len(domain.Table.Modules(openwrt.Platform)))
	if cfg.Compile.Regulatory != "" {
		fmt.Fprintf(out, "  %s Regulatory domain: %s\n", checkMark, cfg.Compile.Regulatory)
	}

	if validateCheckDatabase && cfg.Database.Driver == "sqlite" {
		if err := checkDatabaseWritable(cfg.Database.DSN); err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable\n", checkMark)
		}
	}

	failed := 0
	for _, path := range validateFixtures {
		if err := validateFixture(commandContext(cmd), cfg, path); err != nil {
			failed++
			fmt.Fprintf(out, "  %s Fixture %s\n", crossMark, path)
			fmt.Fprintf(out, "      Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "  %s Fixture %s\n", checkMark, path)
	}

	fmt.Fprintln(out)
	if failed > 0 {
		return fmt.Errorf("%d fixture(s) invalid", failed)
	}
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}

// validateFixture imports a fixture into a throwaway in-memory store.
func validateFixture(ctx context.Context, cfg *config.Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	f, err := app.DecodeFixture(file)
	if err != nil {
		return err
	}
	f.AssignIDs(idgen.Derived)

	scratch := *cfg
	scratch.Database.Driver = "memory"
	scratch.Metrics.Enabled = false
	scratch.Cache.Enabled = false

	logger := zerolog.Nop()
	a, err := bootstrap.New(config.NewStaticHolder(&scratch, logger), bootstrap.Options{Logger: &logger})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Service.Import(ctx, f); err != nil {
		return err
	}
	_, err = a.Compiler.Compile(ctx, f.Node)
	return err
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
