// Package bootstrap wires all dependencies from the configuration and
// runs the HTTP server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/artpar/nodecfg/adapters/cache"
	"github.com/artpar/nodecfg/adapters/clock"
	"github.com/artpar/nodecfg/adapters/hasher"
	apihttp "github.com/artpar/nodecfg/adapters/http"
	"github.com/artpar/nodecfg/adapters/idgen"
	"github.com/artpar/nodecfg/adapters/memory"
	"github.com/artpar/nodecfg/adapters/metrics"
	"github.com/artpar/nodecfg/adapters/sqlite"
	"github.com/artpar/nodecfg/app"
	"github.com/artpar/nodecfg/config"
	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/cgm"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/domain/nodeconfig"
	"github.com/artpar/nodecfg/platforms/openwrt"
	"github.com/artpar/nodecfg/ports"
)

// Domain is the sealed registration state: the node.config registry
// point, the device catalogue and the generation module table.
type Domain struct {
	Registry  *registry.Registry
	Point     *registry.Point
	Catalogue *capability.Catalogue
	Table     *cgm.Table
	Filter    capability.Filter
}

// LoadDomain registers the node.config schema, loads the bundled and
// configured device descriptors and registers the platform modules. The
// registry and table are sealed on return.
func LoadDomain(cfg *config.Config, logger zerolog.Logger) (*Domain, error) {
	reg := registry.New()
	point, err := nodeconfig.Register(reg)
	if err != nil {
		return nil, fmt.Errorf("register node config: %w", err)
	}

	catalogue := capability.NewCatalogue()
	if err := openwrt.LoadDevices(catalogue, logger); err != nil {
		return nil, fmt.Errorf("load openwrt devices: %w", err)
	}
	if len(cfg.Devices.Paths) > 0 {
		if err := capability.NewLoader(logger).LoadPaths(catalogue, cfg.Devices.Paths...); err != nil {
			return nil, fmt.Errorf("load devices: %w", err)
		}
	}
	if err := nodeconfig.RegisterDevices(point, catalogue); err != nil {
		return nil, fmt.Errorf("register devices: %w", err)
	}
	reg.Seal()

	table := cgm.NewTable()
	if err := openwrt.Register(table); err != nil {
		return nil, fmt.Errorf("register openwrt modules: %w", err)
	}
	table.Seal()

	filter, err := capability.Regulatory(cfg.Compile.Regulatory)
	if err != nil {
		return nil, err
	}

	routers := 0
	for _, p := range catalogue.Platforms() {
		routers += len(p.Routers())
	}
	logger.Info().
		Int("item_types", len(point.Items())).
		Int("routers", routers).
		Int("modules", len(table.Modules(openwrt.Platform))).
		Msg("domain registered")

	return &Domain{
		Registry:  reg,
		Point:     point,
		Catalogue: catalogue,
		Table:     table,
		Filter:    filter,
	}, nil
}

// Options provides optional dependencies for New.
type Options struct {
	// Version is reported by the HTTP API.
	Version string

	// Logger overrides the logger built from the logging configuration.
	Logger *zerolog.Logger

	// Tracer overrides the global OpenTelemetry tracer.
	Tracer trace.Tracer
}

// App represents the wired application.
type App struct {
	Logger zerolog.Logger
	Config *config.Holder

	Domain   *Domain
	DB       *sqlite.DB // nil with the memory driver
	Store    ports.NodeStore
	Service  *app.ConfigService
	Compiler *cgm.Compiler

	Metrics         *metrics.Collector // nil when metrics are disabled
	MetricsRegistry *prometheus.Registry
	Cache           *cache.Artifacts // nil when the cache is disabled

	HTTPServer *http.Server
}

// New creates and wires the application from the held configuration.
func New(holder *config.Holder, opts Options) (*App, error) {
	cfg := holder.Get()

	logger := SetupLogger(cfg.Logging, os.Stderr)
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	a := &App{
		Logger: logger,
		Config: holder,
	}

	domain, err := LoadDomain(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Domain = domain

	if err := a.initStore(cfg); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.MetricsRegistry = prometheus.NewRegistry()
		a.MetricsRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.MetricsRegistry)
		holder.OnReloadResult(a.Metrics.ConfigReloaded)
		logger.Info().Msg("prometheus metrics enabled")
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/artpar/nodecfg")
	}
	compilerOpts := []cgm.CompilerOption{
		cgm.WithLogger(logger),
		cgm.WithTracer(tracer),
		cgm.WithFilter(domain.Filter),
	}
	serviceOpts := []app.ConfigOption{
		app.WithChannelFilter(domain.Filter),
	}
	if a.Metrics != nil {
		compilerOpts = append(compilerOpts, cgm.WithMetrics(a.Metrics))
		serviceOpts = append(serviceOpts, app.WithEditMetrics(a.Metrics))
	}
	if cfg.Cache.Enabled {
		a.Cache = cache.NewArtifacts(cfg.Cache.TTL, cfg.Cache.CleanupInterval, logger)
		compilerOpts = append(compilerOpts, cgm.WithCache(a.Cache))
		serviceOpts = append(serviceOpts, app.WithInvalidator(a.Cache))
	}

	a.Compiler = cgm.NewCompiler(a.Store, domain.Catalogue, domain.Table, compilerOpts...)
	a.Service = app.NewConfigService(
		a.Store,
		domain.Point,
		domain.Catalogue,
		idgen.UUID{},
		hasher.NewBcrypt(cfg.Secrets.BcryptCost),
		logger,
		serviceOpts...,
	)

	a.initHTTPServer(cfg, opts.Version)
	holder.OnChange(a.applyConfig)

	return a, nil
}

func (a *App) initStore(cfg *config.Config) error {
	switch cfg.Database.Driver {
	case "memory":
		a.Store = memory.NewNodeStore(a.Domain.Point, clock.UTC{})
		a.Logger.Info().Msg("using in-memory node store")
		return nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.Store = sqlite.NewNodeStore(db, a.Domain.Point, clock.UTC{})
		a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")
		return nil
	}
	return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

func (a *App) initHTTPServer(cfg *config.Config, version string) {
	rc := apihttp.RouterConfig{
		Nodes:     a.Store,
		Trees:     a.Service,
		Compiler:  a.Compiler,
		Point:     a.Domain.Point,
		Catalogue: a.Domain.Catalogue,
		Version:   version,
	}
	if a.Metrics != nil {
		rc.Metrics = a.Metrics
		rc.MetricsPath = cfg.Metrics.Path
		rc.MetricsHandler = promhttp.HandlerFor(a.MetricsRegistry, promhttp.HandlerOpts{})
	}

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      apihttp.NewRouter(rc, a.Logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// applyConfig applies the reloadable settings of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if a.Cache != nil {
		a.Cache.SetTTL(cfg.Cache.TTL)
	}
}

// Workers returns the current fleet worker pool size.
func (a *App) Workers() int {
	return a.Config.Get().Compile.Workers
}

// Run serves HTTP until ctx is done, then shuts down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops the HTTP server and releases resources.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	err := a.Close()
	a.Logger.Info().Msg("shutdown complete")
	return err
}

// Close releases the store and stops config watching.
func (a *App) Close() error {
	a.Config.Stop()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
			return err
		}
	}
	return nil
}

// SetupLogger builds the process logger from the logging configuration
// and sets the global level.
func SetupLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(w).With().Timestamp().Logger()
}
