package cgm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/artpar/nodecfg/core/artifact"
	"github.com/artpar/nodecfg/core/buildctx"
	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/tree"
)

// GeneralItem is the item type holding a node's platform and router.
const GeneralItem = "core.general"

// Source provides consistent config tree snapshots.
type Source interface {
	LoadConfigTree(ctx context.Context, nodeID string) (*tree.Tree, error)
}

// Cache stores compiled artifacts by key.
type Cache interface {
	Get(key string) (*artifact.Artifact, bool)
	Set(key string, a *artifact.Artifact)
}

// Metrics receives compile measurements.
type Metrics interface {
	CompileFinished(platform string, stage Stage, ok bool, d time.Duration)
	ModuleFinished(platform, module string, ok bool, d time.Duration)
	CacheLookup(hit bool)
}

type nopMetrics struct{}

func (nopMetrics) CompileFinished(string, Stage, bool, time.Duration) {}
func (nopMetrics) ModuleFinished(string, string, bool, time.Duration) {}
func (nopMetrics) CacheLookup(bool)                                   {}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithLogger sets the compiler logger.
func WithLogger(logger zerolog.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = logger }
}

// WithTracer sets the tracer used for compile and module spans.
func WithTracer(tracer trace.Tracer) CompilerOption {
	return func(c *Compiler) { c.tracer = tracer }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) CompilerOption {
	return func(c *Compiler) { c.metrics = m }
}

// WithCache enables artifact caching keyed by node and snapshot digest.
func WithCache(cache Cache) CompilerOption {
	return func(c *Compiler) { c.cache = cache }
}

// WithFilter sets the regulatory channel filter passed to modules.
func WithFilter(f capability.Filter) CompilerOption {
	return func(c *Compiler) { c.filter = f }
}

// Compiler turns config trees into artifacts. It only reads the catalogue
// and the module table, so one Compiler serves concurrent compiles.
type Compiler struct {
	source    Source
	catalogue *capability.Catalogue
	table     *Table

	logger  zerolog.Logger
	tracer  trace.Tracer
	metrics Metrics
	cache   Cache
	filter  capability.Filter
}

// NewCompiler creates a compiler.
func NewCompiler(source Source, catalogue *capability.Catalogue, table *Table, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		source:    source,
		catalogue: catalogue,
		table:     table,
		logger:    zerolog.Nop(),
		tracer:    noop.NewTracerProvider().Tracer("nodecfg/cgm"),
		metrics:   nopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile loads a snapshot of the node's tree and compiles it. Every
// failure is a *CompileError.
func (c *Compiler) Compile(ctx context.Context, nodeID string) (*artifact.Artifact, error) {
	tr, err := c.source.LoadConfigTree(ctx, nodeID)
	if err != nil {
		c.metrics.CompileFinished("", StageLoadSnapshot, false, 0)
		return nil, &CompileError{Node: nodeID, Stage: StageLoadSnapshot, Err: err}
	}
	return c.CompileTree(ctx, tr)
}

// CompileTree compiles an already loaded snapshot.
func (c *Compiler) CompileTree(ctx context.Context, tr *tree.Tree) (*artifact.Artifact, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "cgm.compile",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("node", tr.Node)),
	)
	defer span.End()

	logger := c.logger.With().Str("node", tr.Node).Logger()

	a, platform, stage, err := c.compile(ctx, tr, logger, span)
	c.metrics.CompileFinished(platform, stage, err == nil, time.Since(start))
	if err != nil {
		cerr := &CompileError{Node: tr.Node, Stage: stage, Err: err}
		span.RecordError(cerr)
		span.SetStatus(codes.Error, cerr.Error())
		logger.Warn().Err(err).Str("stage", string(stage)).Msg("compile failed")
		return nil, cerr
	}

	span.SetStatus(codes.Ok, "")
	logger.Info().
		Str("platform", a.Platform).
		Str("router", a.Router).
		Int("modules", len(a.Modules)).
		Str("digest", a.Digest).
		Dur("took", time.Since(start)).
		Msg("node compiled")
	return a, nil
}

// compile runs the state machine and reports the stage it stopped at.
func (c *Compiler) compile(ctx context.Context, tr *tree.Tree, logger zerolog.Logger, span trace.Span) (*artifact.Artifact, string, Stage, error) {
	// ResolvePlatform
	general, ok := tr.Single(GeneralItem)
	if !ok {
		return nil, "", StageResolvePlatform, fmt.Errorf("%w: node has no %s item", capability.ErrMissingCapability, GeneralItem)
	}
	platform, err := c.catalogue.Platform(general.GetString("platform"))
	if err != nil {
		return nil, "", StageResolvePlatform, err
	}
	span.SetAttributes(attribute.String("platform", platform.Name))

	// ResolveCapability
	router, err := platform.Router(general.GetString("router"))
	if err != nil {
		return nil, platform.Name, StageResolveCapability, err
	}
	span.SetAttributes(attribute.String("router", router.ID))

	// OrderModules
	if err := ctx.Err(); err != nil {
		return nil, platform.Name, StageOrderModules, err
	}
	var cacheKey string
	if c.cache != nil {
		if cacheKey, err = snapshotKey(tr); err != nil {
			return nil, platform.Name, StageOrderModules, err
		}
		if a, hit := c.cache.Get(cacheKey); hit {
			c.metrics.CacheLookup(true)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return a, platform.Name, StageFinalize, nil
		}
		c.metrics.CacheLookup(false)
	}

	modules, gates := c.table.Select(platform.Name, router.ID, tr)
	logger.Debug().Int("selected", len(modules)).Msg("modules ordered")

	// Execute
	bc := buildctx.New()
	names := make([]string, 0, len(modules))
	for _, m := range modules {
		if err := ctx.Err(); err != nil {
			return nil, platform.Name, StageExecute, err
		}
		in := &Input{
			Node:     tr.Node,
			Platform: platform,
			Router:   router,
			Tree:     tr,
			Package:  gates[m.Name],
			Filter:   c.filter,
			Logger:   logger.With().Str("module", m.Name).Logger(),
		}
		bc.Reset()
		if err := c.runModule(ctx, platform.Name, m, in, bc); err != nil {
			return nil, platform.Name, StageExecute, err
		}
		names = append(names, m.Name)
	}

	// Finalize
	a, err := artifact.FromContext(tr.Node, platform.Name, router.ID, names, bc)
	if err != nil {
		return nil, platform.Name, StageFinalize, err
	}
	if c.cache != nil {
		c.cache.Set(cacheKey, a)
	}
	return a, platform.Name, StageFinalize, nil
}

func (c *Compiler) runModule(ctx context.Context, platform string, m *Module, in *Input, bc *buildctx.Context) (err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "cgm.module."+m.Name,
		trace.WithAttributes(
			attribute.String("module", m.Name),
			attribute.Int("order", m.Order),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			err = &ModuleExecutionError{Module: m.Name, Order: m.Order, Err: fmt.Errorf("panic: %v", r)}
		}
		c.metrics.ModuleFinished(platform, m.Name, err == nil, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if ferr := m.Fn(ctx, in, bc); ferr != nil {
		return &ModuleExecutionError{Module: m.Name, Order: m.Order, Err: ferr}
	}
	return nil
}

// snapshotKey identifies a snapshot by node, content and instance order.
func snapshotKey(tr *tree.Tree) (string, error) {
	data, err := tr.Encode()
	if err != nil {
		return "", err
	}
	return tr.Node + ":" + artifact.Digest(data), nil
}
