package cgm

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/nodecfg/core/artifact"
)

// FleetResult holds the outcome of compiling many nodes. Both slices keep
// the order of the requested node IDs.
type FleetResult struct {
	Artifacts []*artifact.Artifact
	Failures  []*CompileError
}

// CompileFleet compiles nodes with at most workers concurrent compiles.
// A failing node does not stop the others; its error is collected in
// Failures. Only cancellation of ctx aborts the run.
func (c *Compiler) CompileFleet(ctx context.Context, nodeIDs []string, workers int) (*FleetResult, error) {
	if workers < 1 {
		workers = 1
	}

	arts := make([]*artifact.Artifact, len(nodeIDs))
	errs := make([]error, len(nodeIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range nodeIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			arts[i], errs[i] = c.Compile(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &FleetResult{}
	for i, id := range nodeIDs {
		if errs[i] != nil {
			var cerr *CompileError
			if !errors.As(errs[i], &cerr) {
				cerr = &CompileError{Node: id, Stage: StageLoadSnapshot, Err: errs[i]}
			}
			result.Failures = append(result.Failures, cerr)
			continue
		}
		result.Artifacts = append(result.Artifacts, arts[i])
	}

	c.logger.Info().
		Int("nodes", len(nodeIDs)).
		Int("compiled", len(result.Artifacts)).
		Int("failed", len(result.Failures)).
		Msg("fleet compiled")
	return result, nil
}
