package engine

import (
	"context"
	"runtime/debug"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWidth is the parallel worker count when none is configured.
const DefaultWidth = 5

// SourceFetcher runs one source's fetch and validation. *fetcher.Fetcher
// implements it.
type SourceFetcher interface {
	Fetch(ctx context.Context, src data.SourceDescriptor) data.FetchOutcome
}

// Coordinator dispatches fetches across sources, either one at a time in
// registry order or through a bounded worker pool.
type Coordinator struct {
	fetcher SourceFetcher
	width   int
	log     *zap.SugaredLogger
}

func NewCoordinator(f SourceFetcher, width int, log *zap.SugaredLogger) (*Coordinator, error) {
	if f == nil {
		return nil, errors.New("fetcher is nil")
	}
	if width <= 0 {
		return nil, errors.Newf("worker width must be >= 1, got %d", width)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Coordinator{fetcher: f, width: width, log: log}, nil
}

// Execute streams one outcome per source. The channel is closed once every
// source has finished, which is the barrier the transform phase waits on.
//
// A failing or panicking task yields a failed outcome for its own source
// only. Sibling tasks are never canceled; ctx is handed to each fetch
// unchanged.
func (c *Coordinator) Execute(ctx context.Context, sources []data.SourceDescriptor, parallel bool) <-chan data.FetchOutcome {
	out := make(chan data.FetchOutcome, len(sources))
	if !parallel {
		go func() {
			defer close(out)
			for _, src := range sources {
				out <- c.runOne(ctx, src)
			}
		}()
		return out
	}

	go func() {
		defer close(out)
		var g errgroup.Group
		g.SetLimit(c.width)
		for _, src := range sources {
			g.Go(func() error {
				out <- c.runOne(ctx, src)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}

// RunAll collects Execute's stream into a name-keyed mapping.
func (c *Coordinator) RunAll(ctx context.Context, sources []data.SourceDescriptor, parallel bool) map[string]data.FetchOutcome {
	results := make(map[string]data.FetchOutcome, len(sources))
	for o := range c.Execute(ctx, sources, parallel) {
		results[o.Source] = o
	}
	return results
}

func (c *Coordinator) runOne(ctx context.Context, src data.SourceDescriptor) (out data.FetchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("fetch task panicked", "source", src.Name, "panic", r, "stack", string(debug.Stack()))
			out = data.Failed(src.Name, 0, errors.Newf("fetch task panicked: %v", r))
		}
	}()
	out = c.fetcher.Fetch(ctx, src)
	out.Source = src.Name
	return out
}
