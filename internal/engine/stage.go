package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"etlpipe/internal/data"
	"etlpipe/internal/load"
	"etlpipe/internal/transform"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage string
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Op, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// runState is the value threaded through the stages of one run.
type runState struct {
	runID   string
	start   time.Time
	sources []data.SourceDescriptor

	outcomes map[string]data.FetchOutcome
	result   *transform.Result
	loaded   []load.Loaded
	summary  *data.Summary

	// errs collects failures of optional stages.
	errs []error
}

// orderedOutcomes returns outcomes in registry order.
func (st *runState) orderedOutcomes() []data.FetchOutcome {
	out := make([]data.FetchOutcome, 0, len(st.sources))
	for _, src := range st.sources {
		if o, ok := st.outcomes[src.Name]; ok {
			out = append(out, o)
		}
	}
	return out
}

// artifacts lists accepted artifacts in name order.
func (st *runState) artifacts() []transform.Artifact {
	var out []transform.Artifact
	for _, src := range st.sources {
		if o, ok := st.outcomes[src.Name]; ok && o.Success {
			out = append(out, transform.Artifact{Source: src, Path: o.Path})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source.Name < out[j].Source.Name })
	return out
}

type stageFunc func(ctx context.Context, st *runState) error

type stage struct {
	name string
	// required stages abort the run on failure; optional ones are recorded
	// and the run continues.
	required bool
	fn       stageFunc
}

type middleware func(stageName string, next stageFunc) stageFunc

func loggingMiddleware(log *zap.SugaredLogger) middleware {
	return func(stageName string, next stageFunc) stageFunc {
		return func(ctx context.Context, st *runState) error {
			start := time.Now()
			err := next(ctx, st)
			if err != nil {
				log.Errorw("stage failed", "stage", stageName, "duration", time.Since(start), "error", err)
				return err
			}
			log.Debugw("stage completed", "stage", stageName, "duration", time.Since(start))
			return nil
		}
	}
}

func recoveryMiddleware(log *zap.SugaredLogger) middleware {
	return func(stageName string, next stageFunc) stageFunc {
		return func(ctx context.Context, st *runState) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorw("stage panicked", "stage", stageName, "panic", r, "stack", string(debug.Stack()))
					err = &StageError{Stage: stageName, Op: "panic", Err: errors.Newf("%v", r)}
				}
			}()
			return next(ctx, st)
		}
	}
}
