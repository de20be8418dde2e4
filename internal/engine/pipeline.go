package engine

import (
	"context"
	"os"
	"time"

	"etlpipe/internal/data"
	"etlpipe/internal/load"
	"etlpipe/internal/output"
	"etlpipe/internal/transform"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Layout names the directories a run writes into.
type Layout struct {
	RawDir       string
	ProcessedDir string
	LogsDir      string
}

func (l Layout) dirs() []string {
	return []string{l.RawDir, l.ProcessedDir, l.LogsDir}
}

// Recorder persists a finished run. *ledger.Ledger implements it.
type Recorder interface {
	RecordRun(ctx context.Context, s *data.Summary, outcomes []data.FetchOutcome) error
}

// Emitter receives lifecycle events. *output.Manager implements it.
type Emitter interface {
	Write(v any) error
}

// Pipeline runs extract, transform and load as a sequence of stages.
type Pipeline struct {
	layout      Layout
	coordinator *Coordinator
	parallel    bool
	transformer *transform.Transformer
	validity    load.ValidityMode
	recorder    Recorder
	emitter     Emitter
	verbose     bool
	log         *zap.SugaredLogger
	now         func() time.Time
	newRunID    func() string
}

type PipelineOption func(*Pipeline)

func WithParallel(parallel bool) PipelineOption {
	return func(p *Pipeline) { p.parallel = parallel }
}

func WithTransformer(t *transform.Transformer) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.transformer = t
		}
	}
}

func WithValidity(m load.ValidityMode) PipelineOption {
	return func(p *Pipeline) { p.validity = m }
}

// WithRecorder stores every finished run. Recording is optional: a
// failure is logged and does not fail the run.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

func WithEmitter(e Emitter) PipelineOption {
	return func(p *Pipeline) { p.emitter = e }
}

// WithVerboseErrors keeps raw fetch errors, URLs included, in source reports.
func WithVerboseErrors(v bool) PipelineOption {
	return func(p *Pipeline) { p.verbose = v }
}

func WithPipelineLogger(l *zap.SugaredLogger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithRunID(fn func() string) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.newRunID = fn
		}
	}
}

func NewPipeline(layout Layout, c *Coordinator, opts ...PipelineOption) (*Pipeline, error) {
	if c == nil {
		return nil, errors.New("coordinator is nil")
	}
	if layout.RawDir == "" || layout.ProcessedDir == "" || layout.LogsDir == "" {
		return nil, errors.Newf("incomplete directory layout: %+v", layout)
	}
	p := &Pipeline{
		layout:      layout,
		coordinator: c,
		parallel:    true,
		transformer: transform.New(),
		validity:    load.ValidityTyped,
		log:         zap.NewNop().Sugar(),
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{name: "prepare", required: true, fn: p.prepare},
		{name: "extract", required: true, fn: p.extract},
		{name: "transform", required: true, fn: p.transform},
		{name: "load", required: true, fn: p.load},
		{name: "summarize", required: true, fn: p.summarize},
		{name: "record", fn: p.record},
	}
}

// Execute runs every stage against sources and returns the run summary.
// A required stage failure aborts the run with a *StageError; the summary
// is nil unless the failure came after summarize.
func (p *Pipeline) Execute(ctx context.Context, sources []data.SourceDescriptor) (*data.Summary, error) {
	st := &runState{
		runID:    p.newRunID(),
		start:    p.now().UTC(),
		sources:  sources,
		outcomes: make(map[string]data.FetchOutcome, len(sources)),
	}
	log := p.log.With("run_id", st.runID)
	log.Infow("pipeline run started", "sources", len(sources), "parallel", p.parallel)
	p.emit(log, output.RunStarted(st.runID, len(sources), p.parallel))

	chain := []middleware{loggingMiddleware(log), recoveryMiddleware(log)}
	for _, s := range p.stages() {
		if err := ctx.Err(); err != nil {
			se := &StageError{Stage: s.name, Op: "start", Err: err}
			if !s.required {
				st.errs = append(st.errs, se)
				continue
			}
			return st.summary, se
		}
		fn := s.fn
		for i := len(chain) - 1; i >= 0; i-- {
			fn = chain[i](s.name, fn)
		}
		err := fn(ctx, st)
		if err == nil {
			continue
		}
		if s.required {
			var se *StageError
			if errors.As(err, &se) {
				return st.summary, err
			}
			return st.summary, &StageError{Stage: s.name, Op: "execute", Err: err}
		}
		st.errs = append(st.errs, err)
		log.Warnw("optional stage failed, continuing", "stage", s.name, "error", err)
	}

	if len(st.errs) > 0 {
		log.Warnw("pipeline run finished with errors", "errors", len(st.errs), "first", st.errs[0])
	}
	log.Infow("pipeline run finished",
		"successful", st.summary.Successful,
		"failed", st.summary.Failed,
		"records", st.summary.TotalRecords,
		"quality", st.summary.QualityScore,
		"duration_seconds", st.summary.DurationSeconds)
	return st.summary, nil
}

func (p *Pipeline) prepare(_ context.Context, _ *runState) error {
	for _, dir := range p.layout.dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context, st *runState) error {
	for o := range p.coordinator.Execute(ctx, st.sources, p.parallel) {
		st.outcomes[o.Source] = o
		p.emit(p.log, output.SourceFinished(st.runID, p.sourceReport(o)))
	}
	return nil
}

func (p *Pipeline) transform(_ context.Context, st *runState) error {
	st.result = p.transformer.Transform(st.artifacts())
	for name, err := range st.result.Skipped {
		p.log.Warnw("artifact not transformed", "source", name, "error", err)
	}
	return nil
}

// load fails only when no dataset could be persisted.
func (p *Pipeline) load(_ context.Context, st *runState) error {
	loader := load.New(p.layout.ProcessedDir, st.start,
		load.WithValidity(p.validity),
		load.WithLogger(p.log))
	st.loaded = loader.Load(st.result.Datasets)

	var failures []error
	for _, l := range st.loaded {
		if l.Err != nil {
			failures = append(failures, l.Err)
			continue
		}
		p.emit(p.log, output.DatasetLoaded(st.runID, l.Report()))
	}
	if len(failures) > 0 && len(failures) == len(st.loaded) {
		return errors.Wrap(errors.Join(failures...), "no dataset could be written")
	}
	st.errs = append(st.errs, failures...)
	return nil
}

func (p *Pipeline) summarize(_ context.Context, st *runState) error {
	s := &data.Summary{RunID: st.runID, StartTime: st.start}
	for _, o := range st.orderedOutcomes() {
		s.Sources = append(s.Sources, p.sourceReport(o))
	}
	for _, l := range st.loaded {
		if l.Err == nil {
			s.Datasets = append(s.Datasets, l.Report())
		}
	}
	s.Finalize(p.now())
	st.summary = s
	if !s.Usable() {
		err := errors.Wrapf(data.ErrNoUsableSource, "0 of %d sources extracted", s.SourcesCount)
		st.errs = append(st.errs, err)
		p.log.Warnw("no source was usable, loaded synthetic data only", "error", err)
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, st *runState) error {
	if p.recorder == nil {
		return nil
	}
	return p.recorder.RecordRun(ctx, st.summary, st.orderedOutcomes())
}

func (p *Pipeline) sourceReport(o data.FetchOutcome) data.SourceReport {
	r := data.SourceReport{
		Name:     o.Source,
		Success:  o.Success,
		Attempts: o.Attempts,
		Path:     o.Path,
	}
	if o.Metadata != nil {
		r.Checksum = o.Metadata.Checksum
	}
	if o.Err != nil {
		r.Error = presentFetchError(o.Err, p.verbose)
	}
	return r
}

func (p *Pipeline) emit(log *zap.SugaredLogger, e output.Event) {
	if p.emitter == nil {
		return
	}
	if err := p.emitter.Write(e); err != nil {
		log.Warnw("failed to write event", "event", e.Type, "error", err)
	}
}
