package engine

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"etlpipe/internal/data"
	"etlpipe/internal/output"
	"etlpipe/internal/transform"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []output.Event
}

func (r *recordingEmitter) Write(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := v.(output.Event); ok {
		r.events = append(r.events, e)
	}
	return nil
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeRecorder struct {
	calls    int
	outcomes []data.FetchOutcome
	err      error
	panicMsg string
}

func (f *fakeRecorder) RecordRun(_ context.Context, _ *data.Summary, outcomes []data.FetchOutcome) error {
	f.calls++
	f.outcomes = outcomes
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.err
}

func testLayout(t *testing.T) Layout {
	t.Helper()
	base := t.TempDir()
	return Layout{
		RawDir:       filepath.Join(base, "raw"),
		ProcessedDir: filepath.Join(base, "processed"),
		LogsDir:      filepath.Join(base, "logs"),
	}
}

// csvOutcome writes a small CSV artifact and returns a successful outcome for it.
func csvOutcome(t *testing.T, dir string, src data.SourceDescriptor, attempts int) data.FetchOutcome {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, src.ArtifactFileName())
	body := "Region,Year,Amount\nnorth,2023,10.5\nsouth,2023,7\neast,2024,\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	meta, err := data.NewArtifactMetadata(src, time.Now(), int64(len(body)), "abc123")
	require.NoError(t, err)
	return data.Succeeded(src.Name, path, attempts, meta)
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func newTestPipeline(t *testing.T, layout Layout, f SourceFetcher, opts ...PipelineOption) *Pipeline {
	t.Helper()
	coord, err := NewCoordinator(f, 2, nil)
	require.NoError(t, err)
	opts = append([]PipelineOption{WithRunID(func() string { return "run-test" }), WithClock(fixedClock())}, opts...)
	p, err := NewPipeline(layout, coord, opts...)
	require.NoError(t, err)
	return p
}

func TestNewPipeline_Validates(t *testing.T) {
	_, err := NewPipeline(testLayout(t), nil)
	require.Error(t, err)

	coord, err := NewCoordinator(&scriptedFetcher{}, 1, nil)
	require.NoError(t, err)
	_, err = NewPipeline(Layout{RawDir: "raw"}, coord)
	require.Error(t, err)
}

func TestPipeline_PartialRun(t *testing.T) {
	layout := testLayout(t)
	sources := testSources(t, "alpha", "beta")
	f := &scriptedFetcher{outcomes: map[string]data.FetchOutcome{
		"alpha": csvOutcome(t, layout.RawDir, sources[0], 2),
		"beta":  data.Failed("beta", 3, errors.Wrap(data.ErrTransient, "beta: all 3 attempts failed")),
	}}
	em := &recordingEmitter{}
	rec := &fakeRecorder{}
	p := newTestPipeline(t, layout, f, WithEmitter(em), WithRecorder(rec))

	s, err := p.Execute(context.Background(), sources)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, "run-test", s.RunID)
	assert.Equal(t, 1, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 0.5, s.SuccessRate, 1e-9)
	assert.False(t, s.FallbackOnly)
	require.Len(t, s.Sources, 2)
	assert.Equal(t, "alpha", s.Sources[0].Name)
	assert.Equal(t, 2, s.Sources[0].Attempts)
	assert.Equal(t, "abc123", s.Sources[0].Checksum)
	assert.Contains(t, s.Sources[1].Error, "all 3 attempts failed")

	require.Len(t, s.Datasets, 1)
	assert.Equal(t, "alpha", s.Datasets[0].Name)
	assert.Equal(t, 3, s.Datasets[0].Rows)
	assert.Equal(t, 3, s.TotalRecords)
	assert.Greater(t, s.QualityScore, 0.0)
	for _, file := range s.Datasets[0].Files {
		assert.FileExists(t, file)
	}

	assert.Equal(t, 1, rec.calls)
	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, "alpha", rec.outcomes[0].Source)

	types := em.types()
	require.Len(t, types, 4)
	assert.Equal(t, output.EventRunStarted, types[0])
	assert.Equal(t, output.EventSourceFinished, types[1])
	assert.Equal(t, output.EventSourceFinished, types[2])
	assert.Equal(t, output.EventDatasetLoaded, types[3])
}

func TestPipeline_AllSourcesFailUsesSyntheticFallback(t *testing.T) {
	layout := testLayout(t)
	sources := testSources(t, "alpha", "beta")
	f := &scriptedFetcher{outcomes: map[string]data.FetchOutcome{
		"alpha": data.Failed("alpha", 3, errors.New("alpha: boom")),
		"beta":  data.Failed("beta", 1, errors.Wrap(data.ErrInvalidArtifact, "beta: artifact is empty")),
	}}
	p := newTestPipeline(t, layout, f,
		WithTransformer(transform.New(transform.WithSynthetic(7, 25))))

	s, err := p.Execute(context.Background(), sources)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Successful)
	assert.True(t, s.FallbackOnly)
	assert.False(t, s.Usable())
	require.Len(t, s.Datasets, 1)
	assert.True(t, s.Datasets[0].Synthetic)
	assert.Equal(t, transform.SyntheticDatasetName, s.Datasets[0].Name)
	assert.Equal(t, 25, s.TotalRecords)
	assert.GreaterOrEqual(t, s.QualityScore, 0.0)
	assert.LessOrEqual(t, s.QualityScore, 1.0)
}

func TestPipeline_OptionalStageFailureDoesNotFailRun(t *testing.T) {
	tests := []struct {
		name string
		rec  *fakeRecorder
	}{
		{name: "error", rec: &fakeRecorder{err: errors.New("disk full")}},
		{name: "panic", rec: &fakeRecorder{panicMsg: "ledger exploded"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := testLayout(t)
			sources := testSources(t, "alpha")
			f := &scriptedFetcher{outcomes: map[string]data.FetchOutcome{
				"alpha": csvOutcome(t, layout.RawDir, sources[0], 1),
			}}
			p := newTestPipeline(t, layout, f, WithRecorder(tt.rec))

			s, err := p.Execute(context.Background(), sources)
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.Equal(t, 1, tt.rec.calls)
			assert.Equal(t, 1, s.Successful)
		})
	}
}

func TestPipeline_PrepareFailureIsFatal(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	layout := Layout{
		RawDir:       filepath.Join(blocker, "raw"),
		ProcessedDir: filepath.Join(base, "processed"),
		LogsDir:      filepath.Join(base, "logs"),
	}
	f := &scriptedFetcher{}
	p := newTestPipeline(t, layout, f)

	s, err := p.Execute(context.Background(), testSources(t, "alpha"))
	require.Error(t, err)
	assert.Nil(t, s)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "prepare", se.Stage)
	assert.Empty(t, f.started, "no fetch should start after a fatal stage")
}

func TestPipeline_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, testLayout(t), &scriptedFetcher{})
	_, err := p.Execute(ctx, testSources(t, "alpha"))

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "prepare", se.Stage)
	assert.Equal(t, "start", se.Op)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPipeline_SourceErrorsAreScrubbed(t *testing.T) {
	layout := testLayout(t)
	sources := testSources(t, "alpha")
	raw := &url.Error{Op: "Get", URL: "https://example.com/secret/path?token=abc", Err: errors.New("connection refused")}
	f := &scriptedFetcher{outcomes: map[string]data.FetchOutcome{
		"alpha": data.Failed("alpha", 1, raw),
	}}

	t.Run("default", func(t *testing.T) {
		p := newTestPipeline(t, layout, f)
		s, err := p.Execute(context.Background(), sources)
		require.NoError(t, err)
		assert.NotContains(t, s.Sources[0].Error, "token=abc")
		assert.Contains(t, s.Sources[0].Error, "https://example.com")
	})

	t.Run("verbose", func(t *testing.T) {
		p := newTestPipeline(t, layout, f, WithVerboseErrors(true))
		s, err := p.Execute(context.Background(), sources)
		require.NoError(t, err)
		assert.Contains(t, s.Sources[0].Error, "token=abc")
	})
}
