package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"etlpipe/internal/data"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// scriptedFetcher returns a fixed outcome per source, optionally sleeping or
// panicking, and tracks the peak number of concurrent calls.
type scriptedFetcher struct {
	outcomes map[string]data.FetchOutcome
	delay    map[string]time.Duration
	panics   map[string]bool

	active  int32
	peak    int32
	mu      sync.Mutex
	started []string
}

func (f *scriptedFetcher) Fetch(_ context.Context, src data.SourceDescriptor) data.FetchOutcome {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	f.mu.Lock()
	f.started = append(f.started, src.Name)
	f.mu.Unlock()

	if d := f.delay[src.Name]; d > 0 {
		time.Sleep(d)
	}
	if f.panics[src.Name] {
		panic("boom")
	}
	return f.outcomes[src.Name]
}

func testSources(t *testing.T, names ...string) []data.SourceDescriptor {
	t.Helper()
	out := make([]data.SourceDescriptor, 0, len(names))
	for _, n := range names {
		d, err := data.NewSourceDescriptor(n, "https://example.com/"+n+".csv", data.FormatCSV, 0, 3, time.Time{})
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestNewCoordinator_Validates(t *testing.T) {
	_, err := NewCoordinator(nil, 1, nil)
	require.Error(t, err)
	_, err = NewCoordinator(&scriptedFetcher{}, 0, nil)
	require.Error(t, err)
}

func TestCoordinator_SequentialAndParallelAgree(t *testing.T) {
	defer goleak.VerifyNone(t)

	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	sources := testSources(t, names...)
	newFetcher := func() *scriptedFetcher {
		f := &scriptedFetcher{
			outcomes: map[string]data.FetchOutcome{},
			delay:    map[string]time.Duration{},
		}
		for i, n := range names {
			if i%2 == 0 {
				f.outcomes[n] = data.Succeeded(n, "/raw/"+n+".csv", 2, data.ArtifactMetadata{SourceName: n})
			} else {
				f.outcomes[n] = data.Failed(n, 3, data.ErrTransient)
			}
			f.delay[n] = time.Duration(len(names)-i) * 5 * time.Millisecond
		}
		return f
	}

	seqF := newFetcher()
	seq, err := NewCoordinator(seqF, 3, nil)
	require.NoError(t, err)
	seqRes := seq.RunAll(context.Background(), sources, false)

	parF := newFetcher()
	par, err := NewCoordinator(parF, 3, nil)
	require.NoError(t, err)
	parRes := par.RunAll(context.Background(), sources, true)

	opts := cmp.Options{
		cmpopts.IgnoreFields(data.FetchOutcome{}, "Duration"),
		cmpopts.EquateErrors(),
	}
	if diff := cmp.Diff(seqRes, parRes, opts); diff != "" {
		t.Fatalf("sequential and parallel outcomes differ (-seq +par):\n%s", diff)
	}
	assert.Len(t, parRes, len(names))

	assert.Equal(t, names, seqF.started, "sequential mode follows registry order")
	assert.EqualValues(t, 1, seqF.peak)
	assert.LessOrEqual(t, parF.peak, int32(3))
	assert.Greater(t, parF.peak, int32(1))
}

func TestCoordinator_PanicIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	sources := testSources(t, "ok1", "bad", "ok2")
	f := &scriptedFetcher{
		outcomes: map[string]data.FetchOutcome{
			"ok1": data.Succeeded("ok1", "/raw/ok1.csv", 1, data.ArtifactMetadata{}),
			"ok2": data.Succeeded("ok2", "/raw/ok2.csv", 1, data.ArtifactMetadata{}),
		},
		panics: map[string]bool{"bad": true},
	}

	for _, parallel := range []bool{false, true} {
		c, err := NewCoordinator(f, DefaultWidth, nil)
		require.NoError(t, err)
		res := c.RunAll(context.Background(), sources, parallel)

		require.Len(t, res, 3)
		assert.True(t, res["ok1"].Success)
		assert.True(t, res["ok2"].Success)
		assert.False(t, res["bad"].Success)
		assert.ErrorContains(t, res["bad"].Err, "panicked")
	}
}

func TestCoordinator_EmptySources(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, err := NewCoordinator(&scriptedFetcher{}, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, c.RunAll(context.Background(), nil, true))
	assert.Empty(t, c.RunAll(context.Background(), nil, false))
}
