package output

import (
	"testing"
	"time"

	"etlpipe/internal/data"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

// runEvents is a finished two-source run: stats extracted on the second
// attempt, broken exhausted its retries.
func runEvents(t *testing.T) []Event {
	t.Helper()

	start := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	sources := []data.SourceReport{
		{Name: "stats", Success: true, Attempts: 2, Path: "data/raw/stats.csv", Checksum: "0123456789abcdef0123"},
		{Name: "broken", Attempts: 3, Error: "broken: all 3 attempts failed: broken: unexpected status 503 Service Unavailable: transient failure"},
	}
	datasets := []data.DatasetReport{
		{
			Name: "stats", Origin: "stats", Rows: 42, Columns: 3,
			Files:   []string{"data/processed/stats.parquet", "data/processed/stats.csv"},
			Quality: data.NewQualityScore("stats", 0.9, 0.6, 0.75),
		},
	}
	sum := &data.Summary{RunID: "run-1", StartTime: start, Sources: sources, Datasets: datasets}
	sum.Finalize(start.Add(4 * time.Second))

	return []Event{
		RunStarted("run-1", 2, true),
		SourceFinished("run-1", sources[0]),
		SourceFinished("run-1", sources[1]),
		DatasetLoaded("run-1", datasets[0]),
		RunFinished(sum, 0),
	}
}

func writeAll(t *testing.T, s Sink, events []Event) {
	t.Helper()
	for _, e := range events {
		if err := s.Write(e); err != nil {
			t.Fatalf("Write(%s) returned error: %v", e.Type, err)
		}
	}
}
