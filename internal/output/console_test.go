package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"etlpipe/internal/data"
)

func TestConsoleSink_Filtering(t *testing.T) {
	okSource := SourceFinished("run-1", data.SourceReport{Name: "stats", Success: true, Attempts: 1})
	failSource := SourceFinished("run-1", data.SourceReport{Name: "broken", Attempts: 3, Error: "boom"})

	tests := []struct {
		name           string
		format         string
		filterStatuses []string
		input          Event
		shouldWrite    bool
	}{
		{
			name:        "text - no filter - ok",
			format:      "text",
			input:       okSource,
			shouldWrite: true,
		},
		{
			name:           "text - filter FAIL - input OK",
			format:         "text",
			filterStatuses: []string{"FAIL"},
			input:          okSource,
			shouldWrite:    false,
		},
		{
			name:           "text - filter fail (lower case) - input FAIL",
			format:         "text",
			filterStatuses: []string{"fail"},
			input:          failSource,
			shouldWrite:    true,
		},
		{
			name:           "text - filter FAIL - lifecycle lines unaffected",
			format:         "text",
			filterStatuses: []string{"FAIL"},
			input:          RunStarted("run-1", 2, false),
			shouldWrite:    true,
		},
		{
			name:           "ndjson - filter OK - input FAIL",
			format:         "ndjson",
			filterStatuses: []string{"OK"},
			input:          failSource,
			shouldWrite:    false,
		},
		{
			name:           "ndjson - filter OK - input OK",
			format:         "ndjson",
			filterStatuses: []string{"OK"},
			input:          okSource,
			shouldWrite:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := NewConsoleSink(&buf, tt.format, tt.filterStatuses)
			if err := sink.Write(tt.input); err != nil {
				t.Fatalf("Write returned error: %v", err)
			}
			if got := buf.Len() > 0; got != tt.shouldWrite {
				t.Fatalf("wrote output = %v, want %v (output %q)", got, tt.shouldWrite, buf.String())
			}
		})
	}
}

func TestConsoleSink_TextLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", nil)
	writeAll(t, sink, runEvents(t))
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Extracting 2 sources (parallel)",
		"[OK] stats (attempts: 2)",
		"[FAIL] broken (attempts: 3) - broken: all 3 attempts failed",
		"[LOADED] stats: 42 rows, 3 columns, quality 0.750",
		"Run run-1: 1/2 sources extracted, 42 records, quality 0.750",
		"(exit 0)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("console output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "synthetic fallback") {
		t.Fatalf("unexpected fallback warning:\n%s", out)
	}
}

func TestConsoleSink_TextWarnsOnFallbackOnly(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", nil)

	sum := &data.Summary{
		RunID:    "run-2",
		Sources:  []data.SourceReport{{Name: "a", Attempts: 3, Error: "down"}},
		Datasets: []data.DatasetReport{{Name: "synthetic_fallback", Synthetic: true, Rows: 10, Columns: 2}},
	}
	sum.Finalize(sum.StartTime)
	_ = sink.Write(DatasetLoaded("run-2", sum.Datasets[0]))
	_ = sink.Write(RunFinished(sum, 1))

	out := buf.String()
	if !strings.Contains(out, "synthetic_fallback (synthetic)") {
		t.Fatalf("expected synthetic tag:\n%s", out)
	}
	if !strings.Contains(out, "synthetic fallback data only") {
		t.Fatalf("expected fallback warning:\n%s", out)
	}
}

func TestConsoleSink_JSONWritesSummaryOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "json", nil)
	writeAll(t, sink, runEvents(t))
	if buf.Len() != 0 {
		t.Fatalf("json mode must not write before Close, got %q", buf.String())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, key := range []string{"run_id", "successful_extractions", "failed_extractions", "data_quality_score", "datasets"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("summary missing key %q: %v", key, got)
		}
	}
}

func TestConsoleSink_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "yaml", nil)
	if err := sink.Write(RunStarted("run-1", 1, false)); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
	if err := sink.Close(); err == nil {
		t.Fatalf("expected close error for unsupported format")
	}
}
