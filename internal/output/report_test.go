package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"etlpipe/internal/data"
)

func renderReport(t *testing.T, events []Event) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "reports", "run.md")
	s, err := NewReportSink(path)
	if err != nil {
		t.Fatalf("NewReportSink failed: %v", err)
	}
	writeAll(t, s, events)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return string(b)
}

func TestMarkdownReportContract(t *testing.T) {
	content := renderReport(t, runEvents(t))

	for _, want := range []string{
		"# ETL Pipeline Run Report",
		"## Overview",
		"| Run ID | `run-1` |",
		"| Sources extracted | 1 / 2 (50%) |",
		"| Records loaded | 42 |",
		"| Exit code | 0 |",
		"## Sources",
		"| broken | FAIL | 3 | - |",
		"| stats | OK | 2 | `0123456789ab` |",
		"## Extraction Failures",
		"| unexpected status 503 Service Unavailable: transient failure | broken |",
		"## Datasets",
		"| stats | stats | 42 | 3 | 0.900 | 0.600 | 0.750 | 0.750 |",
		"### Quality Watchlist",
		"- **stats** (0.750): weakest dimension is uniqueness",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("report missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "Warning:") {
		t.Fatalf("unexpected fallback warning:\n%s", content)
	}
}

func TestMarkdownReport_FallbackOnly(t *testing.T) {
	sum := &data.Summary{
		RunID:    "run-9",
		Sources:  []data.SourceReport{{Name: "a", Attempts: 1, Error: "a: no fetch provider"}},
		Datasets: []data.DatasetReport{{Name: "synthetic_fallback", Origin: data.OriginSynthetic, Synthetic: true, Rows: 5, Quality: data.NewQualityScore("synthetic_fallback", 1, 1, 1)}},
	}
	sum.Finalize(sum.StartTime)

	content := renderReport(t, []Event{RunFinished(sum, 1)})
	for _, want := range []string{
		"> **Warning:** no source produced usable data.",
		"synthetic_fallback _(synthetic)_",
		"| Exit code | 1 |",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("report missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "Quality Watchlist") {
		t.Fatalf("perfect scores must not appear on the watchlist:\n%s", content)
	}
}

func TestMarkdownReport_UnfinishedRunUsesStreamedEvents(t *testing.T) {
	events := runEvents(t)
	content := renderReport(t, events[:3])

	if !strings.Contains(content, "Run did not finish") {
		t.Fatalf("expected unfinished notice:\n%s", content)
	}
	if !strings.Contains(content, "| stats | OK | 2 |") {
		t.Fatalf("expected streamed source rows:\n%s", content)
	}
	if !strings.Contains(content, "No datasets were loaded.") {
		t.Fatalf("expected empty datasets section:\n%s", content)
	}
}

func TestNormalizeErrorReason(t *testing.T) {
	tests := []struct {
		source, in, want string
	}{
		{"s", "", "unknown error"},
		{"s", "s: all 3 attempts failed: s: request: dial tcp: refused", "request: dial tcp: refused"},
		{"s", "  s:   create   artifact ", "create artifact"},
		{"other", "s: boom", "s: boom"},
		{"s", strings.Repeat("x", 200), strings.Repeat("x", 117) + "..."},
	}
	for _, tt := range tests {
		if got := normalizeErrorReason(tt.source, tt.in); got != tt.want {
			t.Fatalf("normalizeErrorReason(%q, %q) = %q, want %q", tt.source, tt.in, got, tt.want)
		}
	}
}

func TestGroupFailures_OrdersByFrequency(t *testing.T) {
	groups := groupFailures([]data.SourceReport{
		{Name: "a", Error: "a: timeout"},
		{Name: "b", Error: "b: unexpected status 404"},
		{Name: "c", Error: "c: timeout"},
		{Name: "d", Success: true},
	})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %#v", groups)
	}
	if groups[0].Reason != "timeout" || strings.Join(groups[0].Sources, ",") != "a,c" {
		t.Fatalf("unexpected first group: %#v", groups[0])
	}
	if got := formatNameList([]string{"a", "b", "c", "d"}, 3); got != "a, b, c, +1 more" {
		t.Fatalf("formatNameList = %q", got)
	}
}
