package output

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
)

// ReportSink renders a Markdown run report on Close.
type ReportSink struct {
	path         string
	file         *os.File
	mu           sync.Mutex
	sources      []data.SourceReport
	datasets     []data.DatasetReport
	summary      *data.Summary
	exitCode     int
	haveExitCode bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, errors.New("report path required")
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create report file")
	}

	return &ReportSink{path: path, file: f}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := v.(Event)
	if !ok {
		return nil
	}
	switch e.Type {
	case EventSourceFinished:
		if e.Source != nil {
			s.sources = append(s.sources, *e.Source)
		}
	case EventDatasetLoaded:
		if e.Dataset != nil {
			s.datasets = append(s.datasets, *e.Dataset)
		}
	case EventRunFinished:
		s.summary = e.Summary
		s.exitCode = e.ExitCode
		s.haveExitCode = true
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The summary is authoritative when present; streamed events cover
	// runs that aborted before run.finished.
	sources, datasets := s.sources, s.datasets
	if s.summary != nil {
		sources = append([]data.SourceReport(nil), s.summary.Sources...)
		datasets = append([]data.DatasetReport(nil), s.summary.Datasets...)
	}
	sortSources(sources)
	sortDatasets(datasets)

	var b strings.Builder
	b.WriteString("# ETL Pipeline Run Report\n\n")
	s.writeOverview(&b)
	writeSourcesSection(&b, sources)
	writeFailuresSection(&b, sources)
	writeDatasetsSection(&b, datasets)
	writeQualityWatchlist(&b, datasets, 3)

	if _, err := s.file.WriteString(b.String()); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *ReportSink) writeOverview(b *strings.Builder) {
	b.WriteString("## Overview\n\n")
	if s.summary == nil {
		b.WriteString("Run did not finish; no summary available.\n\n")
		return
	}
	sum := s.summary
	b.WriteString("| Field | Value |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(b, "| Run ID | `%s` |\n", sum.RunID)
	fmt.Fprintf(b, "| Started | %s |\n", sum.StartTime.UTC().Format("2006-01-02 15:04:05Z"))
	fmt.Fprintf(b, "| Duration | %.1fs |\n", sum.DurationSeconds)
	fmt.Fprintf(b, "| Sources extracted | %d / %d (%s) |\n", sum.Successful, sum.SourcesCount, formatPercent(sum.SuccessRate))
	fmt.Fprintf(b, "| Records loaded | %d |\n", sum.TotalRecords)
	fmt.Fprintf(b, "| Data quality score | %.3f |\n", sum.QualityScore)
	if s.haveExitCode {
		fmt.Fprintf(b, "| Exit code | %d |\n", s.exitCode)
	}
	b.WriteString("\n")

	if sum.FallbackOnly {
		b.WriteString("> **Warning:** no source produced usable data. The loaded dataset is synthetic fallback data and must not be used for analysis.\n\n")
	}
}

func writeSourcesSection(b *strings.Builder, sources []data.SourceReport) {
	b.WriteString("## Sources\n\n")
	if len(sources) == 0 {
		b.WriteString("No sources were extracted.\n\n")
		return
	}
	b.WriteString("| Source | Status | Attempts | Checksum |\n")
	b.WriteString("| --- | --- | ---: | --- |\n")
	for _, r := range sources {
		status := StatusOK
		if !r.Success {
			status = StatusFail
		}
		fmt.Fprintf(b, "| %s | %s | %d | %s |\n", r.Name, status, r.Attempts, shortChecksum(r.Checksum))
	}
	b.WriteString("\n")
}

func writeFailuresSection(b *strings.Builder, sources []data.SourceReport) {
	groups := groupFailures(sources)
	if len(groups) == 0 {
		return
	}
	b.WriteString("## Extraction Failures\n\n")
	b.WriteString("| Reason | Sources |\n")
	b.WriteString("| --- | --- |\n")
	for _, g := range groups {
		fmt.Fprintf(b, "| %s | %s |\n", escapeCell(g.Reason), formatNameList(g.Sources, 3))
	}
	b.WriteString("\n")
}

func writeDatasetsSection(b *strings.Builder, datasets []data.DatasetReport) {
	b.WriteString("## Datasets\n\n")
	if len(datasets) == 0 {
		b.WriteString("No datasets were loaded.\n\n")
		return
	}
	b.WriteString("| Dataset | Origin | Rows | Columns | Completeness | Uniqueness | Validity | Score |\n")
	b.WriteString("| --- | --- | ---: | ---: | ---: | ---: | ---: | ---: |\n")
	for _, d := range datasets {
		name := d.Name
		if d.Synthetic {
			name += " _(synthetic)_"
		}
		q := d.Quality
		fmt.Fprintf(b, "| %s | %s | %d | %d | %.3f | %.3f | %.3f | %.3f |\n",
			name, d.Origin, d.Rows, d.Columns, q.Completeness, q.Uniqueness, q.Validity, q.Composite)
	}
	b.WriteString("\n")
}

func writeQualityWatchlist(b *strings.Builder, datasets []data.DatasetReport, n int) {
	low := lowestQuality(datasets, qualityWatchThreshold, n)
	if len(low) == 0 {
		return
	}
	b.WriteString("### Quality Watchlist\n\n")
	fmt.Fprintf(b, "Datasets scoring below %.2f:\n\n", qualityWatchThreshold)
	for _, d := range low {
		fmt.Fprintf(b, "- **%s** (%.3f): weakest dimension is %s\n", d.Name, d.Quality.Composite, weakestDimension(d.Quality))
	}
	b.WriteString("\n")
}
