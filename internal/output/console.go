package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
)

// Source line statuses accepted by the console filter.
const (
	StatusOK   = "OK"
	StatusFail = "FAIL"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	agg             aggregate
	allowedStatuses map[string]bool

	ok, fail, loaded, bold *color.Color
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed, color.Bold),
		loaded: color.New(color.FgCyan),
		bold:   color.New(color.Bold),
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[strings.ToUpper(st)] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	e, ok := v.(Event)
	if !ok {
		return nil
	}

	// Filtering applies to per-source lines only.
	if len(s.allowedStatuses) > 0 && e.Type == EventSourceFinished && e.Source != nil {
		if !s.allowedStatuses[sourceStatus(*e.Source)] {
			return nil
		}
	}

	switch s.format {
	case "json":
		s.agg.observe(e)
		return nil
	case "ndjson":
		if err := json.NewEncoder(s.writer).Encode(e); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	case "text":
		if err := s.writeText(e); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return errors.Newf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) writeText(e Event) error {
	var err error
	switch e.Type {
	case EventRunStarted:
		mode := "sequential"
		if e.Parallel {
			mode = "parallel"
		}
		_, err = s.bold.Fprintf(s.writer, "Extracting %d sources (%s)\n", e.Sources, mode)
	case EventSourceFinished:
		if e.Source == nil {
			return nil
		}
		r := e.Source
		if r.Success {
			_, err = s.ok.Fprintf(s.writer, "[%s] ", StatusOK)
			if err == nil {
				_, err = fmt.Fprintf(s.writer, "%s (attempts: %d)\n", r.Name, r.Attempts)
			}
			break
		}
		_, err = s.fail.Fprintf(s.writer, "[%s] ", StatusFail)
		if err == nil {
			_, err = fmt.Fprintf(s.writer, "%s (attempts: %d)", r.Name, r.Attempts)
		}
		if err == nil && r.Error != "" {
			_, err = fmt.Fprintf(s.writer, " - %s", r.Error)
		}
		if err == nil {
			_, err = fmt.Fprintln(s.writer)
		}
	case EventDatasetLoaded:
		if e.Dataset == nil {
			return nil
		}
		d := e.Dataset
		_, err = s.loaded.Fprint(s.writer, "[LOADED] ")
		if err == nil {
			tag := ""
			if d.Synthetic {
				tag = " (synthetic)"
			}
			_, err = fmt.Fprintf(s.writer, "%s%s: %d rows, %d columns, quality %.3f\n",
				d.Name, tag, d.Rows, d.Columns, d.Quality.Composite)
		}
	case EventRunFinished:
		if e.Summary == nil {
			return nil
		}
		sum := e.Summary
		_, err = s.bold.Fprintf(s.writer,
			"Run %s: %d/%d sources extracted, %d records, quality %.3f, %.1fs (exit %d)\n",
			sum.RunID, sum.Successful, sum.SourcesCount, sum.TotalRecords,
			sum.QualityScore, sum.DurationSeconds, e.ExitCode)
		if err == nil && sum.FallbackOnly {
			_, err = s.fail.Fprintln(s.writer, "No source was usable; loaded synthetic fallback data only.")
		}
	}
	return err
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(s.agg.value()); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
	if s.format != "text" && s.format != "ndjson" {
		return errors.Newf("unsupported console format: %s", s.format)
	}
	return nil
}

func sourceStatus(r data.SourceReport) string {
	if r.Success {
		return StatusOK
	}
	return StatusFail
}
