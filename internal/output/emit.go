package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// EmitSink writes additional structured outputs.
//
// Formats:
//   - json: writes the run summary as one JSON document on Close
//   - ndjson: streams Event values (one JSON object per line)
type EmitSink struct {
	writer io.Writer
	format string // "json" | "ndjson"
	mu     sync.Mutex
	agg    aggregate
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, errors.New("emit sink writer must not be nil")
	}
	if format != "json" && format != "ndjson" {
		return nil, errors.Newf("unsupported emit format: %s", format)
	}
	return &EmitSink{writer: w, format: format}, nil
}

func (s *EmitSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		s.agg.observe(v)
		return nil
	case "ndjson":
		e, ok := v.(Event)
		if !ok {
			return nil
		}
		if err := json.NewEncoder(s.writer).Encode(e); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return errors.Newf("unsupported emit format: %s", s.format)
	}
}

func (s *EmitSink) Close() error {
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
	return nil
}
