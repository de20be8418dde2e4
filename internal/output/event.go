package output

import "etlpipe/internal/data"

const (
	EventRunStarted     = "run.started"
	EventSourceFinished = "source.finished"
	EventDatasetLoaded  = "dataset.loaded"
	EventRunFinished    = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// A run emits, in order:
// - run.started
// - source.finished (one per source, completion order)
// - dataset.loaded (one per dataset, name order)
// - run.finished
//
// JSON mode is an aggregate: the run.finished summary written at close.
type Event struct {
	Type     string              `json:"type"`
	RunID    string              `json:"run_id,omitempty"`
	Sources  int                 `json:"sources,omitempty"`
	Parallel bool                `json:"parallel,omitempty"`
	Source   *data.SourceReport  `json:"source,omitempty"`
	Dataset  *data.DatasetReport `json:"dataset,omitempty"`
	Summary  *data.Summary       `json:"summary,omitempty"`
	ExitCode int                 `json:"exit_code,omitempty"`
}

func RunStarted(runID string, sources int, parallel bool) Event {
	return Event{Type: EventRunStarted, RunID: runID, Sources: sources, Parallel: parallel}
}

func SourceFinished(runID string, r data.SourceReport) Event {
	return Event{Type: EventSourceFinished, RunID: runID, Source: &r}
}

func DatasetLoaded(runID string, r data.DatasetReport) Event {
	return Event{Type: EventDatasetLoaded, RunID: runID, Dataset: &r}
}

func RunFinished(s *data.Summary, exitCode int) Event {
	e := Event{Type: EventRunFinished, Summary: s, ExitCode: exitCode}
	if s != nil {
		e.RunID = s.RunID
	}
	return e
}

// aggregate collects the final summary for JSON-mode sinks.
type aggregate struct {
	summary *data.Summary
}

func (a *aggregate) observe(v any) {
	if e, ok := v.(Event); ok && e.Type == EventRunFinished && e.Summary != nil {
		a.summary = e.Summary
	}
}

// value is what a JSON-mode sink encodes on close. A run that never
// finished still yields an object.
func (a *aggregate) value() any {
	if a.summary == nil {
		return struct{}{}
	}
	return a.summary
}
