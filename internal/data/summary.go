package data

import "time"

// DatasetReport is one loaded dataset as it appears in a run summary.
type DatasetReport struct {
	Name      string       `json:"name"`
	Origin    string       `json:"origin"`
	Synthetic bool         `json:"synthetic"`
	Rows      int          `json:"rows"`
	Columns   int          `json:"columns"`
	Files     []string     `json:"files"`
	Quality   QualityScore `json:"quality"`
}

// SourceReport is the per-source extraction line of a run summary.
type SourceReport struct {
	Name     string `json:"name"`
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Path     string `json:"path,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Summary is the loggable report of one pipeline run.
type Summary struct {
	RunID           string          `json:"run_id"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	DurationSeconds float64         `json:"duration_seconds"`
	TotalRecords    int             `json:"total_records"`
	Successful      int             `json:"successful_extractions"`
	Failed          int             `json:"failed_extractions"`
	SuccessRate     float64         `json:"success_rate"`
	SourcesCount    int             `json:"data_sources_count"`
	QualityScore    float64         `json:"data_quality_score"`
	FallbackOnly    bool            `json:"fallback_only"`
	Sources         []SourceReport  `json:"sources"`
	Datasets        []DatasetReport `json:"datasets"`
}

// Finalize fills the derived fields. Ratios are 0 when their denominator is
// 0, so a run with no sources or no datasets still yields a valid summary.
func (s *Summary) Finalize(end time.Time) {
	s.EndTime = end.UTC()
	s.DurationSeconds = s.EndTime.Sub(s.StartTime).Seconds()
	if s.DurationSeconds < 0 {
		s.DurationSeconds = 0
	}

	s.Successful, s.Failed = 0, 0
	for _, src := range s.Sources {
		if src.Success {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	s.SourcesCount = len(s.Sources)
	s.SuccessRate = 0
	if s.SourcesCount > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.SourcesCount)
	}

	s.TotalRecords = 0
	var total float64
	allSynthetic := len(s.Datasets) > 0
	for _, ds := range s.Datasets {
		s.TotalRecords += ds.Rows
		total += ds.Quality.Composite
		if !ds.Synthetic {
			allSynthetic = false
		}
	}
	s.QualityScore = 0
	if len(s.Datasets) > 0 {
		s.QualityScore = total / float64(len(s.Datasets))
	}
	s.FallbackOnly = s.Successful == 0 || allSynthetic
}

// Usable reports whether at least one source produced a validated artifact.
func (s *Summary) Usable() bool {
	return s != nil && s.Successful > 0
}

// Partial reports a run where some, but not all, sources failed.
func (s *Summary) Partial() bool {
	return s != nil && s.Successful > 0 && s.Failed > 0
}
