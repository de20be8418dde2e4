package data

import "time"

// FetchOutcome is the result of one source's full attempt sequence.
type FetchOutcome struct {
	Source   string `json:"source"`
	Success  bool   `json:"success"`
	Path     string `json:"path,omitempty"`
	Attempts int    `json:"attempts"`

	Err error `json:"-"`

	// Metadata is set on success and nil otherwise.
	Metadata *ArtifactMetadata `json:"metadata,omitempty"`

	Duration time.Duration `json:"-"`
}

// Succeeded builds a successful outcome. meta must describe the artifact at path.
func Succeeded(source, path string, attempts int, meta ArtifactMetadata) FetchOutcome {
	return FetchOutcome{
		Source:   source,
		Success:  true,
		Path:     path,
		Attempts: attempts,
		Metadata: &meta,
	}
}

// Failed builds a failed outcome carrying the last observed error.
func Failed(source string, attempts int, err error) FetchOutcome {
	return FetchOutcome{
		Source:   source,
		Attempts: attempts,
		Err:      err,
	}
}

// ErrorText is the error message, or "" for successful outcomes.
func (o FetchOutcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
