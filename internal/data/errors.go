package data

import "github.com/cockroachdb/errors"

// Error taxonomy shared by every pipeline stage. Stages wrap or mark these so
// callers can classify a failure with errors.Is without parsing messages.
var (
	// ErrInvalidSource reports a descriptor rejected at construction time.
	ErrInvalidSource = errors.New("invalid source descriptor")

	// ErrTransient reports a network failure, timeout or non-2xx response.
	// Fetchers retry these until the source's retry budget is exhausted.
	ErrTransient = errors.New("transient fetch failure")

	// ErrInvalidArtifact reports a structurally invalid artifact (missing,
	// empty or undersized). It is never retried.
	ErrInvalidArtifact = errors.New("artifact failed validation")

	// ErrUnparseable reports tabular content that could not be decoded for
	// its declared format. The source is skipped from the dataset set.
	ErrUnparseable = errors.New("artifact could not be parsed")

	// ErrNoUsableSource reports a run in which no source produced a validated
	// artifact.
	ErrNoUsableSource = errors.New("no usable source")
)

// IsRetryable reports whether err should consume another fetch attempt.
func IsRetryable(err error) bool {
	return err != nil && errors.Is(err, ErrTransient) && !errors.Is(err, ErrInvalidArtifact)
}
