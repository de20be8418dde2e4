package data

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const bytesPerMB = 1024 * 1024

var sourceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// Address schemes a SourceDescriptor may use. Each one must be served by a
// registered fetch provider.
var supportedSchemes = map[string]struct{}{
	"http":   {},
	"https":  {},
	"github": {},
}

// SourceDescriptor is one named remote origin of a data artifact.
//
// Descriptors are values: the registry hands out copies and nothing mutates
// them for the lifetime of a run. Build them with NewSourceDescriptor so the
// invariants below hold.
type SourceDescriptor struct {
	// Name is the registry key. It names the artifact on disk, so it is
	// restricted to lower-case letters, digits, '_', '.' and '-'.
	Name string `json:"name" yaml:"name"`

	// Title is an optional human label used in logs and reports.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Address is the network locator (http, https or github scheme).
	Address string `json:"url" yaml:"url"`

	Format Format `json:"format" yaml:"format"`

	// ExpectedSizeMB is the declared size estimate. Zero disables the
	// undersize gate.
	ExpectedSizeMB float64 `json:"expected_size_mb" yaml:"expected_size_mb"`

	// MaxRetries is the total attempt budget, >= 1.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	LastUpdated time.Time `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
}

// NewSourceDescriptor builds and validates a descriptor.
func NewSourceDescriptor(name, address string, format Format, expectedSizeMB float64, maxRetries int, lastUpdated time.Time) (SourceDescriptor, error) {
	d := SourceDescriptor{
		Name:           name,
		Address:        address,
		Format:         format,
		ExpectedSizeMB: expectedSizeMB,
		MaxRetries:     maxRetries,
		LastUpdated:    lastUpdated,
	}
	if err := d.Validate(); err != nil {
		return SourceDescriptor{}, err
	}
	return d, nil
}

// WithTitle returns a copy of d carrying a display title.
func (d SourceDescriptor) WithTitle(title string) SourceDescriptor {
	d.Title = strings.TrimSpace(title)
	return d
}

// Validate checks the descriptor invariants. Every failure wraps ErrInvalidSource.
func (d SourceDescriptor) Validate() error {
	if !sourceNamePattern.MatchString(d.Name) {
		return errors.Wrapf(ErrInvalidSource, "name %q must match %s", d.Name, sourceNamePattern.String())
	}
	u, err := url.Parse(strings.TrimSpace(d.Address))
	if err != nil {
		return errors.Wrapf(ErrInvalidSource, "source %s: malformed address %q", d.Name, d.Address)
	}
	if _, ok := supportedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return errors.Wrapf(ErrInvalidSource, "source %s: unsupported address scheme %q", d.Name, u.Scheme)
	}
	if u.Host == "" {
		return errors.Wrapf(ErrInvalidSource, "source %s: address %q has no host", d.Name, d.Address)
	}
	if _, err := ParseFormat(string(d.Format)); err != nil {
		return errors.Wrapf(ErrInvalidSource, "source %s: %v", d.Name, err)
	}
	if d.ExpectedSizeMB < 0 {
		return errors.Wrapf(ErrInvalidSource, "source %s: expected size must be >= 0, got %v", d.Name, d.ExpectedSizeMB)
	}
	if d.MaxRetries < 1 {
		return errors.Wrapf(ErrInvalidSource, "source %s: max retries must be >= 1, got %d", d.Name, d.MaxRetries)
	}
	return nil
}

// Label is the title when set, otherwise the name.
func (d SourceDescriptor) Label() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// Scheme is the lower-cased address scheme.
func (d SourceDescriptor) Scheme() string {
	u, err := url.Parse(strings.TrimSpace(d.Address))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Host is the address host (the repository owner for github addresses).
func (d SourceDescriptor) Host() string {
	u, err := url.Parse(strings.TrimSpace(d.Address))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// ExpectedSizeBytes converts the declared size estimate to bytes.
func (d SourceDescriptor) ExpectedSizeBytes() int64 {
	return int64(d.ExpectedSizeMB * bytesPerMB)
}

func (d SourceDescriptor) ArtifactFileName() string {
	return d.Name + "." + d.Format.Extension()
}

func (d SourceDescriptor) MetadataFileName() string {
	return d.Name + ".metadata.json"
}

// BytesToMB converts a byte count to the MB unit used by descriptors and
// metadata records.
func BytesToMB(n int64) float64 {
	return float64(n) / bytesPerMB
}
