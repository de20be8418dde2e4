package registry

import (
	"os"
	"strings"
	"time"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// fileSource is one entry of a registry file.
type fileSource struct {
	Name           string  `yaml:"name"`
	Title          string  `yaml:"title"`
	URL            string  `yaml:"url"`
	Format         string  `yaml:"format"`
	ExpectedSizeMB float64 `yaml:"expected_size_mb"`
	MaxRetries     *int    `yaml:"max_retries"`
	LastUpdated    string  `yaml:"last_updated"`
}

type fileDoc struct {
	Sources []fileSource `yaml:"sources"`
}

// LoadFile reads a YAML registry. The document is either a top-level list
// of sources or a mapping with a "sources" key. max_retries defaults to 3
// when omitted.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read registry file %s", path)
	}
	return Parse(raw)
}

// Parse decodes a YAML registry document.
func Parse(raw []byte) (*Registry, error) {
	var entries []fileSource
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, errors.Wrap(err, "parse registry")
	}
	switch {
	case len(node.Content) == 0:
		// empty document
	case node.Content[0].Kind == yaml.SequenceNode:
		if err := node.Content[0].Decode(&entries); err != nil {
			return nil, errors.Wrap(err, "decode registry list")
		}
	default:
		var doc fileDoc
		if err := node.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode registry document")
		}
		entries = doc.Sources
	}

	descs := make([]data.SourceDescriptor, 0, len(entries))
	for i, e := range entries {
		d, err := e.descriptor()
		if err != nil {
			return nil, errors.Wrapf(err, "registry entry %d", i)
		}
		descs = append(descs, d)
	}
	return New(descs...)
}

func (e fileSource) descriptor() (data.SourceDescriptor, error) {
	format, err := data.ParseFormat(e.Format)
	if err != nil {
		return data.SourceDescriptor{}, errors.Wrapf(data.ErrInvalidSource, "source %s: %v", e.Name, err)
	}
	retries := defaultMaxRetries
	if e.MaxRetries != nil {
		retries = *e.MaxRetries
	}
	var updated time.Time
	if s := strings.TrimSpace(e.LastUpdated); s != "" {
		updated, err = parseDate(s)
		if err != nil {
			return data.SourceDescriptor{}, errors.Wrapf(data.ErrInvalidSource, "source %s: last_updated %q: %v", e.Name, s, err)
		}
	}
	d, err := data.NewSourceDescriptor(strings.TrimSpace(e.Name), strings.TrimSpace(e.URL), format, e.ExpectedSizeMB, retries, updated)
	if err != nil {
		return data.SourceDescriptor{}, err
	}
	return d.WithTitle(e.Title), nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
