// Package registry holds the catalog of named sources a pipeline run
// extracts from.
package registry

import (
	"path"
	"strings"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
)

// Registry is an ordered, read-only set of source descriptors.
type Registry struct {
	order  []string
	byName map[string]data.SourceDescriptor
}

// New builds a registry in argument order. Descriptors are re-validated and
// duplicate names are rejected.
func New(descs ...data.SourceDescriptor) (*Registry, error) {
	r := &Registry{
		order:  make([]string, 0, len(descs)),
		byName: make(map[string]data.SourceDescriptor, len(descs)),
	}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, errors.Wrapf(data.ErrInvalidSource, "duplicate source name %q", d.Name)
		}
		r.order = append(r.order, d.Name)
		r.byName[d.Name] = d
	}
	return r, nil
}

// List returns the descriptors in registry order. The slice is a copy.
func (r *Registry) List() []data.SourceDescriptor {
	if r == nil {
		return nil
	}
	out := make([]data.SourceDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

func (r *Registry) Lookup(name string) (data.SourceDescriptor, bool) {
	if r == nil {
		return data.SourceDescriptor{}, false
	}
	d, ok := r.byName[strings.TrimSpace(name)]
	return d, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Filter returns a registry narrowed by path.Match patterns on source names.
// An empty include list keeps every source; exclude always wins.
func (r *Registry) Filter(include, exclude []string) *Registry {
	out := &Registry{byName: make(map[string]data.SourceDescriptor)}
	if r == nil {
		return out
	}
	for _, name := range r.order {
		if len(include) > 0 && !matchesAnyPattern(include, name) {
			continue
		}
		if matchesAnyPattern(exclude, name) {
			continue
		}
		out.order = append(out.order, name)
		out.byName[name] = r.byName[name]
	}
	return out
}

func matchesAnyPattern(patterns []string, name string) bool {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if matched, _ := path.Match(p, name); matched {
			return true
		}
	}
	return false
}
