package output

import (
	"github.com/cockroachdb/errors"
)

// Sink defines a destination for pipeline events.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager coordinates writing events to multiple sinks.
type Manager struct {
	sinks []Sink
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return errors.New("output manager is nil")
	}
	if s == nil {
		return errors.New("sink must not be nil")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Len reports the number of attached sinks.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	return len(m.sinks)
}

func (m *Manager) Write(v any) error {
	if m == nil {
		return errors.New("output manager is nil")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(v); err != nil {
			errs = append(errs, errors.Wrapf(err, "write %T", s))
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "errors writing to sinks")
	}
	return nil
}

func (m *Manager) Close() error {
	if m == nil {
		return errors.New("output manager is nil")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close %T", s))
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "errors closing sinks")
	}
	return nil
}
