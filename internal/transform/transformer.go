// Package transform turns accepted artifacts into normalized datasets.
package transform

import (
	"sort"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Artifact is a validated artifact paired with its source.
type Artifact struct {
	Source data.SourceDescriptor
	Path   string
}

// Result is the transform output keyed by dataset name.
type Result struct {
	Datasets map[string]*data.Dataset

	// Skipped lists tabular artifacts that failed to parse. Errors are
	// marked data.ErrUnparseable.
	Skipped map[string]error

	// Ignored lists accepted artifacts whose format isn't tabular.
	Ignored []string
}

// Names returns dataset names in sorted order.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Datasets))
	for n := range r.Datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UsedFallback reports whether the only dataset is the synthetic one.
func (r *Result) UsedFallback() bool {
	ds, ok := r.Datasets[SyntheticDatasetName]
	return ok && ds.Synthetic && len(r.Datasets) == 1
}

type Transformer struct {
	seed uint64
	rows int
	log  *zap.SugaredLogger
}

type Option func(*Transformer)

func WithSynthetic(seed uint64, rows int) Option {
	return func(t *Transformer) {
		t.seed = seed
		if rows > 0 {
			t.rows = rows
		}
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(t *Transformer) {
		if l != nil {
			t.log = l
		}
	}
}

func New(opts ...Option) *Transformer {
	t := &Transformer{
		seed: DefaultSyntheticSeed,
		rows: DefaultSyntheticRows,
		log:  zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transform loads each tabular artifact, cleans it and names the dataset
// after its source. When nothing usable remains, the result holds exactly
// one synthetic dataset.
func (t *Transformer) Transform(artifacts []Artifact) *Result {
	res := &Result{
		Datasets: make(map[string]*data.Dataset),
		Skipped:  make(map[string]error),
	}
	for _, a := range artifacts {
		name := a.Source.Name
		if !a.Source.Format.Tabular() {
			t.log.Debugw("skipping non-tabular artifact", "source", name, "format", a.Source.Format)
			res.Ignored = append(res.Ignored, name)
			continue
		}
		ds, err := t.Load(a)
		if err != nil {
			t.log.Errorw("transform failed", "source", name, "path", a.Path, "error", err)
			res.Skipped[name] = err
			continue
		}
		if ds.RowCount() == 0 {
			t.log.Warnw("artifact produced no rows", "source", name)
			res.Skipped[name] = errors.Wrapf(data.ErrUnparseable, "%s: no data rows", name)
			continue
		}
		t.log.Infow("transformed artifact", "source", name, "rows", ds.RowCount(), "columns", len(ds.Columns))
		res.Datasets[ds.Name] = ds
	}

	if len(res.Datasets) == 0 {
		ds := Synthesize(t.seed, t.rows)
		t.log.Warnw("no usable artifacts, generating synthetic fallback dataset",
			"dataset", ds.Name, "seed", t.seed, "rows", ds.RowCount())
		res.Datasets[ds.Name] = ds
	}
	return res
}

// Load parses and cleans one artifact.
func (t *Transformer) Load(a Artifact) (*data.Dataset, error) {
	tbl, err := loadTable(a.Path, a.Source.Format)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", a.Source.Name)
	}
	cols := NormalizeColumns(tbl.header)
	rows := cleanRows(tbl.rows, len(cols))
	ds, err := data.NewDataset(a.Source.Name, a.Source.Name, cols, rows)
	if err != nil {
		return nil, errors.Mark(err, data.ErrUnparseable)
	}
	return ds, nil
}
