// Package load persists datasets and scores their quality.
package load

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// StampLayout is the run timestamp appended to output names that would
// otherwise overwrite an earlier run.
const StampLayout = "20060102T150405Z"

// Loaded is one dataset after persistence.
type Loaded struct {
	Dataset *data.Dataset
	Files   []string
	Quality data.QualityScore
	Err     error
}

// Report converts l to its summary form.
func (l Loaded) Report() data.DatasetReport {
	return data.DatasetReport{
		Name:      l.Dataset.Name,
		Origin:    l.Dataset.Origin,
		Synthetic: l.Dataset.Synthetic,
		Rows:      l.Dataset.RowCount(),
		Columns:   len(l.Dataset.Columns),
		Files:     l.Files,
		Quality:   l.Quality,
	}
}

type Loader struct {
	dir      string
	stamp    string
	validity ValidityMode
	log      *zap.SugaredLogger
}

type Option func(*Loader)

func WithValidity(m ValidityMode) Option {
	return func(l *Loader) { l.validity = m }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// New returns a Loader writing into dir. runStart supplies the timestamp
// used to avoid overwriting previous outputs.
func New(dir string, runStart time.Time, opts ...Option) *Loader {
	l := &Loader{
		dir:      dir,
		stamp:    runStart.UTC().Format(StampLayout),
		validity: ValidityTyped,
		log:      zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load writes every dataset as Parquet and CSV and scores it. Datasets are
// processed in name order. A write failure is recorded on that dataset's
// Loaded and does not stop the others; its quality is still scored.
func (l *Loader) Load(datasets map[string]*data.Dataset) []Loaded {
	names := make([]string, 0, len(datasets))
	for n := range datasets {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]Loaded, 0, len(names))
	for _, n := range names {
		ds := datasets[n]
		res := Loaded{Dataset: ds, Quality: Score(ds, l.validity)}
		files, err := l.persist(ds)
		res.Files = files
		if err != nil {
			res.Err = err
			l.log.Errorw("load failed", "dataset", ds.Name, "error", err)
		} else {
			l.log.Infow("dataset loaded", "dataset", ds.Name, "rows", ds.RowCount(),
				"files", files, "quality", res.Quality.Composite)
		}
		out = append(out, res)
	}
	return out
}

func (l *Loader) persist(ds *data.Dataset) ([]string, error) {
	base, err := l.basename(ds.Name)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, w := range []struct {
		ext   string
		write func(io.Writer, *data.Dataset) error
	}{
		{".parquet", WriteParquet},
		{".csv", WriteCSV},
	} {
		p := filepath.Join(l.dir, base+w.ext)
		if err := writeFile(p, ds, w.write); err != nil {
			return files, errors.Wrapf(err, "write %s", p)
		}
		files = append(files, p)
	}
	return files, nil
}

// basename picks a name whose .parquet and .csv targets are both free:
// the dataset name, then name.<stamp>, then name.<stamp>-2 and so on.
func (l *Loader) basename(name string) (string, error) {
	for i := 0; ; i++ {
		c := name
		switch {
		case i == 1:
			c = name + "." + l.stamp
		case i > 1:
			c = name + "." + l.stamp + "-" + strconv.Itoa(i)
		}
		free := true
		for _, ext := range []string{".parquet", ".csv"} {
			if _, err := os.Stat(filepath.Join(l.dir, c+ext)); err == nil {
				free = false
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", err
			}
		}
		if free {
			return c, nil
		}
	}
}

func writeFile(path string, ds *data.Dataset, write func(io.Writer, *data.Dataset) error) error {
	f, err := createExclusive(path)
	if err != nil {
		return err
	}
	if err := write(f, ds); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
