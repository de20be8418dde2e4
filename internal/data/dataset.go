package data

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// OriginSynthetic marks a dataset generated without any fetched artifact.
const OriginSynthetic = "synthetic"

// Dataset is a normalized table. The empty string is the missing-cell value;
// every row has exactly len(Columns) cells.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]string

	Synthetic bool

	// Origin is the source name the dataset was derived from, or
	// OriginSynthetic.
	Origin string
}

// NewDataset validates the shape of columns and rows. Short rows are an error
// rather than padded; loaders pad before calling.
func NewDataset(name, origin string, columns []string, rows [][]string) (*Dataset, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("dataset: empty name")
	}
	if len(columns) == 0 {
		return nil, errors.Newf("dataset %s: no columns", name)
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c == "" {
			return nil, errors.Newf("dataset %s: empty column name", name)
		}
		if _, dup := seen[c]; dup {
			return nil, errors.Newf("dataset %s: duplicate column %q", name, c)
		}
		seen[c] = struct{}{}
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, errors.Newf("dataset %s: row %d has %d cells, want %d", name, i, len(r), len(columns))
		}
	}
	return &Dataset{
		Name:    name,
		Columns: columns,
		Rows:    rows,
		Origin:  origin,
	}, nil
}

func (d *Dataset) RowCount() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

func (d *Dataset) CellCount() int {
	if d == nil {
		return 0
	}
	return len(d.Rows) * len(d.Columns)
}

// IsMissing reports whether a cell value counts as missing.
func IsMissing(v string) bool {
	return strings.TrimSpace(v) == ""
}
