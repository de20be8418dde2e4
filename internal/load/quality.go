package load

import (
	"strings"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
)

// ValidityMode selects how the validity ratio is computed.
type ValidityMode string

const (
	// ValidityTyped scores the share of present cells that fit their
	// column's dominant inferred type.
	ValidityTyped ValidityMode = "typed"

	// ValidityFixed always scores 1.0.
	ValidityFixed ValidityMode = "fixed"
)

func ParseValidityMode(s string) (ValidityMode, error) {
	switch m := ValidityMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ValidityTyped:
		return ValidityTyped, nil
	case ValidityFixed:
		return ValidityFixed, nil
	default:
		return "", errors.Newf("invalid validity mode %q (must be one of: typed, fixed)", s)
	}
}

// Score computes the quality ratios of ds. A dataset with no rows or no
// columns scores 0 on every ratio.
func Score(ds *data.Dataset, mode ValidityMode) data.QualityScore {
	if ds == nil {
		return data.QualityScore{}
	}
	if ds.RowCount() == 0 || len(ds.Columns) == 0 {
		return data.QualityScore{Dataset: ds.Name}
	}

	total := ds.CellCount()
	missing := 0
	for _, row := range ds.Rows {
		for _, v := range row {
			if data.IsMissing(v) {
				missing++
			}
		}
	}
	completeness := 1 - float64(missing)/float64(total)

	seen := make(map[string]struct{}, ds.RowCount())
	dups := 0
	for _, row := range ds.Rows {
		k := rowKey(row)
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	uniqueness := 1 - float64(dups)/float64(ds.RowCount())

	validity := 1.0
	if mode != ValidityFixed {
		validity = typedValidity(ds)
	}
	return data.NewQualityScore(ds.Name, completeness, uniqueness, validity)
}

func typedValidity(ds *data.Dataset) float64 {
	present, conforming := 0, 0
	for i := range ds.Columns {
		p := profileColumn(ds, i)
		_, n := p.dominant()
		present += p.present
		conforming += n
	}
	if present == 0 {
		return 1
	}
	return float64(conforming) / float64(present)
}

func rowKey(r []string) string {
	var b strings.Builder
	for _, c := range r {
		b.WriteString(c)
		b.WriteByte(0)
	}
	return b.String()
}
