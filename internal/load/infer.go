package load

import (
	"math"
	"strconv"
	"strings"

	"etlpipe/internal/data"
)

// ColumnType is the inferred storage type of a column.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInt
	TypeFloat
	TypeBool
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int64"
	case TypeFloat:
		return "double"
	case TypeBool:
		return "boolean"
	default:
		return "string"
	}
}

type cellKinds struct {
	isInt, isFloat, isBool bool
}

func classify(v string) cellKinds {
	v = strings.TrimSpace(v)
	var k cellKinds
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		k.isInt = true
		k.isFloat = true
		return k
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		k.isFloat = true
		return k
	}
	switch strings.ToLower(v) {
	case "true", "false":
		k.isBool = true
	}
	return k
}

// columnProfile counts how many non-missing cells of a column fit each type.
type columnProfile struct {
	present, ints, floats, bools int
}

func profileColumn(ds *data.Dataset, col int) columnProfile {
	var p columnProfile
	for _, row := range ds.Rows {
		v := row[col]
		if data.IsMissing(v) {
			continue
		}
		p.present++
		k := classify(v)
		if k.isInt {
			p.ints++
		}
		if k.isFloat {
			p.floats++
		}
		if k.isBool {
			p.bools++
		}
	}
	return p
}

// strict is the narrowest type every present cell fits. Columns with no
// present cells are strings.
func (p columnProfile) strict() ColumnType {
	switch {
	case p.present == 0:
		return TypeString
	case p.ints == p.present:
		return TypeInt
	case p.floats == p.present:
		return TypeFloat
	case p.bools == p.present:
		return TypeBool
	default:
		return TypeString
	}
}

// dominant is the type most present cells fit, if a strict majority fits
// it. It returns the type and how many cells conform.
func (p columnProfile) dominant() (ColumnType, int) {
	best, count := TypeString, p.present
	for _, c := range []struct {
		t ColumnType
		n int
	}{{TypeInt, p.ints}, {TypeFloat, p.floats}, {TypeBool, p.bools}} {
		if 2*c.n > p.present && (best == TypeString || c.n > count) {
			best, count = c.t, c.n
		}
	}
	return best, count
}

// InferTypes returns the strict type of each column of ds.
func InferTypes(ds *data.Dataset) []ColumnType {
	out := make([]ColumnType, len(ds.Columns))
	for i := range ds.Columns {
		out[i] = profileColumn(ds, i).strict()
	}
	return out
}
