package load

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"github.com/parquet-go/parquet-go"
)

// WriteParquet writes ds with one optional column per dataset column, typed
// by InferTypes. Missing cells are stored as nulls.
func WriteParquet(w io.Writer, ds *data.Dataset) error {
	types := InferTypes(ds)
	group := parquet.Group{}
	for i, col := range ds.Columns {
		group[col] = parquet.Optional(parquetNode(types[i]))
	}
	schema := parquet.NewSchema(ds.Name, group)

	index := make([]int, len(ds.Columns))
	for i, col := range ds.Columns {
		leaf, ok := schema.Lookup(col)
		if !ok {
			return errors.Newf("parquet schema for %s has no column %q", ds.Name, col)
		}
		index[i] = leaf.ColumnIndex
	}

	pw := parquet.NewWriter(w, schema)
	const batch = 1024
	rows := make([]parquet.Row, 0, batch)
	for n, r := range ds.Rows {
		row := make(parquet.Row, len(ds.Columns))
		for i, v := range r {
			val, err := parquetValue(types[i], v)
			if err != nil {
				return errors.Wrapf(err, "row %d column %s", n, ds.Columns[i])
			}
			row[index[i]] = val.Level(0, definitionLevel(v), index[i])
		}
		rows = append(rows, row)
		if len(rows) == batch {
			if _, err := pw.WriteRows(rows); err != nil {
				return errors.Wrap(err, "write parquet rows")
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := pw.WriteRows(rows); err != nil {
			return errors.Wrap(err, "write parquet rows")
		}
	}
	return errors.Wrap(pw.Close(), "close parquet writer")
}

func parquetNode(t ColumnType) parquet.Node {
	switch t {
	case TypeInt:
		return parquet.Int(64)
	case TypeFloat:
		return parquet.Leaf(parquet.DoubleType)
	case TypeBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func definitionLevel(v string) int {
	if data.IsMissing(v) {
		return 0
	}
	return 1
}

func parquetValue(t ColumnType, v string) (parquet.Value, error) {
	if data.IsMissing(v) {
		return parquet.NullValue(), nil
	}
	v = strings.TrimSpace(v)
	switch t {
	case TypeInt:
		n, err := strconv.ParseInt(v, 10, 64)
		return parquet.Int64Value(n), err
	case TypeFloat:
		f, err := strconv.ParseFloat(v, 64)
		return parquet.DoubleValue(f), err
	case TypeBool:
		return parquet.BooleanValue(strings.EqualFold(v, "true")), nil
	default:
		return parquet.ByteArrayValue([]byte(v)), nil
	}
}

// WriteCSV writes a header row then every row in dataset column order.
func WriteCSV(w io.Writer, ds *data.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(ds.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// createExclusive creates path, failing if it already exists.
func createExclusive(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}
