package transform

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
)

// table is the raw shape every loader produces: a header and rows that may
// be ragged. Cleaning pads and normalizes it.
type table struct {
	header []string
	rows   [][]string
}

func loadTable(path string, format data.Format) (table, error) {
	var (
		t   table
		err error
	)
	switch format {
	case data.FormatCSV:
		t, err = loadDelimited(path, ',')
	case data.FormatTSV:
		t, err = loadDelimited(path, '\t')
	case data.FormatXLSX:
		t, err = loadXLSX(path)
	case data.FormatJSON:
		t, err = loadJSON(path)
	default:
		return table{}, errors.Newf("format %q is not tabular", format)
	}
	if err != nil {
		return table{}, errors.Mark(err, data.ErrUnparseable)
	}
	if len(t.header) == 0 {
		return table{}, errors.Wrapf(data.ErrUnparseable, "%s: no header row", path)
	}
	return t, nil
}

func loadDelimited(path string, comma rune) (table, error) {
	f, err := os.Open(path)
	if err != nil {
		return table{}, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	// Drop a UTF-8 byte order mark so it doesn't leak into the first column.
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	r := csv.NewReader(br)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var t table
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return table{}, errors.Wrapf(err, "read %s", path)
		}
		if t.header == nil {
			t.header = rec
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// loadXLSX reads the first sheet that holds any rows.
func loadXLSX(path string) (table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return table{}, errors.Wrapf(err, "open workbook %s", path)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return table{}, errors.Wrapf(err, "read sheet %s", sheet)
		}
		first := -1
		for i, r := range rows {
			if !blankRow(r) {
				first = i
				break
			}
		}
		if first < 0 {
			continue
		}
		return table{header: rows[first], rows: rows[first+1:]}, nil
	}
	return table{}, errors.Newf("workbook %s has no data", path)
}

// loadJSON accepts an array of objects, an object holding exactly one array
// of objects, or newline-delimited objects. Columns are ordered by first
// appearance; later keys are appended.
func loadJSON(path string) (table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return table{}, err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return table{}, errors.Wrapf(err, "decode %s", path)
	}

	var t table
	index := map[string]int{}
	for _, rec := range records {
		for _, k := range rec.keys {
			if _, ok := index[k]; !ok {
				index[k] = len(t.header)
				t.header = append(t.header, k)
			}
		}
	}
	for _, rec := range records {
		row := make([]string, len(t.header))
		for k, v := range rec.values {
			row[index[k]] = v
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

type record struct {
	keys   []string
	values map[string]string
}

func decodeRecords(raw []byte) ([]record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}
	if trimmed[0] == '[' {
		return decodeArray(trimmed)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var docs []json.RawMessage
	for {
		var msg json.RawMessage
		if err := dec.Decode(&msg); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		docs = append(docs, msg)
	}
	if len(docs) == 1 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(docs[0], &obj); err != nil {
			return nil, err
		}
		var arrays []json.RawMessage
		for _, v := range obj {
			if v := bytes.TrimSpace(v); len(v) > 0 && v[0] == '[' {
				arrays = append(arrays, v)
			}
		}
		if len(arrays) == 1 {
			return decodeArray(arrays[0])
		}
	}

	out := make([]record, 0, len(docs))
	for _, d := range docs {
		rec, err := decodeObject(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeArray(raw []byte) ([]record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]record, 0, len(items))
	for _, it := range items {
		rec, err := decodeObject(it)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// decodeObject keeps the key order of the source document.
func decodeObject(raw []byte) (record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return record{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return record{}, errors.New("expected a JSON object")
	}
	rec := record{values: map[string]string{}}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return record{}, err
		}
		key, _ := kt.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return record{}, err
		}
		if _, seen := rec.values[key]; !seen {
			rec.keys = append(rec.keys, key)
		}
		rec.values[key] = cellString(v)
	}
	return rec, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		// Nested values keep their JSON text. Map keys come out sorted.
		b, _ := json.Marshal(x)
		return string(b)
	}
}
