package transform

import (
	"strconv"
	"strings"

	"etlpipe/internal/data"
)

// NormalizeColumns maps raw header names to a lower-case, underscore-joined
// form. Spaces, hyphens and dots become '_', runs collapse, and leading or
// trailing separators are stripped. Blank names become column_<n> (1-based
// position); clashes get _2, _3, ... in header order.
func NormalizeColumns(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]struct{}, len(raw))
	for i, name := range raw {
		base := normalizeName(name)
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		candidate := base
		for n := 2; ; n++ {
			if _, clash := used[candidate]; !clash {
				break
			}
			candidate = base + "_" + strconv.Itoa(n)
		}
		used[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '-', '.', '_':
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
	}
	return b.String()
}

// cleanRows pads or truncates rows to width, trims cells, drops rows with
// no non-missing cell and then drops exact duplicates keeping the first
// occurrence. Row order is otherwise preserved.
func cleanRows(rows [][]string, width int) [][]string {
	out := make([][]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		row := make([]string, width)
		for i := 0; i < width && i < len(r); i++ {
			row[i] = strings.TrimSpace(r[i])
		}
		if blankRow(row) {
			continue
		}
		key := rowKey(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}

func blankRow(r []string) bool {
	for _, c := range r {
		if !data.IsMissing(c) {
			return false
		}
	}
	return true
}

// rowKey is an unambiguous encoding of a row for equality checks.
func rowKey(r []string) string {
	var b strings.Builder
	for _, c := range r {
		b.WriteString(strconv.Itoa(len(c)))
		b.WriteByte(':')
		b.WriteString(c)
	}
	return b.String()
}
