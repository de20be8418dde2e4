package data

import (
	"fmt"
	"strings"
)

// Format is the declared encoding of a source artifact.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

var knownFormats = []Format{FormatPDF, FormatCSV, FormatTSV, FormatXLSX, FormatJSON}

// ParseFormat normalizes raw (case, surrounding space, leading dot) and
// returns the matching Format.
func ParseFormat(raw string) (Format, error) {
	v := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "."))
	for _, f := range knownFormats {
		if v == f {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q (must be one of: %s)", raw, formatList())
}

// Tabular reports whether the Transformer can load artifacts of this format.
func (f Format) Tabular() bool {
	switch f {
	case FormatCSV, FormatTSV, FormatXLSX, FormatJSON:
		return true
	default:
		return false
	}
}

// Extension is the artifact file extension without the leading dot.
func (f Format) Extension() string {
	return string(f)
}

func formatList() string {
	parts := make([]string, 0, len(knownFormats))
	for _, f := range knownFormats {
		parts = append(parts, string(f))
	}
	return strings.Join(parts, ", ")
}
