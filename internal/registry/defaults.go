package registry

import (
	"time"

	"etlpipe/internal/data"
)

const defaultMaxRetries = 3

var builtin = []struct {
	name    string
	title   string
	url     string
	format  data.Format
	sizeMB  float64
	updated time.Time
}{
	{"boe_rd171", "BOE RD 171/2004", "https://www.boe.es/buscar/pdf/2004/BOE-A-2004-1848-consolidado.pdf", data.FormatPDF, 2.5, date(2004, 1, 30)},
	{"insst_criterios", "INSST Criterios Técnicos", "https://www.insst.es/documents/94886/627464/Directrices_ITSS.pdf", data.FormatPDF, 1.8, date(2023, 6, 15)},
	{"itss_directrices", "ITSS Directrices", "https://www.insst.es/documents/94886/627464/Directrices_ITSS.pdf", data.FormatPDF, 1.2, date(2023, 8, 20)},
	{"flc_tpc_data", "FLC TPC Data", "https://www.fundacionlaboral.org/estadisticas/", data.FormatCSV, 0.5, date(2024, 1, 10)},
	{"civismo_cargas", "Civismo Cargas Administrativas", "https://www.civismo.org/informes/cargas-administrativas/", data.FormatXLSX, 3.2, date(2024, 2, 15)},
}

// Default returns the built-in source table.
func Default() *Registry {
	descs := make([]data.SourceDescriptor, 0, len(builtin))
	for _, b := range builtin {
		d, err := data.NewSourceDescriptor(b.name, b.url, b.format, b.sizeMB, defaultMaxRetries, b.updated)
		if err != nil {
			panic("registry: invalid built-in source: " + err.Error())
		}
		descs = append(descs, d.WithTitle(b.title))
	}
	r, err := New(descs...)
	if err != nil {
		panic("registry: invalid built-in table: " + err.Error())
	}
	return r
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
