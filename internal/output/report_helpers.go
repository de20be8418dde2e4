package output

import (
	"fmt"
	"sort"
	"strings"

	"etlpipe/internal/data"
)

const qualityWatchThreshold = 0.8

// normalizeErrorReason collapses whitespace, strips the source-name
// prefix and truncates so that equal causes group together.
func normalizeErrorReason(source, errText string) string {
	s := strings.Join(strings.Fields(errText), " ")
	if s == "" {
		return "unknown error"
	}

	// "stats: all 3 attempts failed: stats: unexpected status 503" -> "unexpected status 503"
	for {
		trimmed := strings.TrimPrefix(s, source+": ")
		if after, ok := strings.CutPrefix(trimmed, "all "); ok {
			if _, rest, found := strings.Cut(after, " attempts failed: "); found {
				trimmed = rest
			}
		}
		if trimmed == s {
			break
		}
		s = trimmed
	}

	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

type failureGroup struct {
	Reason  string
	Sources []string
}

func groupFailures(sources []data.SourceReport) []failureGroup {
	byReason := make(map[string]*failureGroup)
	for _, r := range sources {
		if r.Success {
			continue
		}
		reason := normalizeErrorReason(r.Name, r.Error)
		g, ok := byReason[reason]
		if !ok {
			g = &failureGroup{Reason: reason}
			byReason[reason] = g
		}
		g.Sources = append(g.Sources, r.Name)
	}

	out := make([]failureGroup, 0, len(byReason))
	for _, g := range byReason {
		sort.Strings(g.Sources)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Sources) != len(out[j].Sources) {
			return len(out[i].Sources) > len(out[j].Sources)
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

func lowestQuality(datasets []data.DatasetReport, threshold float64, n int) []data.DatasetReport {
	var low []data.DatasetReport
	for _, d := range datasets {
		if d.Quality.Composite < threshold {
			low = append(low, d)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].Quality.Composite < low[j].Quality.Composite
	})
	if len(low) > n {
		return low[:n]
	}
	return low
}

func weakestDimension(q data.QualityScore) string {
	name, worst := "completeness", q.Completeness
	if q.Uniqueness < worst {
		name, worst = "uniqueness", q.Uniqueness
	}
	if q.Validity < worst {
		name = "validity"
	}
	return name
}

func sortSources(s []data.SourceReport) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Name < s[j].Name })
}

func sortDatasets(d []data.DatasetReport) {
	sort.SliceStable(d, func(i, j int) bool { return d[i].Name < d[j].Name })
}

func shortChecksum(sum string) string {
	if sum == "" {
		return "-"
	}
	if len(sum) > 12 {
		return "`" + sum[:12] + "`"
	}
	return "`" + sum + "`"
}

func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func formatNameList(names []string, max int) string {
	if len(names) == 0 {
		return ""
	}
	if len(names) <= max {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(names[:max], ", "), len(names)-max)
}
