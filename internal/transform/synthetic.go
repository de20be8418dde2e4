package transform

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"etlpipe/internal/data"
)

const (
	SyntheticDatasetName = "synthetic_fallback"
	DefaultSyntheticSeed = 42
	DefaultSyntheticRows = 1000
)

var (
	syntheticColumns = []string{
		"record_id", "year", "category", "region", "size_class",
		"event_count", "amount", "duration_days", "score", "is_active",
	}
	syntheticCategories = []string{"alpha", "beta", "gamma", "delta"}
	syntheticRegions    = []string{"north", "south", "east", "west", "central", "other"}
	syntheticSizes      = []string{"micro", "small", "medium", "large"}
	// cumulative weights for syntheticSizes
	syntheticSizeWeights = []float64{0.60, 0.85, 0.97, 1.0}
)

// Synthesize builds the illustrative fallback dataset. The same seed and
// row count always produce the same rows.
func Synthesize(seed uint64, rows int) *data.Dataset {
	if rows < 1 {
		rows = DefaultSyntheticRows
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	out := make([][]string, 0, rows)
	for i := 0; i < rows; i++ {
		size := pickWeighted(rng, syntheticSizes, syntheticSizeWeights)
		events := rng.IntN(4) + 1
		amount := rng.NormFloat64()*2000 + 5000
		if size != "micro" {
			events += rng.IntN(8)
			amount = rng.NormFloat64()*5000 + 15000
		}
		duration := math.Max(1, rng.NormFloat64()*15+45)

		out = append(out, []string{
			fmt.Sprintf("REC_%05d", i),
			strconv.Itoa(2020 + i%5),
			syntheticCategories[rng.IntN(len(syntheticCategories))],
			syntheticRegions[rng.IntN(len(syntheticRegions))],
			size,
			strconv.Itoa(events),
			strconv.FormatFloat(math.Max(0, amount), 'f', 2, 64),
			strconv.FormatFloat(duration, 'f', 1, 64),
			strconv.FormatFloat(rng.Float64(), 'f', 4, 64),
			strconv.FormatBool(rng.IntN(10) < 8),
		})
	}

	cols := make([]string, len(syntheticColumns))
	copy(cols, syntheticColumns)
	return &data.Dataset{
		Name:      SyntheticDatasetName,
		Columns:   cols,
		Rows:      out,
		Synthetic: true,
		Origin:    data.OriginSynthetic,
	}
}

func pickWeighted(rng *rand.Rand, values []string, cumulative []float64) string {
	x := rng.Float64()
	for i, w := range cumulative {
		if x < w {
			return values[i]
		}
	}
	return values[len(values)-1]
}
