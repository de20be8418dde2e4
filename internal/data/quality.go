package data

// QualityScore is recomputed every run and never updated in place.
type QualityScore struct {
	Dataset      string  `json:"dataset"`
	Completeness float64 `json:"completeness"`
	Uniqueness   float64 `json:"uniqueness"`
	Validity     float64 `json:"validity"`
	Composite    float64 `json:"composite"`
}

// NewQualityScore derives the composite as the mean of the three ratios.
func NewQualityScore(dataset string, completeness, uniqueness, validity float64) QualityScore {
	return QualityScore{
		Dataset:      dataset,
		Completeness: completeness,
		Uniqueness:   uniqueness,
		Validity:     validity,
		Composite:    (completeness + uniqueness + validity) / 3,
	}
}
