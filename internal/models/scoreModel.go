package models

// SRLevel is a horizontal price level with repeated high/low touches.
// Strength is the normalized touch count, capped at 5.
type SRLevel struct {
	Price    float64
	Strength float64
}

// SRLevels partitions detected levels around the current price.
// Both slices are sorted ascending by price.
type SRLevels struct {
	Support    []SRLevel
	Resistance []SRLevel
}

// ScoreResult is the outcome of scoring one pair in one cycle.
// Positive score means long bias, negative means short bias; the magnitude
// is only meaningful for ranking and threshold comparison.
type ScoreResult struct {
	Symbol  string
	Score   float64
	Reasons []string
}

// Direction returns the position side implied by the score sign,
// or "" for a neutral score
func (r ScoreResult) Direction() string {
	switch {
	case r.Score > 0:
		return PositionSideLong
	case r.Score < 0:
		return PositionSideShort
	default:
		return ""
	}
}
