package analysis

import (
	"math"
	"sort"

	"DerivTradeBot/internal/models"
)

const (
	// Minimum high/low touches for a price to count as a level
	minTouches = 3
	// Strength is count/2 capped at this maximum
	maxStrength = 5.0
	// Strength contribution to proximity bonuses is capped lower
	maxProximityStrength = 2.0
	// A support and resistance pair inside this band marks a choppy range
	choppyBandPct = 2.0
)

// DetectLevels derives support and resistance levels from candle extremes.
// Highs and lows are rounded to 2 decimals and tallied; prices with at least
// minTouches touches become levels with strength min(count/2, 5). Levels
// below the current price are support, above are resistance, each sorted
// ascending. Deterministic for identical input.
func DetectLevels(candles []models.Candle, currentPrice float64) models.SRLevels {
	touches := make(map[float64]int)
	for _, c := range candles {
		touches[roundPrice(c.High)]++
		touches[roundPrice(c.Low)]++
	}

	var support, resistance []models.SRLevel
	for price, count := range touches {
		if count < minTouches {
			continue
		}
		level := models.SRLevel{
			Price:    price,
			Strength: math.Min(float64(count)/2, maxStrength),
		}
		if price < currentPrice {
			support = append(support, level)
		} else if price > currentPrice {
			resistance = append(resistance, level)
		}
	}

	sort.Slice(support, func(i, j int) bool { return support[i].Price < support[j].Price })
	sort.Slice(resistance, func(i, j int) bool { return resistance[i].Price < resistance[j].Price })

	return models.SRLevels{Support: support, Resistance: resistance}
}

// ClusterLevels merges prices closer than threshold (fractional, e.g. 0.005)
// into their averages, returning one representative price per cluster
func ClusterLevels(prices []float64, threshold float64) []float64 {
	if len(prices) == 0 {
		return nil
	}

	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	var clusters []float64
	clusterSum := sorted[0]
	clusterLen := 1
	last := sorted[0]

	for _, p := range sorted[1:] {
		if last > 0 && math.Abs(p-last)/last <= threshold {
			clusterSum += p
			clusterLen++
		} else {
			clusters = append(clusters, roundPrice(clusterSum/float64(clusterLen)))
			clusterSum = p
			clusterLen = 1
		}
		last = p
	}
	clusters = append(clusters, roundPrice(clusterSum/float64(clusterLen)))

	return clusters
}

// NearestBonus returns the strongest proximity bonus among the given levels:
// distance-tiered weight times the level strength capped at 2. Zero when no
// level is within 2% of the price.
func NearestBonus(levels []models.SRLevel, price float64) float64 {
	if price <= 0 {
		return 0
	}
	best := 0.0
	for _, lv := range levels {
		distPct := math.Abs(price-lv.Price) / price * 100
		w := proximityWeight(distPct)
		if w == 0 {
			continue
		}
		bonus := w * math.Min(lv.Strength, maxProximityStrength)
		if bonus > best {
			best = bonus
		}
	}
	return best
}

// IsChoppy reports a range-bound condition: a support and a resistance level,
// both with strength >= 3, straddling the price inside a 2% band. Directional
// signals are unreliable there and the composite score is halved.
func IsChoppy(levels models.SRLevels, price float64) bool {
	if price <= 0 {
		return false
	}
	strongNear := func(side []models.SRLevel) bool {
		for _, lv := range side {
			if lv.Strength < 3 {
				continue
			}
			if math.Abs(price-lv.Price)/price*100 < choppyBandPct {
				return true
			}
		}
		return false
	}
	return strongNear(levels.Support) && strongNear(levels.Resistance)
}

func proximityWeight(distPct float64) float64 {
	switch {
	case distPct < 0.5:
		return 1.0
	case distPct < 1.0:
		return 0.8
	case distPct < 2.0:
		return 0.5
	default:
		return 0
	}
}

func roundPrice(p float64) float64 {
	return math.Round(p*100) / 100
}
