package analysis

import (
	"errors"
	"fmt"

	"DerivTradeBot/internal/models"
	"DerivTradeBot/internal/services/indicators"
)

// Score increments and thresholds for the composite signal
const (
	emaCrossScore  = 3.0
	macdCrossScore = 2.0
	macdSignScore  = 1.0

	adxFloor = 20.0

	rsiBullLower = 35.0
	rsiBullUpper = 75.0
	rsiBearLower = 25.0
	rsiBearUpper = 65.0

	highVolume     = 1_000_000.0
	veryHighVolume = 5_000_000.0
	tightSpread    = 0.1
)

// Scorer combines indicators, volume, spread and S/R proximity into one
// signed score per pair. Positive means long bias, negative short bias; the
// magnitude is only used for ranking and threshold checks.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// Score evaluates one pair. It never fails: preconditions that do not hold
// (short candle window, unusable ticker) produce a neutral result with the
// reason recorded.
func (s *Scorer) Score(symbol string, candles []models.Candle, ticker models.Ticker, levels models.SRLevels) models.ScoreResult {
	if ticker.LastPrice <= 0 {
		return models.ScoreResult{Symbol: symbol, Reasons: []string{"invalid last price"}}
	}

	snap, err := indicators.Snapshot(candles)
	if err != nil {
		if errors.Is(err, indicators.ErrInsufficientData) {
			return models.ScoreResult{
				Symbol:  symbol,
				Reasons: []string{fmt.Sprintf("insufficient data: %d candles", len(candles))},
			}
		}
		return models.ScoreResult{Symbol: symbol, Reasons: []string{"indicator error: " + err.Error()}}
	}

	return s.scoreSnapshot(symbol, snap, ticker, levels)
}

// scoreSnapshot is the deterministic scoring core, split out so the
// accumulation logic can be exercised with hand-built snapshots
func (s *Scorer) scoreSnapshot(symbol string, snap *models.IndicatorSnapshot, ticker models.Ticker, levels models.SRLevels) models.ScoreResult {
	score := 0.0
	var reasons []string

	// 1. Technical base: crossovers and MACD sign
	switch {
	case snap.PrevEMA50 <= snap.PrevEMA200 && snap.EMA50 > snap.EMA200:
		score += emaCrossScore
		reasons = append(reasons, "EMA Crossover Up")
	case snap.PrevEMA50 >= snap.PrevEMA200 && snap.EMA50 < snap.EMA200:
		score -= emaCrossScore
		reasons = append(reasons, "EMA Crossover Down")
	}

	switch {
	case snap.PrevMACD <= snap.PrevSignal && snap.MACD > snap.MACDSignal:
		score += macdCrossScore
		reasons = append(reasons, "MACD Crossover Up")
	case snap.PrevMACD >= snap.PrevSignal && snap.MACD < snap.MACDSignal:
		score -= macdCrossScore
		reasons = append(reasons, "MACD Crossover Down")
	}

	switch {
	case snap.MACD > 0:
		score += macdSignScore
		reasons = append(reasons, "MACD positive")
	case snap.MACD < 0:
		score -= macdSignScore
		reasons = append(reasons, "MACD negative")
	}

	// RSI gates the base score instead of contributing points: an overheated
	// or washed-out market invalidates the crossover signal
	if score > 0 && (snap.RSI <= rsiBullLower || snap.RSI >= rsiBullUpper) {
		reasons = append(reasons, fmt.Sprintf("RSI %.1f outside bullish range", snap.RSI))
		score = 0
	} else if score < 0 && (snap.RSI <= rsiBearLower || snap.RSI >= rsiBearUpper) {
		reasons = append(reasons, fmt.Sprintf("RSI %.1f outside bearish range", snap.RSI))
		score = 0
	}

	// 2. Trend-strength gate: no directional strength means HOLD regardless
	// of crossovers
	if snap.ADX < adxFloor {
		reasons = append(reasons, fmt.Sprintf("weak trend (ADX %.1f)", snap.ADX))
		return models.ScoreResult{Symbol: symbol, Reasons: reasons}
	}

	if score == 0 {
		return models.ScoreResult{Symbol: symbol, Reasons: reasons}
	}
	sign := 1.0
	if score < 0 {
		sign = -1.0
	}

	// 3. Volume amplifies the running direction, never flips it
	switch {
	case ticker.QuoteVolume > veryHighVolume:
		score += 2 * sign
		reasons = append(reasons, "Very high volume")
	case ticker.QuoteVolume > highVolume:
		score += 1 * sign
		reasons = append(reasons, "High volume")
	}

	// 4. Tight spread adds a small same-sign bonus; wide spreads were already
	// rejected by the pair selector
	if ticker.Spread() < tightSpread {
		score += 1 * sign
		reasons = append(reasons, "Tight spread")
	}

	// 5. S/R proximity: nearby support backs longs and weakens shorts,
	// nearby resistance does the opposite
	supBonus := NearestBonus(levels.Support, ticker.LastPrice)
	resBonus := NearestBonus(levels.Resistance, ticker.LastPrice)
	if supBonus > 0 {
		score += supBonus
		reasons = append(reasons, fmt.Sprintf("Near support (+%.1f)", supBonus))
	}
	if resBonus > 0 {
		score -= resBonus
		reasons = append(reasons, fmt.Sprintf("Near resistance (-%.1f)", resBonus))
	}

	// 6. Choppy range: strong levels on both sides of the price make
	// directional conviction unreliable
	if IsChoppy(levels, ticker.LastPrice) {
		score /= 2
		reasons = append(reasons, "Choppy range, score halved")
	}

	return models.ScoreResult{Symbol: symbol, Score: score, Reasons: reasons}
}
