package models

import "time"

// Candle is a single OHLCV bar. Sequences are ordered oldest-first and
// immutable once fetched.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Ticker is a point-in-time market quote for one symbol
type Ticker struct {
	Symbol      string
	LastPrice   float64
	BidPrice    float64
	AskPrice    float64
	QuoteVolume float64
}

// Spread returns the absolute bid/ask spread
func (t Ticker) Spread() float64 {
	return t.AskPrice - t.BidPrice
}

// IndicatorSnapshot holds the last and previous values of the trend and
// momentum indicators computed over one candle window
type IndicatorSnapshot struct {
	EMA50      float64
	EMA200     float64
	PrevEMA50  float64
	PrevEMA200 float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	PrevMACD   float64
	PrevSignal float64
	ADX        float64
}

// Closes extracts the close series from a candle window
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}
