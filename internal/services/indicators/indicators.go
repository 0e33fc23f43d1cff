package indicators

import (
	"errors"

	"DerivTradeBot/internal/models"

	"github.com/markcheno/go-talib"
)

// MinCandles is the shortest window the snapshot accepts. Trend indicators
// (EMA200 above all) are statistically meaningless below their lookback.
const MinCandles = 200

const (
	emaFastPeriod  = 50
	emaSlowPeriod  = 200
	rsiPeriod      = 14
	macdFastPeriod = 12
	macdSlowPeriod = 26
	macdSignal     = 9
	adxPeriod      = 14
)

// ErrInsufficientData is returned when the candle window is shorter than
// MinCandles
var ErrInsufficientData = errors.New("insufficient candle data for indicators")

// Snapshot computes one IndicatorSnapshot over the candle window.
// Pure function of its input; no state is carried between calls.
func Snapshot(candles []models.Candle) (*models.IndicatorSnapshot, error) {
	if len(candles) < MinCandles {
		return nil, ErrInsufficientData
	}

	closes := models.Closes(candles)
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	ema50 := talib.Ema(closes, emaFastPeriod)
	ema200 := talib.Ema(closes, emaSlowPeriod)
	rsi := talib.Rsi(closes, rsiPeriod)
	macdLine, signalLine, _ := talib.Macd(closes, macdFastPeriod, macdSlowPeriod, macdSignal)
	adx := talib.Adx(highs, lows, closes, adxPeriod)

	last := len(closes) - 1
	prev := last - 1

	return &models.IndicatorSnapshot{
		EMA50:      ema50[last],
		EMA200:     ema200[last],
		PrevEMA50:  ema50[prev],
		PrevEMA200: ema200[prev],
		RSI:        rsi[last],
		MACD:       macdLine[last],
		MACDSignal: signalLine[last],
		PrevMACD:   macdLine[prev],
		PrevSignal: signalLine[prev],
		ADX:        adx[last],
	}, nil
}

// Volatility returns the mean intraday range, (high-low)/low, over the last
// window candles. Used by the risk sizer to pick a leverage band.
func Volatility(candles []models.Candle, window int) float64 {
	if len(candles) == 0 || window <= 0 {
		return 0
	}
	if window > len(candles) {
		window = len(candles)
	}

	recent := candles[len(candles)-window:]
	sum := 0.0
	n := 0
	for _, c := range recent {
		if c.Low <= 0 {
			continue
		}
		sum += (c.High - c.Low) / c.Low
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
