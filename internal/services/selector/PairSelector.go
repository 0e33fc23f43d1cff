package selector

import (
	"context"
	"math"
	"strings"

	"DerivTradeBot/config"
	"DerivTradeBot/internal/models"
	"DerivTradeBot/internal/services/analysis"
	"DerivTradeBot/pkg/logger"

	"go.uber.org/zap"
)

// Scorer produces one composite score per pair
type Scorer interface {
	Score(symbol string, candles []models.Candle, ticker models.Ticker, levels models.SRLevels) models.ScoreResult
}

// Gateway is the slice of the exchange surface the selector consumes
type Gateway interface {
	FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

// Selection is the winning candidate of one analysis cycle. The candle
// window is carried along so the caller does not refetch it.
type Selection struct {
	Symbol  string
	Candles []models.Candle
	Ticker  models.Ticker
	Score   models.ScoreResult
}

// PairSelector scores a throttled batch of candidate pairs and picks the one
// with the strongest conviction in either direction
type PairSelector struct {
	gateway Gateway
	scorer  Scorer
	cfg     config.PairConfig
}

func NewPairSelector(gateway Gateway, scorer Scorer, cfg config.PairConfig) *PairSelector {
	return &PairSelector{
		gateway: gateway,
		scorer:  scorer,
		cfg:     cfg,
	}
}

// SelectBestPair evaluates the candidates and returns the pair with the
// largest absolute score, or nil when nothing qualifies. A failure on one
// pair is logged and skipped; it never aborts the batch. Exact score ties
// keep the first pair seen.
func (s *PairSelector) SelectBestPair(ctx context.Context, pairs []string) (*Selection, error) {
	candidates := s.filterCandidates(pairs)

	var best *Selection
	for start := 0; start < len(candidates); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		for _, symbol := range candidates[start:end] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			sel, err := s.evaluate(ctx, symbol)
			if err != nil {
				logger.Warn("skipping pair", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			if sel == nil {
				continue
			}

			if best == nil || math.Abs(sel.Score.Score) > math.Abs(best.Score.Score) {
				best = sel
			}
		}
	}

	if best != nil {
		logger.Info("best pair selected",
			zap.String("symbol", best.Symbol),
			zap.Float64("score", best.Score.Score),
			zap.Strings("reasons", best.Score.Reasons))
	}
	return best, nil
}

// evaluate runs the cheap ticker filters before the expensive candle fetch.
// Returns nil when the pair is filtered out or scores neutral.
func (s *PairSelector) evaluate(ctx context.Context, symbol string) (*Selection, error) {
	ticker, err := s.gateway.FetchTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if ticker.QuoteVolume < s.cfg.MinQuoteVolume {
		logger.Debug("volume below floor", zap.String("symbol", symbol), zap.Float64("volume", ticker.QuoteVolume))
		return nil, nil
	}
	if ticker.Spread() > s.cfg.MaxSpread {
		logger.Debug("spread too wide", zap.String("symbol", symbol), zap.Float64("spread", ticker.Spread()))
		return nil, nil
	}

	candles, err := s.gateway.FetchCandles(ctx, symbol, s.cfg.Timeframe, s.cfg.CandleLimit)
	if err != nil {
		return nil, err
	}

	levels := analysis.DetectLevels(candles, ticker.LastPrice)
	score := s.scorer.Score(symbol, candles, *ticker, levels)
	if score.Score == 0 {
		return nil, nil
	}

	return &Selection{
		Symbol:  symbol,
		Candles: candles,
		Ticker:  *ticker,
		Score:   score,
	}, nil
}

func (s *PairSelector) filterCandidates(pairs []string) []string {
	blacklist := make(map[string]bool, len(s.cfg.Blacklist))
	for _, b := range s.cfg.Blacklist {
		blacklist[strings.ToUpper(strings.TrimSpace(b))] = true
	}

	candidates := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if blacklist[strings.ToUpper(p)] {
			continue
		}
		candidates = append(candidates, p)
		if s.cfg.MaxCandidates > 0 && len(candidates) >= s.cfg.MaxCandidates {
			break
		}
	}
	return candidates
}
