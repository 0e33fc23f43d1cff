package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"DerivTradeBot/config"
	"DerivTradeBot/internal/models"
	"DerivTradeBot/internal/operations/orderflow"
	"DerivTradeBot/internal/services/position"
	"DerivTradeBot/internal/services/selector"
	"DerivTradeBot/internal/services/trading"
	"DerivTradeBot/pkg/logger"

	"go.uber.org/zap"
)

const (
	// How long the pre-entry order-flow probe may wait for a snapshot
	depthProbeTimeout = 3 * time.Second
	// Book imbalance beyond which the flow is considered one-sided
	depthVetoImbalance = 0.3
)

// MarketLister provides the candidate universe for the selector
type MarketLister interface {
	LoadMarkets(ctx context.Context, quote string) ([]string, error)
}

// TradingHandler schedules the decision engine: pair analysis, position
// monitoring and daily reporting run on independent timers inside one run
// loop, so no two cycles ever execute concurrently.
type TradingHandler struct {
	markets     MarketLister
	selector    *selector.PairSelector
	manager     *position.Manager
	tradeLogger *trading.TradeLogger

	riskCfg     config.RiskConfig
	pairCfg     config.PairConfig
	intervalCfg config.IntervalConfig

	pairs        []string
	pairsFetched time.Time
	marketMaxAge time.Duration
}

func NewTradingHandler(
	markets MarketLister,
	pairSelector *selector.PairSelector,
	manager *position.Manager,
	tradeLogger *trading.TradeLogger,
	riskCfg config.RiskConfig,
	pairCfg config.PairConfig,
	intervalCfg config.IntervalConfig,
) *TradingHandler {
	return &TradingHandler{
		markets:      markets,
		selector:     pairSelector,
		manager:      manager,
		tradeLogger:  tradeLogger,
		riskCfg:      riskCfg,
		pairCfg:      pairCfg,
		intervalCfg:  intervalCfg,
		marketMaxAge: time.Hour,
	}
}

// Run drives the trading loop until the context is cancelled. A panic is
// converted into an error so the supervisor in main can restart the loop
// with state rebuilt from the exchange.
func (h *TradingHandler) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trading loop panic: %v", r)
		}
	}()

	// Live state is rebuilt from the exchange before anything trades
	if rerr := h.manager.Reconcile(ctx); rerr != nil {
		return fmt.Errorf("initial reconcile failed: %w", rerr)
	}

	analysisTicker := time.NewTicker(h.intervalCfg.Analysis)
	defer analysisTicker.Stop()
	monitorTicker := time.NewTicker(h.intervalCfg.Monitor)
	defer monitorTicker.Stop()
	reportTicker := time.NewTicker(h.intervalCfg.Report)
	defer reportTicker.Stop()

	logger.Info("trading loop started",
		zap.Duration("analysisInterval", h.intervalCfg.Analysis),
		zap.Duration("monitorInterval", h.intervalCfg.Monitor))

	for {
		select {
		case <-ctx.Done():
			logger.Info("trading loop stopped")
			return nil
		case <-monitorTicker.C:
			if merr := h.manager.MonitorTick(ctx); merr != nil {
				logger.Error("monitor cycle failed", zap.Error(merr))
			}
		case <-analysisTicker.C:
			h.analysisCycle(ctx)
		case <-reportTicker.C:
			if _, rerr := h.tradeLogger.DailyReport(); rerr != nil {
				logger.Error("daily report failed", zap.Error(rerr))
			}
		}
	}
}

// analysisCycle runs one full pass: monitor first, then select, then open.
// Monitoring existing positions always has priority over new entries.
func (h *TradingHandler) analysisCycle(ctx context.Context) {
	if err := h.manager.MonitorTick(ctx); err != nil {
		// A gateway-wide failure halts new entries; monitoring retries on
		// its own timer
		logger.Error("monitoring failed, halting new entries this cycle", zap.Error(err))
		return
	}

	if h.manager.LiveCount() >= h.riskCfg.MaxPositions {
		logger.Info("position cap reached, skipping analysis",
			zap.Int("live", h.manager.LiveCount()))
		return
	}

	pairs, err := h.candidatePairs(ctx)
	if err != nil {
		logger.Error("failed to load markets", zap.Error(err))
		return
	}

	sel, err := h.selector.SelectBestPair(ctx, pairs)
	if err != nil {
		logger.Error("pair selection aborted", zap.Error(err))
		return
	}
	if sel == nil {
		logger.Info("no pair met the criteria this cycle")
		return
	}

	if math.Abs(sel.Score.Score) < h.riskCfg.ScoreThreshold {
		logger.Info("best score below entry threshold",
			zap.String("symbol", sel.Symbol),
			zap.Float64("score", sel.Score.Score),
			zap.Float64("threshold", h.riskCfg.ScoreThreshold))
		return
	}

	if !h.depthConfirm(ctx, sel.Symbol, sel.Score.Direction()) {
		logger.Info("order flow against signal, skipping entry",
			zap.String("symbol", sel.Symbol),
			zap.Float64("score", sel.Score.Score))
		return
	}

	if err := h.manager.Open(ctx, sel.Score, sel.Candles, sel.Ticker.LastPrice); err != nil {
		switch {
		case errors.Is(err, position.ErrDuplicatePosition),
			errors.Is(err, position.ErrPositionCapReached),
			errors.Is(err, position.ErrMaxTradesPerPair),
			errors.Is(err, position.ErrInsufficientBalance):
			logger.Info("trade skipped", zap.String("symbol", sel.Symbol), zap.Error(err))
		default:
			logger.Error("failed to open position", zap.String("symbol", sel.Symbol), zap.Error(err))
		}
	}
}

// depthConfirm takes a short look at the live order book and vetoes the entry
// when the flow leans hard against the signal direction. Order flow is
// advisory: any stream problem or timeout lets the trade proceed.
func (h *TradingHandler) depthConfirm(ctx context.Context, symbol, side string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, depthProbeTimeout)
	defer cancel()

	sub, err := orderflow.Subscribe(probeCtx, symbol)
	if err != nil {
		logger.Warn("depth probe unavailable", zap.String("symbol", symbol), zap.Error(err))
		return true
	}
	defer sub.Close()

	select {
	case snap, ok := <-sub.Snapshots():
		if !ok {
			return true
		}
		imbalance := snap.Imbalance()
		logger.Debug("depth probe",
			zap.String("symbol", symbol), zap.Float64("imbalance", imbalance))
		if side == models.PositionSideLong && imbalance < -depthVetoImbalance {
			return false
		}
		if side == models.PositionSideShort && imbalance > depthVetoImbalance {
			return false
		}
		return true
	case <-probeCtx.Done():
		return true
	}
}

// candidatePairs returns the tradable universe, refreshed when stale
func (h *TradingHandler) candidatePairs(ctx context.Context) ([]string, error) {
	if len(h.pairs) > 0 && time.Since(h.pairsFetched) < h.marketMaxAge {
		return h.pairs, nil
	}

	pairs, err := h.markets.LoadMarkets(ctx, h.pairCfg.Quote)
	if err != nil {
		if len(h.pairs) > 0 {
			logger.Warn("market refresh failed, reusing previous list", zap.Error(err))
			return h.pairs, nil
		}
		return nil, err
	}

	logger.Info("markets loaded", zap.Int("pairs", len(pairs)))
	h.pairs = pairs
	h.pairsFetched = time.Now()
	return pairs, nil
}
