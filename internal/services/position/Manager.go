package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DerivTradeBot/config"
	"DerivTradeBot/internal/models"
	"DerivTradeBot/internal/services/indicators"
	"DerivTradeBot/internal/services/risk"
	"DerivTradeBot/pkg/logger"

	"go.uber.org/zap"
)

var (
	// ErrDuplicatePosition means the symbol already has a live position
	ErrDuplicatePosition = errors.New("position already live for symbol")
	// ErrPositionCapReached means the system-wide open+opening cap is hit
	ErrPositionCapReached = errors.New("max open positions reached")
	// ErrMaxTradesPerPair means the per-pair trade budget is spent
	ErrMaxTradesPerPair = errors.New("max trades reached for pair")
	// ErrLeverageMismatch means the exchange confirmed a different leverage
	// than requested; trading at unverified leverage must not proceed
	ErrLeverageMismatch = errors.New("leverage read-back mismatch")
	// ErrInsufficientBalance means the free balance does not cover the
	// margin budget; the trade is skipped
	ErrInsufficientBalance = errors.New("insufficient balance for margin budget")
)

// Gateway is the slice of the exchange surface the manager consumes
type Gateway interface {
	FetchBalance(ctx context.Context, asset string) (float64, error)
	FetchPositions(ctx context.Context) ([]models.LivePosition, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) (int, error)
	CreateMarketOrder(ctx context.Context, symbol, side string, quantity float64, reduceOnly bool) error
}

// TradeLog receives closed-trade records, fire-and-forget
type TradeLog interface {
	LogEntry(pos models.Position)
	LogExit(pos models.Position, exitPrice, pnl, pnlPercent float64, reason string)
}

// Manager runs one position lifecycle state machine per symbol:
// NONE -> OPENING -> OPEN -> CLOSING -> CLOSED -> NONE. The registry it keeps
// is advisory; the exchange's position list is authoritative and every cycle
// reconciles against it. All methods are called from the orchestrator's
// single run loop, never concurrently.
type Manager struct {
	gateway  Gateway
	sizer    *risk.Sizer
	tradeLog TradeLog
	cfg      config.RiskConfig

	states      map[string]models.PositionState
	positions   map[string]*models.Position
	tradeCounts map[string]int
}

func NewManager(gateway Gateway, sizer *risk.Sizer, tradeLog TradeLog, cfg config.RiskConfig) *Manager {
	return &Manager{
		gateway:     gateway,
		sizer:       sizer,
		tradeLog:    tradeLog,
		cfg:         cfg,
		states:      make(map[string]models.PositionState),
		positions:   make(map[string]*models.Position),
		tradeCounts: make(map[string]int),
	}
}

// Reconcile rebuilds the registry from the exchange's authoritative position
// list. Positions the exchange no longer reports are dropped; positions it
// reports that the registry does not know are adopted. Called at the start of
// every cycle and after a supervisor restart.
func (m *Manager) Reconcile(ctx context.Context) error {
	live, err := m.gateway.FetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch positions: %w", err)
	}

	liveBySymbol := make(map[string]models.LivePosition, len(live))
	for _, lp := range live {
		liveBySymbol[lp.Symbol] = lp
	}

	for symbol, state := range m.states {
		if !state.Live() {
			delete(m.states, symbol)
			delete(m.positions, symbol)
			continue
		}
		if _, ok := liveBySymbol[symbol]; !ok {
			logger.Warn("position gone from exchange, dropping from registry",
				zap.String("symbol", symbol), zap.String("state", string(state)))
			delete(m.states, symbol)
			delete(m.positions, symbol)
		}
	}

	for symbol, lp := range liveBySymbol {
		if m.states[symbol].Live() {
			continue
		}
		logger.Info("adopting position from exchange", zap.String("symbol", symbol),
			zap.String("side", lp.Side), zap.Float64("entry", lp.EntryPrice))
		m.states[symbol] = models.StateOpen
		m.positions[symbol] = &models.Position{
			Symbol:     symbol,
			Side:       lp.Side,
			EntryPrice: lp.EntryPrice,
			Contracts:  lp.Contracts,
			Leverage:   lp.Leverage,
			OpenedAt:   time.Now(),
		}
	}

	return nil
}

// LiveCount returns the number of positions counting against the global cap
func (m *Manager) LiveCount() int {
	count := 0
	for _, state := range m.states {
		if state.Live() {
			count++
		}
	}
	return count
}

// State returns the lifecycle state for a symbol
func (m *Manager) State(symbol string) models.PositionState {
	if state, ok := m.states[symbol]; ok {
		return state
	}
	return models.StateNone
}

// Open drives NONE -> OPENING -> OPEN for the scored symbol. Every
// precondition failure reverts to NONE and aborts the attempt; nothing is
// recorded without a confirmed read-back from the exchange.
func (m *Manager) Open(ctx context.Context, score models.ScoreResult, candles []models.Candle, lastPrice float64) error {
	symbol := score.Symbol
	side := score.Direction()
	if side == "" {
		return nil
	}

	// Invariants guarded before entering OPENING
	if m.states[symbol].Live() {
		return ErrDuplicatePosition
	}
	if m.LiveCount() >= m.cfg.MaxPositions {
		return ErrPositionCapReached
	}
	if m.tradeCounts[symbol] >= m.cfg.MaxTradesPerPair {
		return ErrMaxTradesPerPair
	}

	m.states[symbol] = models.StateOpening

	leverage := m.sizer.Leverage(indicators.Volatility(candles, risk.VolatilityWindow))
	confirmed, err := m.gateway.SetLeverage(ctx, symbol, leverage)
	if err != nil {
		m.states[symbol] = models.StateNone
		return fmt.Errorf("failed to set leverage for %s: %w", symbol, err)
	}
	if confirmed != leverage {
		m.states[symbol] = models.StateNone
		return fmt.Errorf("%w: requested %dx, exchange reports %dx", ErrLeverageMismatch, leverage, confirmed)
	}

	balance, err := m.gateway.FetchBalance(ctx, "USDT")
	if err != nil {
		m.states[symbol] = models.StateNone
		return fmt.Errorf("failed to fetch balance: %w", err)
	}

	contracts := m.sizer.ContractSize(balance, lastPrice, leverage)
	if contracts <= 0 {
		m.states[symbol] = models.StateNone
		return fmt.Errorf("%w: balance %.2f", ErrInsufficientBalance, balance)
	}

	if err := m.gateway.CreateMarketOrder(ctx, symbol, side, contracts, false); err != nil {
		m.states[symbol] = models.StateNone
		return fmt.Errorf("order failed for %s: %w", symbol, err)
	}

	// The fill is only trusted once the exchange reports the position
	lp, err := m.findLive(ctx, symbol)
	if err != nil {
		m.states[symbol] = models.StateNone
		return fmt.Errorf("failed to confirm open for %s: %w", symbol, err)
	}
	if lp == nil {
		m.states[symbol] = models.StateNone
		return fmt.Errorf("order for %s not reflected in position list", symbol)
	}

	pos := &models.Position{
		Symbol:     symbol,
		Side:       lp.Side,
		EntryPrice: lp.EntryPrice,
		Contracts:  lp.Contracts,
		Leverage:   lp.Leverage,
		EntryScore: score.Score,
		OpenedAt:   time.Now(),
	}
	m.states[symbol] = models.StateOpen
	m.positions[symbol] = pos
	m.tradeCounts[symbol]++

	logger.Info("position opened",
		zap.String("symbol", symbol),
		zap.String("side", pos.Side),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("contracts", pos.Contracts),
		zap.Int("leverage", pos.Leverage),
		zap.Float64("score", score.Score))

	m.tradeLog.LogEntry(*pos)
	return nil
}

// MonitorTick polls live PnL for every tracked position and closes the ones
// that breached a threshold. A transient failure on one position leaves its
// state unchanged; the next tick retries.
func (m *Manager) MonitorTick(ctx context.Context) error {
	if err := m.Reconcile(ctx); err != nil {
		return err
	}

	live, err := m.gateway.FetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch positions: %w", err)
	}
	liveBySymbol := make(map[string]models.LivePosition, len(live))
	for _, lp := range live {
		liveBySymbol[lp.Symbol] = lp
	}

	for symbol, state := range m.states {
		pos := m.positions[symbol]
		if pos == nil {
			continue
		}
		lp, ok := liveBySymbol[symbol]
		if !ok {
			continue // reconcile already dropped it
		}

		switch state {
		case models.StateOpen:
			pnlPct := PnLPercent(lp.UnrealizedPnl, *pos)
			logger.Debug("monitoring position",
				zap.String("symbol", symbol),
				zap.Float64("mark", lp.MarkPrice),
				zap.Float64("pnlPct", pnlPct))

			if reason, hit := m.threshold(pnlPct); hit {
				if err := m.close(ctx, pos, lp, pnlPct, reason); err != nil {
					logger.Error("close failed, will retry",
						zap.String("symbol", symbol), zap.Error(err))
				}
			}
		case models.StateClosing:
			// A previous close attempt did not confirm; try again
			pnlPct := PnLPercent(lp.UnrealizedPnl, *pos)
			if err := m.close(ctx, pos, lp, pnlPct, "retry close"); err != nil {
				logger.Error("close retry failed",
					zap.String("symbol", symbol), zap.Error(err))
			}
		}
	}

	return nil
}

// close drives OPEN -> CLOSING -> CLOSED -> NONE with a reduce-only market
// order. The transition to CLOSED happens only after the exchange stops
// reporting the position.
func (m *Manager) close(ctx context.Context, pos *models.Position, lp models.LivePosition, pnlPct float64, reason string) error {
	symbol := pos.Symbol
	m.states[symbol] = models.StateClosing

	if err := m.gateway.CreateMarketOrder(ctx, symbol, pos.Side, lp.Contracts, true); err != nil {
		return fmt.Errorf("reduce-only order failed for %s: %w", symbol, err)
	}

	still, err := m.findLive(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to confirm close for %s: %w", symbol, err)
	}
	if still != nil {
		return fmt.Errorf("position %s still reported after close order", symbol)
	}

	m.states[symbol] = models.StateClosed
	logger.Info("position closed",
		zap.String("symbol", symbol),
		zap.String("side", pos.Side),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("exit", lp.MarkPrice),
		zap.Float64("pnl", lp.UnrealizedPnl),
		zap.Float64("pnlPct", pnlPct),
		zap.String("reason", reason))

	m.tradeLog.LogExit(*pos, lp.MarkPrice, lp.UnrealizedPnl, pnlPct, reason)

	// CLOSED is transient; the symbol is immediately eligible again
	delete(m.states, symbol)
	delete(m.positions, symbol)
	return nil
}

// threshold checks the take-profit and stop-loss bounds, both inclusive
func (m *Manager) threshold(pnlPct float64) (string, bool) {
	if pnlPct >= m.cfg.TakeProfitPct {
		return fmt.Sprintf("take profit (%.2f%% >= %.2f%%)", pnlPct, m.cfg.TakeProfitPct), true
	}
	if pnlPct <= m.cfg.StopLossPct {
		return fmt.Sprintf("stop loss (%.2f%% <= %.2f%%)", pnlPct, m.cfg.StopLossPct), true
	}
	return "", false
}

func (m *Manager) findLive(ctx context.Context, symbol string) (*models.LivePosition, error) {
	live, err := m.gateway.FetchPositions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range live {
		if live[i].Symbol == symbol {
			return &live[i], nil
		}
	}
	return nil, nil
}

// PnLPercent expresses unrealized PnL as a percentage of the margin used.
// The margin-based form is used throughout: it reflects what the account
// actually gains or loses on committed capital, fees and funding included.
func PnLPercent(unrealizedPnl float64, pos models.Position) float64 {
	margin := pos.Margin()
	if margin <= 0 {
		return 0
	}
	return unrealizedPnl / margin * 100
}
