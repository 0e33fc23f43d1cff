package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"DerivTradeBot/config"
	"DerivTradeBot/internal/models"
	"DerivTradeBot/internal/services/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderCall struct {
	symbol     string
	side       string
	quantity   float64
	reduceOnly bool
}

// fakeGateway scripts the exchange: orders immediately reflect in the
// position list the way a filled market order would
type fakeGateway struct {
	balance      float64
	balanceErr   error
	positions    []models.LivePosition
	positionsErr error
	leverageResp int // 0 echoes the requested value
	leverageErr  error
	orderErr     error

	fillPrice   string
	fillAt      float64
	setLeverage map[string]int
	orders      []orderCall
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balance:     1000,
		fillAt:      50,
		setLeverage: make(map[string]int),
	}
}

func (g *fakeGateway) FetchBalance(ctx context.Context, asset string) (float64, error) {
	return g.balance, g.balanceErr
}

func (g *fakeGateway) FetchPositions(ctx context.Context) ([]models.LivePosition, error) {
	if g.positionsErr != nil {
		return nil, g.positionsErr
	}
	return append([]models.LivePosition(nil), g.positions...), nil
}

func (g *fakeGateway) SetLeverage(ctx context.Context, symbol string, leverage int) (int, error) {
	if g.leverageErr != nil {
		return 0, g.leverageErr
	}
	confirmed := leverage
	if g.leverageResp != 0 {
		confirmed = g.leverageResp
	}
	g.setLeverage[symbol] = confirmed
	return confirmed, nil
}

func (g *fakeGateway) CreateMarketOrder(ctx context.Context, symbol, side string, quantity float64, reduceOnly bool) error {
	if g.orderErr != nil {
		return g.orderErr
	}
	g.orders = append(g.orders, orderCall{symbol, side, quantity, reduceOnly})

	if reduceOnly {
		kept := g.positions[:0]
		for _, p := range g.positions {
			if p.Symbol != symbol {
				kept = append(kept, p)
			}
		}
		g.positions = kept
		return nil
	}

	g.positions = append(g.positions, models.LivePosition{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: g.fillAt,
		Contracts:  quantity,
		Leverage:   g.setLeverage[symbol],
	})
	return nil
}

type fakeTradeLog struct {
	entries []models.Position
	exits   []string // exit reasons
}

func (l *fakeTradeLog) LogEntry(pos models.Position) {
	l.entries = append(l.entries, pos)
}

func (l *fakeTradeLog) LogExit(pos models.Position, exitPrice, pnl, pnlPercent float64, reason string) {
	l.exits = append(l.exits, reason)
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositions:     5,
		MaxTradesPerPair: 1,
		DefaultLeverage:  5,
		MinLeverage:      2,
		MaxLeverage:      10,
		TradeAmountUSDT:  10,
		MinTradeAmount:   10,
		MaxTradeAmount:   100,
		TakeProfitPct:    10,
		StopLossPct:      -5,
	}
}

func newTestManager(gw *fakeGateway, cfg config.RiskConfig) (*Manager, *fakeTradeLog) {
	tradeLog := &fakeTradeLog{}
	return NewManager(gw, risk.NewSizer(cfg), tradeLog, cfg), tradeLog
}

func longScore(symbol string) models.ScoreResult {
	return models.ScoreResult{Symbol: symbol, Score: 5, Reasons: []string{"test"}}
}

func seedOpen(m *Manager, gw *fakeGateway, symbol string, entry, contracts float64, leverage int) {
	gw.positions = append(gw.positions, models.LivePosition{
		Symbol:     symbol,
		Side:       models.PositionSideLong,
		EntryPrice: entry,
		MarkPrice:  entry,
		Contracts:  contracts,
		Leverage:   leverage,
	})
	m.states[symbol] = models.StateOpen
	m.positions[symbol] = &models.Position{
		Symbol:     symbol,
		Side:       models.PositionSideLong,
		EntryPrice: entry,
		Contracts:  contracts,
		Leverage:   leverage,
		OpenedAt:   time.Now(),
	}
}

func TestOpenSuccess(t *testing.T) {
	gw := newFakeGateway()
	m, tradeLog := newTestManager(gw, testRiskConfig())
	ctx := context.Background()

	// No candles means zero volatility, which maps to maximum leverage
	err := m.Open(ctx, longScore("BTCUSDT"), nil, 50)
	require.NoError(t, err)

	assert.Equal(t, models.StateOpen, m.State("BTCUSDT"))
	assert.Equal(t, 1, m.LiveCount())

	require.Len(t, tradeLog.entries, 1)
	entry := tradeLog.entries[0]
	assert.Equal(t, models.PositionSideLong, entry.Side)
	assert.Equal(t, 10, entry.Leverage)
	// 10 USDT margin x 10x leverage at price 50 -> 2 contracts
	assert.InDelta(t, 2.0, entry.Contracts, 1e-9)

	require.Len(t, gw.orders, 1)
	assert.False(t, gw.orders[0].reduceOnly)
}

func TestOpenNeutralScoreNoop(t *testing.T) {
	gw := newFakeGateway()
	m, tradeLog := newTestManager(gw, testRiskConfig())

	err := m.Open(context.Background(), models.ScoreResult{Symbol: "BTCUSDT"}, nil, 50)
	require.NoError(t, err)
	assert.Zero(t, m.LiveCount())
	assert.Empty(t, tradeLog.entries)
}

func TestOpenDuplicateSymbol(t *testing.T) {
	gw := newFakeGateway()
	m, _ := newTestManager(gw, testRiskConfig())
	seedOpen(m, gw, "BTCUSDT", 100, 1, 5)

	err := m.Open(context.Background(), longScore("BTCUSDT"), nil, 100)
	assert.ErrorIs(t, err, ErrDuplicatePosition)
	assert.Equal(t, 1, m.LiveCount())
}

func TestOpenPositionCap(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxPositions = 1
	gw := newFakeGateway()
	m, _ := newTestManager(gw, cfg)
	seedOpen(m, gw, "ETHUSDT", 100, 1, 5)

	err := m.Open(context.Background(), longScore("BTCUSDT"), nil, 50)
	assert.ErrorIs(t, err, ErrPositionCapReached)
	assert.Equal(t, models.StateNone, m.State("BTCUSDT"))
}

func TestOpenMaxTradesPerPair(t *testing.T) {
	gw := newFakeGateway()
	m, _ := newTestManager(gw, testRiskConfig())
	m.tradeCounts["BTCUSDT"] = 1

	err := m.Open(context.Background(), longScore("BTCUSDT"), nil, 50)
	assert.ErrorIs(t, err, ErrMaxTradesPerPair)
}

func TestOpenLeverageMismatchAborts(t *testing.T) {
	gw := newFakeGateway()
	gw.leverageResp = 3 // exchange confirms something else
	m, tradeLog := newTestManager(gw, testRiskConfig())

	err := m.Open(context.Background(), longScore("BTCUSDT"), nil, 50)
	assert.ErrorIs(t, err, ErrLeverageMismatch)
	assert.Equal(t, models.StateNone, m.State("BTCUSDT"))
	assert.Empty(t, gw.orders)
	assert.Empty(t, tradeLog.entries)
}

func TestOpenInsufficientBalance(t *testing.T) {
	gw := newFakeGateway()
	gw.balance = 5
	m, _ := newTestManager(gw, testRiskConfig())

	err := m.Open(context.Background(), longScore("BTCUSDT"), nil, 50)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, models.StateNone, m.State("BTCUSDT"))
	assert.Empty(t, gw.orders)
}

func TestOpenOrderFailureReverts(t *testing.T) {
	gw := newFakeGateway()
	gw.orderErr = errors.New("exchange rejected order")
	m, tradeLog := newTestManager(gw, testRiskConfig())

	err := m.Open(context.Background(), longScore("BTCUSDT"), nil, 50)
	require.Error(t, err)
	assert.Equal(t, models.StateNone, m.State("BTCUSDT"))
	assert.Empty(t, tradeLog.entries)
}

// Entry 100, leverage 3: margin is 33.33, an unrealized PnL of 3.5 is about
// 10.5% of margin and must breach a 10% take-profit
func TestMonitorTakeProfit(t *testing.T) {
	gw := newFakeGateway()
	m, tradeLog := newTestManager(gw, testRiskConfig())
	seedOpen(m, gw, "BTCUSDT", 100, 1, 3)
	gw.positions[0].UnrealizedPnl = 3.5

	require.NoError(t, m.MonitorTick(context.Background()))

	assert.Equal(t, models.StateNone, m.State("BTCUSDT"))
	assert.Zero(t, m.LiveCount())
	require.Len(t, gw.orders, 1)
	assert.True(t, gw.orders[0].reduceOnly)
	require.Len(t, tradeLog.exits, 1)
	assert.Contains(t, tradeLog.exits[0], "take profit")
}

// A PnL% of exactly the take-profit threshold must trigger the close
func TestMonitorTakeProfitBoundaryInclusive(t *testing.T) {
	gw := newFakeGateway()
	m, tradeLog := newTestManager(gw, testRiskConfig())
	// margin = 100 x 1 / 5 = 20; +2.0 is exactly +10%
	seedOpen(m, gw, "BTCUSDT", 100, 1, 5)
	gw.positions[0].UnrealizedPnl = 2.0

	require.NoError(t, m.MonitorTick(context.Background()))

	require.Len(t, tradeLog.exits, 1)
	assert.Contains(t, tradeLog.exits[0], "take profit")
}

func TestMonitorStopLossBoundaryInclusive(t *testing.T) {
	gw := newFakeGateway()
	m, tradeLog := newTestManager(gw, testRiskConfig())
	// margin = 20; -1.0 is exactly -5%
	seedOpen(m, gw, "BTCUSDT", 100, 1, 5)
	gw.positions[0].UnrealizedPnl = -1.0

	require.NoError(t, m.MonitorTick(context.Background()))

	require.Len(t, tradeLog.exits, 1)
	assert.Contains(t, tradeLog.exits[0], "stop loss")
}

// At the entry price the PnL is zero and nothing may close
func TestMonitorRoundTripNoSpuriousClose(t *testing.T) {
	gw := newFakeGateway()
	m, tradeLog := newTestManager(gw, testRiskConfig())
	seedOpen(m, gw, "BTCUSDT", 100, 1, 5)

	require.NoError(t, m.MonitorTick(context.Background()))

	assert.Equal(t, models.StateOpen, m.State("BTCUSDT"))
	assert.Empty(t, gw.orders)
	assert.Empty(t, tradeLog.exits)
}

func TestMonitorInsideThresholdsHolds(t *testing.T) {
	gw := newFakeGateway()
	m, _ := newTestManager(gw, testRiskConfig())
	seedOpen(m, gw, "BTCUSDT", 100, 1, 5)
	gw.positions[0].UnrealizedPnl = 1.9 // +9.5%, just under +10%

	require.NoError(t, m.MonitorTick(context.Background()))
	assert.Equal(t, models.StateOpen, m.State("BTCUSDT"))
	assert.Empty(t, gw.orders)
}

func TestReconcileDropsExternallyClosed(t *testing.T) {
	gw := newFakeGateway()
	m, _ := newTestManager(gw, testRiskConfig())
	seedOpen(m, gw, "BTCUSDT", 100, 1, 5)
	gw.positions = nil // closed out from under us

	require.NoError(t, m.Reconcile(context.Background()))
	assert.Equal(t, models.StateNone, m.State("BTCUSDT"))
	assert.Zero(t, m.LiveCount())
}

func TestReconcileAdoptsUnknownPosition(t *testing.T) {
	gw := newFakeGateway()
	gw.positions = []models.LivePosition{{
		Symbol:     "ETHUSDT",
		Side:       models.PositionSideShort,
		EntryPrice: 2000,
		Contracts:  0.5,
		Leverage:   4,
	}}
	m, _ := newTestManager(gw, testRiskConfig())

	require.NoError(t, m.Reconcile(context.Background()))

	assert.Equal(t, models.StateOpen, m.State("ETHUSDT"))
	pos := m.positions["ETHUSDT"]
	require.NotNil(t, pos)
	assert.Equal(t, models.PositionSideShort, pos.Side)
	assert.Equal(t, 2000.0, pos.EntryPrice)
}

func TestReconcileGatewayFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.positionsErr = errors.New("network down")
	m, _ := newTestManager(gw, testRiskConfig())
	m.states["BTCUSDT"] = models.StateOpen
	m.positions["BTCUSDT"] = &models.Position{Symbol: "BTCUSDT"}

	err := m.Reconcile(context.Background())
	require.Error(t, err)
	// State is untouched on a transient failure
	assert.Equal(t, models.StateOpen, m.State("BTCUSDT"))
}

func TestPnLPercent(t *testing.T) {
	pos := models.Position{EntryPrice: 100, Contracts: 1, Leverage: 3}

	assert.InDelta(t, 10.5, PnLPercent(3.5, pos), 0.01)
	assert.Zero(t, PnLPercent(3.5, models.Position{}))
	assert.Zero(t, PnLPercent(0, pos))
}
