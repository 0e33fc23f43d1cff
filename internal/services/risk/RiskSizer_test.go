package risk

import (
	"testing"

	"DerivTradeBot/config"

	"github.com/stretchr/testify/assert"
)

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
		TakeProfitPct:    5,
		StopLossPct:      -5,
	}
}

func TestLeverageBands(t *testing.T) {
	sizer := NewSizer(testRiskConfig())

	tests := []struct {
		name       string
		volatility float64
		expected   int
	}{
		{"zero volatility", 0, 10},
		{"low volatility", 0.005, 10},
		{"mid band", 0.02, 5},
		{"band edge low", 0.01, 5},
		{"band edge high", 0.03, 5},
		{"high volatility", 0.05, 2},
		{"extreme volatility", 10.0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizer.Leverage(tt.volatility))
		})
	}
}

// Leverage stays within the configured bounds for any volatility input
func TestLeverageAlwaysBounded(t *testing.T) {
	cfg := testRiskConfig()
	sizer := NewSizer(cfg)

	for _, vol := range []float64{-1, 0, 0.0099, 0.01, 0.0101, 0.03, 0.31, 1000} {
		lev := sizer.Leverage(vol)
		assert.GreaterOrEqual(t, lev, cfg.MinLeverage, "volatility %f", vol)
		assert.LessOrEqual(t, lev, cfg.MaxLeverage, "volatility %f", vol)
	}
}

func TestContractSizeFixedBudget(t *testing.T) {
	sizer := NewSizer(testRiskConfig())

	// 10 USDT margin x 5 leverage = 50 USDT position at price 50 -> 1 contract
	assert.InDelta(t, 1.0, sizer.ContractSize(100, 50, 5), 1e-9)
}

func TestContractSizeInsufficientBalance(t *testing.T) {
	cfg := testRiskConfig()
	cfg.RiskPercent = 50
	cfg.MinTradeAmount = 20
	sizer := NewSizer(cfg)

	// 50% of 15 is 7.50, clamped up to the 20 USDT minimum, which the
	// balance cannot cover: skip the trade
	assert.Zero(t, sizer.ContractSize(15, 100, 5))

	// Fixed budget variant
	fixed := NewSizer(testRiskConfig())
	assert.Zero(t, fixed.ContractSize(5, 100, 5))
}

func TestContractSizeNeverNegative(t *testing.T) {
	sizer := NewSizer(testRiskConfig())

	for _, balance := range []float64{-10, 0, 5, 100, 1e9} {
		for _, price := range []float64{-1, 0, 0.0001, 50000} {
			assert.GreaterOrEqual(t, sizer.ContractSize(balance, price, 5), 0.0,
				"balance %f price %f", balance, price)
		}
	}
}

func TestContractSizeInvalidInputs(t *testing.T) {
	sizer := NewSizer(testRiskConfig())

	assert.Zero(t, sizer.ContractSize(100, 0, 5))
	assert.Zero(t, sizer.ContractSize(100, -5, 5))
	assert.Zero(t, sizer.ContractSize(100, 50, 0))
}

func TestMarginBudgetPercentClamped(t *testing.T) {
	cfg := testRiskConfig()
	cfg.RiskPercent = 10
	sizer := NewSizer(cfg)

	assert.Equal(t, 10.0, sizer.MarginBudget(50))    // 5 -> clamped to min 10
	assert.Equal(t, 50.0, sizer.MarginBudget(500))   // plain 10%
	assert.Equal(t, 100.0, sizer.MarginBudget(5000)) // 500 -> clamped to max 100
}
