package risk

import (
	"DerivTradeBot/config"
)

// Volatility thresholds for the three-band leverage policy. Deliberately
// coarse: a continuous function would oscillate between cycles.
const (
	highVolThreshold = 0.03
	lowVolThreshold  = 0.01

	// VolatilityWindow is the candle count the volatility estimate covers
	VolatilityWindow = 24
)

// Sizer turns account state and volatility into leverage and contract size
type Sizer struct {
	cfg config.RiskConfig
}

func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Leverage picks a leverage band from intraday volatility. High volatility
// maps to the minimum configured leverage, low volatility to the maximum,
// anything between to the default. Always within [MinLeverage, MaxLeverage].
func (s *Sizer) Leverage(volatility float64) int {
	switch {
	case volatility > highVolThreshold:
		return s.cfg.MinLeverage
	case volatility < lowVolThreshold:
		return s.cfg.MaxLeverage
	default:
		return s.cfg.DefaultLeverage
	}
}

// MarginBudget returns the capital to commit to one trade: either the fixed
// USDT amount, or a percentage of the free balance clamped to the configured
// trade-amount range
func (s *Sizer) MarginBudget(availableBalance float64) float64 {
	if s.cfg.RiskPercent > 0 {
		budget := availableBalance * s.cfg.RiskPercent / 100
		if budget < s.cfg.MinTradeAmount {
			budget = s.cfg.MinTradeAmount
		}
		if budget > s.cfg.MaxTradeAmount {
			budget = s.cfg.MaxTradeAmount
		}
		return budget
	}
	return s.cfg.TradeAmountUSDT
}

// ContractSize computes the contract quantity for one trade. A zero result
// means "skip the trade": the balance does not cover the margin budget or the
// price is unusable. Never negative.
func (s *Sizer) ContractSize(availableBalance, price float64, leverage int) float64 {
	if price <= 0 || leverage <= 0 {
		return 0
	}

	budget := s.MarginBudget(availableBalance)
	if availableBalance < budget {
		return 0
	}

	positionValue := budget * float64(leverage)
	return positionValue / price
}
