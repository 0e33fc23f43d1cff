package config

import (
	"errors"
	"fmt"
	"time"
)

type config struct {
	Exchange ExchangeConfig
	Database DatabaseConfig
	Risk     RiskConfig
	Pairs    PairConfig
	Interval IntervalConfig
}

type ExchangeConfig struct {
	APIKey    string `envconfig:"BINANCE_API_KEY"`
	SecretKey string `envconfig:"BINANCE_SECRET_KEY"`
	Testnet   bool   `envconfig:"BINANCE_TESTNET" default:"false"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD"`
	DBName   string `envconfig:"DB_NAME" default:"tradebot"`
}

// RiskConfig is the process-wide risk budget, read-only after startup
type RiskConfig struct {
	MaxPositions     int `envconfig:"MAX_POSITIONS" default:"5"`
	MaxTradesPerPair int `envconfig:"MAX_TRADES_PER_PAIR" default:"1"`

	DefaultLeverage int `envconfig:"DEFAULT_LEVERAGE" default:"5"`
	MinLeverage     int `envconfig:"MIN_LEVERAGE" default:"2"`
	MaxLeverage     int `envconfig:"MAX_LEVERAGE" default:"10"`

	// Fixed margin per trade. When RiskPercent is set it takes precedence
	// and the computed budget is clamped to [MinTradeAmount, MaxTradeAmount].
	TradeAmountUSDT float64 `envconfig:"TRADE_AMOUNT_USDT" default:"10"`
	RiskPercent     float64 `envconfig:"RISK_PERCENT" default:"0"`
	MinTradeAmount  float64 `envconfig:"MIN_TRADE_AMOUNT" default:"10"`
	MaxTradeAmount  float64 `envconfig:"MAX_TRADE_AMOUNT" default:"100"`

	TakeProfitPct float64 `envconfig:"TAKE_PROFIT_PCT" default:"5"`
	StopLossPct   float64 `envconfig:"STOP_LOSS_PCT" default:"-5"`

	// Minimum absolute composite score required to open a position
	ScoreThreshold float64 `envconfig:"SCORE_THRESHOLD" default:"2"`
}

// PairConfig controls which symbols the selector considers
type PairConfig struct {
	Quote          string   `envconfig:"QUOTE_ASSET" default:"USDT"`
	Blacklist      []string `envconfig:"PAIR_BLACKLIST"`
	MaxCandidates  int      `envconfig:"MAX_CANDIDATES" default:"56"`
	BatchSize      int      `envconfig:"BATCH_SIZE" default:"8"`
	MinQuoteVolume float64  `envconfig:"MIN_QUOTE_VOLUME" default:"500000"`
	MaxSpread      float64  `envconfig:"MAX_SPREAD" default:"0.5"`
	Timeframe      string   `envconfig:"TIMEFRAME" default:"1m"`
	CandleLimit    int      `envconfig:"CANDLE_LIMIT" default:"250"`
}

type IntervalConfig struct {
	Analysis time.Duration `envconfig:"ANALYSIS_INTERVAL" default:"60s"`
	Monitor  time.Duration `envconfig:"MONITOR_INTERVAL" default:"15s"`
	Report   time.Duration `envconfig:"REPORT_INTERVAL" default:"24h"`
}

// Validate checks the risk invariants, failing fast on an invalid combination
func (c RiskConfig) Validate() error {
	if c.MaxPositions <= 0 {
		return errors.New("MAX_POSITIONS must be positive")
	}
	if c.MaxTradesPerPair <= 0 {
		return errors.New("MAX_TRADES_PER_PAIR must be positive")
	}
	if c.MinLeverage <= 0 {
		return errors.New("MIN_LEVERAGE must be positive")
	}
	if c.MinLeverage > c.DefaultLeverage || c.DefaultLeverage > c.MaxLeverage {
		return fmt.Errorf("leverage ordering violated: min=%d default=%d max=%d",
			c.MinLeverage, c.DefaultLeverage, c.MaxLeverage)
	}
	if c.TradeAmountUSDT <= 0 && c.RiskPercent <= 0 {
		return errors.New("either TRADE_AMOUNT_USDT or RISK_PERCENT must be positive")
	}
	if c.MinTradeAmount > c.MaxTradeAmount {
		return errors.New("MIN_TRADE_AMOUNT exceeds MAX_TRADE_AMOUNT")
	}
	if c.TakeProfitPct <= 0 {
		return errors.New("TAKE_PROFIT_PCT must be positive")
	}
	if c.StopLossPct >= 0 {
		return errors.New("STOP_LOSS_PCT must be negative")
	}
	return nil
}
