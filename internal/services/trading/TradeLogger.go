package trading

import (
	"time"

	"DerivTradeBot/internal/models"
	"DerivTradeBot/internal/repositories"
	"DerivTradeBot/pkg/logger"

	"go.uber.org/zap"
)

// TradeLogger persists entry and exit records and produces the daily report.
// Logging never blocks a trade: persistence failures are logged and dropped.
type TradeLogger struct {
	tradeRepo *repositories.TradeRepository
}

func NewTradeLogger(tradeRepo *repositories.TradeRepository) *TradeLogger {
	return &TradeLogger{tradeRepo: tradeRepo}
}

// LogEntry records a filled position open
func (l *TradeLogger) LogEntry(pos models.Position) {
	record := &models.TradeRecord{
		Time:       time.Now(),
		Pair:       pos.Symbol,
		Type:       models.TradeTypeEntry,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		Amount:     pos.Contracts,
		Leverage:   pos.Leverage,
		EntryScore: pos.EntryScore,
	}

	if err := l.tradeRepo.Create(record); err != nil {
		logger.Error("failed to persist trade entry",
			zap.String("pair", pos.Symbol), zap.Error(err))
	}
}

// LogExit records a confirmed position close
func (l *TradeLogger) LogExit(pos models.Position, exitPrice, pnl, pnlPercent float64, reason string) {
	record := &models.TradeRecord{
		Time:          time.Now(),
		Pair:          pos.Symbol,
		Type:          models.TradeTypeExit,
		Side:          pos.Side,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		Amount:        pos.Contracts,
		Leverage:      pos.Leverage,
		PnL:           pnl,
		PnLPercent:    pnlPercent,
		Reason:        reason,
		DurationHours: time.Since(pos.OpenedAt).Hours(),
	}

	if err := l.tradeRepo.Create(record); err != nil {
		logger.Error("failed to persist trade exit",
			zap.String("pair", pos.Symbol), zap.Error(err))
	}
}

// ReportStats aggregates exit records into daily statistics
type ReportStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	AvgPnLPercent float64
	BestPercent   float64
	WorstPercent  float64
	TotalPnL      float64
}

// DailyReport computes and logs statistics over today's closed trades
func (l *TradeLogger) DailyReport() (*ReportStats, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	exits, err := l.tradeRepo.FindExitsSince(midnight)
	if err != nil {
		return nil, err
	}

	stats := CalculateStats(exits)
	logger.Info("daily trading report",
		zap.Int("totalTrades", stats.TotalTrades),
		zap.Int("winning", stats.WinningTrades),
		zap.Int("losing", stats.LosingTrades),
		zap.Float64("winRate", stats.WinRate),
		zap.Float64("avgPnlPct", stats.AvgPnLPercent),
		zap.Float64("bestPct", stats.BestPercent),
		zap.Float64("worstPct", stats.WorstPercent),
		zap.Float64("totalPnl", stats.TotalPnL))

	return stats, nil
}

// CalculateStats reduces exit records to report statistics
func CalculateStats(exits []models.TradeRecord) *ReportStats {
	stats := &ReportStats{TotalTrades: len(exits)}
	if len(exits) == 0 {
		return stats
	}

	sumPct := 0.0
	stats.BestPercent = exits[0].PnLPercent
	stats.WorstPercent = exits[0].PnLPercent

	for _, e := range exits {
		if e.PnL > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
		sumPct += e.PnLPercent
		if e.PnLPercent > stats.BestPercent {
			stats.BestPercent = e.PnLPercent
		}
		if e.PnLPercent < stats.WorstPercent {
			stats.WorstPercent = e.PnLPercent
		}
		stats.TotalPnL += e.PnL
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	stats.AvgPnLPercent = sumPct / float64(stats.TotalTrades)
	return stats
}
