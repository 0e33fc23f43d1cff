package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DerivTradeBot/config"
	"DerivTradeBot/internal/handlers"
	"DerivTradeBot/internal/models"
	"DerivTradeBot/internal/operations/binance"
	"DerivTradeBot/internal/repositories"
	"DerivTradeBot/internal/services/analysis"
	"DerivTradeBot/internal/services/position"
	"DerivTradeBot/internal/services/risk"
	"DerivTradeBot/internal/services/selector"
	"DerivTradeBot/internal/services/trading"
	"DerivTradeBot/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Cool-down before the supervisor restarts a crashed trading loop
const restartDelay = 30 * time.Second

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// Setup database
	db := setupDatabase(cfg.Database)
	tradeRepo := repositories.NewTradeRepository(db)

	// Exchange client
	client := binance.NewBinanceClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Testnet)
	if cfg.Exchange.Testnet {
		logger.Warn("running against testnet, no real assets are used")
	}

	// Decision engine wiring
	tradeLogger := trading.NewTradeLogger(tradeRepo)
	sizer := risk.NewSizer(cfg.Risk)
	scorer := analysis.NewScorer()
	pairSelector := selector.NewPairSelector(client, scorer, cfg.Pairs)
	manager := position.NewManager(client, sizer, tradeLogger, cfg.Risk)

	handler := handlers.NewTradingHandler(
		client, pairSelector, manager, tradeLogger,
		cfg.Risk, cfg.Pairs, cfg.Interval,
	)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// Supervisor: a crashed loop is restarted after a cool-down, with live
	// state rebuilt from the exchange's position list rather than memory
	for {
		err := handler.Run(ctx)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			logger.Error("trading loop crashed, restarting after cool-down",
				zap.Error(err), zap.Duration("delay", restartDelay))
		} else {
			logger.Warn("trading loop exited unexpectedly, restarting", zap.Duration("delay", restartDelay))
		}

		select {
		case <-ctx.Done():
		case <-time.After(restartDelay):
			continue
		}
		break
	}

	logger.Info("shutdown complete")
}

func setupDatabase(dbConfig config.DatabaseConfig) *gorm.DB {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(&models.TradeRecord{}); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	return db
}
