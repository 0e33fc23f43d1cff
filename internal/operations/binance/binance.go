package binance

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"DerivTradeBot/internal/models"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

// BinanceClient wraps the futures REST client behind the gateway surface the
// engine consumes. Every call path waits on the shared rate limiter before
// issuing a request.
type BinanceClient struct {
	client      *futures.Client
	rateLimiter *rate.Limiter
	httpClient  *http.Client
}

func NewBinanceClient(apiKey, secretKey string, testnet bool) *BinanceClient {
	// Custom HTTP client with timeouts
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	futures.UseTestnet = testnet
	futuresClient := futures.NewClient(apiKey, secretKey)
	futuresClient.HTTPClient = httpClient

	// Single-slot throttle: 10 requests per second with burst of 20
	limiter := rate.NewLimiter(rate.Limit(10), 20)

	return &BinanceClient{
		client:      futuresClient,
		rateLimiter: limiter,
		httpClient:  httpClient,
	}
}

// LoadMarkets returns all actively trading perpetual symbols quoted in the
// given asset
func (c *BinanceClient) LoadMarkets(ctx context.Context, quote string) ([]string, error) {
	var symbols []string
	err := c.withRetry(ctx, func() error {
		info, err := c.client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return err
		}
		symbols = symbols[:0]
		for _, s := range info.Symbols {
			if s.Status != "TRADING" {
				continue
			}
			if s.ContractType != "PERPETUAL" {
				continue
			}
			if !strings.EqualFold(s.QuoteAsset, quote) {
				continue
			}
			symbols = append(symbols, s.Symbol)
		}
		return nil
	})
	return symbols, err
}

// FetchTicker returns the live quote for one symbol: last price and quote
// volume from the 24h stats, bid/ask from the book ticker
func (c *BinanceClient) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	var ticker models.Ticker
	err := c.withRetry(ctx, func() error {
		stats, err := c.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			return fmt.Errorf("no 24h stats for %s", symbol)
		}

		books, err := c.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(books) == 0 {
			return fmt.Errorf("no book ticker for %s", symbol)
		}

		ticker = models.Ticker{
			Symbol:      symbol,
			LastPrice:   parseFloat(stats[0].LastPrice),
			QuoteVolume: parseFloat(stats[0].QuoteVolume),
			BidPrice:    parseFloat(books[0].BidPrice),
			AskPrice:    parseFloat(books[0].AskPrice),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ticker, nil
}

// FetchCandles returns the most recent candles for a symbol, oldest first
func (c *BinanceClient) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	var candles []models.Candle
	err := c.withRetry(ctx, func() error {
		klines, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return err
		}

		candles = make([]models.Candle, 0, len(klines))
		for _, k := range klines {
			candles = append(candles, models.Candle{
				OpenTime: time.UnixMilli(k.OpenTime),
				Open:     parseFloat(k.Open),
				High:     parseFloat(k.High),
				Low:      parseFloat(k.Low),
				Close:    parseFloat(k.Close),
				Volume:   parseFloat(k.Volume),
			})
		}
		return nil
	})
	return candles, err
}

// FetchBalance returns the available balance for one asset
func (c *BinanceClient) FetchBalance(ctx context.Context, asset string) (float64, error) {
	var available float64
	err := c.withRetry(ctx, func() error {
		balances, err := c.client.NewGetBalanceService().Do(ctx)
		if err != nil {
			return err
		}
		for _, b := range balances {
			if b.Asset == asset {
				available = parseFloat(b.AvailableBalance)
				return nil
			}
		}
		available = 0
		return nil
	})
	return available, err
}

// FetchPositions returns all positions with a non-zero amount. This is the
// authoritative position list the engine reconciles against.
func (c *BinanceClient) FetchPositions(ctx context.Context) ([]models.LivePosition, error) {
	var positions []models.LivePosition
	err := c.withRetry(ctx, func() error {
		risks, err := c.client.NewGetPositionRiskService().Do(ctx)
		if err != nil {
			return err
		}

		positions = positions[:0]
		for _, r := range risks {
			amt := parseFloat(r.PositionAmt)
			if amt == 0 {
				continue
			}
			side := models.PositionSideLong
			if amt < 0 {
				side = models.PositionSideShort
			}
			positions = append(positions, models.LivePosition{
				Symbol:        r.Symbol,
				Side:          side,
				EntryPrice:    parseFloat(r.EntryPrice),
				MarkPrice:     parseFloat(r.MarkPrice),
				Contracts:     math.Abs(amt),
				Leverage:      int(parseFloat(r.Leverage)),
				UnrealizedPnl: parseFloat(r.UnRealizedProfit),
			})
		}
		return nil
	})
	return positions, err
}

// SetLeverage changes the leverage for a symbol and returns the value the
// exchange confirmed. Callers must compare it against the requested value.
func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) (int, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return 0, err
	}
	resp, err := c.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	return resp.Leverage, nil
}

// CreateMarketOrder places a market order. Orders are never retried: a
// timeout may still have filled, and the position list is the only safe
// source of truth afterwards.
func (c *BinanceClient) CreateMarketOrder(ctx context.Context, symbol, side string, quantity float64, reduceOnly bool) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	orderSide := futures.SideTypeBuy
	if side == models.PositionSideShort {
		orderSide = futures.SideTypeSell
	}
	if reduceOnly {
		// Closing flattens the position, so the order side is inverted
		if orderSide == futures.SideTypeBuy {
			orderSide = futures.SideTypeSell
		} else {
			orderSide = futures.SideTypeBuy
		}
	}

	_, err := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		ReduceOnly(reduceOnly).
		Do(ctx)
	return err
}

// withRetry runs a fetch with the rate limiter and exponential backoff
func (c *BinanceClient) withRetry(ctx context.Context, fn func() error) error {
	maxRetries := 3
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		if err = fn(); err == nil {
			return nil
		}

		if attempt == maxRetries {
			return err
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return err
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
