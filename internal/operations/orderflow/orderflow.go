package orderflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"DerivTradeBot/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Snapshots buffered before the reader starts dropping the oldest
const snapshotBuffer = 16

// var so tests can point the dialer at a local server
var streamBaseURL = "wss://fstream.binance.com/ws"

// DepthSnapshot is one aggregated view of the partial order book: total bid
// and ask size over the subscribed depth
type DepthSnapshot struct {
	Symbol  string
	BidSize float64
	AskSize float64
}

// Imbalance returns (bid-ask)/(bid+ask) in [-1, 1]; positive means buy
// pressure
func (s DepthSnapshot) Imbalance() float64 {
	total := s.BidSize + s.AskSize
	if total == 0 {
		return 0
	}
	return (s.BidSize - s.AskSize) / total
}

// Subscription is a cancellable handle over a book-depth stream. Consumers
// read Snapshots() and call Close() when done; after the channel closes,
// Err() reports why the stream ended.
type Subscription struct {
	symbol    string
	conn      *websocket.Conn
	snapshots chan DepthSnapshot

	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe opens a partial book-depth stream for one symbol. The reader
// goroutine exits on context cancellation, Close, or a read error.
func Subscribe(ctx context.Context, symbol string) (*Subscription, error) {
	stream := fmt.Sprintf("%s/%s@depth20@500ms", streamBaseURL, strings.ToLower(symbol))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, stream, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial depth stream for %s: %w", symbol, err)
	}

	sub := &Subscription{
		symbol:    symbol,
		conn:      conn,
		snapshots: make(chan DepthSnapshot, snapshotBuffer),
		done:      make(chan struct{}),
	}

	go sub.readLoop(ctx)
	return sub, nil
}

// Snapshots returns the bounded stream of depth snapshots. The channel is
// closed when the subscription ends.
func (s *Subscription) Snapshots() <-chan DepthSnapshot {
	return s.snapshots
}

// Close unsubscribes and releases the connection. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Err reports why the stream ended; nil after a clean Close
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type depthMessage struct {
	Bids [][]string `json:"b"`
	Asks [][]string `json:"a"`
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer close(s.snapshots)
	defer s.Close()

	// Unblock the blocking read when the context is cancelled
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Closed by the consumer; not an error
			default:
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				logger.Warn("depth stream read error",
					zap.String("symbol", s.symbol), zap.Error(err))
			}
			return
		}

		var depth depthMessage
		if err := json.Unmarshal(msg, &depth); err != nil {
			logger.Debug("skipping malformed depth message",
				zap.String("symbol", s.symbol), zap.Error(err))
			continue
		}

		snapshot := DepthSnapshot{
			Symbol:  s.symbol,
			BidSize: sumSizes(depth.Bids),
			AskSize: sumSizes(depth.Asks),
		}

		// Bounded delivery: drop the oldest snapshot when the consumer lags
		select {
		case s.snapshots <- snapshot:
		default:
			select {
			case <-s.snapshots:
			default:
			}
			select {
			case s.snapshots <- snapshot:
			default:
			}
		}
	}
}

func sumSizes(levels [][]string) float64 {
	sum := 0.0
	for _, lv := range levels {
		if len(lv) < 2 {
			continue
		}
		size, err := strconv.ParseFloat(lv[1], 64)
		if err != nil {
			continue
		}
		sum += size
	}
	return sum
}
