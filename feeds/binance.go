package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE STREAM - Off-chain native price, backup for Chainlink
// ═══════════════════════════════════════════════════════════════════════════════

const (
	binanceWSURL       = "wss://stream.binance.com:9443/ws"
	binanceReconnectIn = 1 * time.Second
	binanceDialRetryIn = 5 * time.Second
)

// tradeEvent is a Binance <symbol>@trade message
type tradeEvent struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// BinanceStream keeps the last trade price of one symbol
type BinanceStream struct {
	wsURL  string
	symbol string

	mu        sync.RWMutex
	conn      *websocket.Conn
	price     decimal.Decimal
	updatedAt time.Time
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc // aborts an in-flight handshake
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewBinanceStream creates a stream for a symbol like "ethusdt"
func NewBinanceStream(symbol string) *BinanceStream {
	return NewBinanceStreamURL(binanceWSURL, symbol)
}

// NewBinanceStreamURL creates a stream against a custom websocket base URL
func NewBinanceStreamURL(wsURL, symbol string) *BinanceStream {
	return &BinanceStream{
		wsURL:  strings.TrimSuffix(wsURL, "/"),
		symbol: strings.ToLower(symbol),
	}
}

// Start connects and keeps reconnecting until Stop
func (s *BinanceStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run()
	log.Info().Str("symbol", s.symbol).Msg("📈 Binance stream started")
}

// Stop closes the connection and waits for the reader to exit
func (s *BinanceStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	close(s.stopCh)
	if s.conn != nil {
		s.conn.Close()
	}
	done := s.doneCh
	s.mu.Unlock()

	<-done
	log.Info().Msg("Binance stream stopped")
}

// Price returns the last trade price and when it arrived
func (s *BinanceStream) Price() (decimal.Decimal, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price, s.updatedAt
}

// Fresh returns the price if it arrived within maxAge
func (s *BinanceStream) Fresh(maxAge time.Duration) (decimal.Decimal, bool) {
	price, at := s.Price()
	if at.IsZero() || time.Since(at) > maxAge || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}

func (s *BinanceStream) run() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(); err != nil {
			log.Warn().Err(err).Msg("Binance stream connection failed")
			if !s.sleep(binanceDialRetryIn) {
				return
			}
			continue
		}

		s.readMessages()

		log.Warn().Msg("Binance stream disconnected, reconnecting...")
		if !s.sleep(binanceReconnectIn) {
			return
		}
	}
}

func (s *BinanceStream) sleep(d time.Duration) bool {
	select {
	case <-s.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (s *BinanceStream) connect() error {
	url := fmt.Sprintf("%s/%s@trade", s.wsURL, s.symbol)

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		conn.Close()
		return fmt.Errorf("stream stopped")
	}
	s.conn = conn
	s.mu.Unlock()

	log.Debug().Str("url", url).Msg("🔌 WebSocket connected to Binance")
	return nil
}

func (s *BinanceStream) readMessages() {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				log.Debug().Err(err).Msg("Binance stream read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *BinanceStream) handleMessage(data []byte) {
	var evt tradeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return
	}
	if evt.Event != "trade" {
		return
	}
	price, err := decimal.NewFromString(evt.Price)
	if err != nil || !price.IsPositive() {
		return
	}

	s.mu.Lock()
	s.price = price
	s.updatedAt = time.Now()
	s.mu.Unlock()
}
