// Package feed streams live prices from the broker WebSocket into the
// price cache and the application store.
package feed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"options-desk/internal/models"
)

// Ticker defines the streaming interface used by the feed service.
type Ticker interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(tokens []uint32) error
	RegisterInstruments(tokenSymbols map[uint32]string)
	OnTick(handler func(models.Tick))
	OnError(handler func(error))
	IsConnected() bool
}

// KiteTicker implements Ticker over the Zerodha WebSocket stream.
type KiteTicker struct {
	ticker      *kiteticker.Ticker
	apiKey      string
	accessToken string

	// Handlers
	onTick  func(models.Tick)
	onError func(error)

	// State
	connected    bool
	subscribed   map[uint32]struct{}
	tokenSymbols map[uint32]string

	// Reconnection
	reconnecting bool
	maxRetries   int
	baseDelay    time.Duration

	mu      sync.RWMutex
	writeMu sync.Mutex // Protects websocket writes
}

// KiteTickerConfig holds configuration for the ticker.
type KiteTickerConfig struct {
	APIKey      string
	AccessToken string
	MaxRetries  int
	BaseDelay   time.Duration
}

var _ Ticker = (*KiteTicker)(nil)

// NewKiteTicker creates a new Kite ticker instance.
func NewKiteTicker(cfg KiteTickerConfig) *KiteTicker {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}

	baseDelay := cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = time.Second
	}

	return &KiteTicker{
		apiKey:       cfg.APIKey,
		accessToken:  cfg.AccessToken,
		subscribed:   make(map[uint32]struct{}),
		tokenSymbols: make(map[uint32]string),
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
	}
}

// Connect establishes the WebSocket connection.
func (t *KiteTicker) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}

	t.ticker = kiteticker.New(t.apiKey, t.accessToken)

	connectedCh := make(chan struct{})
	firstConnect := true

	t.ticker.OnConnect(func() {
		t.mu.Lock()
		t.connected = true
		t.reconnecting = false
		isFirst := firstConnect
		firstConnect = false
		t.mu.Unlock()

		select {
		case connectedCh <- struct{}{}:
		default:
		}

		// On reconnection, resubscribe to previously subscribed tokens
		if !isFirst {
			t.resubscribe()
		}
	})

	t.ticker.OnClose(func(code int, reason string) {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()

		go t.reconnect(ctx)
	})

	t.ticker.OnError(func(err error) {
		if t.onError != nil {
			go t.onError(err)
		}
	})

	t.ticker.OnTick(func(tick kitemodels.Tick) {
		if t.onTick != nil {
			go t.onTick(t.convertTick(tick))
		}
	})

	t.ticker.OnReconnect(func(attempt int, delay time.Duration) {
		t.mu.Lock()
		t.reconnecting = true
		t.mu.Unlock()
	})

	t.mu.Unlock() // Release lock before starting connection

	go t.ticker.Serve()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connectedCh:
		return nil
	case <-time.After(30 * time.Second):
		if t.IsConnected() {
			return nil
		}
		return fmt.Errorf("connection timeout")
	}
}

// Disconnect closes the WebSocket connection.
func (t *KiteTicker) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil {
		t.ticker.Close()
		t.connected = false
	}

	return nil
}

// Subscribe subscribes to instrument tokens in quote mode.
func (t *KiteTicker) Subscribe(tokens []uint32) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	for _, token := range tokens {
		t.subscribed[token] = struct{}{}
	}
	t.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := t.ticker.SetMode(kiteticker.ModeQuote, tokens); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	return nil
}

// RegisterInstruments records the symbol for each instrument token so
// ticks carry readable symbols.
func (t *KiteTicker) RegisterInstruments(tokenSymbols map[uint32]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for token, symbol := range tokenSymbols {
		t.tokenSymbols[token] = symbol
	}
}

// OnTick sets the tick handler.
func (t *KiteTicker) OnTick(handler func(models.Tick)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = handler
}

// OnError sets the error handler.
func (t *KiteTicker) OnError(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = handler
}

// IsConnected returns whether the ticker is connected.
func (t *KiteTicker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// convertTick converts a Kite ticker tick to our model.
func (t *KiteTicker) convertTick(tick kitemodels.Tick) models.Tick {
	t.mu.RLock()
	symbol := t.tokenSymbols[tick.InstrumentToken]
	t.mu.RUnlock()

	ts := tick.Timestamp.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return models.Tick{
		Symbol:       symbol,
		Token:        tick.InstrumentToken,
		LTP:          tick.LastPrice,
		Open:         tick.OHLC.Open,
		High:         tick.OHLC.High,
		Low:          tick.OHLC.Low,
		Close:        tick.OHLC.Close,
		Volume:       int64(tick.VolumeTraded),
		BuyQuantity:  int64(tick.TotalBuyQuantity),
		SellQuantity: int64(tick.TotalSellQuantity),
		Timestamp:    ts,
	}
}

// reconnect attempts to reconnect with exponential backoff.
func (t *KiteTicker) reconnect(ctx context.Context) {
	t.mu.Lock()
	if t.reconnecting {
		t.mu.Unlock()
		return
	}
	t.reconnecting = true
	t.mu.Unlock()

	for attempt := 0; attempt < t.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		delay := t.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		time.Sleep(delay)

		t.mu.Lock()
		if t.connected {
			t.reconnecting = false
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		if err := t.Connect(ctx); err == nil {
			return
		}
	}

	t.mu.Lock()
	t.reconnecting = false
	t.mu.Unlock()

	if t.onError != nil {
		t.onError(fmt.Errorf("max reconnection attempts reached"))
	}
}

// resubscribe resubscribes to all previously subscribed tokens.
func (t *KiteTicker) resubscribe() {
	t.mu.RLock()
	tokens := make([]uint32, 0, len(t.subscribed))
	for token := range t.subscribed {
		tokens = append(tokens, token)
	}
	t.mu.RUnlock()

	if len(tokens) == 0 {
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.ticker.Subscribe(tokens)
	t.ticker.SetMode(kiteticker.ModeQuote, tokens)
}
