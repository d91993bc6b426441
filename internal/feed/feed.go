package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-desk/internal/broker"
	apperrors "options-desk/internal/errors"
	"options-desk/internal/logging"
	"options-desk/internal/models"
	"options-desk/internal/store"
)

// Status describes the running state of the feed.
type Status struct {
	Running     bool      `json:"running"`
	Connected   bool      `json:"connected"`
	Instruments int       `json:"instruments"`
	TicksSeen   int64     `json:"ticks_seen"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	LastTickAt  time.Time `json:"last_tick_at,omitempty"`
}

// Service pumps broker ticks into the price cache and the live_prices
// table.
type Service struct {
	broker broker.Broker
	cache  PriceCache
	store  store.DataStore
	logger zerolog.Logger

	newTicker func() Ticker

	mu          sync.Mutex
	ticker      Ticker
	cancel      context.CancelFunc
	running     bool
	instruments int
	ticksSeen   int64
	startedAt   time.Time
	lastTickAt  time.Time
}

// NewService creates a feed service. newTicker builds a fresh ticker
// per start so reconnect state never leaks across restarts.
func NewService(b broker.Broker, cache PriceCache, st store.DataStore, newTicker func() Ticker, logger zerolog.Logger) *Service {
	return &Service{
		broker:    b,
		cache:     cache,
		store:     st,
		newTicker: newTicker,
		logger:    logger,
	}
}

// Start connects the ticker and subscribes to the option chains of
// both indexes plus the index spots.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return apperrors.ErrFeedRunning
	}
	s.mu.Unlock()

	if !s.broker.IsAuthenticated() {
		return apperrors.ErrNotAuthenticated
	}

	if err := s.broker.LoadInstruments(ctx); err != nil {
		return apperrors.Wrap(err, "loading instruments")
	}

	tokenSymbols := make(map[uint32]string)
	for _, index := range []models.IndexName{models.IndexNifty, models.IndexSensex} {
		for _, inst := range s.broker.OptionInstruments(index) {
			tokenSymbols[inst.Token] = inst.Symbol
		}
		tokenSymbols[s.broker.SpotToken(index)] = index.SpotSymbol()
	}

	feedCtx, cancel := context.WithCancel(context.Background())

	ticker := s.newTicker()
	ticker.RegisterInstruments(tokenSymbols)
	ticker.OnTick(s.handleTick)
	ticker.OnError(func(err error) {
		s.logger.Warn().Err(err).Msg("Feed ticker error")
	})

	if err := ticker.Connect(feedCtx); err != nil {
		cancel()
		return apperrors.Wrap(err, "connecting ticker")
	}

	tokens := make([]uint32, 0, len(tokenSymbols))
	for token := range tokenSymbols {
		tokens = append(tokens, token)
	}
	if err := ticker.Subscribe(tokens); err != nil {
		ticker.Disconnect()
		cancel()
		return apperrors.Wrap(err, "subscribing")
	}

	s.mu.Lock()
	s.ticker = ticker
	s.cancel = cancel
	s.running = true
	s.instruments = len(tokens)
	s.ticksSeen = 0
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info().Int("instruments", len(tokens)).Msg("Live feed started")
	return nil
}

// Stop disconnects the ticker.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return apperrors.ErrFeedNotRunning
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.ticker != nil {
		s.ticker.Disconnect()
	}

	s.running = false
	s.ticker = nil
	s.cancel = nil

	s.logger.Info().Msg("Live feed stopped")
	return nil
}

// Status reports the feed state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:     s.running,
		Instruments: s.instruments,
		TicksSeen:   s.ticksSeen,
		StartedAt:   s.startedAt,
		LastTickAt:  s.lastTickAt,
	}
	if s.ticker != nil {
		st.Connected = s.ticker.IsConnected()
	}
	return st
}

func (s *Service) handleTick(tick models.Tick) {
	if tick.Symbol == "" || tick.LTP <= 0 {
		return
	}

	price := models.LivePrice{
		Symbol:    tick.Symbol,
		Price:     tick.LTP,
		Timestamp: tick.Timestamp,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.cache.Set(ctx, price); err != nil {
		s.logger.Warn().Err(err).Str("symbol", tick.Symbol).Msg("Price cache write failed")
	}
	if err := s.store.UpsertLivePrice(ctx, price); err != nil {
		s.logger.Warn().Err(err).Str("symbol", tick.Symbol).Msg("Live price persist failed")
	}

	s.mu.Lock()
	s.ticksSeen++
	s.lastTickAt = tick.Timestamp
	s.mu.Unlock()

	logging.LogFeedTick(s.logger, tick.Symbol, tick.LTP, tick.Timestamp)
}
