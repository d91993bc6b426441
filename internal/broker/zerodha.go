package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
	"options-desk/pkg/utils"
)

// exchange segments carrying the index option chains.
const (
	niftyOptionExchange  = "NFO"
	sensexOptionExchange = "BFO"
)

// spot instrument tokens on NSE/BSE.
const (
	niftySpotToken  uint32 = 256265
	sensexSpotToken uint32 = 265
)

// ZerodhaBroker implements the Broker interface for Zerodha Kite Connect.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	accessToken   string
	tokenPath     string
	authenticated bool

	// instrument dump, keyed by index then trading symbol
	instruments map[models.IndexName][]models.Instrument

	mu sync.RWMutex
}

// ZerodhaConfig holds configuration for the Zerodha broker.
type ZerodhaConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	TokenPath string
}

var _ Broker = (*ZerodhaBroker)(nil)

// NewZerodhaBroker creates a new Zerodha broker instance.
// It automatically loads any saved session from disk.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	client := kiteconnect.New(cfg.APIKey)

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "options-desk", "session.json")
	}

	zb := &ZerodhaBroker{
		client:      client,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		userID:      cfg.UserID,
		tokenPath:   tokenPath,
		instruments: make(map[models.IndexName][]models.Instrument),
	}

	// Automatically load saved session if available
	_ = zb.loadSession()

	return zb
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login authenticates with Zerodha using the OAuth flow.
// It first tries a persisted session, then falls back to OAuth.
func (z *ZerodhaBroker) Login(ctx context.Context) error {
	if err := z.loadSession(); err == nil && z.IsAuthenticated() {
		// Verify session is still valid
		if _, err := z.client.GetUserProfile(); err == nil {
			return nil
		}
	}

	loginURL := z.client.GetLoginURL()
	return apperrors.NewBrokerError("login_required",
		fmt.Sprintf("visit %s and complete login, then call CompleteLogin with the request token", loginURL), nil)
}

// CompleteLogin completes the OAuth flow with the request token.
func (z *ZerodhaBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return fmt.Errorf("failed to generate session: %w", err)
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	if err := z.saveSession(session.AccessToken); err != nil {
		// Session is valid even if persistence fails
		fmt.Fprintf(os.Stderr, "warning: failed to persist session: %v\n", err)
	}

	return nil
}

// Logout invalidates the session and clears stored credentials.
func (z *ZerodhaBroker) Logout(ctx context.Context) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.authenticated {
		if _, err := z.client.InvalidateAccessToken(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to invalidate token: %v\n", err)
		}
	}

	z.accessToken = ""
	z.authenticated = false

	if err := os.Remove(z.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	return nil
}

// IsAuthenticated returns whether the broker is authenticated.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

// AccessToken returns the current access token for the ticker.
func (z *ZerodhaBroker) AccessToken() string {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.accessToken
}

func (z *ZerodhaBroker) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Zerodha tokens expire at 6 AM IST the next day
	if time.Now().After(session.ExpiresAt) {
		return apperrors.ErrSessionExpired
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	return nil
}

func (z *ZerodhaBroker) saveSession(accessToken string) error {
	dir := filepath.Dir(z.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	now := time.Now().In(utils.IndiaLocation)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)

	session := sessionData{
		AccessToken: accessToken,
		UserID:      z.userID,
		ExpiresAt:   expiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(z.tokenPath, data, 0600)
}

// LoadInstruments downloads the option chains for both indexes.
// NIFTY options trade on NFO, SENSEX options on BFO.
func (z *ZerodhaBroker) LoadInstruments(ctx context.Context) error {
	if !z.IsAuthenticated() {
		return apperrors.ErrNotAuthenticated
	}

	byIndex := make(map[models.IndexName][]models.Instrument)

	load := func(exchange string, index models.IndexName) error {
		dump, err := z.client.GetInstrumentsByExchange(exchange)
		if err != nil {
			return fmt.Errorf("failed to fetch %s instruments: %w", exchange, err)
		}

		for _, inst := range dump {
			if inst.Name != string(index) {
				continue
			}
			optType := models.OptionType(inst.InstrumentType)
			if !optType.Valid() {
				continue
			}
			byIndex[index] = append(byIndex[index], models.Instrument{
				Token:      uint32(inst.InstrumentToken),
				Symbol:     inst.Tradingsymbol,
				Name:       inst.Name,
				Exchange:   inst.Exchange,
				Segment:    inst.Segment,
				Strike:     inst.StrikePrice,
				OptionType: optType,
				Expiry:     inst.Expiry.Time,
			})
		}
		return nil
	}

	if err := load(niftyOptionExchange, models.IndexNifty); err != nil {
		return err
	}
	if err := load(sensexOptionExchange, models.IndexSensex); err != nil {
		return err
	}

	z.mu.Lock()
	z.instruments = byIndex
	z.mu.Unlock()

	return nil
}

// OptionInstruments returns the loaded option chain for an index.
func (z *ZerodhaBroker) OptionInstruments(index models.IndexName) []models.Instrument {
	z.mu.RLock()
	defer z.mu.RUnlock()
	out := make([]models.Instrument, len(z.instruments[index]))
	copy(out, z.instruments[index])
	return out
}

// FindOption locates a specific contract in the loaded chain.
func (z *ZerodhaBroker) FindOption(index models.IndexName, strike float64, expiry time.Time, optType models.OptionType) (*models.Instrument, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	for _, inst := range z.instruments[index] {
		if inst.Strike == strike && inst.OptionType == optType && utils.SameMarketDay(inst.Expiry, expiry) {
			found := inst
			return &found, true
		}
	}
	return nil, false
}

// Strikes returns the sorted strikes available for an index and expiry.
func (z *ZerodhaBroker) Strikes(index models.IndexName, expiry time.Time) []float64 {
	z.mu.RLock()
	defer z.mu.RUnlock()

	seen := make(map[float64]struct{})
	for _, inst := range z.instruments[index] {
		if !expiry.IsZero() && !utils.SameMarketDay(inst.Expiry, expiry) {
			continue
		}
		seen[inst.Strike] = struct{}{}
	}

	strikes := make([]float64, 0, len(seen))
	for s := range seen {
		strikes = append(strikes, s)
	}
	sort.Float64s(strikes)
	return strikes
}

// Expiries returns the sorted expiry dates available for an index.
func (z *ZerodhaBroker) Expiries(index models.IndexName) []time.Time {
	z.mu.RLock()
	defer z.mu.RUnlock()

	seen := make(map[time.Time]struct{})
	for _, inst := range z.instruments[index] {
		day, _ := utils.DayBounds(inst.Expiry)
		seen[day] = struct{}{}
	}

	expiries := make([]time.Time, 0, len(seen))
	for e := range seen {
		expiries = append(expiries, e)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries
}

// SpotToken returns the instrument token of the underlying index.
func (z *ZerodhaBroker) SpotToken(index models.IndexName) uint32 {
	if index == models.IndexSensex {
		return sensexSpotToken
	}
	return niftySpotToken
}

// OptionPrice fetches the last traded price for a contract.
func (z *ZerodhaBroker) OptionPrice(ctx context.Context, index models.IndexName, strike float64, expiry time.Time, optType models.OptionType) (float64, error) {
	if !z.IsAuthenticated() {
		return 0, apperrors.ErrNotAuthenticated
	}

	inst, ok := z.FindOption(index, strike, expiry, optType)
	if !ok {
		return 0, apperrors.Wrapf(apperrors.ErrSymbolNotFound,
			"%s %v %s %s", index, strike, utils.FormatExpiry(expiry), optType)
	}

	key := inst.Exchange + ":" + inst.Symbol
	ltp, err := z.client.GetLTP(key)
	if err != nil {
		return 0, apperrors.NewBrokerError("ltp", "failed to fetch option price", err)
	}

	quote, ok := ltp[key]
	if !ok {
		return 0, apperrors.Wrapf(apperrors.ErrSymbolNotFound, "no quote for %s", key)
	}
	return quote.LastPrice, nil
}

// SpotPrice fetches the last traded price of the underlying index.
func (z *ZerodhaBroker) SpotPrice(ctx context.Context, index models.IndexName) (float64, error) {
	if !z.IsAuthenticated() {
		return 0, apperrors.ErrNotAuthenticated
	}

	key := "NSE:NIFTY 50"
	if index == models.IndexSensex {
		key = "BSE:SENSEX"
	}

	ltp, err := z.client.GetLTP(key)
	if err != nil {
		return 0, apperrors.NewBrokerError("ltp", "failed to fetch spot price", err)
	}

	quote, ok := ltp[key]
	if !ok {
		return 0, apperrors.Wrapf(apperrors.ErrSymbolNotFound, "no quote for %s", key)
	}
	return quote.LastPrice, nil
}
