// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"time"

	"options-desk/internal/models"
)

// Broker defines the operations needed from the brokerage API: session
// management, the option instrument universe, and quote lookups.
type Broker interface {
	// Session
	Login(ctx context.Context) error
	CompleteLogin(ctx context.Context, requestToken string) error
	Logout(ctx context.Context) error
	IsAuthenticated() bool
	AccessToken() string

	// Instruments
	LoadInstruments(ctx context.Context) error
	OptionInstruments(index models.IndexName) []models.Instrument
	FindOption(index models.IndexName, strike float64, expiry time.Time, optType models.OptionType) (*models.Instrument, bool)
	Strikes(index models.IndexName, expiry time.Time) []float64
	Expiries(index models.IndexName) []time.Time
	SpotToken(index models.IndexName) uint32

	// Quotes
	OptionPrice(ctx context.Context, index models.IndexName, strike float64, expiry time.Time, optType models.OptionType) (float64, error)
	SpotPrice(ctx context.Context, index models.IndexName) (float64, error)
}
