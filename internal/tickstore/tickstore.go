// Package tickstore reads historical minute data from the market data
// collection database. Each option instrument lives in its own table
// named <INDEX>_<STRIKE>_<DDMonYYYY>_<CALL|PUT> with one row per minute.
package tickstore

import (
	"context"
	"time"

	"options-desk/internal/models"
)

// TickSource provides historical minute candles and expiry discovery.
type TickSource interface {
	// Candles returns the minute candles recorded for the leg's
	// instrument on the given trading date, ordered by timestamp.
	// An empty slice means no data was recorded for that date.
	Candles(ctx context.Context, leg models.StrategyLeg, date time.Time) ([]models.Candle, error)

	// AvailableExpiries returns up to four expiry dates for the index
	// with data in the store, on or after the given date, ascending.
	AvailableExpiries(ctx context.Context, index models.IndexName, onOrAfter time.Time) ([]time.Time, error)

	// Close releases the underlying connections.
	Close() error
}
