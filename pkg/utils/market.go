package utils

import (
	"fmt"
	"strings"
	"time"

	"options-desk/internal/models"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// GetMarketStatus returns the current market status.
func GetMarketStatus() models.MarketStatus {
	return MarketStatusAt(time.Now())
}

// MarketStatusAt returns the market status at the given instant.
func MarketStatusAt(t time.Time) models.MarketStatus {
	now := t.In(IndiaLocation)

	// Check if weekend
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return models.MarketClosed
	}

	hour := now.Hour()
	minute := now.Minute()
	timeMinutes := hour*60 + minute

	// Pre-open: 9:00 - 9:15
	if timeMinutes >= 540 && timeMinutes < 555 {
		return models.MarketPreOpen
	}

	// Market open: 9:15 - 15:30
	if timeMinutes >= 555 && timeMinutes < 930 {
		return models.MarketOpen
	}

	return models.MarketClosed
}

// IsMarketOpen returns true if the market is currently open.
func IsMarketOpen() bool {
	return GetMarketStatus() == models.MarketOpen
}

// IsTradingDay returns true if the given date is a weekday.
// Exchange holidays are not tracked; a holiday simply yields no ticks.
func IsTradingDay(t time.Time) bool {
	d := t.In(IndiaLocation).Weekday()
	return d != time.Saturday && d != time.Sunday
}

// GetNextMarketOpen returns the next market opening time.
func GetNextMarketOpen() time.Time {
	now := time.Now().In(IndiaLocation)

	// Start with today at 9:15
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, IndiaLocation)

	// If already past today's open, move to tomorrow
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	// Skip weekends
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// GetMarketClose returns today's market close time.
func GetMarketClose() time.Time {
	now := time.Now().In(IndiaLocation)
	return time.Date(now.Year(), now.Month(), now.Day(), 15, 30, 0, 0, IndiaLocation)
}

// TimeUntilMarketClose returns the duration until market close.
func TimeUntilMarketClose() time.Duration {
	return time.Until(GetMarketClose())
}

// DayBounds returns the start and end instants of the calendar day
// containing t, in market time.
func DayBounds(t time.Time) (time.Time, time.Time) {
	d := t.In(IndiaLocation)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, IndiaLocation)
	return start, start.AddDate(0, 0, 1)
}

// SameMarketDay reports whether both instants fall on the same
// calendar day in market time.
func SameMarketDay(a, b time.Time) bool {
	a, b = a.In(IndiaLocation), b.In(IndiaLocation)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// FormatExpiry formats an expiry date the way the tick store names its
// tables, e.g. "14Aug2025".
func FormatExpiry(t time.Time) string {
	return t.In(IndiaLocation).Format("02Jan2006")
}

// ParseExpiry parses an expiry date token in any of the layouts that
// appear in tick store table names.
func ParseExpiry(s string) (time.Time, error) {
	layouts := []string{"02Jan2006", "02Jan06", "02-Jan-2006"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, IndiaLocation); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiry format: %q", s)
}

// TickTableName returns the per-instrument table name in the tick
// store, e.g. "NIFTY_24000_14Aug2025_CALL".
func TickTableName(index models.IndexName, strike float64, expiry time.Time, optType models.OptionType) string {
	kind := "CALL"
	if optType == models.OptionPut {
		kind = "PUT"
	}
	return fmt.Sprintf("%s_%d_%s_%s", index, int64(strike), FormatExpiry(expiry), kind)
}

// ParseTickTableName extracts the index, strike, expiry and option type
// from a tick store table name. Returns false when the name does not
// follow the instrument naming scheme.
func ParseTickTableName(name string) (models.IndexName, float64, time.Time, models.OptionType, bool) {
	parts := strings.Split(name, "_")
	if len(parts) != 4 {
		return "", 0, time.Time{}, "", false
	}

	index := models.IndexName(parts[0])
	if !index.Valid() {
		return "", 0, time.Time{}, "", false
	}

	var strike float64
	if _, err := fmt.Sscanf(parts[1], "%f", &strike); err != nil || strike <= 0 {
		return "", 0, time.Time{}, "", false
	}

	expiry, err := ParseExpiry(parts[2])
	if err != nil {
		return "", 0, time.Time{}, "", false
	}

	var optType models.OptionType
	switch parts[3] {
	case "CALL":
		optType = models.OptionCall
	case "PUT":
		optType = models.OptionPut
	default:
		return "", 0, time.Time{}, "", false
	}

	return index, strike, expiry, optType, true
}
