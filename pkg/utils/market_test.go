package utils

import (
	"testing"
	"time"

	"options-desk/internal/models"
)

func istTime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, IndiaLocation)
}

func TestMarketStatusAt(t *testing.T) {
	// 2025-08-14 is a Thursday.
	cases := []struct {
		name string
		at   time.Time
		want models.MarketStatus
	}{
		{"before pre-open", istTime(2025, 8, 14, 8, 59), models.MarketClosed},
		{"pre-open start", istTime(2025, 8, 14, 9, 0), models.MarketPreOpen},
		{"pre-open end", istTime(2025, 8, 14, 9, 14), models.MarketPreOpen},
		{"market open", istTime(2025, 8, 14, 9, 15), models.MarketOpen},
		{"midday", istTime(2025, 8, 14, 12, 30), models.MarketOpen},
		{"last open minute", istTime(2025, 8, 14, 15, 29), models.MarketOpen},
		{"market close", istTime(2025, 8, 14, 15, 30), models.MarketClosed},
		{"saturday midday", istTime(2025, 8, 16, 12, 0), models.MarketClosed},
		{"sunday midday", istTime(2025, 8, 17, 12, 0), models.MarketClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MarketStatusAt(tc.at); got != tc.want {
				t.Errorf("MarketStatusAt(%s) = %s, want %s", tc.at, got, tc.want)
			}
		})
	}
}

func TestMarketStatusAtConvertsToIST(t *testing.T) {
	// 05:00 UTC is 10:30 IST, inside the trading session.
	at := time.Date(2025, 8, 14, 5, 0, 0, 0, time.UTC)
	if got := MarketStatusAt(at); got != models.MarketOpen {
		t.Errorf("MarketStatusAt(%s) = %s, want OPEN", at, got)
	}
}

func TestIsTradingDay(t *testing.T) {
	if !IsTradingDay(istTime(2025, 8, 14, 10, 0)) {
		t.Error("Thursday should be a trading day")
	}
	if IsTradingDay(istTime(2025, 8, 16, 10, 0)) {
		t.Error("Saturday should not be a trading day")
	}
}

func TestDayBounds(t *testing.T) {
	start, end := DayBounds(istTime(2025, 8, 14, 13, 45))

	if !start.Equal(istTime(2025, 8, 14, 0, 0)) {
		t.Errorf("start = %s", start)
	}
	if !end.Equal(istTime(2025, 8, 15, 0, 0)) {
		t.Errorf("end = %s", end)
	}
}

func TestSameMarketDay(t *testing.T) {
	a := istTime(2025, 8, 14, 9, 15)
	b := istTime(2025, 8, 14, 15, 29)
	if !SameMarketDay(a, b) {
		t.Error("same IST day not recognized")
	}

	// 20:00 UTC on the 14th is already the 15th in IST.
	utc := time.Date(2025, 8, 14, 20, 0, 0, 0, time.UTC)
	if SameMarketDay(a, utc) {
		t.Error("late UTC evening should roll to the next IST day")
	}
}

func TestFormatAndParseExpiry(t *testing.T) {
	expiry := istTime(2025, 8, 14, 0, 0)
	if got := FormatExpiry(expiry); got != "14Aug2025" {
		t.Errorf("FormatExpiry = %q, want 14Aug2025", got)
	}

	for _, token := range []string{"14Aug2025", "14Aug25", "14-Aug-2025"} {
		parsed, err := ParseExpiry(token)
		if err != nil {
			t.Errorf("ParseExpiry(%q) failed: %v", token, err)
			continue
		}
		if !SameMarketDay(parsed, expiry) {
			t.Errorf("ParseExpiry(%q) = %s, want 2025-08-14", token, parsed)
		}
	}

	if _, err := ParseExpiry("Aug142025"); err == nil {
		t.Error("expected error for unrecognized layout")
	}
}

func TestTickTableName(t *testing.T) {
	expiry := istTime(2025, 8, 14, 0, 0)

	if got := TickTableName(models.IndexNifty, 24000, expiry, models.OptionCall); got != "NIFTY_24000_14Aug2025_CALL" {
		t.Errorf("table name = %q", got)
	}
	if got := TickTableName(models.IndexSensex, 81000, expiry, models.OptionPut); got != "SENSEX_81000_14Aug2025_PUT" {
		t.Errorf("table name = %q", got)
	}
}

func TestParseTickTableNameRoundTrip(t *testing.T) {
	expiry := istTime(2025, 8, 14, 0, 0)
	name := TickTableName(models.IndexNifty, 24550, expiry, models.OptionPut)

	index, strike, parsed, optType, ok := ParseTickTableName(name)
	if !ok {
		t.Fatalf("ParseTickTableName(%q) failed", name)
	}
	if index != models.IndexNifty || strike != 24550 || optType != models.OptionPut {
		t.Errorf("parsed %s/%v/%s", index, strike, optType)
	}
	if !SameMarketDay(parsed, expiry) {
		t.Errorf("expiry = %s, want 2025-08-14", parsed)
	}
}

func TestParseTickTableNameRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"users",
		"BANKNIFTY_24000_14Aug2025_CALL",
		"NIFTY_abc_14Aug2025_CALL",
		"NIFTY_24000_someday_CALL",
		"NIFTY_24000_14Aug2025_FUT",
		"NIFTY_24000_14Aug2025",
	}
	for _, name := range bad {
		if _, _, _, _, ok := ParseTickTableName(name); ok {
			t.Errorf("ParseTickTableName(%q) accepted malformed name", name)
		}
	}
}
