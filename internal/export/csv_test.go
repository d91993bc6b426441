package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"options-desk/internal/models"
	"options-desk/pkg/utils"
)

func sampleSeries() []models.NetPremiumSample {
	base := time.Date(2025, 8, 14, 9, 15, 0, 0, time.UTC)
	return []models.NetPremiumSample{
		{Timestamp: base, NetPremium: decimal.RequireFromString("-9037.5")},
		{Timestamp: base.Add(time.Minute), NetPremium: decimal.RequireFromString("-9000.25")},
		{Timestamp: base.Add(2 * time.Minute), NetPremium: decimal.RequireFromString("150")},
		{Timestamp: base.Add(3 * time.Minute), NetPremium: decimal.Zero},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	samples := sampleSeries()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, samples); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	restored, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	if len(restored) != len(samples) {
		t.Fatalf("expected %d rows, got %d", len(samples), len(restored))
	}
	for i, orig := range samples {
		if !restored[i].Timestamp.Equal(orig.Timestamp) {
			t.Errorf("row %d timestamp = %s, want %s", i, restored[i].Timestamp, orig.Timestamp)
		}
		if !restored[i].NetPremium.Equal(orig.NetPremium) {
			t.Errorf("row %d net premium = %s, want %s", i, restored[i].NetPremium, orig.NetPremium)
		}
	}
}

// Market-time samples must come back as the same instants, and the
// written wall times must be the session times, not a shifted zone.
func TestCSVRoundTripMarketTime(t *testing.T) {
	open := time.Date(2025, 8, 14, 9, 15, 0, 0, utils.IndiaLocation)
	samples := []models.NetPremiumSample{
		{Timestamp: open, NetPremium: decimal.RequireFromString("-9037.5")},
		{Timestamp: open.Add(time.Minute), NetPremium: decimal.RequireFromString("-8962.5")},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, samples); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if !strings.Contains(buf.String(), "2025-08-14 09:15:00") {
		t.Errorf("csv = %q, want session open 09:15:00", buf.String())
	}

	restored, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(restored) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(restored))
	}
	for i := range samples {
		if !restored[i].Timestamp.Equal(samples[i].Timestamp) {
			t.Errorf("row %d timestamp = %s, want %s", i, restored[i].Timestamp, samples[i].Timestamp)
		}
	}
}

func TestCSVHeaderAndColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleSeries()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d lines", len(lines))
	}
	if lines[0] != "timestamp,net_premium" {
		t.Errorf("header = %q, want %q", lines[0], "timestamp,net_premium")
	}
	if !strings.HasSuffix(lines[1], ",-9037.5") {
		t.Errorf("first row = %q, want net premium -9037.5", lines[1])
	}
}

func TestCSVEmptySeries(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	restored, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(restored) != 0 {
		t.Errorf("expected no rows, got %d", len(restored))
	}
}

func TestReadCSVRejectsBadPremium(t *testing.T) {
	input := "timestamp,net_premium\n2025-08-14 09:15:00,not-a-number\n"
	if _, err := ReadCSV(strings.NewReader(input)); err == nil {
		t.Fatal("expected error for malformed net premium")
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(42); got != "backtest_42_results.csv" {
		t.Errorf("FileName = %q", got)
	}
}
