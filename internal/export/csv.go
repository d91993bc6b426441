// Package export serializes backtest results for download.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"options-desk/internal/models"
	"options-desk/pkg/utils"
)

// timestampLayout is the wire format for sample timestamps. Values are
// written as IST wall times, matching the market session.
const timestampLayout = "2006-01-02 15:04:05"

// csvRow is the two-column CSV representation of a sample.
type csvRow struct {
	Timestamp  string `csv:"timestamp"`
	NetPremium string `csv:"net_premium"`
}

// WriteCSV writes samples as a two-column CSV with a header row.
func WriteCSV(w io.Writer, samples []models.NetPremiumSample) error {
	rows := make([]csvRow, len(samples))
	for i, s := range samples {
		rows[i] = csvRow{
			Timestamp:  s.Timestamp.In(utils.IndiaLocation).Format(timestampLayout),
			NetPremium: s.NetPremium.String(),
		}
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// ReadCSV parses a two-column CSV produced by WriteCSV. The pairs
// round-trip exactly: net premiums are decimal strings.
func ReadCSV(r io.Reader) ([]models.NetPremiumSample, error) {
	var rows []csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	samples := make([]models.NetPremiumSample, len(rows))
	for i, row := range rows {
		ts, err := time.ParseInLocation(timestampLayout, row.Timestamp, utils.IndiaLocation)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", row.Timestamp, err)
		}

		premium, err := decimal.NewFromString(row.NetPremium)
		if err != nil {
			return nil, fmt.Errorf("failed to parse net premium %q: %w", row.NetPremium, err)
		}

		samples[i] = models.NetPremiumSample{Timestamp: ts, NetPremium: premium}
	}
	return samples, nil
}

// FileName returns a download file name for a run's export.
func FileName(runID int64) string {
	return fmt.Sprintf("backtest_%d_results.csv", runID)
}
