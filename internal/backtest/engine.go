// Package backtest replays multi-leg option strategies over historical
// minute data and aggregates the net premium series.
package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
	"options-desk/internal/tickstore"
	"options-desk/pkg/utils"
)

// MissingPricePolicy controls how timestamps with a missing leg price
// are handled.
type MissingPricePolicy string

const (
	// PolicyCarryForward uses the last known price for a leg that has
	// no candle at a timestamp. Timestamps before every leg has
	// printed at least once are skipped.
	PolicyCarryForward MissingPricePolicy = "carry_forward"

	// PolicySkip drops any timestamp where at least one leg has no
	// candle.
	PolicySkip MissingPricePolicy = "skip"
)

// Valid reports whether the policy is one of the supported modes.
func (p MissingPricePolicy) Valid() bool {
	return p == PolicyCarryForward || p == PolicySkip
}

// Engine computes net premium series from historical minute data.
type Engine struct {
	source tickstore.TickSource
	policy MissingPricePolicy
	logger zerolog.Logger
}

// NewEngine creates an engine backed by the given tick source.
func NewEngine(source tickstore.TickSource, policy MissingPricePolicy, logger zerolog.Logger) *Engine {
	if !policy.Valid() {
		policy = PolicyCarryForward
	}
	return &Engine{
		source: source,
		policy: policy,
		logger: logger,
	}
}

// LegWeight returns the signed contract multiplier for a leg:
// sign(action) x lots x lot_size(index).
func LegWeight(leg models.StrategyLeg) decimal.Decimal {
	return decimal.NewFromInt(int64(leg.Action.Sign() * leg.Lots * leg.IndexName.LotSize()))
}

// NetPremium aggregates one observation across legs given a price per
// leg, in leg order.
func NetPremium(legs []models.StrategyLeg, prices []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for i, leg := range legs {
		total = total.Add(LegWeight(leg).Mul(prices[i]))
	}
	return total
}

// Run replays the legs over the given trading date and returns the
// net premium series. Timestamps are strictly increasing and all fall
// on the requested date. When no leg has any data for the date the
// run fails with ErrDataUnavailable.
func (e *Engine) Run(ctx context.Context, legs []models.StrategyLeg, date time.Time) ([]models.NetPremiumSample, error) {
	if len(legs) == 0 {
		return nil, apperrors.NewValidationError("legs", len(legs), "at least one leg is required")
	}

	series := make([]map[time.Time]models.Candle, len(legs))
	union := make(map[time.Time]struct{})

	for i, leg := range legs {
		candles, err := e.source.Candles(ctx, leg, date)
		if err != nil {
			// An instrument with no recorded table is a data gap, not a
			// hard failure; the run fails with the data-unavailable
			// reason when nothing overlaps.
			if !apperrors.Is(err, apperrors.ErrSymbolNotFound) {
				return nil, apperrors.Wrapf(err, "fetching candles for leg %d", i+1)
			}
			candles = nil
		}

		series[i] = make(map[time.Time]models.Candle, len(candles))
		for _, c := range candles {
			if !utils.SameMarketDay(c.Timestamp, date) {
				continue
			}
			series[i][c.Timestamp] = c
			union[c.Timestamp] = struct{}{}
		}

		e.logger.Debug().
			Str("index", string(leg.IndexName)).
			Float64("strike", leg.Strike).
			Str("option_type", string(leg.OptionType)).
			Int("candles", len(candles)).
			Msg("Leg data loaded")
	}

	if len(union) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrDataUnavailable,
			"no ticks recorded on %s", date.In(utils.IndiaLocation).Format("2006-01-02"))
	}

	timestamps := make([]time.Time, 0, len(union))
	for ts := range union {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	switch e.policy {
	case PolicySkip:
		return e.aggregateSkip(legs, series, timestamps), nil
	default:
		return e.aggregateCarryForward(legs, series, timestamps), nil
	}
}

// aggregateCarryForward walks the union of timestamps, carrying the
// last known close for legs without a print. Leading timestamps where
// some leg has never printed are skipped.
func (e *Engine) aggregateCarryForward(legs []models.StrategyLeg, series []map[time.Time]models.Candle, timestamps []time.Time) []models.NetPremiumSample {
	last := make([]decimal.Decimal, len(legs))
	ready := make([]bool, len(legs))
	prices := make([]decimal.Decimal, len(legs))

	var samples []models.NetPremiumSample
	for _, ts := range timestamps {
		var volume int64
		allReady := true

		for i := range legs {
			if c, ok := series[i][ts]; ok {
				last[i] = decimal.NewFromFloat(c.Close)
				ready[i] = true
				volume += c.Volume
			}
			if !ready[i] {
				allReady = false
			}
		}

		if !allReady {
			continue
		}

		copy(prices, last)
		samples = append(samples, models.NetPremiumSample{
			Timestamp:  ts,
			NetPremium: NetPremium(legs, prices),
			Volume:     volume,
		})
	}
	return samples
}

// aggregateSkip keeps only timestamps where every leg printed.
func (e *Engine) aggregateSkip(legs []models.StrategyLeg, series []map[time.Time]models.Candle, timestamps []time.Time) []models.NetPremiumSample {
	prices := make([]decimal.Decimal, len(legs))

	var samples []models.NetPremiumSample
	for _, ts := range timestamps {
		var volume int64
		complete := true

		for i := range legs {
			c, ok := series[i][ts]
			if !ok {
				complete = false
				break
			}
			prices[i] = decimal.NewFromFloat(c.Close)
			volume += c.Volume
		}

		if !complete {
			continue
		}

		samples = append(samples, models.NetPremiumSample{
			Timestamp:  ts,
			NetPremium: NetPremium(legs, prices),
			Volume:     volume,
		})
	}
	return samples
}

// Summarize derives summary statistics from an ordered sample series.
func Summarize(samples []models.NetPremiumSample) *models.BacktestSummary {
	if len(samples) == 0 {
		return &models.BacktestSummary{}
	}

	first := samples[0]
	lastSample := samples[len(samples)-1]

	summary := &models.BacktestSummary{
		SampleCount: len(samples),
		Start:       first.NetPremium,
		End:         lastSample.NetPremium,
		MaxProfit:   first.NetPremium,
		MaxLoss:     first.NetPremium,
	}

	for _, s := range samples {
		if s.NetPremium.GreaterThan(summary.MaxProfit) {
			summary.MaxProfit = s.NetPremium
		}
		if s.NetPremium.LessThan(summary.MaxLoss) {
			summary.MaxLoss = s.NetPremium
		}
		if s.NetPremium.IsPositive() {
			summary.ProfitableSamples++
		} else if s.NetPremium.IsNegative() {
			summary.LosingSamples++
		}
	}

	summary.TotalPnL = summary.End.Sub(summary.Start)
	summary.WinRate = float64(summary.ProfitableSamples) / float64(len(samples)) * 100
	summary.Duration = lastSample.Timestamp.Sub(first.Timestamp)
	summary.DurationMinutes = int(summary.Duration / time.Minute)

	return summary
}
