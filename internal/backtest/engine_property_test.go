package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"options-desk/internal/models"
	"options-desk/pkg/utils"
)

// Feature: net premium aggregation, Property 1: Sample ordering
//
// Property: For any set of legs and minute data, the aggregated sample
// timestamps are strictly increasing and all fall on the requested
// calendar day.
func TestProperty_SamplesStrictlyIncreasingOnDate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("samples are strictly increasing and on the date", prop.ForAll(
		func(legCount, minuteCount int, basePrice float64, policyPick bool) bool {
			legs, source := buildRandomStrategy(legCount, minuteCount, basePrice)

			policy := PolicyCarryForward
			if policyPick {
				policy = PolicySkip
			}

			engine := NewEngine(source, policy, zerolog.Nop())
			samples, err := engine.Run(context.Background(), legs, testDate)
			if err != nil {
				t.Logf("Run failed: %v", err)
				return false
			}

			for i, s := range samples {
				if !utils.SameMarketDay(s.Timestamp, testDate) {
					t.Logf("sample %d off date: %s", i, s.Timestamp)
					return false
				}
				if i > 0 && !samples[i-1].Timestamp.Before(s.Timestamp) {
					t.Logf("timestamps not strictly increasing at %d: %s then %s",
						i, samples[i-1].Timestamp, s.Timestamp)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 60),
		gen.Float64Range(1.0, 500.0),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Feature: net premium aggregation, Property 2: Action symmetry
//
// Property: Flipping every leg from Buy to Sell (and vice versa)
// negates every sample's net premium.
func TestProperty_ActionFlipNegatesPremium(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("flipping actions negates net premium", prop.ForAll(
		func(legCount, minuteCount int, basePrice float64) bool {
			legs, source := buildRandomStrategy(legCount, minuteCount, basePrice)

			flipped := make([]models.StrategyLeg, len(legs))
			copy(flipped, legs)
			for i := range flipped {
				if flipped[i].Action == models.ActionBuy {
					flipped[i].Action = models.ActionSell
				} else {
					flipped[i].Action = models.ActionBuy
				}
			}

			engine := NewEngine(source, PolicyCarryForward, zerolog.Nop())
			original, err := engine.Run(context.Background(), legs, testDate)
			if err != nil {
				return false
			}
			mirrored, err := engine.Run(context.Background(), flipped, testDate)
			if err != nil {
				return false
			}

			if len(original) != len(mirrored) {
				return false
			}
			for i := range original {
				if !original[i].NetPremium.Neg().Equal(mirrored[i].NetPremium) {
					t.Logf("sample %d: %s vs %s", i, original[i].NetPremium, mirrored[i].NetPremium)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 60),
		gen.Float64Range(1.0, 500.0),
	))

	properties.TestingRun(t)
}

// buildRandomStrategy creates legs at distinct strikes with minute
// candles derived deterministically from the inputs. Every leg gets a
// candle at the session open so both policies produce samples.
func buildRandomStrategy(legCount, minuteCount int, basePrice float64) ([]models.StrategyLeg, *fakeSource) {
	source := newFakeSource()
	legs := make([]models.StrategyLeg, legCount)

	for i := 0; i < legCount; i++ {
		action := models.ActionBuy
		if i%2 == 1 {
			action = models.ActionSell
		}
		optType := models.OptionCall
		if i%3 == 2 {
			optType = models.OptionPut
		}

		legs[i] = models.StrategyLeg{
			IndexName:  models.IndexNifty,
			Strike:     24000 + float64(i)*100,
			OptionType: optType,
			Expiry:     testExpiry,
			Action:     action,
			Lots:       i + 1,
		}

		candles := make([]models.Candle, 0, minuteCount)
		for m := 0; m < minuteCount; m++ {
			// Stagger prints across legs, keeping minute zero for all.
			if m > 0 && (m+i)%3 == 0 {
				continue
			}
			price := basePrice + float64(i*10) + float64(m)*0.05
			candles = append(candles, closeCandle(minuteAt(9, 15).Add(time.Duration(m)*time.Minute), price, int64(m+1)))
		}
		source.add(legs[i], candles)
	}

	return legs, source
}
