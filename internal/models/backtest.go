package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus is the lifecycle state of a backtest run. A run starts as
// running and makes exactly one transition, to completed or failed.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// BacktestRun is a single historical replay of a strategy over one
// trading day.
type BacktestRun struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"user_id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	BacktestDate    time.Time        `json:"backtest_date"`
	Legs            []StrategyLeg    `json:"legs"`
	Status          RunStatus        `json:"status"`
	Error           string           `json:"error,omitempty"`
	NetPremiumStart *decimal.Decimal `json:"net_premium_start,omitempty"`
	NetPremiumEnd   *decimal.Decimal `json:"net_premium_end,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// NetPremiumSample is one aggregated net-premium observation. Samples
// for a run are ordered by strictly increasing timestamp and all fall
// on the run's backtest date.
type NetPremiumSample struct {
	Timestamp  time.Time       `json:"timestamp"`
	NetPremium decimal.Decimal `json:"net_premium"`
	Volume     int64           `json:"volume,omitempty"`
}

// BacktestSummary holds statistics derived from a completed run's
// samples. TotalPnL is end minus start; WinRate is the percentage of
// samples with positive net premium.
type BacktestSummary struct {
	SampleCount       int             `json:"sample_count"`
	Start             decimal.Decimal `json:"net_premium_start"`
	End               decimal.Decimal `json:"net_premium_end"`
	TotalPnL          decimal.Decimal `json:"total_pnl"`
	MaxProfit         decimal.Decimal `json:"max_profit"`
	MaxLoss           decimal.Decimal `json:"max_loss"`
	ProfitableSamples int             `json:"profitable_samples"`
	LosingSamples     int             `json:"losing_samples"`
	WinRate           float64         `json:"win_rate"`
	Duration          time.Duration   `json:"-"`
	DurationMinutes   int             `json:"duration_minutes"`
}
