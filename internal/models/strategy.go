package models

import (
	"fmt"
	"time"
)

// LegAction is the direction of an option leg.
type LegAction string

const (
	ActionBuy  LegAction = "Buy"
	ActionSell LegAction = "Sell"
)

// Valid reports whether the action is Buy or Sell.
func (a LegAction) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Sign returns the net-premium sign convention for the action.
// A bought leg is a debit and reduces net premium; a sold leg is a
// credit and increases it.
func (a LegAction) Sign() int {
	if a == ActionBuy {
		return -1
	}
	return 1
}

// StrategyLeg is one option contract position within a strategy.
// Legs are immutable once a backtest run has started.
type StrategyLeg struct {
	ID         int64      `json:"id,omitempty"`
	IndexName  IndexName  `json:"index_name"`
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	Expiry     time.Time  `json:"expiry"`
	Action     LegAction  `json:"action"`
	Lots       int        `json:"lots"`
}

// Validate checks the leg for malformed fields. Malformed legs are
// rejected before a run is created.
func (l StrategyLeg) Validate() error {
	if !l.IndexName.Valid() {
		return fmt.Errorf("index_name must be NIFTY or SENSEX, got %q", l.IndexName)
	}
	if l.Strike <= 0 {
		return fmt.Errorf("strike must be positive, got %v", l.Strike)
	}
	if !l.OptionType.Valid() {
		return fmt.Errorf("option_type must be CE or PE, got %q", l.OptionType)
	}
	if l.Expiry.IsZero() {
		return fmt.Errorf("expiry is required")
	}
	if !l.Action.Valid() {
		return fmt.Errorf("action must be Buy or Sell, got %q", l.Action)
	}
	if l.Lots < 1 {
		return fmt.Errorf("lots must be at least 1, got %d", l.Lots)
	}
	return nil
}

// Quantity returns the total contract quantity for the leg.
func (l StrategyLeg) Quantity() int {
	return l.Lots * l.IndexName.LotSize()
}

// User is a registered dashboard user.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Portfolio groups option legs for a user.
type Portfolio struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LegCount    int       `json:"option_legs_count"`
}

// PortfolioLeg is a saved option leg within a portfolio.
type PortfolioLeg struct {
	ID          int64      `json:"id"`
	PortfolioID int64      `json:"portfolio_id"`
	IndexName   IndexName  `json:"index_name"`
	Strike      float64    `json:"strike"`
	OptionType  OptionType `json:"option_type"`
	Expiry      time.Time  `json:"expiry"`
	Action      LegAction  `json:"action"`
	Lots        int        `json:"lots"`
	SavedAt     time.Time  `json:"saved_at"`
}

// Leg converts the portfolio leg to a strategy leg.
func (p PortfolioLeg) Leg() StrategyLeg {
	return StrategyLeg{
		ID:         p.ID,
		IndexName:  p.IndexName,
		Strike:     p.Strike,
		OptionType: p.OptionType,
		Expiry:     p.Expiry,
		Action:     p.Action,
		Lots:       p.Lots,
	}
}

// Validate checks the portfolio leg fields.
func (p PortfolioLeg) Validate() error {
	return p.Leg().Validate()
}
