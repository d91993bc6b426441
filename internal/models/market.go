// Package models defines the core domain types for the options desk.
package models

import "time"

// IndexName identifies a supported index.
type IndexName string

const (
	IndexNifty  IndexName = "NIFTY"
	IndexSensex IndexName = "SENSEX"
)

// Valid reports whether the index name is one of the supported indexes.
func (i IndexName) Valid() bool {
	return i == IndexNifty || i == IndexSensex
}

// LotSize returns the contract multiplier for the index.
func (i IndexName) LotSize() int {
	switch i {
	case IndexNifty:
		return 75
	case IndexSensex:
		return 20
	default:
		return 0
	}
}

// SpotSymbol returns the exchange symbol of the underlying index.
func (i IndexName) SpotSymbol() string {
	switch i {
	case IndexNifty:
		return "NIFTY 50"
	case IndexSensex:
		return "SENSEX"
	default:
		return string(i)
	}
}

// OptionType identifies the option contract type.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Valid reports whether the option type is CE or PE.
func (o OptionType) Valid() bool {
	return o == OptionCall || o == OptionPut
}

// Candle represents a single OHLCV bar of market data.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Tick represents a real-time market data tick.
type Tick struct {
	Symbol       string
	Token        uint32
	LTP          float64
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
	BuyQuantity  int64
	SellQuantity int64
	Timestamp    time.Time
}

// LivePrice is the latest known price for a symbol, as fed by the ticker.
type LivePrice struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// Instrument represents a tradeable contract from the broker's instrument dump.
type Instrument struct {
	Token      uint32
	Symbol     string
	Name       string
	Exchange   string
	Segment    string
	Strike     float64
	OptionType OptionType
	Expiry     time.Time
}

// MarketStatus represents the current market session state.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)
