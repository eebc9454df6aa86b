package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus is the lifecycle status of a market as reported by the
// exchange stream.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "OPEN"
	MarketInactive  MarketStatus = "INACTIVE"
	MarketSuspended MarketStatus = "SUSPENDED"
	MarketClosed    MarketStatus = "CLOSED"
)

// SelectionStatus is the lifecycle status of a single selection (runner).
type SelectionStatus string

const (
	SelectionActive  SelectionStatus = "ACTIVE"
	SelectionRemoved SelectionStatus = "REMOVED"
	SelectionWinner  SelectionStatus = "WINNER"
	SelectionLoser   SelectionStatus = "LOSER"
)

// PricePoint is one (price, size) pair from a ladder. Prices and sizes are
// decimal so that no binary floating point rounding leaks into the persisted
// dataset.
type PricePoint struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// RunnerSnapshot is the point-in-time view of one selection within a market
// snapshot. The back and lay ladders are ordered nearest-to-favourite first;
// traded volume carries no meaningful order.
type RunnerSnapshot struct {
	SelectionID     int64           `json:"selection_id"`
	Status          SelectionStatus `json:"status"`
	AvailableToBack []PricePoint    `json:"available_to_back"`
	AvailableToLay  []PricePoint    `json:"available_to_lay"`
	TradedVolume    []PricePoint    `json:"traded_volume"`
}

// MarketSnapshot is one conflated point-in-time view of the whole market as
// delivered by the upstream stream. Snapshots arrive in non-decreasing
// publish time order and are never retained after their rows are emitted.
type MarketSnapshot struct {
	PublishTime time.Time        `json:"publish_time"`
	Status      MarketStatus     `json:"status"`
	InPlay      bool             `json:"in_play"`
	Runners     []RunnerSnapshot `json:"runners"`
}

// RunnerDefinition maps a selection ID to its display name.
type RunnerDefinition struct {
	SelectionID int64  `json:"selection_id"`
	Name        string `json:"name"`
}

// MarketDefinition is the static market metadata resolved once before
// streaming starts: event and market naming for the output file slug plus
// the selection directory.
type MarketDefinition struct {
	MarketID        string             `json:"market_id"`
	EventType       string             `json:"event_type"`
	EventName       string             `json:"event_name"`
	CompetitionName string             `json:"competition_name"`
	MarketName      string             `json:"market_name"`
	StartTime       time.Time          `json:"start_time"`
	Runners         []RunnerDefinition `json:"runners"`
}
