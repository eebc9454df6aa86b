package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the canonical on-disk representation of row timestamps:
// fixed width, microsecond precision, UTC, lexicographically sortable.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Facet identifies one of the five normalized row kinds.
type Facet string

const (
	FacetMarketStatus    Facet = "market_status"
	FacetSelectionStatus Facet = "selection_status"
	FacetAvailableToBack Facet = "available_to_back"
	FacetAvailableToLay  Facet = "available_to_lay"
	FacetTradedVolume    Facet = "traded_volume"
)

// Facets lists all facet identifiers in their canonical order.
var Facets = []Facet{
	FacetMarketStatus,
	FacetSelectionStatus,
	FacetAvailableToBack,
	FacetAvailableToLay,
	FacetTradedVolume,
}

// RowTime is a timestamp that marshals to TimeLayout. Parsing is strict so
// that a corrupted persisted dataset fails the merger load instead of
// producing silently shifted rows.
type RowTime struct {
	time.Time
}

func NewRowTime(t time.Time) RowTime {
	return RowTime{Time: t.UTC()}
}

func (t RowTime) Key() string {
	return t.UTC().Format(TimeLayout)
}

func (t RowTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Key())
}

func (t *RowTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("row time is not a string: %w", err)
	}
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse row time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarketStatusRow is one row of the market_status facet, keyed by date_time.
type MarketStatusRow struct {
	DateTime RowTime      `json:"date_time"`
	Status   MarketStatus `json:"status"`
	InPlay   bool         `json:"inplay"`
}

// SelectionStatusRow is one row of the selection_status facet, keyed by
// (date_time, selection).
type SelectionStatusRow struct {
	DateTime  RowTime         `json:"date_time"`
	Selection string          `json:"selection"`
	Status    SelectionStatus `json:"status"`
}

// LadderRow is one row of the available_to_back, available_to_lay or
// traded_volume facets, keyed by (date_time, selection, price).
type LadderRow struct {
	DateTime  RowTime         `json:"date_time"`
	Selection string          `json:"selection"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
}

// PriceKey is the price formatted the way it is persisted, with exactly two
// fractional digits.
func (r LadderRow) PriceKey() string {
	return r.Price.StringFixed(2)
}

// SnapshotFacets is the five-way partition of one normalized market
// snapshot. It is the unit the flattener emits and the facet store commits
// atomically.
type SnapshotFacets struct {
	MarketStatus      MarketStatusRow
	SelectionStatuses []SelectionStatusRow
	AvailableToBack   []LadderRow
	AvailableToLay    []LadderRow
	TradedVolume      []LadderRow
}

// RowCount returns the total number of rows across all five facets.
func (f SnapshotFacets) RowCount() int {
	return 1 + len(f.SelectionStatuses) +
		len(f.AvailableToBack) + len(f.AvailableToLay) + len(f.TradedVolume)
}
