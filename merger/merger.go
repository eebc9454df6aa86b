// Package merger reshapes the five persisted facets of one recorded market
// into a single denormalized, time-ordered table.
package merger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FilippoBovo/betfair-data/logger"
	"github.com/FilippoBovo/betfair-data/models"
	"github.com/FilippoBovo/betfair-data/writer"
)

// MarketData holds the five loaded facet tables.
type MarketData struct {
	MarketStatus    []models.MarketStatusRow
	SelectionStatus []models.SelectionStatusRow
	AvailableToBack []models.LadderRow
	AvailableToLay  []models.LadderRow
	TradedVolume    []models.LadderRow
}

// MergedRow is one observed price level for one selection at one point in
// time. Counterpart columns with no observation at that exact key stay nil;
// absence is never conflated with a quoted size of zero.
type MergedRow struct {
	DateTime        time.Time
	Selection       string
	Price           decimal.Decimal
	BackSize        *decimal.Decimal
	LaySize         *decimal.Decimal
	TradedSize      *decimal.Decimal
	SelectionStatus *models.SelectionStatus
	MarketStatus    *models.MarketStatus
	InPlay          *bool
}

// Load reads all five facets from a facet store. A store without a single
// market_status row is not a recorded market and fails the load.
func Load(store *writer.FacetStore) (*MarketData, error) {
	log := logger.GetLogger().WithComponent("merger")

	marketStatus, err := store.MarketStatusRows()
	if err != nil {
		return nil, err
	}
	if len(marketStatus) == 0 {
		return nil, fmt.Errorf("market_status facet is empty, dataset is not a recorded market")
	}

	selectionStatus, err := store.SelectionStatusRows()
	if err != nil {
		return nil, err
	}
	availableToBack, err := store.LadderRows(models.FacetAvailableToBack)
	if err != nil {
		return nil, err
	}
	availableToLay, err := store.LadderRows(models.FacetAvailableToLay)
	if err != nil {
		return nil, err
	}
	tradedVolume, err := store.LadderRows(models.FacetTradedVolume)
	if err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"market_status_rows":     len(marketStatus),
		"selection_status_rows":  len(selectionStatus),
		"available_to_back_rows": len(availableToBack),
		"available_to_lay_rows":  len(availableToLay),
		"traded_volume_rows":     len(tradedVolume),
	}).Info("facet tables loaded")

	return &MarketData{
		MarketStatus:    marketStatus,
		SelectionStatus: selectionStatus,
		AvailableToBack: availableToBack,
		AvailableToLay:  availableToLay,
		TradedVolume:    tradedVolume,
	}, nil
}

// priceLevelKey joins the three ladder facets.
type priceLevelKey struct {
	dateTime  int64 // unix microseconds
	selection string
	price     string
}

// statusKey joins selection_status against price levels.
type statusKey struct {
	dateTime  int64
	selection string
}

func keyOf(row models.LadderRow) priceLevelKey {
	return priceLevelKey{
		dateTime:  row.DateTime.UTC().UnixMicro(),
		selection: row.Selection,
		price:     row.PriceKey(),
	}
}

// Merge joins the five facets into one table:
// the three ladder facets are outer-joined on (date_time, selection, price)
// so a price level present in only one facet survives with nil counterparts;
// selection_status is left-joined on (date_time, selection) and
// market_status on date_time alone, so no price row is ever dropped for a
// missing status tick. The result is sorted ascending by
// (date_time, selection, price).
func Merge(data *MarketData) []MergedRow {
	log := logger.GetLogger().WithComponent("merger")

	backSizes := make(map[priceLevelKey]decimal.Decimal, len(data.AvailableToBack))
	laySizes := make(map[priceLevelKey]decimal.Decimal, len(data.AvailableToLay))
	tradedSizes := make(map[priceLevelKey]decimal.Decimal, len(data.TradedVolume))

	merged := make(map[priceLevelKey]*MergedRow)
	addLevel := func(row models.LadderRow) {
		key := keyOf(row)
		if _, ok := merged[key]; !ok {
			merged[key] = &MergedRow{
				DateTime:  row.DateTime.UTC(),
				Selection: row.Selection,
				Price:     row.Price,
			}
		}
	}

	for _, row := range data.AvailableToBack {
		backSizes[keyOf(row)] = row.Size
		addLevel(row)
	}
	for _, row := range data.AvailableToLay {
		laySizes[keyOf(row)] = row.Size
		addLevel(row)
	}
	for _, row := range data.TradedVolume {
		tradedSizes[keyOf(row)] = row.Size
		addLevel(row)
	}

	selectionStatuses := make(map[statusKey]models.SelectionStatus, len(data.SelectionStatus))
	for _, row := range data.SelectionStatus {
		selectionStatuses[statusKey{
			dateTime:  row.DateTime.UTC().UnixMicro(),
			selection: row.Selection,
		}] = row.Status
	}

	marketStatuses := make(map[int64]models.MarketStatusRow, len(data.MarketStatus))
	for _, row := range data.MarketStatus {
		marketStatuses[row.DateTime.UTC().UnixMicro()] = row
	}

	rows := make([]MergedRow, 0, len(merged))
	for key, row := range merged {
		if size, ok := backSizes[key]; ok {
			s := size
			row.BackSize = &s
		}
		if size, ok := laySizes[key]; ok {
			s := size
			row.LaySize = &s
		}
		if size, ok := tradedSizes[key]; ok {
			s := size
			row.TradedSize = &s
		}
		if status, ok := selectionStatuses[statusKey{dateTime: key.dateTime, selection: key.selection}]; ok {
			s := status
			row.SelectionStatus = &s
		}
		if status, ok := marketStatuses[key.dateTime]; ok {
			s := status.Status
			inplay := status.InPlay
			row.MarketStatus = &s
			row.InPlay = &inplay
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.DateTime.Equal(b.DateTime) {
			return a.DateTime.Before(b.DateTime)
		}
		if a.Selection != b.Selection {
			return a.Selection < b.Selection
		}
		return a.Price.Cmp(b.Price) < 0
	})

	log.WithFields(logger.Fields{"merged_rows": len(rows)}).Info("facets merged")
	return rows
}
