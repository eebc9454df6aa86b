package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FilippoBovo/betfair-data/catalogue"
	"github.com/FilippoBovo/betfair-data/models"
)

var testPublishTime = time.Date(2023, 6, 1, 14, 0, 0, 500000000, time.UTC)

func testDirectory() *catalogue.SelectionDirectory {
	return catalogue.NewSelectionDirectory([]models.RunnerDefinition{
		{SelectionID: 101, Name: "Horse A"},
		{SelectionID: 102, Name: "Horse B"},
	})
}

func point(price, size float64) models.PricePoint {
	return models.PricePoint{
		Price: decimal.NewFromFloat(price),
		Size:  decimal.NewFromFloat(size),
	}
}

func TestFlattenCardinality(t *testing.T) {
	snapshot := models.MarketSnapshot{
		PublishTime: testPublishTime,
		Status:      models.MarketOpen,
		InPlay:      false,
		Runners: []models.RunnerSnapshot{
			{
				SelectionID:     101,
				Status:          models.SelectionActive,
				AvailableToBack: []models.PricePoint{point(2.0, 100), point(1.95, 40)},
				AvailableToLay:  []models.PricePoint{point(2.1, 50)},
				TradedVolume:    []models.PricePoint{point(2.0, 500)},
			},
			{
				SelectionID: 102,
				Status:      models.SelectionActive,
			},
		},
	}

	facets, err := NewFlattener(testDirectory()).Flatten(snapshot)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}

	if facets.MarketStatus.Status != models.MarketOpen || facets.MarketStatus.InPlay {
		t.Fatalf("unexpected market status row: %+v", facets.MarketStatus)
	}
	if len(facets.SelectionStatuses) != 2 {
		t.Fatalf("expected one selection_status row per runner, got %d", len(facets.SelectionStatuses))
	}
	if len(facets.AvailableToBack) != 2 {
		t.Fatalf("expected 2 back rows, got %d", len(facets.AvailableToBack))
	}
	if len(facets.AvailableToLay) != 1 {
		t.Fatalf("expected 1 lay row, got %d", len(facets.AvailableToLay))
	}
	if len(facets.TradedVolume) != 1 {
		t.Fatalf("expected 1 traded row, got %d", len(facets.TradedVolume))
	}
	if facets.AvailableToBack[0].Selection != "Horse A" {
		t.Fatalf("expected resolved selection name, got %s", facets.AvailableToBack[0].Selection)
	}
}

func TestFlattenDropsZeroPrices(t *testing.T) {
	snapshot := models.MarketSnapshot{
		PublishTime: testPublishTime,
		Status:      models.MarketOpen,
		Runners: []models.RunnerSnapshot{
			{
				SelectionID:     101,
				Status:          models.SelectionActive,
				AvailableToBack: []models.PricePoint{point(0, 100), point(2.0, 100)},
				AvailableToLay:  []models.PricePoint{point(0, 0)},
				TradedVolume:    []models.PricePoint{point(0, 12)},
			},
		},
	}

	facets, err := NewFlattener(testDirectory()).Flatten(snapshot)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}

	for _, rows := range [][]models.LadderRow{facets.AvailableToBack, facets.AvailableToLay, facets.TradedVolume} {
		for _, row := range rows {
			if row.Price.IsZero() {
				t.Fatalf("zero price row emitted: %+v", row)
			}
		}
	}
	if len(facets.AvailableToBack) != 1 {
		t.Fatalf("expected 1 back row, got %d", len(facets.AvailableToBack))
	}
	if len(facets.AvailableToLay) != 0 || len(facets.TradedVolume) != 0 {
		t.Fatal("expected zero-price ladders to be empty")
	}
}

func TestFlattenSkipsMalformedPricePoints(t *testing.T) {
	snapshot := models.MarketSnapshot{
		PublishTime: testPublishTime,
		Status:      models.MarketOpen,
		Runners: []models.RunnerSnapshot{
			{
				SelectionID: 101,
				Status:      models.SelectionActive,
				AvailableToBack: []models.PricePoint{
					point(-2.0, 100), // negative price
					point(2.0, -10),  // negative size
					point(2.2, 0),    // price with no size
					point(2.4, 25),   // well formed
				},
			},
		},
	}

	flattener := NewFlattener(testDirectory())
	facets, err := flattener.Flatten(snapshot)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}

	if len(facets.AvailableToBack) != 1 {
		t.Fatalf("expected only the well formed row, got %d", len(facets.AvailableToBack))
	}
	if facets.AvailableToBack[0].PriceKey() != "2.40" {
		t.Fatalf("unexpected surviving row: %+v", facets.AvailableToBack[0])
	}
	if _, _, skipped := flattener.Stats(); skipped != 3 {
		t.Fatalf("expected 3 skipped rows, got %d", skipped)
	}
}

func TestFlattenFirstDuplicatePriceWins(t *testing.T) {
	snapshot := models.MarketSnapshot{
		PublishTime: testPublishTime,
		Status:      models.MarketOpen,
		Runners: []models.RunnerSnapshot{
			{
				SelectionID: 101,
				Status:      models.SelectionActive,
				AvailableToBack: []models.PricePoint{
					point(2.0, 100),
					point(2.0, 999),
				},
			},
		},
	}

	facets, err := NewFlattener(testDirectory()).Flatten(snapshot)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}

	if len(facets.AvailableToBack) != 1 {
		t.Fatalf("expected 1 back row, got %d", len(facets.AvailableToBack))
	}
	if !facets.AvailableToBack[0].Size.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected first occurrence to win, got size %s", facets.AvailableToBack[0].Size)
	}
}

func TestFlattenUnknownSelectionIsFatal(t *testing.T) {
	snapshot := models.MarketSnapshot{
		PublishTime: testPublishTime,
		Status:      models.MarketOpen,
		Runners: []models.RunnerSnapshot{
			{SelectionID: 999, Status: models.SelectionActive},
		},
	}

	_, err := NewFlattener(testDirectory()).Flatten(snapshot)
	if !errors.Is(err, catalogue.ErrUnknownSelection) {
		t.Fatalf("expected ErrUnknownSelection, got %v", err)
	}
}
