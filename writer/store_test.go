package writer

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FilippoBovo/betfair-data/models"
)

func snapshotFacets(sec int, selections ...string) models.SnapshotFacets {
	dateTime := models.NewRowTime(time.Date(2023, 6, 1, 14, 0, sec, 123456000, time.UTC))

	facets := models.SnapshotFacets{
		MarketStatus: models.MarketStatusRow{
			DateTime: dateTime,
			Status:   models.MarketOpen,
			InPlay:   false,
		},
	}
	for _, selection := range selections {
		facets.SelectionStatuses = append(facets.SelectionStatuses, models.SelectionStatusRow{
			DateTime:  dateTime,
			Selection: selection,
			Status:    models.SelectionActive,
		})
		facets.AvailableToBack = append(facets.AvailableToBack, models.LadderRow{
			DateTime:  dateTime,
			Selection: selection,
			Price:     decimal.NewFromFloat(2.0),
			Size:      decimal.NewFromFloat(100),
		})
		facets.AvailableToLay = append(facets.AvailableToLay, models.LadderRow{
			DateTime:  dateTime,
			Selection: selection,
			Price:     decimal.NewFromFloat(2.1),
			Size:      decimal.NewFromFloat(50),
		})
		facets.TradedVolume = append(facets.TradedVolume, models.LadderRow{
			DateTime:  dateTime,
			Selection: selection,
			Price:     decimal.NewFromFloat(2.0),
			Size:      decimal.NewFromFloat(500),
		})
	}
	return facets
}

func TestStoreAppendAndReadBack(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "market.facets")

	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	first := snapshotFacets(0, "Horse A", "Horse B")
	second := snapshotFacets(1, "Horse A", "Horse B")
	for _, facets := range []models.SnapshotFacets{first, second} {
		if err := store.Append(facets); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if store.RowsAppended() != int64(first.RowCount()+second.RowCount()) {
		t.Fatalf("unexpected rows appended: %d", store.RowsAppended())
	}
	if !store.LastCommitted().Equal(second.MarketStatus.DateTime.Time) {
		t.Fatalf("unexpected last committed time: %v", store.LastCommitted())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = OpenStoreReadOnly(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	marketRows, err := store.MarketStatusRows()
	if err != nil {
		t.Fatalf("market status rows: %v", err)
	}
	if len(marketRows) != 2 {
		t.Fatalf("expected 2 market_status rows, got %d", len(marketRows))
	}
	if marketRows[0].Status != models.MarketOpen {
		t.Fatalf("unexpected market status: %s", marketRows[0].Status)
	}

	selectionRows, err := store.SelectionStatusRows()
	if err != nil {
		t.Fatalf("selection status rows: %v", err)
	}
	if len(selectionRows) != 4 {
		t.Fatalf("expected 4 selection_status rows, got %d", len(selectionRows))
	}

	for _, facet := range []models.Facet{models.FacetAvailableToBack, models.FacetAvailableToLay, models.FacetTradedVolume} {
		rows, err := store.LadderRows(facet)
		if err != nil {
			t.Fatalf("ladder rows %s: %v", facet, err)
		}
		if len(rows) != 4 {
			t.Fatalf("expected 4 %s rows, got %d", facet, len(rows))
		}
	}
}

func TestStoreRejectsDuplicateKeys(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "market.facets"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	facets := snapshotFacets(0, "Horse A")
	if err := store.Append(facets); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(facets); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestStoreAppendIsAtomic(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "market.facets"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	// The duplicate ladder key aborts the transaction, so none of the
	// snapshot's rows may become visible.
	facets := snapshotFacets(0, "Horse A")
	facets.TradedVolume = append(facets.TradedVolume, facets.TradedVolume[0])

	if err := store.Append(facets); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	marketRows, err := store.MarketStatusRows()
	if err != nil {
		t.Fatalf("market status rows: %v", err)
	}
	if len(marketRows) != 0 {
		t.Fatalf("expected rollback to leave no market_status rows, got %d", len(marketRows))
	}
	if store.RowsAppended() != 0 {
		t.Fatalf("expected no rows appended, got %d", store.RowsAppended())
	}
	if !store.LastCommitted().IsZero() {
		t.Fatalf("expected zero last committed time, got %v", store.LastCommitted())
	}
}

func TestStoreRoundTripsRowValues(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "market.facets")

	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	facets := snapshotFacets(0, "Horse A")
	if err := store.Append(facets); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = OpenStoreReadOnly(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	rows, err := store.LadderRows(models.FacetAvailableToBack)
	if err != nil {
		t.Fatalf("ladder rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	want := facets.AvailableToBack[0]
	if !row.DateTime.Time.Equal(want.DateTime.Time) {
		t.Fatalf("date_time changed across round trip: %v != %v", row.DateTime.Time, want.DateTime.Time)
	}
	if row.Selection != want.Selection {
		t.Fatalf("selection changed across round trip: %s", row.Selection)
	}
	if !row.Price.Equal(want.Price) || !row.Size.Equal(want.Size) {
		t.Fatalf("price levels changed across round trip: %+v", row)
	}
}
