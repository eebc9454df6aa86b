package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRowTimeRoundTrip(t *testing.T) {
	original := NewRowTime(time.Date(2023, 5, 1, 14, 30, 0, 123456000, time.UTC))

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2023-05-01 14:30:00.123456"` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var decoded RowTime
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(original.Time) {
		t.Fatalf("round trip mismatch: %v != %v", decoded.Time, original.Time)
	}
}

func TestRowTimeRejectsUnparseable(t *testing.T) {
	cases := []string{
		`"2023-05-01T14:30:00Z"`,
		`"not a time"`,
		`42`,
	}
	for _, c := range cases {
		var rt RowTime
		if err := json.Unmarshal([]byte(c), &rt); err == nil {
			t.Fatalf("expected error for %s", c)
		}
	}
}

func TestLadderRowPriceKey(t *testing.T) {
	row := LadderRow{Price: decimal.NewFromFloat(2.5)}
	if row.PriceKey() != "2.50" {
		t.Fatalf("expected 2.50, got %s", row.PriceKey())
	}
}

func TestSnapshotFacetsRowCount(t *testing.T) {
	facets := SnapshotFacets{
		SelectionStatuses: make([]SelectionStatusRow, 2),
		AvailableToBack:   make([]LadderRow, 3),
		AvailableToLay:    make([]LadderRow, 1),
		TradedVolume:      make([]LadderRow, 4),
	}
	if got := facets.RowCount(); got != 11 {
		t.Fatalf("expected 11 rows, got %d", got)
	}
}
