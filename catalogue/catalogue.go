// Package catalogue holds the static market metadata resolved once before
// streaming starts: the selection directory and the naming information used
// to derive the output dataset name.
package catalogue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FilippoBovo/betfair-data/models"
)

// ErrUnknownSelection is returned when a snapshot references a selection ID
// that the market definition never declared. It signals a metadata/stream
// mismatch and makes all subsequent normalization untrustworthy.
var ErrUnknownSelection = errors.New("unknown selection id")

// SelectionDirectory maps selection IDs to display names. It is built once
// and read-only for the duration of a run.
type SelectionDirectory struct {
	names map[int64]string
}

// NewSelectionDirectory builds a directory from the runners of a market
// definition.
func NewSelectionDirectory(runners []models.RunnerDefinition) *SelectionDirectory {
	names := make(map[int64]string, len(runners))
	for _, r := range runners {
		names[r.SelectionID] = r.Name
	}
	return &SelectionDirectory{names: names}
}

// NameOf resolves a selection ID to its display name.
func (d *SelectionDirectory) NameOf(selectionID int64) (string, error) {
	name, ok := d.names[selectionID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownSelection, selectionID)
	}
	return name, nil
}

// Len returns the number of selections in the directory.
func (d *SelectionDirectory) Len() int {
	return len(d.names)
}

// MarketInfo is the naming information of the recorded market.
type MarketInfo struct {
	EventType   string
	EventName   string
	Competition string
	MarketName  string
	StartTime   time.Time
}

// MarketInfoFromDefinition extracts the naming information from a market
// definition. Markets without a competition fall back to a fixed
// placeholder so the slug stays well formed.
func MarketInfoFromDefinition(def models.MarketDefinition) MarketInfo {
	competition := def.CompetitionName
	if competition == "" {
		competition = "Unknown-Competition"
	}
	return MarketInfo{
		EventType:   def.EventType,
		EventName:   def.EventName,
		Competition: competition,
		MarketName:  def.MarketName,
		StartTime:   def.StartTime,
	}
}

// Slug builds the base name of the persisted dataset by concatenating the
// event type, event name, competition, market name and start time, with
// path-unsafe characters replaced.
func (m MarketInfo) Slug() string {
	parts := []string{
		sanitize(m.EventType),
		sanitize(m.EventName),
		sanitize(m.Competition),
		sanitize(m.MarketName),
		m.StartTime.UTC().Format("2006-01-02T15-04-05"),
	}
	return strings.Join(parts, "_")
}

var pathUnsafe = strings.NewReplacer(" ", "-", "/", "-", "\\", "-", ":", "-")

func sanitize(s string) string {
	return pathUnsafe.Replace(s)
}
