package processor

import (
	"fmt"

	"github.com/FilippoBovo/betfair-data/catalogue"
	"github.com/FilippoBovo/betfair-data/logger"
	"github.com/FilippoBovo/betfair-data/models"
)

// Flattener normalizes one market snapshot into the five facet row sets.
// It performs no I/O and never blocks; the only failure mode is a selection
// ID missing from the directory, which poisons the whole run.
type Flattener struct {
	directory *catalogue.SelectionDirectory
	log       *logger.Log

	// Metrics
	snapshotsFlattened int64
	rowsEmitted        int64
	rowsSkipped        int64
}

func NewFlattener(directory *catalogue.SelectionDirectory) *Flattener {
	return &Flattener{
		directory: directory,
		log:       logger.GetLogger(),
	}
}

// Flatten turns a market snapshot into facet rows. Exactly one market_status
// row and one selection_status row per runner are emitted; ladder pairs with
// a zero price are dropped, malformed pairs and duplicate prices are skipped
// with a diagnostic.
func (f *Flattener) Flatten(snapshot models.MarketSnapshot) (models.SnapshotFacets, error) {
	dateTime := models.NewRowTime(snapshot.PublishTime)

	facets := models.SnapshotFacets{
		MarketStatus: models.MarketStatusRow{
			DateTime: dateTime,
			Status:   snapshot.Status,
			InPlay:   snapshot.InPlay,
		},
	}

	for _, runner := range snapshot.Runners {
		selection, err := f.directory.NameOf(runner.SelectionID)
		if err != nil {
			return models.SnapshotFacets{}, fmt.Errorf("failed to resolve selection name: %w", err)
		}

		facets.SelectionStatuses = append(facets.SelectionStatuses, models.SelectionStatusRow{
			DateTime:  dateTime,
			Selection: selection,
			Status:    runner.Status,
		})

		facets.AvailableToBack = f.flattenLadder(
			models.FacetAvailableToBack, dateTime, selection, runner.AvailableToBack, facets.AvailableToBack,
		)
		facets.AvailableToLay = f.flattenLadder(
			models.FacetAvailableToLay, dateTime, selection, runner.AvailableToLay, facets.AvailableToLay,
		)
		facets.TradedVolume = f.flattenLadder(
			models.FacetTradedVolume, dateTime, selection, runner.TradedVolume, facets.TradedVolume,
		)
	}

	f.snapshotsFlattened++
	f.rowsEmitted += int64(facets.RowCount())

	return facets, nil
}

func (f *Flattener) flattenLadder(facet models.Facet, dateTime models.RowTime, selection string, points []models.PricePoint, rows []models.LadderRow) []models.LadderRow {
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		// A zero price carries no quote at that depth.
		if p.Price.IsZero() {
			continue
		}

		if p.Price.IsNegative() || p.Size.IsNegative() || p.Size.IsZero() {
			f.rowsSkipped++
			f.log.WithComponent("flattener").WithFields(logger.Fields{
				"facet":     string(facet),
				"selection": selection,
				"price":     p.Price.String(),
				"size":      p.Size.String(),
			}).Warn("skipping malformed price point")
			continue
		}

		row := models.LadderRow{
			DateTime:  dateTime,
			Selection: selection,
			Price:     p.Price,
			Size:      p.Size,
		}

		// Duplicate prices within one snapshot would violate the facet key;
		// the first occurrence wins.
		if _, dup := seen[row.PriceKey()]; dup {
			f.rowsSkipped++
			f.log.WithComponent("flattener").WithFields(logger.Fields{
				"facet":     string(facet),
				"selection": selection,
				"price":     row.PriceKey(),
			}).Warn("skipping duplicate price level")
			continue
		}
		seen[row.PriceKey()] = struct{}{}

		rows = append(rows, row)
	}
	return rows
}

// Stats returns the counts of snapshots flattened, rows emitted and rows
// skipped so far.
func (f *Flattener) Stats() (snapshots, emitted, skipped int64) {
	return f.snapshotsFlattened, f.rowsEmitted, f.rowsSkipped
}
