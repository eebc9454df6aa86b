package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/FilippoBovo/betfair-data/logger"
	"github.com/FilippoBovo/betfair-data/models"
)

// ErrDuplicateKey is returned when an appended row collides with a key that
// is already persisted. It mirrors a primary-key violation and is fatal for
// the run.
var ErrDuplicateKey = errors.New("duplicate facet key")

// FacetStore persists the five facet row sets in a BadgerDB directory. All
// rows derived from one snapshot are committed in a single transaction, so
// either the full snapshot is durably visible or none of it is. Rows are
// append-only; nothing is updated or deleted during streaming.
type FacetStore struct {
	db  *badger.DB
	log *logger.Log

	rowsAppended  int64
	lastCommitted time.Time
}

// OpenStore creates or opens a facet store at the given directory.
func OpenStore(path string) (*FacetStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open facet store: %w", err)
	}

	log := logger.GetLogger()
	log.WithComponent("facet_store").WithFields(logger.Fields{"path": path}).Info("facet store opened")

	return &FacetStore{db: db, log: log}, nil
}

// OpenStoreReadOnly opens an existing facet store for reading only.
func OpenStoreReadOnly(path string) (*FacetStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithReadOnly(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open facet store: %w", err)
	}
	return &FacetStore{db: db, log: logger.GetLogger()}, nil
}

// Append commits every row of one normalized snapshot atomically.
func (s *FacetStore) Append(facets models.SnapshotFacets) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := marketStatusKey(facets.MarketStatus)
		if err := setRow(txn, key, facets.MarketStatus); err != nil {
			return err
		}

		for _, row := range facets.SelectionStatuses {
			if err := setRow(txn, selectionStatusKey(row), row); err != nil {
				return err
			}
		}
		for _, row := range facets.AvailableToBack {
			if err := setRow(txn, ladderKey(models.FacetAvailableToBack, row), row); err != nil {
				return err
			}
		}
		for _, row := range facets.AvailableToLay {
			if err := setRow(txn, ladderKey(models.FacetAvailableToLay, row), row); err != nil {
				return err
			}
		}
		for _, row := range facets.TradedVolume {
			if err := setRow(txn, ladderKey(models.FacetTradedVolume, row), row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append snapshot facets: %w", err)
	}

	s.rowsAppended += int64(facets.RowCount())
	s.lastCommitted = facets.MarketStatus.DateTime.Time

	s.log.WithComponent("facet_store").WithFields(logger.Fields{
		"date_time": facets.MarketStatus.DateTime.Key(),
		"rows":      facets.RowCount(),
	}).Debug("snapshot facets committed")

	return nil
}

// setRow writes one row, rejecting keys that already exist.
func setRow(txn *badger.Txn, key string, row interface{}) error {
	switch _, err := txn.Get([]byte(key)); {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	case !errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("failed to check key %s: %w", key, err)
	}

	value, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row %s: %w", key, err)
	}
	return txn.Set([]byte(key), value)
}

// RowsAppended returns the total number of rows committed so far.
func (s *FacetStore) RowsAppended() int64 {
	return s.rowsAppended
}

// LastCommitted returns the publish time of the last fully committed
// snapshot, or the zero time when nothing has been committed.
func (s *FacetStore) LastCommitted() time.Time {
	return s.lastCommitted
}

// Close finalizes the store and makes it available for downstream reading.
func (s *FacetStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close facet store: %w", err)
	}
	return nil
}

// MarketStatusRows loads the whole market_status facet in key order.
func (s *FacetStore) MarketStatusRows() ([]models.MarketStatusRow, error) {
	var rows []models.MarketStatusRow
	err := s.scanFacet(models.FacetMarketStatus, func(value []byte) error {
		var row models.MarketStatusRow
		if err := json.Unmarshal(value, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// SelectionStatusRows loads the whole selection_status facet in key order.
func (s *FacetStore) SelectionStatusRows() ([]models.SelectionStatusRow, error) {
	var rows []models.SelectionStatusRow
	err := s.scanFacet(models.FacetSelectionStatus, func(value []byte) error {
		var row models.SelectionStatusRow
		if err := json.Unmarshal(value, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// LadderRows loads one of the three price-bearing facets in key order.
func (s *FacetStore) LadderRows(facet models.Facet) ([]models.LadderRow, error) {
	var rows []models.LadderRow
	err := s.scanFacet(facet, func(value []byte) error {
		var row models.LadderRow
		if err := json.Unmarshal(value, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

func (s *FacetStore) scanFacet(facet models.Facet, decode func(value []byte) error) error {
	prefix := []byte(string(facet) + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				return decode(value)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load facet %s: %w", facet, err)
	}
	return nil
}

func marketStatusKey(row models.MarketStatusRow) string {
	return fmt.Sprintf("%s/%s", models.FacetMarketStatus, row.DateTime.Key())
}

func selectionStatusKey(row models.SelectionStatusRow) string {
	return fmt.Sprintf("%s/%s/%s", models.FacetSelectionStatus, row.DateTime.Key(), row.Selection)
}

func ladderKey(facet models.Facet, row models.LadderRow) string {
	return fmt.Sprintf("%s/%s/%s/%s", facet, row.DateTime.Key(), row.Selection, row.PriceKey())
}
