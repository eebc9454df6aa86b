package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "github.com/FilippoBovo/betfair-data/config"
	"github.com/FilippoBovo/betfair-data/logger"
	"github.com/FilippoBovo/betfair-data/models"
)

// State is the lifecycle state of the stream controller.
type State int32

const (
	StateWaiting State = iota
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Normalizer turns one market snapshot into facet rows.
type Normalizer interface {
	Flatten(snapshot models.MarketSnapshot) (models.SnapshotFacets, error)
}

// Sink persists the facet rows of one snapshot as a single atomic unit.
type Sink interface {
	Append(facets models.SnapshotFacets) error
}

// startPollInterval is the coarse wall-clock polling interval used while
// waiting for the streaming window to open.
const startPollInterval = time.Second

// Controller is the single consumer of the snapshot queue. It applies the
// stop condition policy, feeds surviving snapshots to the normalizer and
// commits the resulting facets through the sink, preserving arrival order.
type Controller struct {
	cfg        appconfig.RecorderConfig
	snapshots  <-chan models.MarketSnapshot
	normalizer Normalizer
	sink       Sink
	log        *logger.Log

	mu            sync.RWMutex
	state         State
	processed     int64
	lastCommitted time.Time
}

func NewController(cfg appconfig.RecorderConfig, snapshots <-chan models.MarketSnapshot, normalizer Normalizer, sink Sink) *Controller {
	return &Controller{
		cfg:        cfg,
		snapshots:  snapshots,
		normalizer: normalizer,
		sink:       sink,
		state:      StateWaiting,
		log:        logger.GetLogger(),
	}
}

// WaitUntilStart blocks until lead before the scheduled event start, polling
// the wall clock once per second. It runs before any output exists, so a
// context cancellation aborts the whole run cleanly.
func WaitUntilStart(ctx context.Context, eventStart time.Time, lead time.Duration) error {
	deadline := eventStart.Add(-lead)

	log := logger.GetLogger().WithComponent("controller").WithFields(logger.Fields{
		"event_start": eventStart.UTC().Format(time.RFC3339),
		"stream_from": deadline.UTC().Format(time.RFC3339),
	})

	if !time.Now().Before(deadline) {
		return nil
	}
	log.Info("waiting for the streaming window to open")

	ticker := time.NewTicker(startPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("wait aborted")
			return ctx.Err()
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				log.Info("streaming window open")
				return nil
			}
		}
	}
}

// Run drains the snapshot queue until the stop condition triggers, the queue
// closes or the context is cancelled. Cancellation is treated like a normal
// stop: the in-flight snapshot is fully committed before returning, so no
// partial snapshot is ever visible.
func (c *Controller) Run(ctx context.Context) error {
	c.setState(StateStreaming)

	log := c.log.WithComponent("controller")
	log.Info("streaming market snapshots")

	defer c.setState(StateStopped)

	for {
		select {
		case <-ctx.Done():
			log.WithFields(logger.Fields{"snapshots": c.Processed()}).Info("streaming cancelled")
			return nil
		case snapshot, ok := <-c.snapshots:
			if !ok {
				log.WithFields(logger.Fields{"snapshots": c.Processed()}).Info("snapshot queue closed")
				return nil
			}
			stop, err := c.process(snapshot)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
}

// process handles one dequeued snapshot and reports whether the stop
// condition triggered. The triggering snapshot is discarded, not persisted.
func (c *Controller) process(snapshot models.MarketSnapshot) (bool, error) {
	log := c.log.WithComponent("controller").WithFields(logger.Fields{
		"publish_time": snapshot.PublishTime.UTC().Format(models.TimeLayout),
		"status":       string(snapshot.Status),
		"in_play":      snapshot.InPlay,
	})

	if snapshot.Status == models.MarketClosed {
		log.Info("market closed, stopping stream")
		return true, nil
	}
	if snapshot.InPlay && !c.cfg.AllowInplay {
		log.Info("market turned in-play, stopping stream")
		return true, nil
	}

	facets, err := c.normalizer.Flatten(snapshot)
	if err != nil {
		return false, fmt.Errorf("failed to normalize snapshot: %w", err)
	}

	if err := c.sink.Append(facets); err != nil {
		if !c.lastCommittedTime().IsZero() {
			return false, fmt.Errorf("failed to persist snapshot (last committed %s): %w",
				c.lastCommittedTime().UTC().Format(models.TimeLayout), err)
		}
		return false, fmt.Errorf("failed to persist snapshot (nothing committed): %w", err)
	}

	c.mu.Lock()
	c.processed++
	c.lastCommitted = snapshot.PublishTime
	processed := c.processed
	c.mu.Unlock()

	log.WithFields(logger.Fields{
		"snapshot_no": processed,
		"rows":        facets.RowCount(),
	}).Info("market snapshot stored")

	return false, nil
}

// Processed returns the number of snapshots committed so far.
func (c *Controller) Processed() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.processed
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) lastCommittedTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastCommitted
}
