package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	appconfig "github.com/FilippoBovo/betfair-data/config"
	"github.com/FilippoBovo/betfair-data/models"
)

type passthroughNormalizer struct{}

func (passthroughNormalizer) Flatten(snapshot models.MarketSnapshot) (models.SnapshotFacets, error) {
	return models.SnapshotFacets{
		MarketStatus: models.MarketStatusRow{
			DateTime: models.NewRowTime(snapshot.PublishTime),
			Status:   snapshot.Status,
			InPlay:   snapshot.InPlay,
		},
	}, nil
}

type captureSink struct {
	appended []models.SnapshotFacets
	failOn   int // 1-based append index to fail on, 0 disables
}

func (s *captureSink) Append(facets models.SnapshotFacets) error {
	if s.failOn > 0 && len(s.appended)+1 == s.failOn {
		return errors.New("disk full")
	}
	s.appended = append(s.appended, facets)
	return nil
}

func snapshotAt(sec int, status models.MarketStatus, inPlay bool) models.MarketSnapshot {
	return models.MarketSnapshot{
		PublishTime: time.Date(2023, 6, 1, 14, 0, sec, 0, time.UTC),
		Status:      status,
		InPlay:      inPlay,
	}
}

func runController(t *testing.T, cfg appconfig.RecorderConfig, sink Sink, snapshots ...models.MarketSnapshot) (*Controller, error) {
	t.Helper()

	queue := make(chan models.MarketSnapshot, len(snapshots))
	for _, s := range snapshots {
		queue <- s
	}
	close(queue)

	controller := NewController(cfg, queue, passthroughNormalizer{}, sink)
	err := controller.Run(context.Background())
	return controller, err
}

func TestControllerStopsOnClosedMarket(t *testing.T) {
	sink := &captureSink{}
	controller, err := runController(t, appconfig.RecorderConfig{}, sink,
		snapshotAt(0, models.MarketOpen, false),
		snapshotAt(1, models.MarketSuspended, false),
		snapshotAt(2, models.MarketClosed, false),
		snapshotAt(3, models.MarketOpen, false), // never reached
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.appended) != 2 {
		t.Fatalf("expected 2 committed snapshots, got %d", len(sink.appended))
	}
	if controller.Processed() != 2 {
		t.Fatalf("expected processed count 2, got %d", controller.Processed())
	}
	if controller.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", controller.State())
	}
}

func TestControllerStopsWhenMarketTurnsInPlay(t *testing.T) {
	sink := &captureSink{}
	_, err := runController(t, appconfig.RecorderConfig{AllowInplay: false}, sink,
		snapshotAt(0, models.MarketOpen, false),
		snapshotAt(1, models.MarketOpen, true), // trigger, discarded
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.appended) != 1 {
		t.Fatalf("expected the in-play snapshot to be discarded, got %d commits", len(sink.appended))
	}
}

func TestControllerKeepsStreamingInPlayWhenAllowed(t *testing.T) {
	sink := &captureSink{}
	_, err := runController(t, appconfig.RecorderConfig{AllowInplay: true}, sink,
		snapshotAt(0, models.MarketOpen, false),
		snapshotAt(1, models.MarketOpen, true),
		snapshotAt(2, models.MarketOpen, true),
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.appended) != 3 {
		t.Fatalf("expected all 3 snapshots committed, got %d", len(sink.appended))
	}
}

func TestControllerReportsLastCommittedOnSinkFailure(t *testing.T) {
	sink := &captureSink{failOn: 2}
	_, err := runController(t, appconfig.RecorderConfig{}, sink,
		snapshotAt(0, models.MarketOpen, false),
		snapshotAt(1, models.MarketOpen, false),
	)
	if err == nil {
		t.Fatal("expected sink failure to abort the run")
	}
	if !strings.Contains(err.Error(), "last committed 2023-06-01 14:00:00.000000") {
		t.Fatalf("expected last committed publish time in error, got %v", err)
	}
}

func TestControllerSinkFailureBeforeFirstCommit(t *testing.T) {
	sink := &captureSink{failOn: 1}
	_, err := runController(t, appconfig.RecorderConfig{}, sink,
		snapshotAt(0, models.MarketOpen, false),
	)
	if err == nil {
		t.Fatal("expected sink failure to abort the run")
	}
	if !strings.Contains(err.Error(), "nothing committed") {
		t.Fatalf("expected nothing-committed marker in error, got %v", err)
	}
}

func TestControllerStopsOnCancellation(t *testing.T) {
	queue := make(chan models.MarketSnapshot)
	controller := NewController(appconfig.RecorderConfig{}, queue, passthroughNormalizer{}, &captureSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- controller.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after cancellation")
	}
	if controller.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", controller.State())
	}
}

func TestWaitUntilStartReturnsWhenWindowOpen(t *testing.T) {
	// The window opened in the past, so the wait returns immediately.
	start := time.Now().Add(-time.Minute)
	if err := WaitUntilStart(context.Background(), start, 5*time.Minute); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWaitUntilStartAbortsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now().Add(time.Hour)
	if err := WaitUntilStart(ctx, start, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
