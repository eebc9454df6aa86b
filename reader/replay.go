// Package reader provides snapshot producers feeding the ingestion queue.
// The live exchange connection is an external collaborator; the producers
// here honor the same boundary contract: market snapshots delivered in
// non-decreasing publish time order until teardown is requested.
package reader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/FilippoBovo/betfair-data/logger"
	"github.com/FilippoBovo/betfair-data/models"
)

// bestOffersDepth is the ladder depth of the exchange-computed best-offers
// display used when virtual bets are enabled.
const bestOffersDepth = 10

// ReplaySource replays a recorded market stream from a JSON-lines file. The
// first line is the market definition; every following line is one market
// snapshot in publish time order. Delivery is paced by the conflation
// interval, matching the rate cap a live subscription would request.
type ReplaySource struct {
	path        string
	definition  models.MarketDefinition
	out         chan<- models.MarketSnapshot
	limiter     *rate.Limiter
	virtualBets bool
	log         *logger.Log

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewReplaySource opens a recorded stream file and reads its market
// definition header. ConflateMs zero disables pacing.
func NewReplaySource(path string, conflateMs int, virtualBets bool, out chan<- models.MarketSnapshot) (*ReplaySource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read stream file: %w", err)
		}
		return nil, fmt.Errorf("stream file %s has no market definition", path)
	}

	var definition models.MarketDefinition
	if err := json.Unmarshal(scanner.Bytes(), &definition); err != nil {
		return nil, fmt.Errorf("failed to parse market definition: %w", err)
	}
	if len(definition.Runners) == 0 {
		return nil, fmt.Errorf("market definition of %s declares no runners", path)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if conflateMs > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(conflateMs)*time.Millisecond), 1)
	}

	return &ReplaySource{
		path:        path,
		definition:  definition,
		out:         out,
		limiter:     limiter,
		virtualBets: virtualBets,
		wg:          &sync.WaitGroup{},
		log:         logger.GetLogger(),
	}, nil
}

// Definition returns the market definition read from the stream header.
func (r *ReplaySource) Definition() models.MarketDefinition {
	return r.definition
}

// Start begins delivering snapshots into the output channel.
func (r *ReplaySource) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("replay source already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("replay_source").WithFields(logger.Fields{
		"path":      r.path,
		"market_id": r.definition.MarketID,
	})
	log.Info("starting replay source")

	r.wg.Add(1)
	go r.deliver()

	return nil
}

// Stop waits for delivery to finish.
func (r *ReplaySource) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.log.WithComponent("replay_source").Info("replay source stopped")
}

func (r *ReplaySource) deliver() {
	defer r.wg.Done()

	log := r.log.WithComponent("replay_source")

	file, err := os.Open(r.path)
	if err != nil {
		log.WithError(err).Error("failed to reopen stream file")
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	scanner.Scan() // market definition header

	delivered := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var snapshot models.MarketSnapshot
		if err := json.Unmarshal(line, &snapshot); err != nil {
			log.WithError(err).Warn("skipping unparseable snapshot line")
			continue
		}

		if r.virtualBets {
			capLadders(&snapshot)
		}

		if err := r.limiter.Wait(r.ctx); err != nil {
			log.Info("delivery cancelled")
			return
		}

		select {
		case r.out <- snapshot:
			delivered++
		case <-r.ctx.Done():
			log.Info("delivery cancelled")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("failed to read stream file")
	}

	close(r.out)
	log.WithFields(logger.Fields{"snapshots": delivered}).Info("stream replay finished")
}

// capLadders trims the back and lay ladders to the best-offers display
// depth. Traded volume is never depth limited.
func capLadders(snapshot *models.MarketSnapshot) {
	for i := range snapshot.Runners {
		runner := &snapshot.Runners[i]
		if len(runner.AvailableToBack) > bestOffersDepth {
			runner.AvailableToBack = runner.AvailableToBack[:bestOffersDepth]
		}
		if len(runner.AvailableToLay) > bestOffersDepth {
			runner.AvailableToLay = runner.AvailableToLay[:bestOffersDepth]
		}
	}
}
