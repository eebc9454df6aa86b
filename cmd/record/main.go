// Command record streams the order-book ladder of one Betfair market from a
// recorded stream file, normalizes every snapshot into five facet row sets
// and persists them in an append-only facet store. On teardown the store is
// packaged into a ZIP archive and optionally uploaded to S3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/FilippoBovo/betfair-data/catalogue"
	"github.com/FilippoBovo/betfair-data/config"
	"github.com/FilippoBovo/betfair-data/logger"
	"github.com/FilippoBovo/betfair-data/models"
	"github.com/FilippoBovo/betfair-data/processor"
	"github.com/FilippoBovo/betfair-data/reader"
	"github.com/FilippoBovo/betfair-data/stream"
	"github.com/FilippoBovo/betfair-data/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	outputDir := flag.String("o", "", "Directory where to save the output archive (overrides the configuration)")
	conflateMs := flag.Int("c", -1, "Conflation rate in milliseconds, bounds 0 to 120000 (overrides the configuration)")
	noVirtualBets := flag.Bool("no-virtual-bets", false, "Disable virtual bets and record the full ladder of prices")
	allowInplay := flag.Bool("in-play", false, "Keep streaming once the event turns in-play")
	minsBeforeStart := flag.Int("b", -1, "Minutes before the event start at which to begin streaming")

	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: record [flags] <stream-file>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	streamFile := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	// Command line flags override the configured recorder policy.
	if *outputDir != "" {
		cfg.Recorder.OutputDir = *outputDir
	}
	if *conflateMs >= 0 {
		cfg.Recorder.ConflateMs = *conflateMs
	}
	if *noVirtualBets {
		cfg.Recorder.VirtualBets = false
	}
	if *allowInplay {
		cfg.Recorder.AllowInplay = true
	}
	if *minsBeforeStart >= 0 {
		cfg.Recorder.StartDelayMinutes = minsBeforeStart
	}
	if cfg.Recorder.ConflateMs > config.MaxConflateMs {
		log.WithFields(logger.Fields{"conflate_ms": cfg.Recorder.ConflateMs}).Error("conflation interval out of bounds")
		os.Exit(1)
	}

	runID := uuid.New().String()
	log.WithFields(logger.Fields{
		"service": cfg.BetfairData.Name,
		"version": cfg.BetfairData.Version,
		"run_id":  runID,
	}).Info("starting market ladder recorder")

	// Exchange session management lives in the connection collaborator; the
	// recorder only resolves the credentials and reports what is missing.
	if creds, err := config.CredentialsFromEnv(); err != nil && !creds.Complete() {
		log.WithError(err).Warn("betfair credentials incomplete, live streaming unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	snapshots := make(chan models.MarketSnapshot, cfg.Channels.SnapshotBuffer)

	source, err := reader.NewReplaySource(streamFile, cfg.Recorder.ConflateMs, cfg.Recorder.VirtualBets, snapshots)
	if err != nil {
		log.WithError(err).Error("failed to open snapshot source")
		os.Exit(1)
	}

	definition := source.Definition()
	directory := catalogue.NewSelectionDirectory(definition.Runners)
	info := catalogue.MarketInfoFromDefinition(definition)
	slug := info.Slug()

	log.WithFields(logger.Fields{
		"market_id":  definition.MarketID,
		"market":     definition.MarketName,
		"event":      definition.EventName,
		"selections": directory.Len(),
		"slug":       slug,
	}).Info("market metadata resolved")

	// Wait to stream until a certain amount of minutes before the start.
	if cfg.Recorder.StartDelayMinutes != nil {
		lead := time.Duration(*cfg.Recorder.StartDelayMinutes) * time.Minute
		if err := stream.WaitUntilStart(ctx, definition.StartTime, lead); err != nil {
			log.Info("exiting before streaming started, no output produced")
			return
		}
	}

	storeDir := filepath.Join(cfg.Recorder.OutputDir, slug+".facets")
	store, err := writer.OpenStore(storeDir)
	if err != nil {
		log.WithError(err).Error("failed to open facet store")
		os.Exit(1)
	}

	flattener := processor.NewFlattener(directory)
	controller := stream.NewController(cfg.Recorder, snapshots, flattener, store)

	if err := source.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start snapshot source")
		store.Close()
		os.Exit(1)
	}

	runErr := controller.Run(ctx)

	log.Info("stopping the stream, this may take a few seconds")
	cancel()
	source.Stop()

	rows := store.RowsAppended()
	if err := store.Close(); err != nil {
		log.WithError(err).Error("failed to close facet store")
		os.Exit(1)
	}

	if runErr != nil {
		log.WithError(runErr).Error("streaming run failed")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"snapshots": controller.Processed(),
		"rows":      rows,
	}).Info("streaming finished")

	zipPath := filepath.Join(cfg.Recorder.OutputDir, slug+".zip")
	if err := writer.Package(storeDir, zipPath); err != nil {
		log.WithError(err).Error("failed to package facet store")
		os.Exit(1)
	}
	log.WithFields(logger.Fields{"archive": zipPath}).Info("output archive written")

	if cfg.Storage.S3.Enabled {
		uploader, err := writer.NewArtifactUploader(context.Background(), cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("failed to create S3 uploader")
			os.Exit(1)
		}
		if err := uploader.Upload(context.Background(), zipPath); err != nil {
			log.WithError(err).Error("failed to upload output archive")
			os.Exit(1)
		}
	}
}
