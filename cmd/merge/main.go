// Command merge converts a ZIP archive produced by the record command into a
// single denormalized Parquet table with one row per observed price level
// per selection per point in time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/FilippoBovo/betfair-data/config"
	"github.com/FilippoBovo/betfair-data/logger"
	"github.com/FilippoBovo/betfair-data/merger"
	"github.com/FilippoBovo/betfair-data/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	outputDir := flag.String("o", "", "Directory where to save the output Parquet file (overrides the configuration)")

	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: merge [flags] <archive.zip>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	zipPath := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if *outputDir != "" {
		cfg.Merger.OutputDir = *outputDir
	}
	if cfg.Merger.OutputDir == "" {
		cfg.Merger.OutputDir = filepath.Join(os.TempDir(), "market_data_parquet")
	}

	if !strings.HasSuffix(zipPath, ".zip") {
		log.WithFields(logger.Fields{"path": zipPath}).Error("input is not a zip archive")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.BetfairData.Name,
		"version": cfg.BetfairData.Version,
		"archive": zipPath,
	}).Info("merging recorded market data")

	tempDir, err := os.MkdirTemp("", "betfair-data")
	if err != nil {
		log.WithError(err).Error("failed to create temporary directory")
		os.Exit(1)
	}
	defer os.RemoveAll(tempDir)

	storeDir, err := writer.Unpack(zipPath, tempDir)
	if err != nil {
		log.WithError(err).Error("failed to unpack archive")
		os.Exit(1)
	}

	store, err := writer.OpenStoreReadOnly(storeDir)
	if err != nil {
		log.WithError(err).Error("failed to open facet store")
		os.Exit(1)
	}

	data, err := merger.Load(store)
	if err != nil {
		store.Close()
		log.WithError(err).Error("failed to load facet tables")
		os.Exit(1)
	}
	if err := store.Close(); err != nil {
		log.WithError(err).Error("failed to close facet store")
		os.Exit(1)
	}

	rows := merger.Merge(data)

	if err := os.MkdirAll(cfg.Merger.OutputDir, 0o755); err != nil {
		log.WithError(err).Error("failed to create output directory")
		os.Exit(1)
	}

	base := strings.TrimSuffix(filepath.Base(zipPath), ".zip")
	parquetPath := filepath.Join(cfg.Merger.OutputDir, base+".parquet")

	if err := merger.WriteParquet(rows, parquetPath, cfg.Merger.Compression); err != nil {
		log.WithError(err).Error("failed to write parquet file")
		os.Exit(1)
	}
	log.WithFields(logger.Fields{"parquet": parquetPath}).Info("merged table written")

	if cfg.Storage.S3.Enabled {
		uploader, err := writer.NewArtifactUploader(context.Background(), cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("failed to create S3 uploader")
			os.Exit(1)
		}
		if err := uploader.Upload(context.Background(), parquetPath); err != nil {
			log.WithError(err).Error("failed to upload parquet file")
			os.Exit(1)
		}
	}
}
