package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxConflateMs is the upper bound of the conflation interval accepted by
// the exchange, in milliseconds.
const MaxConflateMs = 120000

type Config struct {
	BetfairData BetfairDataConfig `yaml:"betfairdata"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Merger      MergerConfig      `yaml:"merger"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type BetfairDataConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	SnapshotBuffer int `yaml:"snapshot_buffer"`
}

type RecorderConfig struct {
	OutputDir string `yaml:"output_dir"`
	// ConflateMs is forwarded to the snapshot producer; the core never
	// interprets it beyond bounds validation.
	ConflateMs int `yaml:"conflate_ms"`
	// VirtualBets caps the ladders to the exchange-computed best-offers
	// depth; disabled, the full ladder is delivered.
	VirtualBets bool `yaml:"virtual_bets"`
	// AllowInplay keeps the stream running once the event turns in-play.
	// By default the run stops the instant in_play becomes true.
	AllowInplay bool `yaml:"allow_inplay"`
	// StartDelayMinutes, when set, holds the recorder in a waiting state
	// until that many minutes before the scheduled event start.
	StartDelayMinutes *int `yaml:"start_delay_minutes"`
}

type MergerConfig struct {
	OutputDir   string `yaml:"output_dir"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: ChannelsConfig{SnapshotBuffer: 512},
		Recorder: RecorderConfig{
			OutputDir:   os.TempDir(),
			ConflateMs:  50,
			VirtualBets: true,
		},
		Merger: MergerConfig{Compression: "snappy"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			MaxAge: 7,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.BetfairData.Name == "" {
		return fmt.Errorf("betfairdata.name is required")
	}

	if cfg.BetfairData.Version == "" {
		return fmt.Errorf("betfairdata.version is required")
	}

	if cfg.Channels.SnapshotBuffer <= 0 {
		return fmt.Errorf("channels.snapshot_buffer must be greater than 0")
	}

	if cfg.Recorder.ConflateMs < 0 || cfg.Recorder.ConflateMs > MaxConflateMs {
		return fmt.Errorf("recorder.conflate_ms must be in range [0, %d]", MaxConflateMs)
	}

	if cfg.Recorder.StartDelayMinutes != nil && *cfg.Recorder.StartDelayMinutes < 0 {
		return fmt.Errorf("recorder.start_delay_minutes must not be negative")
	}

	switch cfg.Merger.Compression {
	case "", "none", "snappy", "gzip", "lzo":
	default:
		return fmt.Errorf("merger.compression '%s' is invalid", cfg.Merger.Compression)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
