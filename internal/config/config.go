package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable name, e.g. ENADL_MAX_PARALLEL.
const EnvPrefix = "ENADL"

// Config struct for environment variables.
type Config struct {
	MaxParallel       int           `envconfig:"MAX_PARALLEL" default:"4" validate:"min=1,max=64"`
	KeepFailed        bool          `envconfig:"KEEP_FAILED" default:"false"`
	ForceRedownload   bool          `envconfig:"FORCE_REDOWNLOAD" default:"false"`
	VerifyExisting    bool          `envconfig:"VERIFY_EXISTING" default:"false"`
	ProgressEnabled   bool          `envconfig:"PROGRESS_ENABLED" default:"true"`
	FirstByteTimeout  time.Duration `envconfig:"FIRST_BYTE_TIMEOUT" default:"60s" validate:"gt=0"`
	StallTimeout      time.Duration `envconfig:"STALL_TIMEOUT" default:"2m" validate:"gt=0"`
	ChecksumAlgorithm string        `envconfig:"CHECKSUM_ALGORITHM" default:"md5" validate:"oneof=md5 sha256"`
	TrackingBackend   string        `envconfig:"TRACKING_BACKEND" default:"tsv" validate:"oneof=tsv sqlite"`

	ENAPortalURL    string        `envconfig:"ENA_PORTAL_URL" default:"https://www.ebi.ac.uk/ena/portal/api" validate:"url"`
	NCBIRunInfoURL  string        `envconfig:"NCBI_RUNINFO_URL" default:"https://trace.ncbi.nlm.nih.gov/Traces/sra-db-be/runinfo" validate:"url"`
	MetadataTimeout time.Duration `envconfig:"METADATA_TIMEOUT" default:"60s" validate:"gt=0"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat         string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL" validate:"omitempty,url"`

	Telemetry struct {
		Enabled      bool   `default:"false"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9092" validate:"hostname_port"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	}
}

// LoadConfig loads an optional .env file from the working directory, then reads
// environment variables and populates and validates the Config struct.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges and enumerations after flags have been applied on top of the environment.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
