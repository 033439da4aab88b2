// Package config loads client settings from the environment.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting the client binary reads.
type Config struct {
	ServerAddress string `env:"LOCKSTEP_SERVER"          envDefault:"127.0.0.1:3979"`
	ClientName    string `env:"LOCKSTEP_CLIENT_NAME"     envDefault:"Player"`
	ClientVersion string `env:"LOCKSTEP_CLIENT_VERSION"  envDefault:"14.1"`
	// Company is the 1-based company to join; 0 requests a new company and
	// -1 joins as spectator.
	Company   int    `env:"LOCKSTEP_COMPANY"          envDefault:"-1"`
	Password  string `env:"LOCKSTEP_PASSWORD"`
	SecretKey string `env:"LOCKSTEP_SECRET_KEY"`
	// Content lists installed add-ons as "grfid:md5" pairs in hex.
	Content []string `env:"LOCKSTEP_CONTENT" envSeparator:","`

	CommandsPerFrame int           `env:"LOCKSTEP_COMMANDS_PER_FRAME" envDefault:"2"`
	CallbackLifetime uint32        `env:"LOCKSTEP_CALLBACK_LIFETIME"  envDefault:"30"`
	AckInterval      uint32        `env:"LOCKSTEP_ACK_INTERVAL"       envDefault:"74"`
	FrameInterval    time.Duration `env:"LOCKSTEP_FRAME_INTERVAL"     envDefault:"30ms"`
	CatchUpMaxFrames int           `env:"LOCKSTEP_CATCHUP_MAX_FRAMES" envDefault:"100"`
	LagWarning       time.Duration `env:"LOCKSTEP_LAG_WARNING"        envDefault:"5s"`
	LagTimeout       time.Duration `env:"LOCKSTEP_LAG_TIMEOUT"        envDefault:"20s"`
	ErrorGrace       time.Duration `env:"LOCKSTEP_ERROR_GRACE"        envDefault:"200ms"`
	ReconnectDelay   time.Duration `env:"LOCKSTEP_RECONNECT_DELAY"    envDefault:"10s"`
	DialTimeout      time.Duration `env:"LOCKSTEP_DIAL_TIMEOUT"       envDefault:"10s"`
	MaxMapBytes      int64         `env:"LOCKSTEP_MAX_MAP_BYTES"      envDefault:"536870912"`
	JournalFrames    int           `env:"LOCKSTEP_JOURNAL_FRAMES"     envDefault:"256"`
	WideFingerprints bool          `env:"LOCKSTEP_WIDE_FINGERPRINTS"`
	MaxReconnects    uint          `env:"LOCKSTEP_MAX_RECONNECTS"     envDefault:"5"`

	SaveDBPath string `env:"LOCKSTEP_SAVE_DB" envDefault:"lockstep-saves.db"`
	SaveFormat string `env:"LOCKSTEP_SAVE_FORMAT" envDefault:"lz4"`

	LogLevel    string `env:"LOG_LEVEL"             envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"            envDefault:"text"`
	LogJSONFile string `env:"LOCKSTEP_LOG_JSON_FILE"`

	DiagnosticsAddr  string `env:"LOCKSTEP_DIAGNOSTICS_ADDR"`
	EnablePprofTrace bool   `env:"ENABLE_PPROF_TRACE"`
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName      string `env:"OTEL_SERVICE_NAME" envDefault:"lockstep-client"`
}

// Load reads an optional .env file from the working directory and parses
// the environment. Variables already set take precedence over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment without touching .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	if c.ServerAddress == "" {
		return errors.New("config: LOCKSTEP_SERVER is empty")
	}
	if c.Company < -1 || c.Company > 15 {
		return fmt.Errorf("config: LOCKSTEP_COMPANY %d out of range", c.Company)
	}
	if c.LagWarning >= c.LagTimeout {
		return fmt.Errorf("config: lag warning %s must be below timeout %s", c.LagWarning, c.LagTimeout)
	}
	if _, err := c.SecretKeyBytes(); err != nil {
		return err
	}
	return nil
}

// SecretKeyBytes decodes the persistent client key. The zero key means none
// is configured.
func (c Config) SecretKeyBytes() (key [32]byte, err error) {
	if c.SecretKey == "" {
		return key, nil
	}
	raw, err := hex.DecodeString(c.SecretKey)
	if err != nil || len(raw) != len(key) {
		return key, errors.New("config: LOCKSTEP_SECRET_KEY must be 64 hex characters")
	}
	copy(key[:], raw)
	return key, nil
}
