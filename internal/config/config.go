// Package config provides configuration management for reflectra.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultWorkerHost is the default listen address.
	DefaultWorkerHost = "127.0.0.1"
	// DefaultWorkerPort is the default HTTP port.
	DefaultWorkerPort = 37800

	DefaultMaxConns = 4

	DefaultMaxGapMs        int64 = 35000
	DefaultLookbackMs      int64 = 120000
	DefaultDisplayWindowMs int64 = 300000
	DefaultCleanupWindowMs int64 = 120000

	DefaultSweepLimit    = 50
	DefaultSweepDelay    = 100 * time.Millisecond
	DefaultSweepInterval = 15 * time.Minute

	DefaultClassifierProvider = "none"
	DefaultClassifierTimeout  = 10 * time.Second
	DefaultReflectionTimeout  = 60 * time.Second

	// URL lock modes.
	LockNone  = "none"
	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds the service configuration.
type Config struct {
	WorkerHost string `json:"REFLECTRA_WORKER_HOST"`
	WorkerPort int    `json:"REFLECTRA_WORKER_PORT"`

	DBPath   string `json:"REFLECTRA_DB_PATH"`
	DSN      string `json:"REFLECTRA_DATABASE_DSN"`
	MaxConns int    `json:"REFLECTRA_MAX_CONNS"`

	MaxGapMs        int64 `json:"REFLECTRA_MERGE_MAX_GAP_MS"`
	LookbackMs      int64 `json:"REFLECTRA_MERGE_LOOKBACK_MS"`
	DisplayWindowMs int64 `json:"REFLECTRA_DISPLAY_WINDOW_MS"`
	CleanupWindowMs int64 `json:"REFLECTRA_CLEANUP_WINDOW_MS"`

	SweepLimit    int           `json:"REFLECTRA_SWEEP_LIMIT"`
	SweepDelay    time.Duration `json:"-"`
	SweepInterval time.Duration `json:"-"`

	ClassifierProvider string        `json:"REFLECTRA_CLASSIFIER_PROVIDER"`
	ClassifierModel    string        `json:"REFLECTRA_CLASSIFIER_MODEL"`
	ClassifierBaseURL  string        `json:"REFLECTRA_CLASSIFIER_BASE_URL"`
	ClassifierTimeout  time.Duration `json:"-"`
	ReflectionTimeout  time.Duration `json:"-"`
	OpenAIAPIKey       string        `json:"REFLECTRA_OPENAI_API_KEY"`
	AnthropicAPIKey    string        `json:"REFLECTRA_ANTHROPIC_API_KEY"`

	RulesPath string `json:"REFLECTRA_RULES_PATH"`
	IndexPath string `json:"REFLECTRA_INDEX_PATH"`

	// URLLock selects how concurrent records for one URL are serialized.
	URLLock   string `json:"REFLECTRA_URL_LOCK"`
	RedisAddr string `json:"REFLECTRA_REDIS_ADDR"`
}

// durations are kept as strings in the settings file ("100ms", "15m").
type fileDurations struct {
	SweepDelay        string `json:"REFLECTRA_SWEEP_DELAY"`
	SweepInterval     string `json:"REFLECTRA_SWEEP_INTERVAL"`
	ClassifierTimeout string `json:"REFLECTRA_CLASSIFIER_TIMEOUT"`
	ReflectionTimeout string `json:"REFLECTRA_REFLECTION_TIMEOUT"`
}

var (
	global     *Config
	globalOnce sync.Once
)

// DataDir returns the data directory path.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".reflectra")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "reflectra.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// RulesPath returns the default rule table path.
func RulesPath() string {
	return filepath.Join(DataDir(), "rules.yaml")
}

// IndexPath returns the default similarity index path.
func IndexPath() string {
	return filepath.Join(DataDir(), "sessions.bleve")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		WorkerHost:         DefaultWorkerHost,
		WorkerPort:         DefaultWorkerPort,
		DBPath:             DBPath(),
		MaxConns:           DefaultMaxConns,
		MaxGapMs:           DefaultMaxGapMs,
		LookbackMs:         DefaultLookbackMs,
		DisplayWindowMs:    DefaultDisplayWindowMs,
		CleanupWindowMs:    DefaultCleanupWindowMs,
		SweepLimit:         DefaultSweepLimit,
		SweepDelay:         DefaultSweepDelay,
		SweepInterval:      DefaultSweepInterval,
		ClassifierProvider: DefaultClassifierProvider,
		ClassifierTimeout:  DefaultClassifierTimeout,
		ReflectionTimeout:  DefaultReflectionTimeout,
		RulesPath:          RulesPath(),
		IndexPath:          IndexPath(),
		URLLock:            LockNone,
	}
}

// Load reads the settings file and applies environment overrides.
// A missing or unparsable settings file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		var fd fileDurations
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			log.Warn().Err(jerr).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
			cfg = Default()
		} else if jerr := json.Unmarshal(data, &fd); jerr == nil {
			cfg.SweepDelay = parseDuration(fd.SweepDelay, cfg.SweepDelay)
			cfg.SweepInterval = parseDuration(fd.SweepInterval, cfg.SweepInterval)
			cfg.ClassifierTimeout = parseDuration(fd.ClassifierTimeout, cfg.ClassifierTimeout)
			cfg.ReflectionTimeout = parseDuration(fd.ReflectionTimeout, cfg.ReflectionTimeout)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REFLECTRA_WORKER_HOST"); v != "" {
		cfg.WorkerHost = v
	}
	if v, ok := envInt("REFLECTRA_WORKER_PORT"); ok && v > 0 {
		cfg.WorkerPort = v
	}
	if v := os.Getenv("REFLECTRA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("REFLECTRA_DATABASE_DSN"); v != "" {
		cfg.DSN = v
	}
	if v, ok := envInt("REFLECTRA_MAX_CONNS"); ok && v > 0 {
		cfg.MaxConns = v
	}
	if v, ok := envInt("REFLECTRA_MERGE_MAX_GAP_MS"); ok && v >= 0 {
		cfg.MaxGapMs = int64(v)
	}
	if v, ok := envInt("REFLECTRA_MERGE_LOOKBACK_MS"); ok && v > 0 {
		cfg.LookbackMs = int64(v)
	}
	if v, ok := envInt("REFLECTRA_SWEEP_LIMIT"); ok && v > 0 {
		cfg.SweepLimit = v
	}
	cfg.SweepDelay = parseDuration(os.Getenv("REFLECTRA_SWEEP_DELAY"), cfg.SweepDelay)
	cfg.SweepInterval = parseDuration(os.Getenv("REFLECTRA_SWEEP_INTERVAL"), cfg.SweepInterval)
	cfg.ClassifierTimeout = parseDuration(os.Getenv("REFLECTRA_CLASSIFIER_TIMEOUT"), cfg.ClassifierTimeout)
	cfg.ReflectionTimeout = parseDuration(os.Getenv("REFLECTRA_REFLECTION_TIMEOUT"), cfg.ReflectionTimeout)
	if v := os.Getenv("REFLECTRA_CLASSIFIER_PROVIDER"); v != "" {
		cfg.ClassifierProvider = v
	}
	if v := os.Getenv("REFLECTRA_CLASSIFIER_MODEL"); v != "" {
		cfg.ClassifierModel = v
	}
	if v := os.Getenv("REFLECTRA_CLASSIFIER_BASE_URL"); v != "" {
		cfg.ClassifierBaseURL = v
	}
	if v := os.Getenv("REFLECTRA_OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("REFLECTRA_ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("REFLECTRA_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("REFLECTRA_INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
	if v := os.Getenv("REFLECTRA_URL_LOCK"); v != "" {
		cfg.URLLock = v
	}
	if v := os.Getenv("REFLECTRA_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// GetWorkerPort returns the worker port, preferring REFLECTRA_WORKER_PORT.
func GetWorkerPort() int {
	if v, ok := envInt("REFLECTRA_WORKER_PORT"); ok && v > 0 {
		return v
	}
	return Get().WorkerPort
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaults := map[string]any{
		"REFLECTRA_WORKER_PORT":         DefaultWorkerPort,
		"REFLECTRA_CLASSIFIER_PROVIDER": DefaultClassifierProvider,
		"REFLECTRA_SWEEP_LIMIT":         DefaultSweepLimit,
		"REFLECTRA_SWEEP_DELAY":         DefaultSweepDelay.String(),
		"REFLECTRA_SWEEP_INTERVAL":      DefaultSweepInterval.String(),
		"REFLECTRA_URL_LOCK":            LockNone,
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and default settings.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}
