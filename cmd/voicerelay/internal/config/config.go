// Package config loads the voicerelay server configuration.
//
// The configuration is a single YAML file. Unless --config is given it is
// read from os.UserConfigDir()/voicerelay/config.yaml:
//
//	~/Library/Application Support/voicerelay/config.yaml   (macOS)
//	~/.config/voicerelay/config.yaml                       (Linux)
//	%AppData%/voicerelay/config.yaml                       (Windows)
//
// A missing file is not an error; every field has a default. Secrets are
// usually left out of the file and taken from the environment:
//
//	OPENAI_API_KEY, GEMINI_API_KEY, AWS_ACCESS_KEY_ID,
//	AWS_SECRET_ACCESS_KEY, REDIS_PASSWORD
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/voicerelay/pkg/cli"
)

// AppName names the per-user config directory.
const AppName = "voicerelay"

// EnvConfigFile overrides the default config file path.
const EnvConfigFile = "VOICERELAY_CONFIG"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendSQLite = "sqlite"
)

// Provider names for the recognizer and memory sections.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the root of the YAML file.
type Config struct {
	Listen     string           `yaml:"listen" json:"listen"`
	Log        LogConfig        `yaml:"log" json:"log"`
	Session    SessionConfig    `yaml:"session" json:"session"`
	Voiceprint VoiceprintConfig `yaml:"voiceprint" json:"voiceprint"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Recognizer RecognizerConfig `yaml:"recognizer" json:"recognizer"`
	Memory     MemoryConfig     `yaml:"memory" json:"memory"`

	// Path is the file the config was read from. Empty when defaults only.
	Path string `yaml:"-" json:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text or json
}

type SessionConfig struct {
	GracePeriod     time.Duration `yaml:"grace_period" json:"grace_period"`
	NotifyTimeout   time.Duration `yaml:"notify_timeout" json:"notify_timeout"`
	DrainTimeout    time.Duration `yaml:"drain_timeout" json:"drain_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" json:"max_upload_bytes"`
}

type VoiceprintConfig struct {
	Threshold      float32       `yaml:"threshold" json:"threshold"`
	SampleRate     int           `yaml:"sample_rate" json:"sample_rate"`
	FrameDuration  time.Duration `yaml:"frame_duration" json:"frame_duration"`
	EnrollDuration time.Duration `yaml:"enroll_duration" json:"enroll_duration"`
	HighQuality    bool          `yaml:"high_quality" json:"high_quality"`
	HashBits       int           `yaml:"hash_bits" json:"hash_bits"`
	HashSeed       uint64        `yaml:"hash_seed" json:"hash_seed"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend"`

	// Dir is the data directory of the badger and local backends.
	// Default {config dir}/data.
	Dir string `yaml:"dir" json:"dir"`

	Redis  RedisConfig  `yaml:"redis" json:"redis"`
	S3     S3Config     `yaml:"s3" json:"s3"`
	SQLite SQLiteConfig `yaml:"sqlite" json:"sqlite"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
}

type SQLiteConfig struct {
	// DSN defaults to {dir}/voicerelay.db.
	DSN string `yaml:"dsn" json:"dsn"`
}

type RecognizerConfig struct {
	Provider string        `yaml:"provider" json:"provider"`
	Model    string        `yaml:"model" json:"model"`
	BaseURL  string        `yaml:"base_url" json:"base_url"`
	APIKey   string        `yaml:"api_key" json:"api_key"`
	Segment  time.Duration `yaml:"segment" json:"segment"`
}

type MemoryConfig struct {
	Provider     string `yaml:"provider" json:"provider"`
	Model        string `yaml:"model" json:"model"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	APIKey       string `yaml:"api_key" json:"api_key"`
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt" json:"user_prompt"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Listen: ":8000",
		Log:    LogConfig{Level: "info", Format: "text"},
		Session: SessionConfig{
			GracePeriod:     5 * time.Second,
			NotifyTimeout:   2 * time.Second,
			DrainTimeout:    5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  8 << 20,
		},
		Voiceprint: VoiceprintConfig{
			Threshold:      0.9,
			SampleRate:     16000,
			FrameDuration:  time.Second,
			EnrollDuration: 8 * time.Second,
			HashBits:       16,
			HashSeed:       1,
		},
		Storage:    StorageConfig{Backend: BackendBadger},
		Recognizer: RecognizerConfig{Provider: ProviderNone, Segment: 5 * time.Second},
		Memory:     MemoryConfig{Provider: ProviderNone},
	}
}

// DefaultPath returns the config file path: $VOICERELAY_CONFIG if set,
// else the file in the per-user config directory.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p, nil
	}
	paths, err := cli.NewPaths(AppName)
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return paths.ConfigFile(), nil
}

// Load reads path (or DefaultPath when empty) over the defaults, overlays
// secrets from the environment and validates the result. A missing file
// at the default path yields the defaults; a missing explicit path is an
// error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if *dst == "" {
			*dst = getenv(key)
		}
	}
	switch c.Recognizer.Provider {
	case ProviderOpenAI:
		set(&c.Recognizer.APIKey, "OPENAI_API_KEY")
	}
	switch c.Memory.Provider {
	case ProviderOpenAI:
		set(&c.Memory.APIKey, "OPENAI_API_KEY")
	case ProviderGemini:
		set(&c.Memory.APIKey, "GEMINI_API_KEY")
	}
	set(&c.Storage.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	set(&c.Storage.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	set(&c.Storage.Redis.Password, "REDIS_PASSWORD")
}

// Validate checks value ranges and per-backend requirements.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if c.Voiceprint.Threshold <= 0 || c.Voiceprint.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("voiceprint.threshold %v: want (0, 1)", c.Voiceprint.Threshold))
	}
	if c.Voiceprint.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("voiceprint.sample_rate %d: want >= 8000", c.Voiceprint.SampleRate))
	}
	if c.Voiceprint.HashBits <= 0 || c.Voiceprint.HashBits%4 != 0 {
		errs = append(errs, fmt.Errorf("voiceprint.hash_bits %d: want a positive multiple of 4", c.Voiceprint.HashBits))
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendBadger, BackendLocal, BackendSQLite:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required"))
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required"))
		}
		if c.Storage.S3.Region == "" {
			errs = append(errs, errors.New("storage.s3.region is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want memory, badger, redis, local, s3 or sqlite", c.Storage.Backend))
	}

	switch c.Recognizer.Provider {
	case "", ProviderNone:
	case ProviderOpenAI:
		if c.Recognizer.APIKey == "" {
			errs = append(errs, errors.New("recognizer.api_key or OPENAI_API_KEY is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("recognizer.provider %q: want none or openai", c.Recognizer.Provider))
	}

	switch c.Memory.Provider {
	case "", ProviderNone:
	case ProviderOpenAI, ProviderGemini:
		if c.Memory.APIKey == "" {
			errs = append(errs, fmt.Errorf("memory.api_key is required for provider %s", c.Memory.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.provider %q: want none, openai or gemini", c.Memory.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// DataDir returns Storage.Dir, defaulting to the per-user data directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	paths, err := cli.NewPaths(AppName)
	if err != nil {
		return "", err
	}
	return paths.DataDir(), nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redact(*s)
		}
	}
	mask(&out.Recognizer.APIKey)
	mask(&out.Memory.APIKey)
	mask(&out.Storage.Redis.Password)
	mask(&out.Storage.S3.AccessKeyID)
	mask(&out.Storage.S3.SecretAccessKey)
	return &out
}

func redact(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
