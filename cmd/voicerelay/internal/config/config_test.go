package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty for defaults", cfg.Path)
	}
	if cfg.Listen != ":8000" || cfg.Storage.Backend != BackendBadger {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Session.GracePeriod != 5*time.Second {
		t.Errorf("GracePeriod = %v, want 5s", cfg.Session.GracePeriod)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: 127.0.0.1:9000
log:
  level: debug
  format: json
session:
  grace_period: 30s
voiceprint:
  threshold: 0.85
  high_quality: true
storage:
  backend: redis
  redis:
    addr: localhost:6379
    namespace: "vr:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Session.GracePeriod != 30*time.Second {
		t.Errorf("GracePeriod = %v, want 30s", cfg.Session.GracePeriod)
	}
	if cfg.Session.NotifyTimeout != 2*time.Second {
		t.Errorf("NotifyTimeout = %v, want default 2s", cfg.Session.NotifyTimeout)
	}
	if cfg.Voiceprint.Threshold != 0.85 || !cfg.Voiceprint.HighQuality {
		t.Errorf("Voiceprint = %+v", cfg.Voiceprint)
	}
	if cfg.Voiceprint.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want default 16000", cfg.Voiceprint.SampleRate)
	}
	if cfg.Storage.Redis.Namespace != "vr:" {
		t.Errorf("Redis.Namespace = %q", cfg.Storage.Redis.Namespace)
	}
	level, err := cfg.LogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("LogLevel = (%v, %v), want debug", level, err)
	}
}

func TestLoadParseError(t *testing.T) {
	path := writeConfig(t, "listen: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	path := writeConfig(t, `
storage:
  backend: s3
  s3:
    bucket: profiles
    region: us-east-1
recognizer:
  provider: openai
memory:
  provider: gemini
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recognizer.APIKey != "sk-openai" {
		t.Errorf("Recognizer.APIKey = %q", cfg.Recognizer.APIKey)
	}
	if cfg.Memory.APIKey != "gm-key" {
		t.Errorf("Memory.APIKey = %q", cfg.Memory.APIKey)
	}
	if cfg.Storage.S3.AccessKeyID != "AKIA" || cfg.Storage.S3.SecretAccessKey != "secret" {
		t.Errorf("S3 credentials = %+v", cfg.Storage.S3)
	}
}

func TestFileSecretWinsOverEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	path := writeConfig(t, `
recognizer:
  provider: openai
  api_key: from-file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Recognizer.APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.Recognizer.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"threshold", func(c *Config) { c.Voiceprint.Threshold = 1 }, "voiceprint.threshold"},
		{"sample rate", func(c *Config) { c.Voiceprint.SampleRate = 4000 }, "voiceprint.sample_rate"},
		{"hash bits", func(c *Config) { c.Voiceprint.HashBits = 10 }, "voiceprint.hash_bits"},
		{"backend", func(c *Config) { c.Storage.Backend = "etcd" }, "storage.backend"},
		{"redis addr", func(c *Config) { c.Storage.Backend = BackendRedis }, "storage.redis.addr"},
		{"s3 bucket", func(c *Config) { c.Storage.Backend = BackendS3; c.Storage.S3.Region = "x" }, "storage.s3.bucket"},
		{"recognizer key", func(c *Config) { c.Recognizer.Provider = ProviderOpenAI }, "recognizer.api_key"},
		{"recognizer provider", func(c *Config) { c.Recognizer.Provider = "azure" }, "recognizer.provider"},
		{"memory provider", func(c *Config) { c.Memory.Provider = "claude" }, "memory.provider"},
		{"memory key", func(c *Config) { c.Memory.Provider = ProviderGemini }, "memory.api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Memory.APIKey = "sk-1234567890abcdef"
	cfg.Storage.Redis.Password = "pw"

	r := cfg.Redacted()
	if r.Memory.APIKey != "sk-1***********cdef" {
		t.Errorf("Memory.APIKey = %q", r.Memory.APIKey)
	}
	if r.Storage.Redis.Password != "**" {
		t.Errorf("Redis.Password = %q", r.Storage.Redis.Password)
	}
	if cfg.Memory.APIKey != "sk-1234567890abcdef" {
		t.Error("Redacted modified the original")
	}
}

func TestDataDir(t *testing.T) {
	cfg := Default()
	cfg.Storage.Dir = "/srv/voicerelay"
	if dir, err := cfg.DataDir(); err != nil || dir != "/srv/voicerelay" {
		t.Errorf("DataDir = (%q, %v)", dir, err)
	}
}
