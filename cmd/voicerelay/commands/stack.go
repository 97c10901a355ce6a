package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/voicerelay/cmd/voicerelay/internal/config"
	"github.com/haivivi/voicerelay/pkg/asr"
	"github.com/haivivi/voicerelay/pkg/audio/fbank"
	"github.com/haivivi/voicerelay/pkg/kv"
	"github.com/haivivi/voicerelay/pkg/memo"
	"github.com/haivivi/voicerelay/pkg/profile"
	"github.com/haivivi/voicerelay/pkg/sqlstore"
	"github.com/haivivi/voicerelay/pkg/storage"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

// profilesDir is the object prefix of profile blobs in file backends.
const profilesDir = "profiles"

// stack holds the persistence layer selected by the storage section.
type stack struct {
	profiles profile.Backend
	memories memo.Store
	closers  []func() error
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openStack opens the configured backend for profiles and memories.
// File backends have no key-value side, so their memories live in a badger
// database next to the profiles (local) or in process memory (s3).
func openStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *stack, err error) {
	sc := cfg.Storage
	st := &stack{}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	useKV := func(store kv.Store) {
		st.closers = append(st.closers, store.Close)
		st.profiles = profile.NewKVBackend(store)
		st.memories = memo.NewKVStore(store)
	}

	switch sc.Backend {
	case config.BackendMemory:
		logger.Warn("memory storage backend: profiles and memories are lost on exit")
		useKV(kv.NewMemory(nil))

	case config.BackendBadger:
		dir, err := cfg.DataDir()
		if err != nil {
			return nil, err
		}
		store, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(dir, "kv"), Logger: logger})
		if err != nil {
			return nil, err
		}
		useKV(store)

	case config.BackendRedis:
		store, err := kv.NewRedis(ctx, kv.RedisOptions{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			Namespace: sc.Redis.Namespace,
		})
		if err != nil {
			return nil, err
		}
		useKV(store)

	case config.BackendLocal:
		dir, err := cfg.DataDir()
		if err != nil {
			return nil, err
		}
		fs, err := storage.NewLocal(dir)
		if err != nil {
			return nil, err
		}
		st.profiles = profile.NewFileBackend(fs, profilesDir)
		mem, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(dir, "memories"), Logger: logger})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, mem.Close)
		st.memories = memo.NewKVStore(mem)

	case config.BackendS3:
		st.profiles = profile.NewFileBackend(storage.NewS3(newS3Client(sc.S3), sc.S3.Bucket, sc.S3.Prefix), profilesDir)
		logger.Warn("s3 storage backend: memories are kept in process memory")
		mem := kv.NewMemory(nil)
		st.closers = append(st.closers, mem.Close)
		st.memories = memo.NewKVStore(mem)

	case config.BackendSQLite:
		dsn := sc.SQLite.DSN
		if dsn == "" {
			dir, err := cfg.DataDir()
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(dir, "voicerelay.db")
		}
		db, err := sqlstore.Open(dsn)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db.Close)
		st.profiles = db
		st.memories = db.Memories()

	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}

	logger.Info("storage ready", "backend", sc.Backend)
	return st, nil
}

func newS3Client(c config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       c.Region,
		UsePathStyle: c.Endpoint != "",
	}
	if c.AccessKeyID != "" {
		opts.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""))
	}
	if c.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.Endpoint)
	}
	return s3.New(opts)
}

// fbankConfig scales the 16 kHz filterbank to rate: 25 ms windows, 10 ms
// hops and a mel range that stays below Nyquist.
func fbankConfig(rate int) fbank.Config {
	c := fbank.DefaultConfig()
	if rate == c.SampleRate {
		return c
	}
	c.SampleRate = rate
	c.WindowSize = rate / 40
	c.HopSize = rate / 100
	c.FFTSize = 1
	for c.FFTSize < c.WindowSize {
		c.FFTSize <<= 1
	}
	if nyquist := float64(rate) / 2; c.HighFreq > nyquist*0.95 {
		c.HighFreq = nyquist * 0.95
	}
	return c
}

// newEngine builds the local speaker embedding engine.
func newEngine(vc config.VoiceprintConfig) (*voiceprint.LocalEngine, voiceprint.Model) {
	model := voiceprint.NewFbankModel(fbankConfig(vc.SampleRate))
	return voiceprint.NewLocalEngine(model, voiceprint.LocalConfig{
		SampleRate:     vc.SampleRate,
		FrameDuration:  vc.FrameDuration,
		EnrollDuration: vc.EnrollDuration,
	}), model
}

func voiceprintOptions(vc config.VoiceprintConfig, logger *slog.Logger) []voiceprint.Option {
	opts := []voiceprint.Option{
		voiceprint.WithLogger(logger),
		voiceprint.WithThreshold(vc.Threshold),
	}
	if vc.HighQuality {
		opts = append(opts, voiceprint.WithHighQuality())
	}
	return opts
}

// newRecognizer returns the streaming recognizer for the recognizer
// section. "none" disables transcription.
func newRecognizer(rc config.RecognizerConfig, logger *slog.Logger) (asr.Recognizer, error) {
	switch rc.Provider {
	case "", config.ProviderNone:
		return asr.Nop, nil
	case config.ProviderOpenAI:
		t, err := asr.NewOpenAI(asr.OpenAIConfig{APIKey: rc.APIKey, BaseURL: rc.BaseURL, Model: rc.Model})
		if err != nil {
			return nil, err
		}
		return asr.NewSegmenter(t, rc.Segment, logger), nil
	}
	return nil, fmt.Errorf("unknown recognizer provider %q", rc.Provider)
}

// newCurator returns the memory curator, or nil when memories are disabled.
func newCurator(ctx context.Context, mc config.MemoryConfig, store memo.Store, logger *slog.Logger) (*memo.Curator, error) {
	var (
		s   memo.Summarizer
		err error
	)
	switch mc.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		s, err = memo.NewOpenAISummarizer(memo.OpenAIConfig{APIKey: mc.APIKey, BaseURL: mc.BaseURL, Model: mc.Model})
	case config.ProviderGemini:
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		s, err = memo.NewGeminiSummarizer(ctx, memo.GeminiConfig{APIKey: mc.APIKey, Model: mc.Model})
	default:
		return nil, fmt.Errorf("unknown memory provider %q", mc.Provider)
	}
	if err != nil {
		return nil, err
	}

	prompts, err := memo.LoadPrompts(mc.SystemPrompt, mc.UserPrompt)
	if err != nil {
		logger.Warn("using built-in memory prompts", "error", err)
	}
	return memo.NewCurator(store, s, prompts, logger), nil
}
