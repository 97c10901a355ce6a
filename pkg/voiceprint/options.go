package voiceprint

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/haivivi/voicerelay/pkg/audio/wav"
)

// DefaultThreshold is the score a frame must strictly exceed to match.
const DefaultThreshold float32 = 0.9

// Option configures an Identifier or Accumulator.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	threshold   float32
	highQuality bool
	newID       func() string
}

func newOptions(opts []Option) options {
	o := options{
		logger:    slog.Default(),
		threshold: DefaultThreshold,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) pcmOptions() []wav.Option {
	if o.highQuality {
		return []wav.Option{wav.WithHighQuality()}
	}
	return nil
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithThreshold sets the identification confidence threshold.
func WithThreshold(t float32) Option {
	return func(o *options) { o.threshold = t }
}

// WithHighQuality converts incoming WAV through the band-limited resampler.
func WithHighQuality() Option {
	return func(o *options) { o.highQuality = true }
}

// WithIDGenerator overrides the identity minted for completed enrollments.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}
