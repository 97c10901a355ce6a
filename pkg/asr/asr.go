// Package asr defines the streaming recognizer a voice session pushes audio
// into, and a segmenting implementation that batches pushed audio into
// short WAV clips for a request/response transcription API.
package asr

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned by Stream.Write after CloseSend or Close.
var ErrClosed = errors.New("asr: stream closed")

// Result is one recognized segment.
type Result struct {
	Text     string
	Language string
}

// StreamConfig describes the audio a stream will receive.
type StreamConfig struct {
	// Language is a BCP 47 tag such as "en-US".
	Language string
	// SampleRate is the PCM rate audio is normalized to. Zero means 16000.
	SampleRate int
}

// Recognizer starts recognition streams.
type Recognizer interface {
	Start(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream accepts pushed audio and yields recognized segments in order.
type Stream interface {
	// Write pushes one audio chunk, WAV or raw PCM16 at the configured rate.
	Write(chunk []byte) error
	// Next blocks for the next result. It returns buffer.ErrIteratorDone
	// once the stream has finished after CloseSend, or another error if the
	// stream was closed early.
	Next() (Result, error)
	// CloseSend stops accepting audio. Pending audio is still recognized.
	CloseSend() error
	// Close abandons pending work and releases the stream.
	Close() error
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, cfg StreamConfig) (Stream, error)

func (f RecognizerFunc) Start(ctx context.Context, cfg StreamConfig) (Stream, error) {
	return f(ctx, cfg)
}

// BaseLanguage returns the primary subtag of a BCP 47 tag ("en-US" -> "en").
func BaseLanguage(tag string) string {
	base, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(base)
}
