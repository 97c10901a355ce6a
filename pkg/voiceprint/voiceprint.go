// Package voiceprint resolves speakers from streamed audio.
//
// Two consumers sit on top of a pluggable [Engine]:
//
//   - [Identifier] scores an accumulated WAV buffer against enrolled
//     profiles and reports the first confident match.
//   - [Accumulator] collects audio per conversation until the engine has
//     heard enough to export a new [Profile].
//
// The engine is an opaque collaborator. [LocalEngine] is an in-process
// implementation built on mel filterbank statistics; a hosted provider can
// be plugged in by implementing [Engine].
//
// Profiles carry a short voice label ("voice:A3F8") derived with a [Hasher]
// so operators can tell profiles apart without decoding them.
package voiceprint

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when an engine cannot serve a request.
	ErrUnavailable = errors.New("voiceprint: engine unavailable")

	// ErrIncomplete is returned by Profiler.Export before enrollment reached 100%.
	ErrIncomplete = errors.New("voiceprint: enrollment incomplete")
)

// Profile is an opaque, immutable voice profile produced by an engine.
type Profile []byte

// Candidate pairs a resolved identity with its enrolled profile. A slice of
// candidates fixes the order in which scores are attributed.
type Candidate struct {
	ID      string
	Profile Profile
}

// Feedback is informational guidance reported by an enrollment engine.
type Feedback int

const (
	FeedbackNone Feedback = iota
	FeedbackGood
	FeedbackTooShort
	FeedbackNoVoice
)

func (f Feedback) String() string {
	switch f {
	case FeedbackNone:
		return "none"
	case FeedbackGood:
		return "good"
	case FeedbackTooShort:
		return "too_short"
	case FeedbackNoVoice:
		return "no_voice_found"
	default:
		return fmt.Sprintf("Feedback(%d)", int(f))
	}
}

// Engine is a speaker recognition and enrollment provider.
type Engine interface {
	// SampleRate is the mono PCM16 rate the engine consumes.
	SampleRate() int

	// NewRecognizer returns a scorer for profiles. Scores are reported in
	// the same order as profiles.
	NewRecognizer(profiles []Profile) (Recognizer, error)

	// NewProfiler starts a fresh enrollment.
	NewProfiler() (Profiler, error)
}

// Recognizer scores fixed-length frames against a profile set.
// It must be released with Close.
type Recognizer interface {
	// FrameLength is the exact number of samples Process accepts.
	FrameLength() int

	// Process returns one score in [0, 1] per profile.
	Process(frame []int16) ([]float32, error)

	Close() error
}

// Profiler accumulates enrollment audio. It must be released with Close.
type Profiler interface {
	// Enroll consumes samples and returns the completion percentage in
	// [0, 100] plus feedback.
	Enroll(samples []int16) (float32, Feedback, error)

	// Export returns the finished profile. It fails with ErrIncomplete
	// before completion.
	Export() (Profile, error)

	Close() error
}

// VoiceLabel returns a prefixed voice label string. Format: "voice:{hash}".
func VoiceLabel(hash string) string {
	return "voice:" + hash
}
