package voiceprint

import (
	"context"
	"math"
	"sync"

	"github.com/haivivi/voicerelay/pkg/audio/wav"
)

// Enrollment is the result of one Accumulator.Feed call.
type Enrollment struct {
	// ID and Profile are set once enrollment completes.
	ID      string
	Profile Profile

	// Progress is the completion percentage in [0, 100].
	Progress float32

	Feedback Feedback
}

// Done reports whether a profile was produced.
func (e Enrollment) Done() bool { return e.Profile != nil }

// Accumulator builds voice profiles incrementally, keyed by conversation so
// that enrollment survives across the sessions of one speaker.
type Accumulator struct {
	engine Engine
	opts   options

	mu     sync.Mutex
	states map[string]*enrollState
}

type enrollState struct {
	mu       sync.Mutex
	audio    []byte
	progress float32
	done     bool
}

// NewAccumulator creates an Accumulator backed by engine.
func NewAccumulator(engine Engine, opts ...Option) *Accumulator {
	o := newOptions(opts)
	o.logger = o.logger.With("component", "voiceprint.accumulator")
	return &Accumulator{
		engine: engine,
		opts:   o,
		states: make(map[string]*enrollState),
	}
}

// Feed appends buffer to the audio collected for conversationID and re-runs
// enrollment over everything collected so far. Reported progress never
// decreases between calls. When progress reaches 100 the profile is
// exported under a fresh identity and the conversation's state is dropped.
//
// A buffer that is not valid WAV is discarded without touching the
// collected audio. Engine failures return the last known progress.
func (a *Accumulator) Feed(ctx context.Context, conversationID string, buffer []byte) Enrollment {
	log := a.opts.logger.With("conversation", conversationID)

	st := a.lock(conversationID)
	defer st.mu.Unlock()

	last := Enrollment{Progress: st.progress}
	if err := ctx.Err(); err != nil {
		return last
	}

	rate := a.engine.SampleRate()
	if len(buffer) > 0 {
		if _, err := wav.ToPCM(buffer, rate); err != nil {
			log.Warn("discarding unusable enrollment audio", "error", err, "bytes", len(buffer))
			return last
		}
		st.audio = append(st.audio, buffer...)
	}
	if len(st.audio) == 0 {
		return last
	}

	samples, err := wav.ToPCM(st.audio, rate, a.opts.pcmOptions()...)
	if err != nil {
		log.Warn("collected audio is unusable", "error", err)
		return last
	}

	profiler, err := a.engine.NewProfiler()
	if err != nil {
		log.Warn("profiler unavailable", "error", err)
		return last
	}
	defer profiler.Close()

	pct, feedback, err := profiler.Enroll(samples)
	if err != nil {
		log.Warn("enrollment failed", "error", err)
		return last
	}
	if math.IsNaN(float64(pct)) || math.IsInf(float64(pct), 0) || pct < 0 {
		log.Warn("ignoring invalid enrollment progress", "reported", pct)
		pct = st.progress
	}
	pct = min(max(pct, st.progress), 100)
	st.progress = pct
	log.Debug("enrollment progress", "progress", pct, "feedback", feedback.String(), "bytes", len(st.audio))

	if pct < 100 {
		return Enrollment{Progress: pct, Feedback: feedback}
	}

	profile, err := profiler.Export()
	if err != nil {
		log.Warn("profile export failed", "error", err)
		return Enrollment{Progress: pct, Feedback: feedback}
	}

	id := a.opts.newID()
	st.done = true
	a.mu.Lock()
	delete(a.states, conversationID)
	a.mu.Unlock()

	log.Info("enrollment complete", "id", id, "profile_bytes", len(profile))
	return Enrollment{ID: id, Profile: profile, Progress: 100, Feedback: feedback}
}

// lock returns the live state for conversationID with its mutex held.
func (a *Accumulator) lock(conversationID string) *enrollState {
	for {
		a.mu.Lock()
		st, ok := a.states[conversationID]
		if !ok {
			st = &enrollState{}
			a.states[conversationID] = st
		}
		a.mu.Unlock()

		st.mu.Lock()
		if !st.done {
			return st
		}
		// Completed by a concurrent Feed after we looked it up.
		st.mu.Unlock()
	}
}

// Progress returns the last reported percentage for conversationID.
func (a *Accumulator) Progress(conversationID string) float32 {
	a.mu.Lock()
	st, ok := a.states[conversationID]
	a.mu.Unlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.progress
}

// Reset discards any collected audio for conversationID.
func (a *Accumulator) Reset(conversationID string) {
	a.mu.Lock()
	st, ok := a.states[conversationID]
	delete(a.states, conversationID)
	a.mu.Unlock()
	if ok {
		st.mu.Lock()
		st.done = true
		st.mu.Unlock()
	}
}

// Pending returns the number of conversations with enrollment in progress.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.states)
}
