package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/voicerelay/pkg/asr"
	"github.com/haivivi/voicerelay/pkg/buffer"
)

// Defaults for Config fields left zero.
const (
	DefaultGracePeriod   = 5 * time.Second
	DefaultNotifyTimeout = 2 * time.Second
	DefaultDrainTimeout  = 5 * time.Second
	DefaultSampleRate    = 16000
)

// Config wires a Manager to its collaborators.
type Config struct {
	Recognizer asr.Recognizer
	Identifier Identifier
	Enroller   Enroller
	Profiles   ProfileStore

	// Bindings is shared with readers such as the memories endpoints. A nil
	// value creates a private table.
	Bindings *Bindings
	Metrics  *Metrics
	Logger   *slog.Logger

	// GracePeriod is how long a closed session stays readable.
	GracePeriod time.Duration
	// NotifyTimeout bounds the final listener send.
	NotifyTimeout time.Duration
	// DrainTimeout bounds the wait for outstanding recognizer results.
	DrainTimeout time.Duration
	// SampleRate is the PCM rate requested from the recognizer.
	SampleRate int

	NewID func() string
}

func (c *Config) setDefaults() {
	if c.Recognizer == nil {
		c.Recognizer = asr.Nop
	}
	if c.Bindings == nil {
		c.Bindings = NewBindings()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
}

// Manager runs the session lifecycle.
type Manager struct {
	cfg      Config
	sessions *Registry
	bindings *Bindings
	metrics  *Metrics
	logger   *slog.Logger

	shutdown atomic.Bool
}

// NewManager creates a Manager. Identifier, Enroller and Profiles are
// required.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Identifier == nil || cfg.Enroller == nil || cfg.Profiles == nil {
		return nil, fmt.Errorf("session: identifier, enroller and profiles are required")
	}
	cfg.setDefaults()
	return &Manager{
		cfg:      cfg,
		sessions: NewRegistry(),
		bindings: cfg.Bindings,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "session"),
	}, nil
}

// Bindings returns the conversation binding table.
func (m *Manager) Bindings() *Bindings { return m.bindings }

// Open starts a session for conversationID and returns its id. A recognizer
// that fails to start is logged and the session runs without a transcript.
func (m *Manager) Open(ctx context.Context, conversationID, language string) (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("%w: conversation id is required", ErrInvalidArgument)
	}
	if language == "" {
		return "", fmt.Errorf("%w: language is required", ErrInvalidArgument)
	}
	if m.shutdown.Load() {
		return "", ErrShutdown
	}

	m.bindings.Ensure(conversationID)
	s := &Session{
		ID:             m.cfg.NewID(),
		ConversationID: conversationID,
		Language:       language,
		CreatedAt:      time.Now(),
		drained:        make(chan struct{}),
	}
	if identity, ok := m.bindings.Lookup(conversationID); ok {
		s.resolved, s.identity = true, identity
	}
	log := m.logger.With("session", s.ID, "conversation", conversationID)

	stream, err := m.cfg.Recognizer.Start(ctx, asr.StreamConfig{Language: language, SampleRate: m.cfg.SampleRate})
	if err != nil {
		log.Warn("recognizer unavailable, session opens without transcription", "error", err)
		close(s.drained)
	} else {
		s.stream = stream
		go m.accumulate(s, stream, log)
	}

	if !m.sessions.Add(s) {
		if stream != nil {
			stream.Close()
		}
		return "", fmt.Errorf("session: duplicate id %s", s.ID)
	}
	m.metrics.SessionsTotal.Inc()
	m.metrics.SessionsActive.Inc()
	log.Info("session opened", "language", language, "resolved", s.resolved)
	return s.ID, nil
}

// accumulate is the only writer of the session transcript.
func (m *Manager) accumulate(s *Session, stream asr.Stream, log *slog.Logger) {
	defer close(s.drained)
	for {
		r, err := stream.Next()
		if err != nil {
			if !errors.Is(err, buffer.ErrIteratorDone) && !errors.Is(err, asr.ErrClosed) {
				log.Warn("recognizer stream ended", "error", err)
			}
			return
		}
		s.mu.Lock()
		s.transcript.WriteString(r.Text)
		s.transcript.WriteString(" ")
		s.mu.Unlock()
	}
}

// Upload appends chunk to the session audio, forwards it to the recognizer
// and, while the speaker is unknown, tries to identify them.
func (m *Manager) Upload(ctx context.Context, sessionID string, chunk []byte) error {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return ErrNotFound
	}
	log := m.logger.With("session", sessionID, "conversation", s.ConversationID)

	s.mu.Lock()
	if s.state >= StateClosing {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.state = StateStreaming
	s.audio = append(s.audio, chunk...)
	if s.stream != nil {
		if err := s.stream.Write(chunk); err != nil {
			log.Warn("recognizer write failed", "error", err)
		}
	}
	// The prefix of an append-only slice is never rewritten.
	audio := s.audio
	resolved := s.resolved
	s.mu.Unlock()

	m.metrics.AudioBytesTotal.Add(float64(len(chunk)))
	if resolved {
		return nil
	}

	if identity, ok := m.bindings.Lookup(s.ConversationID); ok {
		s.markResolved(identity)
		m.metrics.Identifications.WithLabelValues(resultBound).Inc()
		return nil
	}

	identity, ok := m.cfg.Identifier.Identify(ctx, audio, m.cfg.Profiles.Snapshot())
	if !ok {
		m.metrics.Identifications.WithLabelValues(resultNoMatch).Inc()
		return nil
	}
	winner, _ := m.bindings.Resolve(s.ConversationID, identity)
	s.markResolved(winner)
	m.metrics.Identifications.WithLabelValues(resultMatch).Inc()
	log.Info("speaker identified", "identity", winner, "audio_bytes", len(audio))
	return nil
}

// Close ends the session: it stops the recognizer, delivers the transcript
// to the attached listener, feeds unresolved audio to enrollment and
// schedules removal after the grace period.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return ErrNotFound
	}
	s.mu.Lock()
	if s.state >= StateClosing {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.state = StateClosing
	stream := s.stream
	s.mu.Unlock()
	m.metrics.SessionsActive.Dec()

	log := m.logger.With("session", sessionID, "conversation", s.ConversationID)

	release := func() {}
	if stream != nil {
		release = sync.OnceFunc(func() {
			if err := stream.Close(); err != nil {
				log.Warn("recognizer release failed", "error", err)
			}
		})
		defer release()
		if err := stream.CloseSend(); err != nil {
			log.Warn("recognizer close send failed", "error", err)
		}
	}
	m.waitDrained(ctx, s, log)
	release()

	s.mu.Lock()
	final := Message{Event: EventRecognized, Text: s.transcript.String(), Language: s.Language}
	s.final = &final
	listener := s.listener
	resolved := s.resolved
	audio := s.audio
	s.mu.Unlock()

	if listener != nil {
		m.notify(listener, final, log)
	}
	if !resolved {
		m.enroll(ctx, s, audio, log)
	}

	s.mu.Lock()
	if s.state == StateRemoved {
		s.mu.Unlock()
		log.Info("session removed while closing", "audio_bytes", len(audio))
		return nil
	}
	s.state = StateClosed
	s.cleanup = time.AfterFunc(m.cfg.GracePeriod, func() { m.remove(s) })
	s.mu.Unlock()

	log.Info("session closed", "audio_bytes", len(audio), "transcript_len", len(final.Text))
	return nil
}

func (m *Manager) waitDrained(ctx context.Context, s *Session, log *slog.Logger) {
	timer := time.NewTimer(m.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-s.drained:
	case <-timer.C:
		log.Warn("recognizer did not drain in time", "timeout", m.cfg.DrainTimeout)
	case <-ctx.Done():
		log.Warn("close cancelled while draining recognizer", "error", ctx.Err())
	}
}

func (m *Manager) notify(l Listener, msg Message, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.NotifyTimeout)
	defer cancel()
	if err := l.Send(ctx, msg); err != nil {
		log.Warn("listener notification failed", "error", err)
	}
}

func (m *Manager) enroll(ctx context.Context, s *Session, audio []byte, log *slog.Logger) {
	if identity, ok := m.bindings.Lookup(s.ConversationID); ok {
		s.markResolved(identity)
		m.metrics.Enrollments.WithLabelValues(resultSkipped).Inc()
		return
	}

	e := m.cfg.Enroller.Feed(ctx, s.ConversationID, audio)
	m.metrics.EnrollmentProgress.Observe(float64(e.Progress))
	if !e.Done() {
		m.metrics.Enrollments.WithLabelValues(resultPartial).Inc()
		log.Info("enrollment in progress", "progress", e.Progress, "feedback", e.Feedback.String())
		return
	}

	// Claim the binding before persisting so a profile that lost the race is
	// never stored.
	winner, won := m.bindings.Resolve(s.ConversationID, e.ID)
	s.markResolved(winner)
	if !won {
		m.metrics.Enrollments.WithLabelValues(resultDiscarded).Inc()
		log.Info("enrolled profile discarded, conversation already resolved", "identity", winner)
		return
	}
	if err := m.cfg.Profiles.Put(ctx, e.ID, e.Profile); err != nil {
		m.metrics.Enrollments.WithLabelValues(resultPersistFail).Inc()
		log.Error("enrolled profile not persisted", "identity", e.ID, "error", err)
		return
	}
	m.metrics.Enrollments.WithLabelValues(resultEnrolled).Inc()
	log.Info("speaker enrolled", "identity", e.ID)
}

func (m *Manager) remove(s *Session) {
	m.sessions.Remove(s.ID, s)
	s.mu.Lock()
	s.state = StateRemoved
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
}

// Attach binds l to the session so it receives the final transcript. A
// listener already attached is replaced and closed. If the session has
// already closed the transcript is sent immediately. For unknown sessions l
// receives an error payload and is closed.
func (m *Manager) Attach(sessionID string, l Listener) error {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		m.reject(l)
		return ErrNotFound
	}

	s.mu.Lock()
	if s.state == StateRemoved {
		s.mu.Unlock()
		m.reject(l)
		return ErrNotFound
	}
	old := s.listener
	s.listener = l
	final := s.final
	s.mu.Unlock()

	log := m.logger.With("session", sessionID)
	if old != nil && old != l {
		old.Close()
	}
	if final != nil {
		m.notify(l, *final, log)
	}
	log.Debug("listener attached", "late", final != nil)
	return nil
}

func (m *Manager) reject(l Listener) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.NotifyTimeout)
	defer cancel()
	l.Send(ctx, Message{Error: "Session not found"})
	l.Close()
}

// Get returns a snapshot of the session.
func (m *Manager) Get(sessionID string) (Info, error) {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return Info{}, ErrNotFound
	}
	info := s.info()
	if info.State == StateRemoved.String() {
		return Info{}, ErrNotFound
	}
	return info, nil
}

// Transcript returns the text recognized so far.
func (m *Manager) Transcript(sessionID string) (string, error) {
	info, err := m.Get(sessionID)
	if err != nil {
		return "", err
	}
	return info.Transcript, nil
}

// Len returns the number of sessions still registered, including closed
// sessions in their grace period.
func (m *Manager) Len() int { return m.sessions.Len() }

// Shutdown closes every open session and removes all sessions without
// waiting for their grace period. Open fails with ErrShutdown afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdown.Store(true)
	var errs []error
	for _, s := range m.sessions.Snapshot() {
		if err := m.Close(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	for _, s := range m.sessions.Snapshot() {
		s.mu.Lock()
		t := s.cleanup
		s.mu.Unlock()
		if t != nil {
			t.Stop()
		}
		m.remove(s)
	}
	return errors.Join(errs...)
}
