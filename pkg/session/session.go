// Package session tracks live voice sessions: the audio uploaded so far, the
// transcript produced by the recognizer, and whether the speaker has been
// resolved to an enrolled voice profile.
//
// A session moves Created -> Streaming -> Closing -> Closed -> Removed. Once
// Closing, uploads and repeated closes fail with ErrNotFound. A closed
// session stays readable for a grace period so that a late listener can
// still receive the final transcript, then it is removed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/haivivi/voicerelay/pkg/asr"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

var (
	// ErrInvalidArgument is returned when a required field is missing.
	ErrInvalidArgument = errors.New("session: invalid argument")

	// ErrNotFound is returned for unknown, closing or removed sessions.
	ErrNotFound = errors.New("session: not found")

	// ErrShutdown is returned by Open once the manager is shutting down.
	ErrShutdown = errors.New("session: manager shut down")
)

// State is the lifecycle state of a session.
type State int

const (
	StateCreated State = iota
	StateStreaming
	StateClosing
	StateClosed
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// EventRecognized is the event name of the final transcript message.
const EventRecognized = "recognized"

// Message is sent to a Listener. It is either a recognized transcript or an
// error payload.
type Message struct {
	Event    string
	Text     string
	Language string
	Error    string
}

// MarshalJSON encodes an error payload as {"error": ...} and anything else
// as {"event", "text", "language"}.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{m.Error})
	}
	return json.Marshal(struct {
		Event    string `json:"event"`
		Text     string `json:"text"`
		Language string `json:"language"`
	}{m.Event, m.Text, m.Language})
}

// Listener receives the final transcript of a session.
type Listener interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Identifier matches accumulated session audio against enrolled profiles.
type Identifier interface {
	Identify(ctx context.Context, buffer []byte, candidates []voiceprint.Candidate) (string, bool)
}

// Enroller accumulates audio of unknown speakers into new profiles.
type Enroller interface {
	Feed(ctx context.Context, conversationID string, buffer []byte) voiceprint.Enrollment
}

// ProfileStore is the enrolled profile set.
type ProfileStore interface {
	Snapshot() []voiceprint.Candidate
	Put(ctx context.Context, id string, p voiceprint.Profile) error
}

// Session is one audio streaming interaction within a conversation.
type Session struct {
	ID             string
	ConversationID string
	Language       string
	CreatedAt      time.Time

	mu         sync.Mutex
	state      State
	audio      []byte
	resolved   bool
	identity   string
	transcript strings.Builder
	stream     asr.Stream
	listener   Listener
	final      *Message
	cleanup    *time.Timer

	// drained is closed when the transcript accumulator has exited.
	drained chan struct{}
}

// Info is a point-in-time copy of a session's state.
type Info struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Language       string    `json:"language"`
	State          string    `json:"state"`
	Resolved       bool      `json:"resolved"`
	Identity       string    `json:"identity,omitempty"`
	AudioBytes     int       `json:"audio_bytes"`
	Transcript     string    `json:"transcript"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:             s.ID,
		ConversationID: s.ConversationID,
		Language:       s.Language,
		State:          s.state.String(),
		Resolved:       s.resolved,
		Identity:       s.identity,
		AudioBytes:     len(s.audio),
		Transcript:     s.transcript.String(),
		CreatedAt:      s.CreatedAt,
	}
}

// markResolved sets the sticky resolved flag. The first identity wins.
func (s *Session) markResolved(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return
	}
	s.resolved = true
	s.identity = identity
}
