// Package profile holds the table of enrolled voice profiles.
//
// Store keeps the whole table in memory, loaded once at startup from a
// Backend, and publishes it as immutable snapshots: identification reads a
// snapshot without locking while enrollments swap in a new one.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

var (
	// ErrPersistence wraps backend failures. The in-memory table has
	// already been updated when Put returns it.
	ErrPersistence = errors.New("profile: persistence failed")

	// ErrNotFound is returned for unknown identities.
	ErrNotFound = errors.New("profile: not found")
)

// Backend is durable storage for profiles.
type Backend interface {
	// LoadAll returns every stored profile.
	LoadAll(ctx context.Context) ([]voiceprint.Candidate, error)

	// Save stores p under id, replacing any previous profile.
	Save(ctx context.Context, id string, p voiceprint.Profile) error

	// Remove deletes id. Missing ids are not an error.
	Remove(ctx context.Context, id string) error
}

// Store is the in-memory profile table backed by a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[[]voiceprint.Candidate]
}

// NewStore creates an empty Store. Call Load before serving.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{backend: backend, logger: logger.With("component", "profile")}
	s.snap.Store(&[]voiceprint.Candidate{})
	return s
}

// Load replaces the table with the backend contents. A failure here should
// abort startup.
func (s *Store) Load(ctx context.Context) error {
	all, err := s.backend.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: load: %v", ErrPersistence, err)
	}
	seen := make(map[string]bool, len(all))
	list := make([]voiceprint.Candidate, 0, len(all))
	for _, c := range all {
		if c.ID == "" || seen[c.ID] {
			return fmt.Errorf("%w: load: duplicate or empty id %q", ErrPersistence, c.ID)
		}
		seen[c.ID] = true
		list = append(list, c)
	}
	slices.SortFunc(list, func(a, b voiceprint.Candidate) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	s.mu.Lock()
	s.snap.Store(&list)
	s.mu.Unlock()
	s.logger.Info("profiles loaded", "count", len(list))
	return nil
}

// Snapshot returns the current table. The slice is shared and must not be
// modified; later Puts never change it.
func (s *Store) Snapshot() []voiceprint.Candidate {
	return *s.snap.Load()
}

// Len returns the number of profiles.
func (s *Store) Len() int {
	return len(s.Snapshot())
}

// Get returns the profile for id.
func (s *Store) Get(id string) (voiceprint.Profile, error) {
	for _, c := range s.Snapshot() {
		if c.ID == id {
			return c.Profile, nil
		}
	}
	return nil, ErrNotFound
}

// Put publishes p under id and then persists it. The in-memory table is
// updated even when persistence fails; the error then wraps ErrPersistence.
func (s *Store) Put(ctx context.Context, id string, p voiceprint.Profile) error {
	if id == "" {
		return errors.New("profile: empty id")
	}
	p = slices.Clone(p)

	s.mu.Lock()
	old := s.Snapshot()
	next := make([]voiceprint.Candidate, 0, len(old)+1)
	next = append(next, old...)
	if i := slices.IndexFunc(next, func(c voiceprint.Candidate) bool { return c.ID == id }); i >= 0 {
		next[i] = voiceprint.Candidate{ID: id, Profile: p}
	} else {
		next = append(next, voiceprint.Candidate{ID: id, Profile: p})
	}
	s.snap.Store(&next)
	s.mu.Unlock()

	if err := s.backend.Save(ctx, id, p); err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrPersistence, id, err)
	}
	return nil
}

// Delete removes id from memory and from the backend.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	old := s.Snapshot()
	i := slices.IndexFunc(old, func(c voiceprint.Candidate) bool { return c.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	next := slices.Delete(slices.Clone(old), i, i+1)
	s.snap.Store(&next)
	s.mu.Unlock()

	if err := s.backend.Remove(ctx, id); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrPersistence, id, err)
	}
	return nil
}
