// Package memo keeps one long-term memory text per resolved speaker and
// refreshes it from chat history through an LLM summarizer.
package memo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voicerelay/pkg/kv"
)

// ErrNotFound is returned when a speaker has no stored memory.
var ErrNotFound = errors.New("memo: not found")

// Memory is the curated summary for one speaker.
type Memory struct {
	UserID    string    `msgpack:"u"`
	Content   string    `msgpack:"c"`
	UpdatedAt time.Time `msgpack:"t"`
}

// Store persists memories keyed by speaker identity.
type Store interface {
	Get(ctx context.Context, userID string) (Memory, error)
	// Put replaces the memory for userID and stamps UpdatedAt.
	Put(ctx context.Context, userID, content string) error
}

// KVStore stores memories as msgpack records under memo:{userID}.
type KVStore struct {
	kv  kv.Store
	now func() time.Time
}

// NewKVStore creates a Store over store.
func NewKVStore(store kv.Store) *KVStore {
	return &KVStore{kv: store, now: time.Now}
}

func (s *KVStore) Get(ctx context.Context, userID string) (Memory, error) {
	data, err := s.kv.Get(ctx, kv.Key{"memo", userID})
	if errors.Is(err, kv.ErrNotFound) {
		return Memory{}, ErrNotFound
	}
	if err != nil {
		return Memory{}, fmt.Errorf("memo: get %s: %w", userID, err)
	}
	var m Memory
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Memory{}, fmt.Errorf("memo: decode %s: %w", userID, err)
	}
	return m, nil
}

func (s *KVStore) Put(ctx context.Context, userID, content string) error {
	data, err := msgpack.Marshal(&Memory{UserID: userID, Content: content, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("memo: encode %s: %w", userID, err)
	}
	if err := s.kv.Set(ctx, kv.Key{"memo", userID}, data); err != nil {
		return fmt.Errorf("memo: put %s: %w", userID, err)
	}
	return nil
}
