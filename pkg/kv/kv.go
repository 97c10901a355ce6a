// Package kv is the key-value persistence layer behind voice profiles and
// long-term memories.
//
// Keys are hierarchical paths such as Key{"voiceprint", "profile", id},
// joined with a separator (default ':') when written to the backend.
// Three backends are provided: Memory for tests and single-shot tools,
// Badger for a durable local store, and Redis for deployments where several
// relay instances share one profile table.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path. Segments must not contain the separator.
type Key []string

// String joins the segments with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List yields every entry strictly below prefix in lexicographic order
	// of the encoded key. An empty prefix lists the whole store.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	Close() error
}

// DefaultSeparator joins key segments when no separator is configured.
const DefaultSeparator byte = ':'

// Options configures key encoding. A nil *Options uses the defaults.
type Options struct {
	Separator byte
}

func (o *Options) sep() string {
	if o != nil && o.Separator != 0 {
		return string(o.Separator)
	}
	return string(DefaultSeparator)
}

func (o *Options) encode(k Key) string {
	return strings.Join(k, o.sep())
}

func (o *Options) decode(s string) Key {
	return Key(strings.Split(s, o.sep()))
}

// scanPrefix returns the encoded prefix that entries below k start with, or
// "" to match everything. The trailing separator keeps "a:b" from matching
// "a:bc".
func (o *Options) scanPrefix(k Key) string {
	if len(k) == 0 {
		return ""
	}
	return o.encode(k) + o.sep()
}

// Collect drains a List iterator into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	var out []Entry
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}
