package session

import "sync"

// Bindings maps conversations to resolved speaker identities. A binding is
// created unresolved on first use and, once resolved, never changes.
type Bindings struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewBindings creates an empty table.
func NewBindings() *Bindings {
	return &Bindings{m: make(map[string]string)}
}

// Ensure creates an unresolved binding for conversationID if none exists.
func (b *Bindings) Ensure(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.m[conversationID]; !ok {
		b.m[conversationID] = ""
	}
}

// Lookup returns the resolved identity for conversationID.
func (b *Bindings) Lookup(conversationID string) (identity string, resolved bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	identity = b.m[conversationID]
	return identity, identity != ""
}

// Known reports whether a binding exists, resolved or not.
func (b *Bindings) Known(conversationID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.m[conversationID]
	return ok
}

// Resolve binds conversationID to identity unless it is already resolved.
// It returns the identity in effect afterwards and whether this call set it.
func (b *Bindings) Resolve(conversationID, identity string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur := b.m[conversationID]; cur != "" {
		return cur, false
	}
	b.m[conversationID] = identity
	return identity, true
}

// Len returns the number of bindings.
func (b *Bindings) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.m)
}
