package session

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// Registry holds live sessions in fixed shards so unrelated sessions do not
// contend on one lock. Each Session carries its own mutex for its fields.
type Registry struct {
	shards [shardCount]registryShard
}

type registryShard struct {
	mu sync.RWMutex
	m  map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].m = make(map[string]*Session)
	}
	return r
}

func (r *Registry) shard(id string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.shards[h.Sum32()%shardCount]
}

// Add registers s. It reports false if the id is already taken.
func (r *Registry) Add(s *Session) bool {
	sh := r.shard(s.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[s.ID]; ok {
		return false
	}
	sh.m[s.ID] = s
	return true
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.m[id]
	return s, ok
}

// Remove unregisters id only if it still maps to s.
func (r *Registry) Remove(id string, s *Session) bool {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m[id]; !ok || cur != s {
		return false
	}
	delete(sh.m, id)
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot returns every registered session. Order is unspecified.
func (r *Registry) Snapshot() []*Session {
	var out []*Session
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, s := range sh.m {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}
