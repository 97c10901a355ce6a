package profile

import (
	"context"
	"path"
	"strings"

	"github.com/haivivi/voicerelay/pkg/kv"
	"github.com/haivivi/voicerelay/pkg/storage"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

var kvPrefix = kv.Key{"voiceprint", "profile"}

// KVBackend stores each profile under voiceprint:profile:{id}.
type KVBackend struct {
	store kv.Store
}

// NewKVBackend creates a Backend over store.
func NewKVBackend(store kv.Store) *KVBackend {
	return &KVBackend{store: store}
}

func (b *KVBackend) key(id string) kv.Key {
	return append(kvPrefix[:len(kvPrefix):len(kvPrefix)], id)
}

func (b *KVBackend) LoadAll(ctx context.Context) ([]voiceprint.Candidate, error) {
	var out []voiceprint.Candidate
	for e, err := range b.store.List(ctx, kvPrefix) {
		if err != nil {
			return nil, err
		}
		if len(e.Key) != len(kvPrefix)+1 {
			continue
		}
		out = append(out, voiceprint.Candidate{ID: e.Key[len(kvPrefix)], Profile: e.Value})
	}
	return out, nil
}

func (b *KVBackend) Save(ctx context.Context, id string, p voiceprint.Profile) error {
	return b.store.Set(ctx, b.key(id), p)
}

func (b *KVBackend) Remove(ctx context.Context, id string) error {
	return b.store.Delete(ctx, b.key(id))
}

const fileExt = ".vp"

// FileBackend stores each profile as {dir}/{id}.vp in a FileStore.
type FileBackend struct {
	fs  storage.FileStore
	dir string
}

// NewFileBackend creates a Backend over fs. dir defaults to "profiles".
func NewFileBackend(fs storage.FileStore, dir string) *FileBackend {
	if dir == "" {
		dir = "profiles"
	}
	return &FileBackend{fs: fs, dir: strings.Trim(dir, "/")}
}

func (b *FileBackend) path(id string) string {
	return path.Join(b.dir, id+fileExt)
}

func (b *FileBackend) LoadAll(ctx context.Context) ([]voiceprint.Candidate, error) {
	names, err := b.fs.List(ctx, b.dir+"/")
	if err != nil {
		return nil, err
	}
	var out []voiceprint.Candidate
	for _, name := range names {
		if path.Dir(name) != b.dir || !strings.HasSuffix(name, fileExt) {
			continue
		}
		data, err := storage.ReadFile(ctx, b.fs, name)
		if err != nil {
			return nil, err
		}
		out = append(out, voiceprint.Candidate{
			ID:      strings.TrimSuffix(path.Base(name), fileExt),
			Profile: data,
		})
	}
	return out, nil
}

func (b *FileBackend) Save(ctx context.Context, id string, p voiceprint.Profile) error {
	return storage.WriteFile(ctx, b.fs, b.path(id), p)
}

func (b *FileBackend) Remove(ctx context.Context, id string) error {
	return b.fs.Delete(ctx, b.path(id))
}
