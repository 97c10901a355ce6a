package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/haivivi/voicerelay/pkg/kv"
	"github.com/haivivi/voicerelay/pkg/storage"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

type failingBackend struct {
	loadErr, saveErr error
	saved            []string
}

func (b *failingBackend) LoadAll(context.Context) ([]voiceprint.Candidate, error) {
	return nil, b.loadErr
}

func (b *failingBackend) Save(_ context.Context, id string, _ voiceprint.Profile) error {
	b.saved = append(b.saved, id)
	return b.saveErr
}

func (b *failingBackend) Remove(context.Context, string) error { return b.saveErr }

func backends(t *testing.T) map[string]func() Backend {
	return map[string]func() Backend{
		"kv": func() Backend { return NewKVBackend(kv.NewMemory(nil)) },
		"file": func() Backend {
			fs, err := storage.NewLocal(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			return NewFileBackend(fs, "")
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := newBackend()

			s := NewStore(b, nil)
			if err := s.Put(ctx, "u2", voiceprint.Profile("two")); err != nil {
				t.Fatal(err)
			}
			if err := s.Put(ctx, "u1", voiceprint.Profile("one")); err != nil {
				t.Fatal(err)
			}
			if err := s.Put(ctx, "u1", voiceprint.Profile("uno")); err != nil {
				t.Fatal(err)
			}

			reloaded := NewStore(b, nil)
			if err := reloaded.Load(ctx); err != nil {
				t.Fatal(err)
			}
			snap := reloaded.Snapshot()
			if len(snap) != 2 || snap[0].ID != "u1" || string(snap[0].Profile) != "uno" || snap[1].ID != "u2" {
				t.Fatalf("reloaded snapshot = %+v", snap)
			}

			if err := reloaded.Delete(ctx, "u1"); err != nil {
				t.Fatal(err)
			}
			again := NewStore(b, nil)
			again.Load(ctx)
			if again.Len() != 1 {
				t.Fatalf("Len after delete = %d, want 1", again.Len())
			}
		})
	}
}

func TestStoreSnapshotImmutable(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewKVBackend(kv.NewMemory(nil)), nil)
	s.Put(ctx, "a", voiceprint.Profile("1"))
	before := s.Snapshot()

	s.Put(ctx, "a", voiceprint.Profile("2"))
	s.Put(ctx, "b", voiceprint.Profile("3"))

	if len(before) != 1 || string(before[0].Profile) != "1" {
		t.Fatalf("earlier snapshot changed: %+v", before)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}

func TestStorePutPersistenceFailure(t *testing.T) {
	b := &failingBackend{saveErr: errors.New("disk full")}
	s := NewStore(b, nil)
	err := s.Put(context.Background(), "u1", voiceprint.Profile("p"))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Put error = %v, want ErrPersistence", err)
	}
	if p, err := s.Get("u1"); err != nil || string(p) != "p" {
		t.Fatalf("in-memory resolution lost: (%q, %v)", p, err)
	}
}

func TestStoreLoadFailure(t *testing.T) {
	s := NewStore(&failingBackend{loadErr: errors.New("unreachable")}, nil)
	if err := s.Load(context.Background()); !errors.Is(err, ErrPersistence) {
		t.Fatalf("Load error = %v, want ErrPersistence", err)
	}
}

func TestStoreGetDeleteMissing(t *testing.T) {
	s := NewStore(NewKVBackend(kv.NewMemory(nil)), nil)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get error = %v", err)
	}
	if err := s.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete error = %v", err)
	}
	if err := s.Put(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestStoreConcurrentPutAndRead(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewKVBackend(kv.NewMemory(nil)), nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Put(ctx, fmt.Sprintf("u%d", i), voiceprint.Profile("p"))
		}()
		go func() {
			defer wg.Done()
			for _, c := range s.Snapshot() {
				if c.ID == "" || c.Profile == nil {
					t.Error("observed partially written candidate")
				}
			}
		}()
	}
	wg.Wait()
	if s.Len() != 20 {
		t.Fatalf("Len = %d, want 20", s.Len())
	}
}

func TestFileBackendIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	fs, _ := storage.NewLocal(t.TempDir())
	storage.WriteFile(ctx, fs, "profiles/readme.txt", []byte("x"))
	storage.WriteFile(ctx, fs, "profiles/nested/u9.vp", []byte("x"))
	storage.WriteFile(ctx, fs, "profiles/u1.vp", []byte("p1"))

	all, err := NewFileBackend(fs, "profiles").LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != "u1" {
		t.Fatalf("LoadAll = %+v", all)
	}
}
