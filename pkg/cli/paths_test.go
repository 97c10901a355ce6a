package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPaths(t *testing.T) {
	base := t.TempDir()
	p := &Paths{AppName: "voicerelay", BaseDir: base}

	if got, want := p.ConfigFile(), filepath.Join(base, "voicerelay", "config.yaml"); got != want {
		t.Errorf("ConfigFile = %q, want %q", got, want)
	}
	if got, want := p.DataPath("kv"), filepath.Join(base, "voicerelay", "data", "kv"); got != want {
		t.Errorf("DataPath = %q, want %q", got, want)
	}
	if err := p.EnsureDataDir(); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(p.DataDir()); err != nil || !fi.IsDir() {
		t.Fatalf("DataDir not created: %v", err)
	}
}

func TestNewPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	p, err := NewPaths("voicerelay")
	if err != nil {
		t.Fatal(err)
	}
	if p.AppName != "voicerelay" || p.BaseDir == "" {
		t.Fatalf("NewPaths = %+v", p)
	}
}
