package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haivivi/voicerelay/pkg/profile"
	"github.com/haivivi/voicerelay/pkg/storage"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel, outputFlag, verbose, flagListen = "", "", "", false, ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeConfig writes a config file using a local storage dir under t.TempDir.
func writeConfig(t *testing.T, extra string) (path, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	path = filepath.Join(dir, "config.yaml")
	content := "storage:\n  backend: local\n  dir: " + dataDir + "\n" + extra
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, dataDir
}

func testProfile(t *testing.T, seed float32) voiceprint.Profile {
	t.Helper()
	centroid := make([]float32, 80)
	for i := range centroid {
		centroid[i] = seed * float32(i%7-3)
	}
	p, err := voiceprint.EncodeProfile(&voiceprint.ProfileData{
		Version:    1,
		SampleRate: 16000,
		Frames:     8,
		Centroid:   centroid,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "voicerelay") {
		t.Fatalf("expected 'voicerelay', got: %s", out)
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := runCmd(t, "version", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("expected JSON, got: %s", out)
	}
	if info["version"] == "" || info["go"] == "" {
		t.Fatalf("missing fields: %v", info)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path, _ := writeConfig(t, "memory:\n  provider: openai\n  api_key: sk-abcdefghijklmnop\n")
	out, err := runCmd(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "sk-abcdefghijklmnop") {
		t.Fatalf("secret leaked:\n%s", out)
	}
	if !strings.Contains(out, "sk-a") || !strings.Contains(out, "backend: local") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigShowInvalid(t *testing.T) {
	path, _ := writeConfig(t, "voiceprint:\n  threshold: 2\n")
	if _, err := runCmd(t, "--config", path, "config", "show"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfigPath(t *testing.T) {
	out, err := runCmd(t, "--config", "/etc/voicerelay.yaml", "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "/etc/voicerelay.yaml" {
		t.Fatalf("path = %q", out)
	}
}

func TestProfilesListAndDelete(t *testing.T) {
	path, dataDir := writeConfig(t, "")

	ctx := context.Background()
	fs, err := storage.NewLocal(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	backend := profile.NewFileBackend(fs, profilesDir)
	if err := backend.Save(ctx, "alice", testProfile(t, 1)); err != nil {
		t.Fatal(err)
	}
	if err := backend.Save(ctx, "bob", voiceprint.Profile("opaque")); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "--config", path, "profiles", "list", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var rows []profileRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 2 || rows[0].ID != "alice" || rows[1].ID != "bob" {
		t.Fatalf("rows = %+v", rows)
	}
	if !strings.HasPrefix(rows[0].Label, "voice:") || len(rows[0].Label) != len("voice:")+4 {
		t.Errorf("alice label = %q", rows[0].Label)
	}
	if rows[1].Label != "-" || rows[1].Size != len("opaque") {
		t.Errorf("bob row = %+v", rows[1])
	}

	out, err = runCmd(t, "--config", path, "profiles", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "LABEL") || !strings.Contains(out, "alice") {
		t.Errorf("table output:\n%s", out)
	}

	if _, err := runCmd(t, "--config", path, "profiles", "delete", "bob"); err != nil {
		t.Fatal(err)
	}
	all, err := backend.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != "alice" {
		t.Fatalf("after delete: %+v", all)
	}

	if _, err := runCmd(t, "--config", path, "profiles", "delete", "carol"); err == nil {
		t.Fatal("expected error deleting unknown profile")
	}
}
