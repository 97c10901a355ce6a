package cli

import (
	"os"
	"path/filepath"
)

// DefaultConfigFile is the config file name inside the app directory.
const DefaultConfigFile = "config.yaml"

// Paths locates an app's per-user directories under os.UserConfigDir.
type Paths struct {
	AppName string
	BaseDir string
}

// NewPaths returns the directories for appName.
func NewPaths(appName string) (*Paths, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &Paths{AppName: appName, BaseDir: base}, nil
}

// AppDir returns {BaseDir}/{AppName}.
func (p *Paths) AppDir() string {
	return filepath.Join(p.BaseDir, p.AppName)
}

// ConfigFile returns the default config file path.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// DataDir returns the directory for local databases and profile files.
func (p *Paths) DataDir() string {
	return filepath.Join(p.AppDir(), "data")
}

// DataPath returns a path inside DataDir.
func (p *Paths) DataPath(name string) string {
	return filepath.Join(p.DataDir(), name)
}

// EnsureDataDir creates DataDir if needed.
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir(), 0o755)
}
