package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blenderpy/bpybuild/internal/logfields"
)

// Subdirectory names under the build root. The layout mirrors what the
// pipeline stages expect: a source checkout, a native build tree and the
// auxiliary-library cache. Each stage creates its own subdirectory on
// first use; the manager only hands out the paths.
const (
	SourceSubdir = "source"
	BuildSubdir  = "build"
	CacheSubdir  = "cache"
)

// DefaultRootName is the per-user build root directory name.
const DefaultRootName = ".blenderpy"

// Manager handles the build-root directory (persistent or ephemeral).
type Manager struct {
	baseDir    string
	root       string
	persistent bool
}

// NewManager creates a workspace manager with an ephemeral timestamped root.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir, persistent: false}
}

// NewPersistentManager creates a workspace manager with a fixed root that is
// not removed on Cleanup.
func NewPersistentManager(root string) *Manager {
	return &Manager{root: root, persistent: true}
}

// DefaultRoot returns the per-user persistent build root (~/.blenderpy),
// falling back to the system temp directory when the home directory is
// unknown.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), DefaultRootName)
	}
	return filepath.Join(home, DefaultRootName)
}

// Create ensures the root exists. Stage subdirectories are deliberately
// not created here: a run that fails before a stage starts must not leave
// that stage's directory behind (a probe failure leaves no build tree).
func (m *Manager) Create() error {
	if !m.persistent && m.root == "" {
		timestamp := time.Now().Format("20060102-150405")
		m.root = filepath.Join(m.baseDir, fmt.Sprintf("bpybuild-%s", timestamp))
	}
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	slog.Debug("Workspace ready", logfields.Path(m.root))
	return nil
}

// Root returns the build root path.
func (m *Manager) Root() string { return m.root }

// SourceDir returns the source-checkout directory.
func (m *Manager) SourceDir() string { return filepath.Join(m.root, SourceSubdir) }

// BuildDir returns the native build-tree directory.
func (m *Manager) BuildDir() string { return filepath.Join(m.root, BuildSubdir) }

// CacheDir returns the auxiliary-library cache directory.
func (m *Manager) CacheDir() string { return filepath.Join(m.root, CacheSubdir) }

// Cleanup removes the root in ephemeral mode and keeps it in persistent
// mode (the whole point of the persistent root is cache reuse).
func (m *Manager) Cleanup() error {
	if m.root == "" {
		return nil
	}
	if m.persistent {
		slog.Debug("Keeping persistent workspace", logfields.Path(m.root))
		return nil
	}
	if err := os.RemoveAll(m.root); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Removed workspace", logfields.Path(m.root))
	m.root = ""
	return nil
}
