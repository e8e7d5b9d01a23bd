package relocate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blenderpy/bpybuild/internal/buildsys"
	"github.com/blenderpy/bpybuild/internal/config"
	"github.com/blenderpy/bpybuild/internal/foundation/errors"
)

// failingMover delegates to the real mover but fails any move whose
// destination contains failOn.
type failingMover struct {
	real   osMover
	failOn string
}

func (m *failingMover) Move(src, dst string) error {
	if m.failOn != "" && strings.Contains(dst, m.failOn) {
		return fmt.Errorf("injected move failure")
	}
	return m.real.Move(src, dst)
}

// seedArtifacts lays out a fake build output and returns it with a config
// pointing at fresh install directories.
func seedArtifacts(t *testing.T, withSupport bool, dlls []string) (*buildsys.Output, *config.BuildConfig) {
	t.Helper()
	root := t.TempDir()

	output := &buildsys.Output{Root: root, ModulePath: filepath.Join(root, "bpy.pyd")}
	require.NoError(t, os.WriteFile(output.ModulePath, []byte("module"), 0o644))

	if withSupport {
		output.SupportDir = filepath.Join(root, "2.79")
		require.NoError(t, os.MkdirAll(filepath.Join(output.SupportDir, "scripts"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(output.SupportDir, "scripts", "startup.py"), []byte("pass"), 0o644))
	}
	for _, name := range dlls {
		path := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(path, []byte("lib"), 0o644))
		output.CompanionDLLs = append(output.CompanionDLLs, path)
	}

	cfg := &config.BuildConfig{
		InstallDir:     filepath.Join(t.TempDir(), "site-packages"),
		InterpreterDir: filepath.Join(t.TempDir(), "python"),
	}
	return output, cfg
}

func TestRelocateMovesEverything(t *testing.T) {
	output, cfg := seedArtifacts(t, true, []string{"avcodec-57.dll", "libfftw3-3.dll"})

	placement, err := NewRelocator().Relocate(output, cfg)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.InstallDir, "bpy.pyd"), placement.ModulePath)
	assert.FileExists(t, placement.ModulePath)
	assert.Equal(t, filepath.Join(cfg.InterpreterDir, "2.79"), placement.SupportDir)
	assert.FileExists(t, filepath.Join(placement.SupportDir, "scripts", "startup.py"))
	for _, dll := range placement.CompanionDLLs {
		assert.FileExists(t, dll)
		assert.Equal(t, cfg.InstallDir, filepath.Dir(dll), "companion libraries live next to the module")
	}

	// The build tree no longer holds the artifacts.
	assert.NoFileExists(t, output.ModulePath)
	assert.NoDirExists(t, output.SupportDir)
}

func TestRelocateWithoutSupportDir(t *testing.T) {
	output, cfg := seedArtifacts(t, false, nil)

	placement, err := NewRelocator().Relocate(output, cfg)
	require.NoError(t, err)
	assert.Empty(t, placement.SupportDir)
	assert.FileExists(t, placement.ModulePath)
}

func TestRelocateDisplacesExistingSupportDir(t *testing.T) {
	output, cfg := seedArtifacts(t, true, nil)

	previous := filepath.Join(cfg.InterpreterDir, "2.79")
	require.NoError(t, os.MkdirAll(previous, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(previous, "marker"), []byte("previous install"), 0o644))

	placement, err := NewRelocator().Relocate(output, cfg)
	require.NoError(t, err)

	// New support dir in place, old one pushed aside rather than deleted.
	assert.FileExists(t, filepath.Join(placement.SupportDir, "scripts", "startup.py"))
	assert.FileExists(t, filepath.Join(cfg.InterpreterDir, "2.79.old", "marker"))
	assert.NoFileExists(t, filepath.Join(placement.SupportDir, "marker"))
}

func TestRelocateSecondMoveFailureRollsBack(t *testing.T) {
	output, cfg := seedArtifacts(t, true, nil)

	// The module move succeeds, the support-directory move fails.
	mover := &failingMover{failOn: cfg.InterpreterDir}
	_, err := NewRelocator(WithMover(mover)).Relocate(output, cfg)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRelocate))
	assert.True(t, errors.HasCode(err, errors.CodePartialFailure), "got %v", err)

	// The completed module move was reversed; nothing reached the install dir.
	assert.FileExists(t, output.ModulePath)
	assert.NoFileExists(t, filepath.Join(cfg.InstallDir, "bpy.pyd"))
}

func TestRelocateFirstMoveFailure(t *testing.T) {
	output, cfg := seedArtifacts(t, false, nil)

	mover := &failingMover{failOn: cfg.InstallDir}
	_, err := NewRelocator(WithMover(mover)).Relocate(output, cfg)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRelocate))
	assert.False(t, errors.HasCode(err, errors.CodePartialFailure), "nothing moved, nothing partial")

	assert.FileExists(t, output.ModulePath)
}

func TestRelocateRollbackRestoresDisplacedSupportDir(t *testing.T) {
	output, cfg := seedArtifacts(t, true, nil)

	previous := filepath.Join(cfg.InterpreterDir, "2.79")
	require.NoError(t, os.MkdirAll(previous, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(previous, "marker"), []byte("previous install"), 0o644))

	// Displacement succeeds, then the module move fails.
	mover := &failingMover{failOn: cfg.InstallDir}
	_, err := NewRelocator(WithMover(mover)).Relocate(output, cfg)
	require.Error(t, err)

	// The previous install is back where it was.
	assert.FileExists(t, filepath.Join(previous, "marker"))
	assert.NoDirExists(t, previous+displacedSuffix)
}

func TestDisplaceReportsUnreadableDestination(t *testing.T) {
	occupied := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(occupied, []byte("x"), 0o644))

	// Stat fails with ENOTDIR rather than ENOENT; that is a real problem,
	// not an absent destination.
	var undo []move
	err := NewRelocator().displace(filepath.Join(occupied, "2.79"), &undo)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRelocate))
	assert.Empty(t, undo)
}

func TestOSMoverCopiesAcrossTrees(t *testing.T) {
	src := filepath.Join(t.TempDir(), "dir")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "f"), []byte("x"), 0o644))

	dst := filepath.Join(t.TempDir(), "moved")
	require.NoError(t, osMover{}.Move(src, dst))
	assert.FileExists(t, filepath.Join(dst, "nested", "f"))
	assert.NoDirExists(t, src)
}
