package config

import (
	"strings"
	"time"
)

// BuildConfig is the single immutable record the pipeline threads through
// every stage. It is created once at pipeline start and passed by read-only
// pointer; no stage mutates it.
type BuildConfig struct {
	// Source acquisition.
	SourceURL string
	Reference string // tag, branch, or empty for default branch

	// Directory layout.
	SourceDir      string // working copy of the upstream project
	BuildTempDir   string // native build system working tree
	CacheDir       string // auxiliary-library cache
	InstallDir     string // final location of the module binary
	InterpreterDir string // holds the runtime executable; receives the support dir

	// Build selection.
	WordWidth     int    // 0 = auto-detect
	Generator     string // overrides probe selection when non-empty
	PythonVersion string
	WithCUDA      bool
	WithOptix     bool
	OptixRoot     string

	// Operator-supplied timeout for the compile stage; zero means none.
	BuildTimeout time.Duration

	// Auxiliary archive mirror base URLs.
	Mirrors []string
}

// NewBuildConfig assembles the pipeline record from validated configuration
// and the workspace layout.
func NewBuildConfig(c *Config, sourceDir, buildTempDir, cacheDir string) *BuildConfig {
	bc := &BuildConfig{
		SourceURL:      c.Source.URL,
		Reference:      c.Source.Reference,
		SourceDir:      sourceDir,
		BuildTempDir:   buildTempDir,
		CacheDir:       cacheDir,
		InstallDir:     c.Install.Dir,
		InterpreterDir: c.Install.InterpreterDir,
		WordWidth:      c.Build.WordWidth,
		Generator:      c.Build.Generator,
		PythonVersion:  c.Build.PythonVersion,
		WithCUDA:       c.Build.WithCUDA,
		WithOptix:      c.Build.WithOptix,
		OptixRoot:      c.Build.OptixRoot,
		BuildTimeout:   c.Build.Timeout.Std(),
		Mirrors:        append([]string(nil), c.Auxiliary.Mirrors...),
	}
	if c.Auxiliary.CacheDir != "" {
		bc.CacheDir = c.Auxiliary.CacheDir
	}
	return bc
}

// GuardNotEmbedded rejects running the installer from inside the target
// application's own bundled interpreter, where the module is already
// importable and an install would clobber the running process's files.
func GuardNotEmbedded(interpreterExe string) bool {
	// Handle both separator styles; install dirs cross OS boundaries in config.
	base := interpreterExe
	if idx := strings.LastIndexAny(interpreterExe, `/\`); idx >= 0 {
		base = interpreterExe[idx+1:]
	}
	return !strings.HasPrefix(strings.ToLower(base), "blender")
}
