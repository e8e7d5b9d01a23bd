package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bpybuild.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
install:
  dir: /site-packages
  interpreter_dir: /python/bin
`)
	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, DefaultSourceURL, cfg.Source.URL)
	assert.Equal(t, DefaultMirrors, cfg.Auxiliary.Mirrors)
	assert.Equal(t, string(LogLevelInfo), cfg.Logging.Level)
	assert.Equal(t, string(LogFormatText), cfg.Logging.Format)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := Load(missing, false)
	assert.Error(t, err)

	cfg, err := Load(missing, true)
	require.NoError(t, err)
	assert.Equal(t, DefaultSourceURL, cfg.Source.URL)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("BPYBUILD_TEST_DIR", "/opt/modules")
	path := writeConfig(t, `
install:
  dir: ${BPYBUILD_TEST_DIR}
  interpreter_dir: /python/bin
`)
	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "/opt/modules", cfg.Install.Dir)
}

func TestDurationParsing(t *testing.T) {
	path := writeConfig(t, `
install:
  dir: /a
  interpreter_dir: /b
build:
  timeout: 45m
`)
	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.Build.Timeout.Std())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		applyDefaults(c)
		c.Install.Dir = "/site-packages"
		c.Install.InterpreterDir = "/python/bin"
		return c
	}

	assert.NoError(t, base().Validate())

	noInstall := base()
	noInstall.Install.Dir = ""
	assert.Error(t, noInstall.Validate())

	sameDirs := base()
	sameDirs.Install.InterpreterDir = sameDirs.Install.Dir
	assert.Error(t, sameDirs.Validate())

	badWidth := base()
	badWidth.Build.WordWidth = 48
	assert.Error(t, badWidth.Validate())

	optixNoRoot := base()
	optixNoRoot.Build.WithOptix = true
	assert.Error(t, optixNoRoot.Validate())
}

func TestNewBuildConfigPrefersExplicitCacheDir(t *testing.T) {
	c := &Config{}
	applyDefaults(c)
	c.Install.Dir = "/sp"
	c.Install.InterpreterDir = "/py"
	c.Auxiliary.CacheDir = "/custom/cache"

	bc := NewBuildConfig(c, "/ws/source", "/ws/build", "/ws/cache")
	assert.Equal(t, "/custom/cache", bc.CacheDir)
	assert.Equal(t, "/ws/source", bc.SourceDir)
	assert.Equal(t, "/ws/build", bc.BuildTempDir)
}

func TestGuardNotEmbedded(t *testing.T) {
	assert.True(t, GuardNotEmbedded("/usr/bin/python3"))
	assert.False(t, GuardNotEmbedded(`C:\Program Files\Blender\blender.exe`))
	assert.False(t, GuardNotEmbedded("/opt/blender-2.79/blender"))
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, LogLevelDebug, NormalizeLogLevel(" DEBUG "))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("bogus"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
	assert.Equal(t, LogFormatText, NormalizeLogFormat(""))
}
