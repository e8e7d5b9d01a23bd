package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration as loaded from YAML.
// Command-line flags override individual fields after loading.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Install   InstallConfig   `yaml:"install"`
	Build     BuildOptions    `yaml:"build"`
	Auxiliary AuxiliaryConfig `yaml:"auxiliary"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig identifies the upstream project and the release to build.
type SourceConfig struct {
	URL       string `yaml:"url"`
	Reference string `yaml:"reference,omitempty"` // tag, branch, or empty for default
}

// WorkspaceConfig locates the persistent build root.
type WorkspaceConfig struct {
	Root string `yaml:"root,omitempty"` // defaults to ~/.blenderpy
}

// InstallConfig locates the two installation destinations: the module
// directory of the consuming runtime and the directory holding the
// runtime's executable (which receives the version support directory).
type InstallConfig struct {
	Dir            string `yaml:"dir"`
	InterpreterDir string `yaml:"interpreter_dir"`
}

// BuildOptions tunes the native build.
type BuildOptions struct {
	WordWidth     int      `yaml:"word_width,omitempty"` // 0 = auto-detect
	Generator     string   `yaml:"generator,omitempty"`  // overrides probe selection
	Timeout       Duration `yaml:"timeout,omitempty"`    // 0 = no timeout
	PythonVersion string   `yaml:"python_version,omitempty"`
	WithCUDA      bool     `yaml:"with_cuda,omitempty"`
	WithOptix     bool     `yaml:"with_optix,omitempty"`
	OptixRoot     string   `yaml:"optix_root,omitempty"`
}

// AuxiliaryConfig tunes the platform auxiliary-library download.
type AuxiliaryConfig struct {
	CacheDir string   `yaml:"cache_dir,omitempty"` // defaults to <workspace>/cache
	Mirrors  []string `yaml:"mirrors,omitempty"`   // base URLs; archive key is appended
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Duration wraps time.Duration with YAML string parsing ("30m", "2h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

const (
	// DefaultSourceURL is the upstream Blender repository.
	DefaultSourceURL = "https://git.blender.org/blender.git"
)

// DefaultMirrors are the known locations serving precompiled platform
// library archives; the resolver appends "<key>.zip" to each.
var DefaultMirrors = []string{
	"https://svn.blender.org/svnroot/bf-blender/trunk/lib",
	"https://download.blender.org/lib",
}

// Load loads configuration from the specified file. A missing file is not
// an error when allowMissing is true; defaults are returned instead.
func Load(configPath string, allowMissing bool) (*Config, error) {
	// Load .env files first so env expansion below sees their values.
	// Existing process environment always wins.
	_ = godotenv.Load(".env", ".env.local")

	config := &Config{}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand environment variables in the YAML content.
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case os.IsNotExist(err) && allowMissing:
		// Fall through to defaults.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyDefaults(config)
	return config, nil
}

func applyDefaults(c *Config) {
	if c.Source.URL == "" {
		c.Source.URL = DefaultSourceURL
	}
	if len(c.Auxiliary.Mirrors) == 0 {
		c.Auxiliary.Mirrors = append([]string(nil), DefaultMirrors...)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(LogLevelInfo)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = string(LogFormatText)
	}
}

// Validate checks cross-field invariants that would otherwise surface as
// confusing stage failures later.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url must not be empty")
	}
	if c.Install.Dir == "" {
		return fmt.Errorf("install.dir must not be empty")
	}
	if c.Install.InterpreterDir == "" {
		return fmt.Errorf("install.interpreter_dir must not be empty")
	}
	if c.Install.Dir == c.Install.InterpreterDir {
		return fmt.Errorf("install.dir and install.interpreter_dir must differ: the version support directory lives beside the interpreter, not with the module")
	}
	switch c.Build.WordWidth {
	case 0, 32, 64:
	default:
		return fmt.Errorf("build.word_width must be 0, 32 or 64, got %d", c.Build.WordWidth)
	}
	if c.Build.WithOptix && c.Build.OptixRoot == "" {
		return fmt.Errorf("build.optix_root is required when build.with_optix is set")
	}
	return nil
}
