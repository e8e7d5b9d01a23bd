package buildsys

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/blenderpy/bpybuild/internal/auxlib"
	"github.com/blenderpy/bpybuild/internal/config"
	"github.com/blenderpy/bpybuild/internal/foundation/errors"
	"github.com/blenderpy/bpybuild/internal/git"
	"github.com/blenderpy/bpybuild/internal/logfields"
	"github.com/blenderpy/bpybuild/internal/toolchain"
)

// Tool is the external native build-system executable.
const Tool = "cmake"

// ConfiguredBuild is the configure-stage result consumed by the compile
// stage.
type ConfiguredBuild struct {
	SourceDir string
	BuildDir  string
	Generator string
	Args      []string // exact configure argument vector, for diagnostics
}

// Configurer drives the build system's configuration phase: it generates
// the native project files for the module build target into the build
// temp directory.
type Configurer struct {
	runner Runner
}

// NewConfigurer creates a configurer using the given runner.
func NewConfigurer(runner Runner) *Configurer {
	return &Configurer{runner: runner}
}

// Configure runs the configuration phase. Re-running over a previously
// (even partially) configured build tree is supported; the build system
// reconciles its own state. A nonzero exit is fatal and never retried:
// configure failures mean a missing system dependency.
func (c *Configurer) Configure(ctx context.Context, checkout *git.Checkout, info *toolchain.Info, aux *auxlib.Handle, cfg *config.BuildConfig) (*ConfiguredBuild, error) {
	if err := os.MkdirAll(cfg.BuildTempDir, 0o750); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfigure, "failed to create build directory").
			WithContext("path", cfg.BuildTempDir).
			Build()
	}

	generator := info.Generator
	if cfg.Generator != "" {
		generator = cfg.Generator
	}

	args := configureArgs(checkout.Root, cfg.BuildTempDir, generator, aux, cfg)

	slog.Info("Configuring native build",
		logfields.Path(cfg.BuildTempDir),
		logfields.Generator(generator),
	)

	result, err := c.runner.Run(ctx, Invocation{Tool: Tool, Args: args})
	if err != nil {
		return nil, errors.ConfigureError(errors.CodeExternalToolFailed, "failed to run the build system").
			WithCause(err).
			WithContext("tool", Tool).
			Build()
	}
	if result.ExitCode != 0 {
		return nil, errors.ConfigureError(errors.CodeExternalToolFailed, fmt.Sprintf("build system configuration exited with code %d", result.ExitCode)).
			WithContext("exit_code", result.ExitCode).
			WithContext("output", result.Output).
			Build()
	}

	return &ConfiguredBuild{
		SourceDir: checkout.Root,
		BuildDir:  cfg.BuildTempDir,
		Generator: generator,
		Args:      args,
	}, nil
}

// configureArgs builds the fixed configure argument contract: source and
// build trees, the module build target selection, the generator, and the
// optional auxiliary library root and feature toggles.
func configureArgs(sourceDir, buildDir, generator string, aux *auxlib.Handle, cfg *config.BuildConfig) []string {
	args := []string{
		"-S", sourceDir,
		"-B", buildDir,
		// Build the project as a loadable module for the scripting
		// runtime, not as the standalone application.
		"-DWITH_PYTHON_MODULE=ON",
		"-DWITH_PYTHON_INSTALL=OFF",
		"-DWITH_PLAYER=OFF",
	}
	if cfg.PythonVersion != "" {
		args = append(args, fmt.Sprintf("-DPYTHON_VERSION=%s", cfg.PythonVersion))
	}
	if cfg.WithCUDA {
		args = append(args, "-DWITH_CYCLES_CUDA_BINARIES=ON")
	}
	if cfg.WithOptix {
		args = append(args, "-DWITH_CYCLES_DEVICE_OPTIX=ON")
		args = append(args, fmt.Sprintf("-DOPTIX_ROOT_DIR=%s", cfg.OptixRoot))
	}
	if aux != nil {
		// Precompiled platform libraries; the build system picks them
		// up through LIBDIR on the platforms that ship them.
		args = append(args, fmt.Sprintf("-DLIBDIR=%s", aux.Path))
	}
	if generator != "" {
		args = append(args, "-G", generator)
	}
	return args
}
