package buildsys

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/blenderpy/bpybuild/internal/config"
	"github.com/blenderpy/bpybuild/internal/foundation/errors"
	"github.com/blenderpy/bpybuild/internal/logfields"
	"github.com/blenderpy/bpybuild/internal/toolchain"
)

// buildConfiguration is the native build configuration compiled. Upstream's
// module target only ships usable binaries in its optimized configuration.
const buildConfiguration = "Release"

// Builder drives the build system's compile phase over a configured build
// tree and locates the produced artifacts.
type Builder struct {
	runner Runner
}

// NewBuilder creates a builder using the given runner.
func NewBuilder(runner Runner) *Builder {
	return &Builder{runner: runner}
}

// Build compiles the configured tree and returns the located artifacts.
// When the configuration carries a build timeout the whole compile phase
// runs under it; expiry kills the toolchain subprocess and reports a
// timeout. Interrupted builds leave the build tree as is, the next
// configure pass resumes over it.
func (b *Builder) Build(ctx context.Context, configured *ConfiguredBuild, info *toolchain.Info, cfg *config.BuildConfig) (*Output, error) {
	if cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.BuildTimeout)
		defer cancel()
	}

	slog.Info("Compiling", logfields.Path(configured.BuildDir))

	args := []string{"--build", configured.BuildDir, "--config", buildConfiguration}
	if err := b.run(ctx, args); err != nil {
		return nil, err
	}

	if info.OS == toolchain.Windows {
		// The generator's INSTALL target assembles the module layout
		// (binary, support directory, companion libraries) under bin.
		install := append(args, "--target", "INSTALL")
		if err := b.run(ctx, install); err != nil {
			return nil, err
		}
	}

	output, err := LocateOutput(configured.BuildDir, info.OS)
	if err != nil {
		return nil, err
	}
	slog.Info("Build complete", logfields.Path(output.ModulePath))
	return output, nil
}

func (b *Builder) run(ctx context.Context, args []string) error {
	result, err := b.runner.Run(ctx, Invocation{Tool: Tool, Args: args})
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.BuildError(errors.CodeTimeout, "build timed out").
				WithCause(err).
				Build()
		}
		return errors.BuildError(errors.CodeExternalToolFailed, "failed to run the build system").
			WithCause(err).
			WithContext("tool", Tool).
			Build()
	}
	if result.ExitCode != 0 {
		return errors.BuildError(errors.CodeExternalToolFailed, fmt.Sprintf("compilation exited with code %d", result.ExitCode)).
			WithContext("exit_code", result.ExitCode).
			WithContext("output", result.Output).
			Build()
	}
	return nil
}
