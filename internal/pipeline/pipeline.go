// Package pipeline wires the build stages together and runs them in order:
// fetch the upstream source, probe the platform toolchain, resolve the
// auxiliary libraries, configure and compile the native build, and relocate
// the artifacts into their installation locations. The pipeline owns stage
// ordering and timing; each stage owns its own failure classification.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/blenderpy/bpybuild/internal/auxlib"
	"github.com/blenderpy/bpybuild/internal/buildsys"
	"github.com/blenderpy/bpybuild/internal/config"
	"github.com/blenderpy/bpybuild/internal/git"
	"github.com/blenderpy/bpybuild/internal/logfields"
	"github.com/blenderpy/bpybuild/internal/relocate"
	"github.com/blenderpy/bpybuild/internal/toolchain"
)

// Stage names as they appear in logs and error reports.
const (
	StageFetch     = "fetch"
	StageToolchain = "toolchain"
	StageAuxiliary = "auxiliary"
	StageConfigure = "configure"
	StageBuild     = "build"
	StageRelocate  = "relocate"
)

// SourceFetcher materializes the upstream source at a release reference.
type SourceFetcher interface {
	Fetch(ctx context.Context, reference string) (*git.Checkout, error)
}

// PlatformProber detects the host toolchain.
type PlatformProber interface {
	Detect() (*toolchain.Info, error)
}

// AuxResolver locates or fetches the platform auxiliary libraries.
type AuxResolver interface {
	Resolve(ctx context.Context, info *toolchain.Info) (*auxlib.Handle, error)
}

// Configurer drives the native build system's configuration phase.
type Configurer interface {
	Configure(ctx context.Context, checkout *git.Checkout, info *toolchain.Info, aux *auxlib.Handle, cfg *config.BuildConfig) (*buildsys.ConfiguredBuild, error)
}

// Compiler drives the native build system's compile phase.
type Compiler interface {
	Build(ctx context.Context, configured *buildsys.ConfiguredBuild, info *toolchain.Info, cfg *config.BuildConfig) (*buildsys.Output, error)
}

// Relocator moves the built artifacts into their installation locations.
type Relocator interface {
	Relocate(output *buildsys.Output, cfg *config.BuildConfig) (*relocate.Placement, error)
}

// Result summarizes a completed run.
type Result struct {
	RunID     string
	Revision  string // source commit the module was built from
	Placement *relocate.Placement
	Duration  time.Duration
}

// Pipeline runs the build stages against one immutable configuration.
type Pipeline struct {
	cfg *config.BuildConfig

	fetcher    SourceFetcher
	prober     PlatformProber
	resolver   AuxResolver
	configurer Configurer
	compiler   Compiler
	relocator  Relocator
}

// Option replaces a stage implementation.
type Option func(*Pipeline)

func WithFetcher(f SourceFetcher) Option  { return func(p *Pipeline) { p.fetcher = f } }
func WithProber(pr PlatformProber) Option { return func(p *Pipeline) { p.prober = pr } }
func WithResolver(r AuxResolver) Option   { return func(p *Pipeline) { p.resolver = r } }
func WithConfigurer(c Configurer) Option  { return func(p *Pipeline) { p.configurer = c } }
func WithCompiler(c Compiler) Option      { return func(p *Pipeline) { p.compiler = c } }
func WithRelocator(r Relocator) Option    { return func(p *Pipeline) { p.relocator = r } }

// New assembles a pipeline over cfg with the production stage
// implementations; options replace individual stages.
func New(cfg *config.BuildConfig, opts ...Option) *Pipeline {
	runner := &buildsys.ExecRunner{}
	p := &Pipeline{
		cfg:        cfg,
		fetcher:    git.NewFetcher(cfg.SourceURL, cfg.SourceDir),
		prober:     toolchain.NewProbe(toolchain.WithWordWidth(cfg.WordWidth)),
		resolver:   auxlib.NewResolver(cfg.CacheDir, cfg.Mirrors),
		configurer: buildsys.NewConfigurer(runner),
		compiler:   buildsys.NewBuilder(runner),
		relocator:  relocate.NewRelocator(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage in order, stopping at the first failure. The
// returned error carries the failing stage's classification; nothing is
// rewrapped here.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := slog.With(logfields.RunID(runID))
	started := time.Now()

	logger.Info("Build run starting",
		logfields.URL(p.cfg.SourceURL),
		logfields.Reference(p.cfg.Reference),
	)

	checkout, err := stage(logger, StageFetch, func() (*git.Checkout, error) {
		return p.fetcher.Fetch(ctx, p.cfg.Reference)
	})
	if err != nil {
		return nil, err
	}

	info, err := stage(logger, StageToolchain, func() (*toolchain.Info, error) {
		return p.prober.Detect()
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Platform resolved",
		logfields.Generator(info.Generator),
		logfields.WordWidth(info.WordWidth),
	)

	aux, err := stage(logger, StageAuxiliary, func() (*auxlib.Handle, error) {
		return p.resolver.Resolve(ctx, info)
	})
	if err != nil {
		return nil, err
	}

	configured, err := stage(logger, StageConfigure, func() (*buildsys.ConfiguredBuild, error) {
		return p.configurer.Configure(ctx, checkout, info, aux, p.cfg)
	})
	if err != nil {
		return nil, err
	}

	output, err := stage(logger, StageBuild, func() (*buildsys.Output, error) {
		return p.compiler.Build(ctx, configured, info, p.cfg)
	})
	if err != nil {
		return nil, err
	}

	placement, err := stage(logger, StageRelocate, func() (*relocate.Placement, error) {
		return p.relocator.Relocate(output, p.cfg)
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     runID,
		Revision:  checkout.Revision,
		Placement: placement,
		Duration:  time.Since(started),
	}
	logger.Info("Build run complete",
		logfields.Path(placement.ModulePath),
		logfields.DurationMS(float64(result.Duration.Milliseconds())),
	)
	return result, nil
}

// stage runs one stage with timing logs.
func stage[T any](logger *slog.Logger, name string, fn func() (T, error)) (T, error) {
	logger.Info("Stage starting", logfields.Stage(name))
	started := time.Now()

	value, err := fn()
	elapsed := float64(time.Since(started).Milliseconds())
	if err != nil {
		logger.Error("Stage failed",
			logfields.Stage(name),
			logfields.DurationMS(elapsed),
			logfields.Error(err),
		)
		return value, err
	}
	logger.Info("Stage complete", logfields.Stage(name), logfields.DurationMS(elapsed))
	return value, nil
}
