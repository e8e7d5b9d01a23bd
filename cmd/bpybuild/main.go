package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/blenderpy/bpybuild/internal/config"
	"github.com/blenderpy/bpybuild/internal/foundation/errors"
	"github.com/blenderpy/bpybuild/internal/pipeline"
	"github.com/blenderpy/bpybuild/internal/toolchain"
	"github.com/blenderpy/bpybuild/internal/workspace"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"bpybuild.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
	JSON    bool   `help:"Emit logs as JSON"`

	Build struct {
		Reference      string        `short:"r" help:"Release tag or branch to build (default: upstream default branch)"`
		InstallDir     string        `help:"Directory receiving the module binary"`
		InterpreterDir string        `help:"Directory holding the interpreter executable"`
		Width          int           `short:"w" help:"Target word width (32 or 64, 0 = auto)"`
		Timeout        time.Duration `help:"Abort the compile phase after this long (0 = no timeout)"`
		Workspace      string        `help:"Build root directory (default: ~/.blenderpy)"`
	} `cmd:"" help:"Build the module from upstream source and install it"`

	Probe struct{} `cmd:"" help:"Detect the host platform and toolchain without building"`

	Clean struct {
		Workspace string `help:"Build root directory (default: ~/.blenderpy)"`
	} `cmd:"" help:"Remove the build root, including source checkout and library cache"`
}

func main() {
	ctx := kong.Parse(&CLI)

	setupLogging()
	adapter := errors.NewCLIErrorAdapter(CLI.Verbose, slog.Default())

	var err error
	switch ctx.Command() {
	case "build":
		err = runBuild()
	case "probe":
		err = runProbe()
	case "clean":
		err = runClean()
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}

	if err != nil {
		adapter.LogError(err)
		fmt.Fprintln(os.Stderr, adapter.FormatError(err))
		os.Exit(adapter.ExitCodeFor(err))
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if CLI.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadConfig merges the configuration file with command-line overrides.
// Flags win over the file; the file is optional when flags supply the
// required fields.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config, true)
	if err != nil {
		return nil, errors.ConfigError("failed to load configuration").WithCause(err).Build()
	}

	if CLI.Build.Reference != "" {
		cfg.Source.Reference = CLI.Build.Reference
	}
	if CLI.Build.InstallDir != "" {
		cfg.Install.Dir = CLI.Build.InstallDir
	}
	if CLI.Build.InterpreterDir != "" {
		cfg.Install.InterpreterDir = CLI.Build.InterpreterDir
	}
	if CLI.Build.Width != 0 {
		cfg.Build.WordWidth = CLI.Build.Width
	}
	if CLI.Build.Timeout != 0 {
		cfg.Build.Timeout = config.Duration(CLI.Build.Timeout)
	}
	if CLI.Build.Workspace != "" {
		cfg.Workspace.Root = CLI.Build.Workspace
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ValidationError(err.Error()).Build()
	}
	return cfg, nil
}

func runBuild() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interpreterExe := os.Args[0]
	if !config.GuardNotEmbedded(interpreterExe) {
		return errors.ValidationError("refusing to install from inside the target application's bundled interpreter").
			WithContext("interpreter", interpreterExe).
			Build()
	}

	root := cfg.Workspace.Root
	if root == "" {
		root = workspace.DefaultRoot()
	}
	ws := workspace.NewPersistentManager(root)
	if err := ws.Create(); err != nil {
		return errors.NewError(errors.CategoryFileSystem, "failed to prepare build root").
			WithCause(err).
			WithContext("path", root).
			Build()
	}

	buildCfg := config.NewBuildConfig(cfg, ws.SourceDir(), ws.BuildDir(), ws.CacheDir())

	// Interrupts cancel the run; stages unwind through their own rollback.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.New(buildCfg).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Installed %s (revision %s) in %s\n",
		result.Placement.ModulePath, result.Revision, result.Duration.Round(time.Second))
	return nil
}

func runProbe() error {
	info, err := toolchain.NewProbe().Detect()
	if err != nil {
		return err
	}

	fmt.Printf("OS:        %s\n", info.OS)
	fmt.Printf("Width:     %d-bit\n", info.WordWidth)
	fmt.Printf("Generator: %s\n", info.Generator)
	if info.Generation.Version != 0 {
		fmt.Printf("Toolchain: Visual Studio %d\n", info.Generation.Year)
	}
	if info.Aux != nil {
		fmt.Printf("Libraries: %s\n", info.Aux.Key)
	} else {
		fmt.Println("Libraries: provided by the system")
	}
	return nil
}

func runClean() error {
	root := CLI.Clean.Workspace
	if root == "" {
		root = workspace.DefaultRoot()
	}
	if err := os.RemoveAll(root); err != nil {
		return errors.NewError(errors.CategoryFileSystem, "failed to remove build root").
			WithCause(err).
			WithContext("path", root).
			Build()
	}
	fmt.Printf("Removed %s\n", root)
	return nil
}
