// Package buildsys drives the external native build system (CMake) through
// its configure and compile phases. Both phases share one subprocess runner
// so exit-code handling and output capture behave identically.
package buildsys

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/blenderpy/bpybuild/internal/logfields"
)

// Invocation is a single external-tool call: tool name, argument vector and
// working directory.
type Invocation struct {
	Tool string
	Args []string
	Dir  string
}

// Result carries the external tool's exit code and captured combined
// output. The output is diagnostic only; it is never parsed.
type Result struct {
	ExitCode int
	Output   string
}

// Runner executes external tools. A non-nil error means the tool could not
// be run at all (not found, killed); a nonzero exit is reported through
// Result with a nil error so callers decide how to classify it.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExecRunner runs tools as subprocesses, streaming their output for
// diagnostic visibility while capturing it for error reports.
type ExecRunner struct {
	// Stream receives the tool's combined output as it is produced.
	// Defaults to os.Stdout.
	Stream io.Writer
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	stream := r.Stream
	if stream == nil {
		stream = os.Stdout
	}

	slog.Debug("Running external tool",
		logfields.Tool(inv.Tool),
		slog.String("args", strings.Join(inv.Args, " ")),
	)

	cmd := exec.CommandContext(ctx, inv.Tool, inv.Args...)
	cmd.Dir = inv.Dir

	var captured bytes.Buffer
	sink := io.MultiWriter(&captured, stream)
	cmd.Stdout = sink
	cmd.Stderr = sink

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) && ctx.Err() == nil {
			return Result{ExitCode: exitErr.ExitCode(), Output: captured.String()}, nil
		}
		return Result{ExitCode: -1, Output: captured.String()}, err
	}
	return Result{ExitCode: 0, Output: captured.String()}, nil
}
