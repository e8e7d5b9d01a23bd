package errors

import (
	"fmt"
	"log/slog"
	"strings"
)

// CLIErrorAdapter handles error presentation and exit code determination
// for the command-line surface.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if classified, ok := AsClassified(err); ok {
		return exitCodeFromClassified(classified)
	}
	return 1
}

// exitCodeFromClassified maps stage categories to stable exit codes so the
// packaging layer can distinguish which stage failed.
func exitCodeFromClassified(err *ClassifiedError) int {
	switch err.Category() {
	case CategoryConfig, CategoryValidation:
		return 2 // Invalid usage or configuration
	case CategoryFetch:
		return 3
	case CategoryToolchain:
		return 4
	case CategoryAuxiliary:
		return 5
	case CategoryConfigure:
		return 6
	case CategoryBuild:
		return 7
	case CategoryRelocate:
		return 8
	case CategoryFileSystem:
		return 9
	case CategoryInternal:
		return 10
	default:
		return 1
	}
}

// FormatError formats an error for user-facing display. In verbose mode the
// diagnostic context (captured tool output, paths, URLs) is appended.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	classified, ok := AsClassified(err)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString(classified.Error())
	if a.verbose && len(classified.Context()) > 0 {
		for k, v := range classified.Context() {
			fmt.Fprintf(&sb, "\n  %s: %v", k, v)
		}
	}
	return sb.String()
}

// LogError reports a terminal error through the adapter's logger.
func (a *CLIErrorAdapter) LogError(err error) {
	if err == nil {
		return
	}
	if classified, ok := AsClassified(err); ok {
		a.logger.Error("Pipeline failed",
			slog.String("stage", string(classified.Category())),
			slog.String("code", string(classified.Code())),
			slog.String("error", classified.Error()),
		)
		return
	}
	a.logger.Error("Pipeline failed", slog.String("error", err.Error()))
}
