package errors

import "maps"

// ErrorCategory identifies the pipeline stage (or cross-cutting concern)
// an error belongs to. Every stage owns exactly one category.
type ErrorCategory string

const (
	// CategoryConfig represents user-facing configuration and input errors.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Stage categories, in pipeline order.
	CategoryFetch     ErrorCategory = "fetch"
	CategoryToolchain ErrorCategory = "toolchain"
	CategoryAuxiliary ErrorCategory = "auxiliary"
	CategoryConfigure ErrorCategory = "configure"
	CategoryBuild     ErrorCategory = "build"
	CategoryRelocate  ErrorCategory = "relocate"

	// CategoryFileSystem covers filesystem failures outside any one stage.
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorCode is the machine-readable subkind within a category.
type ErrorCode string

const (
	CodeNone ErrorCode = ""

	// Fetch subkinds.
	CodeNetworkUnreachable ErrorCode = "network_unreachable"
	CodeInvalidReference   ErrorCode = "invalid_reference"
	CodeDirtyWorkingTree   ErrorCode = "dirty_working_tree"

	// Toolchain subkinds.
	CodeNotFound ErrorCode = "not_found"

	// Auxiliary subkinds.
	CodeUnsupportedPlatform ErrorCode = "unsupported_platform"
	CodeDownloadFailed      ErrorCode = "download_failed"
	CodeExtractFailed       ErrorCode = "extract_failed"

	// Configure/build subkinds.
	CodeExternalToolFailed ErrorCode = "external_tool_failed"
	CodeTimeout            ErrorCode = "timeout"

	// Relocate subkinds.
	CodePartialFailure ErrorCode = "partial_failure"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the pipeline completely
	SeverityError   ErrorSeverity = "error"   // Fails the current stage
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// RetryStrategy indicates how an error should be handled in retry scenarios.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"   // Permanent failure, don't retry
	RetryBackoff    RetryStrategy = "backoff" // Retry with backoff (network conditions)
	RetryUserAction RetryStrategy = "user"    // Requires operator intervention
)

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value, returning the (possibly new) map.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Merge combines another context into this one; the other context wins on
// key collisions.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if len(other) == 0 {
		return c
	}
	if c == nil {
		c = make(ErrorContext, len(other))
	}
	maps.Copy(c, other)
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}
