package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
// This keeps error construction consistent and discoverable across stages.
type ErrorBuilder struct {
	category ErrorCategory
	code     ErrorCode
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.cause = err
	return b
}

// WithCode sets the machine-readable subkind.
func (b *ErrorBuilder) WithCode(code ErrorCode) *ErrorBuilder {
	b.code = code
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithRetry sets the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

// WithCause sets the underlying error.
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Retryable sets the retry strategy to backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	return b.WithRetry(RetryBackoff)
}

// UserAction sets the retry strategy to require operator action.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	return b.WithRetry(RetryUserAction)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		code:     b.code,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors, one per stage.

// FetchError creates a source-fetch stage error.
func FetchError(code ErrorCode, message string) *ErrorBuilder {
	return NewError(CategoryFetch, message).WithCode(code)
}

// ToolchainError creates a platform-probe stage error. Missing toolchains
// require operator intervention, never a blind retry.
func ToolchainError(code ErrorCode, message string) *ErrorBuilder {
	return NewError(CategoryToolchain, message).WithCode(code).Fatal().UserAction()
}

// AuxiliaryError creates an auxiliary-library stage error.
func AuxiliaryError(code ErrorCode, message string) *ErrorBuilder {
	return NewError(CategoryAuxiliary, message).WithCode(code)
}

// ConfigureError creates a build-configuration stage error. Configure
// failures indicate missing system dependencies; retrying cannot fix them.
func ConfigureError(code ErrorCode, message string) *ErrorBuilder {
	return NewError(CategoryConfigure, message).WithCode(code).Fatal().UserAction()
}

// BuildError creates a compile stage error.
func BuildError(code ErrorCode, message string) *ErrorBuilder {
	return NewError(CategoryBuild, message).WithCode(code).Fatal()
}

// RelocateError creates an artifact-relocation stage error.
func RelocateError(code ErrorCode, message string) *ErrorBuilder {
	return NewError(CategoryRelocate, message).WithCode(code).Fatal().UserAction()
}

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}
