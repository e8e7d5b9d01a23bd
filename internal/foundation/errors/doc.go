// Package errors provides the classified error foundation shared by every
// pipeline stage.
//
// Each stage reports failures through a ClassifiedError carrying the stage
// category, a machine-readable subkind (code), a severity, a retry strategy
// and diagnostic context such as captured external-tool output. A fluent
// builder keeps construction uniform, and a CLI adapter maps stage
// categories onto stable process exit codes.
//
// Example usage:
//
//	err := errors.ConfigureError(errors.CodeExternalToolFailed, "cmake configure failed").
//		WithContext("exit_code", 7).
//		WithContext("output", captured).
//		Build()
package errors
