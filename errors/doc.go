// Package errors provides structured error types for the worlds library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending specifier, the canonical identifier of the
// module involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseClassify, errors.KindConfiguration).
//		Specifier("/etc/passwd").
//		Identifier("/app/index.js").
//		Detail("absolute specifiers are not supported").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Configuration(errors.PhaseClassify, spec, "absolute specifiers are not supported")
//	err := errors.NotFound(errors.PhaseLoad, "source", "/app/missing.js")
//
// Kinds are matched with the standard errors.Is against the sentinels:
//
//	if errors.Is(err, errors.ErrConfiguration) { ... }
package errors
