package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig   Phase = "config"   // world and CLI configuration
	PhaseClassify Phase = "classify" // specifier classification
	PhaseResolve  Phase = "resolve"  // specifier to record
	PhaseLoad     Phase = "load"     // reading source bytes
	PhaseCompile  Phase = "compile"  // source to executable unit
	PhaseLink     Phase = "link"     // import graph linking
	PhaseEvaluate Phase = "evaluate" // module body execution
	PhaseHost     Phase = "host"     // host importer registration
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindNotFound       Kind = "not_found"
	KindEvaluation     Kind = "evaluation"
	KindInvalidData    Kind = "invalid_data"
	KindInvalidInput   Kind = "invalid_input"
	KindUnsupported    Kind = "unsupported"
	KindNotInitialized Kind = "not_initialized"
	KindRegistration   Kind = "registration"
	KindIO             Kind = "io"
)

// Sentinels for errors.Is. They carry no phase, so they match any phase.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrEvaluation    = &Error{Kind: KindEvaluation}
	ErrInvalidData   = &Error{Kind: KindInvalidData}
	ErrUnsupported   = &Error{Kind: KindUnsupported}
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause      error
	Phase      Phase
	Kind       Kind
	Specifier  string
	Identifier string
	Detail     string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Specifier != "" {
		fmt.Fprintf(&b, " %q", e.Specifier)
	}

	if e.Identifier != "" {
		if e.Specifier != "" {
			b.WriteString(" from ")
		} else {
			b.WriteString(" in ")
		}
		b.WriteString(e.Identifier)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase or Kind on the target acts as a wildcard.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Specifier sets the import specifier involved
func (b *Builder) Specifier(s string) *Builder {
	b.err.Specifier = s
	return b
}

// Identifier sets the canonical identifier of the module involved
func (b *Builder) Identifier(id string) *Builder {
	b.err.Identifier = id
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Configuration creates a configuration error for a rejected specifier
func Configuration(phase Phase, specifier, detail string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindConfiguration,
		Specifier: specifier,
		Detail:    detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Evaluation creates an error for a module body or hook that failed while running
func Evaluation(identifier string, cause error) *Error {
	return &Error{
		Phase:      PhaseEvaluate,
		Kind:       KindEvaluation,
		Identifier: identifier,
		Detail:     "module body failed",
		Cause:      cause,
	}
}

// CompileFailed creates a compile error for a source module
func CompileFailed(identifier string, cause error) *Error {
	return &Error{
		Phase:      PhaseCompile,
		Kind:       KindInvalidData,
		Identifier: identifier,
		Detail:     "compile source",
		Cause:      cause,
	}
}

// Load creates a source loading error
func Load(identifier string, cause error) *Error {
	return &Error{
		Phase:      PhaseLoad,
		Kind:       KindIO,
		Identifier: identifier,
		Detail:     "read source",
		Cause:      cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotInitialized creates a not-initialized error for a missing collaborator
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a host registration error
func Registration(specifier, name string, cause error) *Error {
	return &Error{
		Phase:     PhaseHost,
		Kind:      KindRegistration,
		Specifier: specifier,
		Detail:    fmt.Sprintf("register %s", name),
		Cause:     cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// KindOf returns the Kind of the first structured error in err's chain,
// or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
