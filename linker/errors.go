package linker

import (
	"fmt"
	"strings"

	"github.com/wippyai/worlds/errors"
)

// LinkError provides context when a module graph fails to link or evaluate.
// It is created once, for the record where the failure originated, and is
// returned unchanged by every dependent that fails because of it.
type LinkError struct {
	Cause      error
	Phase      errors.Phase
	Identifier string
	Specifier  string
}

func (e *LinkError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Phase))
	b.WriteString(" failed")

	if e.Identifier != "" {
		b.WriteString(" at ")
		b.WriteString(e.Identifier)
	}

	if e.Specifier != "" {
		fmt.Fprintf(&b, ": import %q", e.Specifier)
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *LinkError) Unwrap() error {
	return e.Cause
}

// linkError creates a LinkError with the given parameters
func linkError(phase errors.Phase, identifier, specifier string, cause error) *LinkError {
	return &LinkError{
		Phase:      phase,
		Identifier: identifier,
		Specifier:  specifier,
		Cause:      cause,
	}
}
