package linker

import (
	"context"

	"github.com/wippyai/worlds"
)

// Loader reads module source bytes by canonical identifier.
type Loader interface {
	ReadFile(ctx context.Context, identifier string) ([]byte, error)
}

// Compiler turns source text into an executable unit.
// Compile is called from resolver goroutines and must be safe for
// concurrent use.
type Compiler interface {
	Compile(ctx context.Context, identifier string, source []byte) (Unit, error)
}

// Unit is a compiled source module.
type Unit interface {
	// Requests lists the static import specifiers in declaration order.
	Requests() []string

	// Instantiate binds the unit to its environment once all static
	// requests are resolved, and returns the module namespace. The
	// namespace may be read before Evaluate, e.g. by a cyclic peer.
	Instantiate(env Env) (worlds.Namespace, error)

	// Evaluate runs the module body. It is called at most once.
	Evaluate(ctx context.Context) error
}

// Env is the view a unit has of its own record and of the linker.
type Env interface {
	// Meta is the import-time metadata of the module.
	Meta() Meta

	// Dependency returns the namespace of a statically imported module.
	Dependency(specifier string) (worlds.Namespace, bool)

	// Import resolves specifier relative to the module and drives the
	// result to evaluated before returning its namespace.
	Import(ctx context.Context, specifier string) (worlds.Namespace, error)
}

// Importer is the host's general import mechanism for bare specifiers.
// Unknown specifiers should produce an error matching errors.ErrNotFound.
type Importer interface {
	Import(ctx context.Context, specifier string) (any, error)
}

// ImporterFunc adapts a function to the Importer interface.
type ImporterFunc func(ctx context.Context, specifier string) (any, error)

// Import calls f.
func (f ImporterFunc) Import(ctx context.Context, specifier string) (any, error) {
	return f(ctx, specifier)
}

// Hook produces the host value that stands in for one bare specifier.
type Hook func(ctx context.Context, specifier string) (any, error)

// moduleEnv is the Env handed to source units.
type moduleEnv struct {
	linker *Linker
	record *Record
}

func (e moduleEnv) Meta() Meta {
	return e.record.Meta()
}

func (e moduleEnv) Dependency(specifier string) (worlds.Namespace, bool) {
	dep, ok := e.record.Dependency(specifier)
	if !ok {
		return nil, false
	}
	return dep.Namespace(), true
}

func (e moduleEnv) Import(ctx context.Context, specifier string) (worlds.Namespace, error) {
	return e.linker.Import(ctx, specifier, e.record.Identifier())
}
