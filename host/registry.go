package host

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/worlds/errors"
)

// Host is the interface for struct-based host packages.
// All exported methods (except Specifier) are exported under their
// lowerCamel names.
type Host interface {
	// Specifier returns the bare specifier the package answers to,
	// optionally versioned (e.g. "acme/log@1.2.0").
	Specifier() string
}

// ExplicitRegistrar lets a host provide exact export names when the
// automatic method name conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

// nodePrefix is accepted in front of any registered name.
const nodePrefix = "node:"

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// Registry holds host packages and serves them to the linker as the
// host importer for bare specifiers.
type Registry struct {
	packages map[string][]*entry
	mu       sync.RWMutex
}

type entry struct {
	version *Version
	exports map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		packages: make(map[string][]*entry),
	}
}

// Register adds exports to the package named by specifier. Registering the
// same specifier again merges the exports; later values win.
func (r *Registry) Register(specifier string, exports map[string]any) error {
	if specifier == "" {
		return errors.InvalidInput(errors.PhaseHost, "specifier cannot be empty")
	}

	for name := range exports {
		if name == "" {
			return errors.Registration(specifier, "export", errors.InvalidInput(errors.PhaseHost, "export name cannot be empty"))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(specifier)
	for name, v := range exports {
		e.exports[name] = v
	}
	return nil
}

// RegisterFunc adds a single function export.
func (r *Registry) RegisterFunc(specifier, name string, fn any) error {
	if specifier == "" {
		return errors.InvalidInput(errors.PhaseHost, "specifier cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return errors.Registration(specifier, name, errors.InvalidInput(errors.PhaseHost, "handler must be a function"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entry(specifier).exports[name] = fn
	return nil
}

// RegisterHost registers the exported methods of h.
func (r *Registry) RegisterHost(h Host) error {
	spec := h.Specifier()
	if spec == "" {
		return errors.InvalidInput(errors.PhaseHost, "specifier cannot be empty")
	}

	exports := make(map[string]any)
	if er, ok := h.(ExplicitRegistrar); ok {
		for name, fn := range er.Register() {
			exports[name] = fn
		}
	} else {
		rv := reflect.ValueOf(h)
		rt := rv.Type()
		for i := 0; i < rt.NumMethod(); i++ {
			method := rt.Method(i)
			if !method.IsExported() || method.Name == "Specifier" {
				continue
			}
			exports[toLowerCamel(method.Name)] = rv.Method(i).Interface()
		}
	}

	return r.Register(spec, exports)
}

// entry returns the registration for specifier, creating it.
// Callers hold r.mu.
func (r *Registry) entry(specifier string) *entry {
	name, version := splitVersion(specifier)
	for _, e := range r.packages[name] {
		if sameVersion(e.version, version) {
			return e
		}
	}
	e := &entry{version: version, exports: make(map[string]any)}
	r.packages[name] = append(r.packages[name], e)
	return e
}

// Import implements linker.Importer. A versioned request picks the highest
// compatible registration; an unversioned one picks the highest version
// registered. Functions whose first parameter is a context.Context get a
// context bound in: the one of the running call when ctx carries a
// WithCallContext source, otherwise ctx itself.
func (r *Registry) Import(ctx context.Context, specifier string) (any, error) {
	name, want := splitVersion(specifier)

	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.lookup(name, want)
	if e == nil && strings.HasPrefix(name, nodePrefix) {
		e = r.lookup(strings.TrimPrefix(name, nodePrefix), want)
	}
	if e == nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Specifier(specifier).
			Detail("no host package registered").
			Build()
	}

	pkg := &Package{
		exports: make(map[string]any, len(e.exports)),
		names:   make([]string, 0, len(e.exports)),
	}
	for n, v := range e.exports {
		pkg.exports[n] = bindContext(ctx, v)
		pkg.names = append(pkg.names, n)
	}
	sort.Strings(pkg.names)
	return pkg, nil
}

// Has reports whether specifier would resolve.
func (r *Registry) Has(specifier string) bool {
	name, want := splitVersion(specifier)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lookup(name, want) != nil {
		return true
	}
	return strings.HasPrefix(name, nodePrefix) && r.lookup(strings.TrimPrefix(name, nodePrefix), want) != nil
}

// Specifiers returns the registered specifiers, sorted.
func (r *Registry) Specifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for name, entries := range r.packages {
		for _, e := range entries {
			if e.version == nil {
				out = append(out, name)
			} else {
				out = append(out, name+"@"+e.version.String())
			}
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(name string, want *Version) *entry {
	var best *entry
	for _, e := range r.packages[name] {
		switch {
		case want == nil:
			if best == nil || (e.version != nil && (best.version == nil || best.version.Less(*e.version))) {
				best = e
			}
		case e.version != nil && e.version.Compatible(*want):
			if best == nil || best.version.Less(*e.version) {
				best = e
			}
		}
	}
	return best
}

func sameVersion(a, b *Version) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type callContextKey struct{}

// WithCallContext returns a copy of ctx whose host functions, once
// imported, receive current() at call time. A nil result from current
// falls back to the import context.
func WithCallContext(ctx context.Context, current func() context.Context) context.Context {
	return context.WithValue(ctx, callContextKey{}, current)
}

func callContextOf(ctx context.Context) func() context.Context {
	current, _ := ctx.Value(callContextKey{}).(func() context.Context)
	return current
}

// bindContext turns func(ctx, args...) into func(args...). The context
// passed is the current call context if ctx carries one, else ctx.
// Other values are returned as is.
func bindContext(ctx context.Context, v any) any {
	fn := reflect.ValueOf(v)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return v
	}
	t := fn.Type()
	if t.NumIn() == 0 || t.In(0) != contextType {
		return v
	}

	in := make([]reflect.Type, t.NumIn()-1)
	for i := range in {
		in[i] = t.In(i + 1)
	}
	out := make([]reflect.Type, t.NumOut())
	for i := range out {
		out[i] = t.Out(i)
	}

	current := callContextOf(ctx)
	bound := reflect.MakeFunc(reflect.FuncOf(in, out, t.IsVariadic()), func(args []reflect.Value) []reflect.Value {
		callCtx := ctx
		if current != nil {
			if c := current(); c != nil {
				callCtx = c
			}
		}
		full := append([]reflect.Value{reflect.ValueOf(&callCtx).Elem()}, args...)
		if t.IsVariadic() {
			return fn.CallSlice(full)
		}
		return fn.Call(full)
	})
	return bound.Interface()
}

// toLowerCamel converts a Go method name to its export name:
// "Join" -> "join", "IsAbsolute" -> "isAbsolute", "URLFor" -> "urlFor".
func toLowerCamel(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	// Last uppercase before a lowercase starts the next word.
	if n > 1 && n < len(runes) && unicode.IsLower(runes[n]) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
