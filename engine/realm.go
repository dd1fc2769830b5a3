package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/worlds"
	"github.com/wippyai/worlds/errors"
	"github.com/wippyai/worlds/host/builtin"
	"github.com/wippyai/worlds/linker"
)

// Realm is one isolated execution environment: a JS runtime with its own
// global object, plus a wasm runtime created on first use.
//
// Compile is safe for concurrent use. Everything that runs code (unit
// Instantiate and Evaluate, Call, Global reads) must happen on one
// goroutine at a time.
type Realm struct {
	engine  *Engine
	vm      *goja.Runtime
	ctx     context.Context
	global  *globalNamespace
	objects map[worlds.Namespace]goja.Value

	wasm     wazero.Runtime
	wasmMu   sync.Mutex
	wasiOnce sync.Once
	wasiErr  error
}

var _ linker.Compiler = (*Realm)(nil)

func newRealm(e *Engine, cfg RealmConfig) *Realm {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	if e.opts.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(e.opts.MaxCallStackSize)
	}
	r := &Realm{
		engine:  e,
		vm:      vm,
		objects: make(map[worlds.Namespace]goja.Value),
	}
	r.global = &globalNamespace{realm: r}
	return r
}

func (r *Realm) seedGlobals(cfg RealmConfig) error {
	names := make([]string, 0, len(cfg.Globals))
	for name := range cfg.Globals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.vm.Set(name, r.toValue(cfg.Globals[name])); err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Detail("set global %q", name).
				Cause(err).
				Build()
		}
	}

	if cfg.GlobalName != "" {
		if _, ok := cfg.Globals[cfg.GlobalName]; !ok {
			if err := r.vm.Set(cfg.GlobalName, r.vm.GlobalObject()); err != nil {
				return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "set global self-reference")
			}
		}
	}

	if cfg.Console != nil {
		if _, ok := cfg.Globals["console"]; !ok {
			if err := r.vm.Set("console", builtin.NewConsole(cfg.Console)); err != nil {
				return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "set console")
			}
		}
	}
	return nil
}

// Compile implements linker.Compiler. The unit kind is picked by extension:
// .wasm is WebAssembly, .json is data, .ts/.mts/.cts are TypeScript and
// everything else is JavaScript.
func (r *Realm) Compile(ctx context.Context, identifier string, source []byte) (linker.Unit, error) {
	ext := strings.ToLower(path.Ext(identifier))
	Logger().Debug("compile",
		zap.String("identifier", identifier),
		zap.String("ext", ext),
		zap.Int("size", len(source)))

	switch ext {
	case ".wasm":
		return r.compileWasm(ctx, identifier, source)
	case ".json":
		return r.compileJS(identifier, source, api.LoaderJSON)
	case ".ts", ".mts", ".cts":
		return r.compileJS(identifier, source, api.LoaderTS)
	default:
		return r.compileJS(identifier, source, api.LoaderJS)
	}
}

// Global returns the realm's global object as a namespace. Reading the
// self-reference gives back the same namespace.
func (r *Realm) Global() worlds.Namespace {
	return r.global
}

// Call invokes the exported function name of ns with args. A returned
// promise that has settled is unwrapped.
func (r *Realm) Call(ctx context.Context, ns worlds.Namespace, name string, args ...any) (any, error) {
	v, err := r.exportValue(ns, name)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.New(errors.PhaseEvaluate, errors.KindInvalidInput).
			Detail("export %q is not a function", name).
			Build()
	}

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = r.toValue(a)
	}

	exit := r.enter(ctx)
	res, err := fn(goja.Undefined(), jsArgs...)
	exit()
	if err != nil {
		return nil, r.runError(ctx, err)
	}
	return r.result(res)
}

// Close releases the wasm runtime, if one was created.
func (r *Realm) Close(ctx context.Context) error {
	r.wasmMu.Lock()
	defer r.wasmMu.Unlock()
	if r.wasm == nil {
		return nil
	}
	err := r.wasm.Close(ctx)
	r.wasm = nil
	return err
}

// enter makes ctx the context of running code until the returned func is
// called. Cancelling ctx interrupts the JS runtime.
func (r *Realm) enter(ctx context.Context) func() {
	prev := r.ctx
	r.ctx = ctx
	if ctx.Done() == nil {
		return func() { r.ctx = prev }
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	return func() {
		close(stop)
		<-done
		if ctx.Err() != nil {
			r.vm.ClearInterrupt()
		}
		r.ctx = prev
	}
}

// CallContext returns the context of the code running in the realm, or
// nil while the realm is idle.
func (r *Realm) CallContext() context.Context {
	return r.ctx
}

// callContext is the context of the code currently running in the realm.
func (r *Realm) callContext() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// runError maps a failure of running JS. Interrupts by ctx report the
// context error.
func (r *Realm) runError(ctx context.Context, err error) error {
	var ie *goja.InterruptedError
	if stderrors.As(err, &ie) && ctx.Err() != nil {
		return errors.Wrap(errors.PhaseEvaluate, errors.KindEvaluation, ctx.Err(), "interrupted")
	}
	return err
}

// result converts a returned JS value to Go, unwrapping settled promises.
func (r *Realm) result(v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v.Export(), nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return r.result(p.Result())
	case goja.PromiseStateRejected:
		return nil, errors.New(errors.PhaseEvaluate, errors.KindEvaluation).
			Detail("promise rejected: %s", p.Result().String()).
			Build()
	default:
		return nil, errors.Unsupported(errors.PhaseEvaluate, "promise did not settle")
	}
}

// exportValue returns export name of ns as a JS value of this realm.
func (r *Realm) exportValue(ns worlds.Namespace, name string) (goja.Value, error) {
	if ns == nil {
		return nil, errors.NotInitialized(errors.PhaseEvaluate, "namespace")
	}
	if jn, ok := ns.(*jsNamespace); ok && jn.realm == r {
		if v := jn.value(name); v != nil {
			return v, nil
		}
		return nil, errors.NotFound(errors.PhaseEvaluate, "export", name)
	}
	v, ok := ns.Get(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseEvaluate, "export", name)
	}
	return r.toValue(v), nil
}

// toValue converts a Go value for use in the realm. Namespaces become
// module objects.
func (r *Realm) toValue(v any) goja.Value {
	if ns, ok := v.(worlds.Namespace); ok {
		return r.objectFor(ns)
	}
	return r.vm.ToValue(v)
}

// objectFor returns the JS object a dependency namespace is seen as.
// Source modules of this realm are seen through their exports; other
// namespaces are copied into an object once, so every importer sees the
// same object.
func (r *Realm) objectFor(ns worlds.Namespace) goja.Value {
	if jn, ok := ns.(*jsNamespace); ok && jn.realm == r {
		return jn.exportsValue()
	}
	if ns == worlds.Namespace(r.global) {
		return r.vm.GlobalObject()
	}

	cacheable := reflect.TypeOf(ns).Comparable()
	if cacheable {
		if o, ok := r.objects[ns]; ok {
			return o
		}
	}

	obj := r.vm.NewObject()
	for _, name := range ns.Names() {
		v, _ := ns.Get(name)
		if err := obj.DefineDataProperty(name, r.toValue(v), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			Logger().Warn("define export", zap.String("name", name), zap.Error(err))
		}
	}

	if cacheable {
		r.objects[ns] = obj
	}
	return obj
}

// globalNamespace is the global object viewed as a namespace.
type globalNamespace struct {
	realm *Realm
}

func (g *globalNamespace) Names() []string {
	return g.realm.vm.GlobalObject().Keys()
}

func (g *globalNamespace) Get(name string) (any, bool) {
	v := g.realm.vm.GlobalObject().Get(name)
	if v == nil {
		return nil, false
	}
	if o, ok := v.(*goja.Object); ok && o == g.realm.vm.GlobalObject() {
		return g, true
	}
	return v.Export(), true
}

func (g *globalNamespace) String() string {
	return fmt.Sprintf("global(%d names)", len(g.Names()))
}
