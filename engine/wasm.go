package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/worlds"
	"github.com/wippyai/worlds/errors"
	"github.com/wippyai/worlds/linker"
)

// wasmRuntime returns the realm's wazero runtime, creating it on first use.
func (r *Realm) wasmRuntime(ctx context.Context) wazero.Runtime {
	r.wasmMu.Lock()
	defer r.wasmMu.Unlock()

	if r.wasm == nil {
		cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
		if r.engine.wasmCache != nil {
			cfg = cfg.WithCompilationCache(r.engine.wasmCache)
		}
		if r.engine.opts.MemoryLimitPages > 0 {
			cfg = cfg.WithMemoryLimitPages(r.engine.opts.MemoryLimitPages)
		}
		r.wasm = wazero.NewRuntimeWithConfig(ctx, cfg)
	}
	return r.wasm
}

// initWASI instantiates wasi_snapshot_preview1 once per realm.
func (r *Realm) initWASI(ctx context.Context, rt wazero.Runtime) error {
	r.wasiOnce.Do(func() {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			r.wasiErr = fmt.Errorf("instantiate WASI: %w", err)
		}
	})
	return r.wasiErr
}

// compileWasm compiles a core wasm module. Modules have no import
// specifiers of their own; the only imports satisfied are WASI's.
func (r *Realm) compileWasm(ctx context.Context, identifier string, source []byte) (linker.Unit, error) {
	rt := r.wasmRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, source)
	if err != nil {
		return nil, errors.CompileFailed(identifier, err)
	}

	needsWASI := false
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		if mod != wasi_snapshot_preview1.ModuleName {
			_ = compiled.Close(ctx)
			return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
				Identifier(identifier).
				Detail("import %s.%s: only %s imports are supported", mod, name, wasi_snapshot_preview1.ModuleName).
				Build()
		}
		needsWASI = true
	}
	if len(compiled.ImportedMemories()) > 0 {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Identifier(identifier).
			Detail("imported memories are not supported").
			Build()
	}

	if needsWASI {
		if err := r.initWASI(ctx, rt); err != nil {
			return nil, errors.Wrap(errors.PhaseCompile, errors.KindNotInitialized, err, "WASI")
		}
	}

	return &wasmUnit{realm: r, compiled: compiled, identifier: identifier}, nil
}

// wasmUnit is a compiled wasm module. Evaluating it instantiates the
// module, which runs its start function.
type wasmUnit struct {
	realm      *Realm
	compiled   wazero.CompiledModule
	module     api.Module
	ns         *wasmNamespace
	identifier string
}

func (u *wasmUnit) Requests() []string { return nil }

func (u *wasmUnit) Instantiate(linker.Env) (worlds.Namespace, error) {
	defs := u.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	u.ns = &wasmNamespace{
		unit:  u,
		defs:  defs,
		names: names,
		funcs: make(map[string]WasmFunc, len(names)),
	}
	return u.ns, nil
}

func (u *wasmUnit) Evaluate(ctx context.Context) error {
	opts := u.realm.engine.opts
	cfg := wazero.NewModuleConfig().
		WithName(u.identifier).
		WithStdout(writerOrDiscard(opts.Stdout)).
		WithStderr(writerOrDiscard(opts.Stderr))

	mod, err := u.realm.wasmRuntime(ctx).InstantiateModule(ctx, u.compiled, cfg)
	if err != nil {
		var exit *sys.ExitError
		if !stderrors.As(err, &exit) || exit.ExitCode() != 0 {
			return err
		}
		Logger().Debug("wasm module exited during start",
			zap.String("identifier", u.identifier))
	}

	u.ns.mu.Lock()
	u.module = mod
	u.ns.mu.Unlock()
	return nil
}

// WasmFunc is how an exported wasm function appears to hosts and JS.
// Arguments are numbers; one result is returned as is, several as a
// slice.
type WasmFunc func(args ...any) (any, error)

// wasmNamespace exports the functions of a wasm module.
type wasmNamespace struct {
	unit  *wasmUnit
	defs  map[string]api.FunctionDefinition
	funcs map[string]WasmFunc
	names []string
	mu    sync.Mutex
}

func (n *wasmNamespace) Names() []string {
	out := make([]string, len(n.names))
	copy(out, n.names)
	return out
}

// Get returns the function export name. Before the module is evaluated
// declared names read as nil.
func (n *wasmNamespace) Get(name string) (any, bool) {
	def, ok := n.defs[name]
	if !ok {
		return nil, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unit.module == nil {
		return nil, true
	}
	if fn, ok := n.funcs[name]; ok {
		return fn, true
	}

	exported := n.unit.module.ExportedFunction(name)
	if exported == nil {
		return nil, true
	}
	fn := WasmFunc(func(args ...any) (any, error) {
		return n.unit.call(exported, def, args)
	})
	n.funcs[name] = fn
	return fn, true
}

func (u *wasmUnit) call(fn api.Function, def api.FunctionDefinition, args []any) (any, error) {
	params := def.ParamTypes()
	if len(args) != len(params) {
		return nil, errors.New(errors.PhaseEvaluate, errors.KindInvalidInput).
			Identifier(u.identifier).
			Detail("%s expects %d arguments, got %d", def.Name(), len(params), len(args)).
			Build()
	}

	stack := make([]uint64, len(params))
	for i, t := range params {
		v, err := encodeValue(t, args[i])
		if err != nil {
			return nil, errors.New(errors.PhaseEvaluate, errors.KindInvalidInput).
				Identifier(u.identifier).
				Detail("%s argument %d", def.Name(), i).
				Cause(err).
				Build()
		}
		stack[i] = v
	}

	results, err := fn.Call(u.realm.callContext(), stack...)
	if err != nil {
		return nil, errors.Evaluation(u.identifier, err)
	}

	types := def.ResultTypes()
	switch len(types) {
	case 0:
		return nil, nil
	case 1:
		return decodeValue(types[0], results[0]), nil
	}
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = decodeValue(t, results[i])
	}
	return out, nil
}

func encodeValue(t api.ValueType, v any) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		if n < math.MinInt32 || n > math.MaxUint32 {
			return 0, fmt.Errorf("%d overflows i32", n)
		}
		return api.EncodeI32(int32(n)), nil
	case api.ValueTypeI64:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeI64(n), nil
	case api.ValueTypeF32:
		f, err := toFloat64(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		f, err := toFloat64(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(f), nil
	}
	return 0, fmt.Errorf("unsupported value type %s", api.ValueTypeName(t))
}

func decodeValue(t api.ValueType, v uint64) any {
	switch t {
	case api.ValueTypeI32:
		return api.DecodeI32(v)
	case api.ValueTypeI64:
		return int64(v)
	case api.ValueTypeF32:
		return api.DecodeF32(v)
	case api.ValueTypeF64:
		return api.DecodeF64(v)
	}
	return v
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%T is not a number", v)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	}
	i, err := toInt64(v)
	return float64(i), err
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
