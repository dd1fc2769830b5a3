package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/wippyai/worlds"
	"github.com/wippyai/worlds/errors"
	"github.com/wippyai/worlds/linker"
)

// Module bodies are lowered to CommonJS and wrapped in a function taking
// the module environment. import.meta becomes the __meta parameter.
const (
	moduleHeader = "(function(exports, require, module, __meta) {\n"
	moduleFooter = "\n})"
	metaParam    = "__meta"
)

// jsCode is the realm-independent result of compiling one JS source.
type jsCode struct {
	program  *goja.Program
	requests []string
}

func (r *Realm) compileJS(identifier string, source []byte, loader api.Loader) (linker.Unit, error) {
	code, err := r.engine.program(identifier, source, func() (*jsCode, error) {
		return compileJS(identifier, source, loader)
	})
	if err != nil {
		return nil, err
	}
	return &jsUnit{realm: r, code: code, identifier: identifier}, nil
}

func compileJS(identifier string, source []byte, loader api.Loader) (*jsCode, error) {
	requests, err := scanRequests(identifier, source, loader)
	if err != nil {
		return nil, err
	}

	res := api.Transform(string(source), api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		Sourcefile: identifier,
		Supported:  map[string]bool{"dynamic-import": false},
		Define:     map[string]string{"import.meta": metaParam},
		LogLevel:   api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return nil, compileError(identifier, res.Errors)
	}

	prog, err := goja.Compile(identifier, moduleHeader+string(res.Code)+moduleFooter, false)
	if err != nil {
		return nil, errors.CompileFailed(identifier, err)
	}
	return &jsCode{program: prog, requests: requests}, nil
}

// scanRequests lists the static requests of source: import and re-export
// statements and require calls with a literal argument, in source order
// without repeats. The parser does the work, so text inside strings,
// templates and comments never counts. Every request is left external.
func scanRequests(identifier string, source []byte, loader api.Loader) ([]string, error) {
	var (
		mu   sync.Mutex
		out  []string
		seen = make(map[string]bool)
	)
	collect := api.Plugin{
		Name: "requests",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				switch args.Kind {
				case api.ResolveEntryPoint:
					return api.OnResolveResult{}, nil
				case api.ResolveJSImportStatement, api.ResolveJSRequireCall:
					mu.Lock()
					if !seen[args.Path] {
						seen[args.Path] = true
						out = append(out, args.Path)
					}
					mu.Unlock()
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}

	res := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(source),
			Sourcefile: identifier,
			Loader:     loader,
		},
		Bundle:    true,
		Write:     false,
		Format:    api.FormatCommonJS,
		Platform:  api.PlatformNeutral,
		Target:    api.ES2017,
		Supported: map[string]bool{"dynamic-import": false},
		Define:    map[string]string{"import.meta": metaParam},
		LogLevel:  api.LogLevelSilent,
		Plugins:   []api.Plugin{collect},
	})
	if len(res.Errors) > 0 {
		return nil, compileError(identifier, res.Errors)
	}
	return out, nil
}

// compileError maps esbuild diagnostics. Top-level await needs an async
// module body, which CommonJS lowering cannot give.
func compileError(identifier string, msgs []api.Message) error {
	for _, m := range msgs {
		if strings.Contains(m.Text, "Top-level await") {
			return errors.New(errors.PhaseCompile, errors.KindUnsupported).
				Identifier(identifier).
				Detail("top-level await is not supported").
				Cause(transformError(msgs)).
				Build()
		}
	}
	return errors.CompileFailed(identifier, transformError(msgs))
}

func transformError(msgs []api.Message) error {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
		} else {
			lines = append(lines, m.Text)
		}
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

// jsUnit is a compiled JS module bound to one realm.
type jsUnit struct {
	realm      *Realm
	code       *jsCode
	env        linker.Env
	ns         *jsNamespace
	thrown     *goja.Object
	thrownErr  error
	identifier string
	evaluated  bool
}

func (u *jsUnit) Requests() []string {
	out := make([]string, len(u.code.requests))
	copy(out, u.code.requests)
	return out
}

func (u *jsUnit) Instantiate(env linker.Env) (worlds.Namespace, error) {
	vm := u.realm.vm
	module := vm.NewObject()
	if err := module.Set("exports", vm.NewObject()); err != nil {
		return nil, err
	}
	if err := module.Set("id", u.identifier); err != nil {
		return nil, err
	}

	u.env = env
	u.ns = &jsNamespace{realm: u.realm, unit: u, module: module}
	return u.ns, nil
}

func (u *jsUnit) Evaluate(ctx context.Context) error {
	if u.ns == nil {
		return errors.NotInitialized(errors.PhaseEvaluate, "module environment")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.PhaseEvaluate, errors.KindEvaluation, err, "interrupted")
	}
	vm := u.realm.vm

	exit := u.realm.enter(ctx)
	defer exit()

	fnVal, err := vm.RunProgram(u.code.program)
	if err != nil {
		return u.realm.runError(ctx, err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return errors.New(errors.PhaseEvaluate, errors.KindInvalidData).
			Identifier(u.identifier).
			Detail("module wrapper is not a function").
			Build()
	}

	meta := vm.NewObject()
	if err := meta.Set("url", u.env.Meta().URL); err != nil {
		return err
	}

	exports := u.ns.module.Get("exports")
	_, err = fn(exports, exports, vm.ToValue(u.require), u.ns.module, meta)
	if err != nil {
		if exc, ok := err.(*goja.Exception); ok && u.thrown != nil && exc.Value() == goja.Value(u.thrown) {
			return u.thrownErr
		}
		return u.realm.runError(ctx, err)
	}

	u.evaluated = true
	return nil
}

// require serves both static imports, which are already linked, and
// anything else, which goes through the dynamic import path.
func (u *jsUnit) require(call goja.FunctionCall) goja.Value {
	spec := call.Argument(0).String()

	if ns, ok := u.env.Dependency(spec); ok && ns != nil {
		return u.realm.objectFor(ns)
	}

	Logger().Debug("require dynamic",
		zap.String("identifier", u.identifier),
		zap.String("specifier", spec))

	ns, err := u.env.Import(u.realm.callContext(), spec)
	if err != nil {
		u.throw(err)
	}
	return u.realm.objectFor(ns)
}

// throw raises err in JS, remembering it so that an uncaught throw
// surfaces the original error.
func (u *jsUnit) throw(err error) {
	obj := u.realm.vm.NewGoError(err)
	u.thrown = obj
	u.thrownErr = err
	panic(obj)
}

// jsNamespace is the namespace of a JS module: whatever module.exports
// holds at the time it is read.
type jsNamespace struct {
	realm  *Realm
	unit   *jsUnit
	module *goja.Object
	proxy  *goja.Object
}

func (n *jsNamespace) exports() *goja.Object {
	v := n.module.Get("exports")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.ToObject(n.realm.vm)
}

func (n *jsNamespace) Names() []string {
	o := n.exports()
	if o == nil {
		return nil
	}
	return o.Keys()
}

func (n *jsNamespace) Get(name string) (any, bool) {
	v := n.value(name)
	if v == nil {
		return nil, false
	}
	return v.Export(), true
}

func (n *jsNamespace) value(name string) goja.Value {
	o := n.exports()
	if o == nil {
		return nil
	}
	return o.Get(name)
}

// exportsValue is what require returns for this module. Until the body
// has run, module.exports may still be replaced, so importers in a cycle
// get a view that follows it.
func (n *jsNamespace) exportsValue() goja.Value {
	if n.unit.evaluated {
		return n.module.Get("exports")
	}
	if n.proxy == nil {
		n.proxy = n.realm.vm.NewDynamicObject(liveExports{ns: n})
	}
	return n.proxy
}

// liveExports reads through to the current module.exports. It is read
// only.
type liveExports struct {
	ns *jsNamespace
}

func (l liveExports) Get(key string) goja.Value {
	return l.ns.value(key)
}

func (l liveExports) Set(string, goja.Value) bool { return false }

func (l liveExports) Has(key string) bool {
	return l.ns.value(key) != nil
}

func (l liveExports) Delete(string) bool { return false }

func (l liveExports) Keys() []string {
	return l.ns.Names()
}
