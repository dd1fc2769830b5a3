package engine

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/dop251/goja"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/worlds"
)

// Export describes one export of a namespace for display.
type Export struct {
	Name string
	// Func reports whether the export can be called.
	Func bool
	// Params names the parameters of a function: wasm value types, Go
	// types, or arg0..argN for JS functions.
	Params []string
	// Type is the JS type of a value, or the Go type for host values.
	Type string
}

// Describe lists the exports of ns, sorted by name.
func (r *Realm) Describe(ns worlds.Namespace) []Export {
	names := ns.Names()
	sort.Strings(names)

	out := make([]Export, 0, len(names))
	for _, name := range names {
		out = append(out, r.describe(ns, name))
	}
	return out
}

func (r *Realm) describe(ns worlds.Namespace, name string) Export {
	e := Export{Name: name}

	switch n := ns.(type) {
	case *wasmNamespace:
		if def, ok := n.defs[name]; ok {
			e.Func = true
			for _, t := range def.ParamTypes() {
				e.Params = append(e.Params, api.ValueTypeName(t))
			}
			return e
		}
	case *jsNamespace:
		if n.realm == r {
			v := n.value(name)
			if v == nil {
				return e
			}
			if _, ok := goja.AssertFunction(v); ok {
				e.Func = true
				e.Params = argNames(int(v.ToObject(r.vm).Get("length").ToInteger()))
				return e
			}
			e.Type = jsTypeOf(v)
			return e
		}
	}

	v, ok := ns.Get(name)
	if !ok {
		return e
	}
	if v == nil {
		e.Type = "null"
		return e
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Func {
		e.Func = true
		for i := 0; i < t.NumIn(); i++ {
			in := t.In(i)
			if t.IsVariadic() && i == t.NumIn()-1 {
				e.Params = append(e.Params, "..."+in.Elem().String())
				continue
			}
			e.Params = append(e.Params, in.String())
		}
		return e
	}
	e.Type = t.String()
	return e
}

func argNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("arg%d", i)
	}
	return out
}

func jsTypeOf(v goja.Value) string {
	switch {
	case goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	switch v.ExportType().Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int64, reflect.Float64:
		return "number"
	}
	if _, ok := v.(*goja.Object); ok {
		return "object"
	}
	return v.ExportType().String()
}
