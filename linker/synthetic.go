package linker

import (
	"reflect"
	"sort"
	"sync"

	"github.com/wippyai/worlds"
)

// syntheticNamespace wraps one host value as a fixed set of named exports.
// The names are taken when the value is wrapped; the values are read from
// the live host value when the record is evaluated.
type syntheticNamespace struct {
	host   any
	values map[string]any
	names  []string
	mu     sync.RWMutex
}

func newSyntheticNamespace(host any) *syntheticNamespace {
	return &syntheticNamespace{
		host:  host,
		names: exportNames(host),
	}
}

func (n *syntheticNamespace) Names() []string {
	out := make([]string, len(n.names))
	copy(out, n.names)
	return out
}

// Get returns the value captured at evaluation. Declared names read as
// nil before that.
func (n *syntheticNamespace) Get(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.values != nil {
		v, ok := n.values[name]
		return v, ok
	}
	for _, known := range n.names {
		if known == name {
			return nil, true
		}
	}
	return nil, false
}

func (n *syntheticNamespace) evaluate() {
	values := make(map[string]any, len(n.names))
	for _, name := range n.names {
		v, _ := readExport(n.host, name)
		values[name] = v
	}
	n.mu.Lock()
	n.values = values
	n.mu.Unlock()
}

// exportNames snapshots the own enumerable names of a host value: the
// names of a Namespace, the sorted string keys of a map, or the exported
// fields of a struct. Anything else has no exports.
func exportNames(v any) []string {
	if ns, ok := v.(worlds.Namespace); ok {
		return ns.Names()
	}

	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		names := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			names = append(names, k.String())
		}
		sort.Strings(names)
		return names

	case reflect.Struct:
		t := rv.Type()
		var names []string
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.IsExported() && !f.Anonymous {
				names = append(names, f.Name)
			}
		}
		return names
	}

	return nil
}

// readExport reads the current value of one export from a host value.
func readExport(v any, name string) (any, bool) {
	if ns, ok := v.(worlds.Namespace); ok {
		return ns.Get(name)
	}

	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, false
	}

	switch rv.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(name).Convert(rv.Type().Key())
		val := rv.MapIndex(key)
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true

	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	}

	return nil, false
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}
