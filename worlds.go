package worlds

// Namespace is the evaluated export set of a module.
// Names are ordered; Get reads the current value of an export.
type Namespace interface {
	Names() []string
	Get(name string) (any, bool)
}

// Export is a single name/value pair of a namespace.
type Export struct {
	Value any
	Name  string
}

// Entries returns the exports of ns in namespace order.
func Entries(ns Namespace) []Export {
	if ns == nil {
		return nil
	}
	names := ns.Names()
	out := make([]Export, 0, len(names))
	for _, name := range names {
		v, _ := ns.Get(name)
		out = append(out, Export{Name: name, Value: v})
	}
	return out
}

// ToMap copies the current values of ns into a map.
func ToMap(ns Namespace) map[string]any {
	if ns == nil {
		return nil
	}
	names := ns.Names()
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := ns.Get(name); ok {
			out[name] = v
		}
	}
	return out
}
