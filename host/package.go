package host

// Package is the namespace of one imported host package.
// Export names are sorted.
type Package struct {
	exports map[string]any
	names   []string
}

// Names returns the export names.
func (p *Package) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Get returns an export.
func (p *Package) Get(name string) (any, bool) {
	v, ok := p.exports[name]
	return v, ok
}
