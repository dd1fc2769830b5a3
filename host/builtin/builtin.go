// Package builtin provides the host packages every world gets by default:
// "path" (slash-separated path helpers) and "console" (line logging to a
// writer). Both are also reachable as "node:path" and "node:console".
package builtin

import (
	"io"

	"github.com/wippyai/worlds/host"
)

// Register adds the built-in packages to reg. Console output goes to w.
func Register(reg *host.Registry, w io.Writer) error {
	if err := reg.RegisterHost(Path{}); err != nil {
		return err
	}
	if err := reg.Register("path", map[string]any{
		"sep":       "/",
		"delimiter": ":",
	}); err != nil {
		return err
	}
	return reg.RegisterHost(NewConsole(w))
}

// Default returns a registry holding the built-in packages.
func Default(w io.Writer) *host.Registry {
	reg := host.NewRegistry()
	// Registration of the fixed built-ins cannot fail.
	_ = Register(reg, w)
	return reg
}
