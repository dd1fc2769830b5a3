// Package host provides the registry of host packages that worlds import
// by bare specifier.
//
// A Registry implements linker.Importer. Packages are registered under a
// bare specifier, optionally versioned:
//
//	reg := host.NewRegistry()
//	reg.Register("acme/config@1.2.0", map[string]any{"debug": true})
//	reg.RegisterFunc("acme/log", "write", func(s string) { ... })
//	reg.RegisterHost(&MyHost{})
//
// # Version Matching
//
// "acme/config@1.2" resolves to the highest registered 1.x version that is
// at least 1.2.0. "acme/config" resolves to the highest version registered.
// A "node:" prefix falls back to the unprefixed name, so "node:path" finds
// a package registered as "path".
//
// # Host Structs
//
// RegisterHost exports every exported method of a Host under its
// lowerCamel name (IsAbsolute becomes isAbsolute). Methods taking a
// context.Context first receive the context of the import that loaded the
// package.
package host
