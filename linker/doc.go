// Package linker resolves import specifiers to module records and drives
// module graphs through link and evaluate.
//
// # Main Types
//
//   - Linker: dispatcher shared by the static link pass and dynamic imports
//   - Cache: per-world map from canonical identifier to Record
//   - Record: one module, either compiled from source or wrapping a host value
//
// # Specifiers
//
//	./x.js, ../x.js     relative: resolved against the importing module
//	/x.js, file:///x.js absolute: always rejected
//	left-pad, node:path bare: import hook, then the host Importer
//
// # Record Lifecycle
//
//	unlinked -> linking -> linked -> evaluating -> evaluated
//	                 \          \            \
//	                  +----------+------------+--> errored
//
// Link resolves every static request of a record (in parallel) and links the
// dependencies depth first. Evaluate runs dependencies before dependents and
// every body exactly once; a record already linking or evaluating is treated
// as done, which is what makes cycles terminate.
//
// # Thread Safety
//
// Resolve, ResolveFile and ResolveExternal are safe for concurrent use: the
// Cache reserves an identifier before loading it, so concurrent requests for
// the same identifier share one Record. Link, Evaluate and Import must be
// driven from a single goroutine per world.
//
// # Example
//
//	cache := linker.NewCache()
//	l := linker.New(cache, linker.Options{Loader: ld, Compiler: realm})
//	rec, _ := l.ResolveFile(ctx, "./index.js", linker.RootReferrer("/app"))
//	_ = l.Link(ctx, rec)
//	_ = l.Evaluate(ctx, rec)
//	ns := rec.Namespace()
package linker
