// Package world creates isolated module worlds.
//
// A World is built from an entry specifier and Options. It owns a fresh
// realm (global namespace) and a fresh module cache, so two worlds loading
// the same files never share module instances or globals.
//
//	w, err := world.New(ctx, "./index.js", world.Options{
//	    Dir:     "./app",
//	    Globals: map[string]any{"version": "1.2.0"},
//	    ImportHooks: map[string]linker.Hook{
//	        "config": func(ctx context.Context, spec string) (any, error) {
//	            return cfg, nil
//	        },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close(ctx)
//
//	result, err := w.Call(ctx, "main")
//
// # Specifiers
//
// The entry and every relative import resolve against the importing
// module. Absolute paths and URLs are rejected. Bare specifiers go to the
// matching import hook, or else to the Importer, which by default serves
// the built-in "path" and "console" packages.
//
// # Failure
//
// New fails with the error of the module that failed, unchanged. Modules
// evaluated before the failure are not rolled back, but the world is
// discarded.
package world
