// Package worlds runs module graphs inside isolated worlds.
//
// A world is one realm (its own global namespace) plus its own module cache.
// Module code imports other modules by relative path or by bare name; the
// embedding host decides exactly which bare names resolve, either through
// import hooks or through a host importer. Within one world a specifier
// always resolves to the same single module instance.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	worlds/           Root package with the Namespace interface
//	├── world/        World factory: realm + cache + hooks, load/link/evaluate
//	├── linker/       Specifier classification, per-world cache, resolvers, link/evaluate
//	├── engine/       goja realm, esbuild JS compiler, wazero wasm compiler
//	├── host/         Host importer registry for bare specifiers (+ builtin modules)
//	├── loader/       Source readers (OS directory, fs.FS)
//	├── config/       YAML + environment configuration for the CLI
//	└── errors/       Structured error types
//
// # Quick Start
//
//	w, err := world.New(ctx, "./index.js", world.Options{
//	    Dir:     "./app",
//	    Globals: map[string]any{"answer": 42},
//	    ImportHooks: map[string]linker.Hook{
//	        "left-pad": func(ctx context.Context, _ string) (any, error) {
//	            return map[string]any{"pad": strings.Repeat}, nil
//	        },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close(ctx)
//
//	for _, e := range worlds.Entries(w.Namespace()) {
//	    fmt.Println(e.Name, e.Value)
//	}
//
// # Isolation
//
// Worlds isolate module identity and the global namespace only. This is not
// a security sandbox: there are no CPU or memory limits, and objects shared
// through Globals are shared.
//
// # Thread Safety
//
// Resolution (reading and compiling sources, calling hooks) may run on
// several goroutines. Evaluation and everything touching the realm runs on
// the goroutine that called world.New, World.Call or World.Import. World
// methods take a lock, so concurrent calls into one world run one at a time.
package worlds
