// Package engine runs module sources for worlds.
//
// An Engine creates Realms. A Realm is one isolated execution environment:
// a goja JavaScript runtime with its own global object, and a wazero
// runtime for WebAssembly modules, created on first use. A Realm is the
// linker.Compiler of its world.
//
// # Sources
//
//	.js .mjs .cjs   JavaScript, ES modules or CommonJS
//	.ts .mts .cts   TypeScript (types stripped)
//	.json           data; keys are exports, the object is the default import
//	.wasm           core WebAssembly
//
// JS and TS sources are lowered to CommonJS with esbuild. Static imports
// become linker requests; import() goes through the dynamic import path
// when it runs. import.meta.url is the module identifier.
//
// Wasm modules have no import specifiers. Only wasi_snapshot_preview1
// imports are satisfied; evaluating the module instantiates it and runs
// its start function. Exported functions take and return numbers.
//
// # Sharing
//
// With Options.ShareCompiled, realms of one engine share compiled JS
// programs and wasm code. Nothing mutable is shared.
//
// # Thread Safety
//
// Compile may be called concurrently. Running code (Evaluate, Call,
// reading namespaces) must be serialized per realm.
//
// # Example
//
//	eng := engine.New(engine.DefaultOptions())
//	realm, _ := eng.NewRealm(ctx, engine.RealmConfig{GlobalName: "global"})
//	defer realm.Close(ctx)
//	l := linker.New(linker.NewCache(), linker.Options{Loader: ld, Compiler: realm})
package engine
