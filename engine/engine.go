package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Options configures an Engine.
type Options struct {
	// Stdout and Stderr receive WASI output of wasm modules.
	// Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// MemoryLimitPages caps wasm linear memory per module in 64KiB pages.
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// MaxCallStackSize limits JS recursion depth. 0 means the goja default.
	MaxCallStackSize int

	// ShareCompiled keeps compiled JS programs and wasm code in the engine
	// so that realms loading the same source compile it once.
	ShareCompiled bool
}

// DefaultOptions returns default engine configuration.
func DefaultOptions() Options {
	return Options{
		MaxCallStackSize: 1024,
		ShareCompiled:    true,
	}
}

// Engine creates realms. Realms never share mutable state; with
// ShareCompiled they share immutable compiled code.
type Engine struct {
	opts      Options
	wasmCache wazero.CompilationCache
	programs  map[string]*jsCode
	mu        sync.Mutex
}

// New creates an engine.
func New(opts Options) *Engine {
	e := &Engine{opts: opts}
	if opts.ShareCompiled {
		e.wasmCache = wazero.NewCompilationCache()
		e.programs = make(map[string]*jsCode)
	}
	return e
}

// RealmConfig configures one realm.
type RealmConfig struct {
	// Globals seeds the realm's global object.
	Globals map[string]any

	// GlobalName, when set and not already a global, names a global that
	// refers to the global object itself.
	GlobalName string

	// Console, when set and "console" is not already a global, installs a
	// console object writing to it.
	Console io.Writer
}

// NewRealm creates a fresh realm: its own JS runtime, global object and
// wasm runtime.
func (e *Engine) NewRealm(ctx context.Context, cfg RealmConfig) (*Realm, error) {
	r := newRealm(e, cfg)
	if err := r.seedGlobals(cfg); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	Logger().Debug("realm created",
		zap.Int("globals", len(cfg.Globals)),
		zap.String("global_name", cfg.GlobalName))
	return r, nil
}

// Close releases the shared compilation cache.
func (e *Engine) Close(ctx context.Context) error {
	if e.wasmCache != nil {
		return e.wasmCache.Close(ctx)
	}
	return nil
}

// program returns the compiled JS code for source, compiling it with
// compile on a miss.
func (e *Engine) program(identifier string, source []byte, compile func() (*jsCode, error)) (*jsCode, error) {
	if e.programs == nil {
		return compile()
	}

	sum := sha256.Sum256(source)
	key := identifier + "\x00" + hex.EncodeToString(sum[:])

	e.mu.Lock()
	p, ok := e.programs[key]
	e.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := compile()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[key] = p
	e.mu.Unlock()
	return p, nil
}
