package world

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/worlds"
	"github.com/wippyai/worlds/engine"
	"github.com/wippyai/worlds/errors"
	"github.com/wippyai/worlds/host"
	"github.com/wippyai/worlds/host/builtin"
	"github.com/wippyai/worlds/linker"
	"github.com/wippyai/worlds/loader"
)

// DefaultGlobalName is the global that refers to the global object
// itself unless Options.GlobalName says otherwise.
const DefaultGlobalName = "global"

// Options configures a world.
type Options struct {
	// Dir is the directory the entry specifier is resolved against.
	// With the default loader it is an OS path ("" means the working
	// directory); with a custom Loader it is a slash path ("" means "/").
	Dir string

	// Loader reads module sources. Nil reads from the OS filesystem.
	Loader linker.Loader

	// Globals seeds the global namespace.
	Globals map[string]any

	// GlobalName is the global that refers to the global object, added
	// unless Globals already defines it. "" means DefaultGlobalName.
	GlobalName string

	// Console, when set, receives console output: the console global and
	// the built-in "console" package.
	Console io.Writer

	// ImportHooks serve exact bare specifiers. A hooked specifier never
	// reaches Importer.
	ImportHooks map[string]linker.Hook

	// Importer resolves other bare specifiers. Nil serves the built-in
	// packages ("path", "console").
	Importer linker.Importer

	// Engine runs the world's code. Nil creates one owned by the world.
	Engine *engine.Engine

	// Concurrency bounds parallel resolution per module. 0 is unbounded.
	Concurrency int
}

// DefaultOptions returns default world configuration.
func DefaultOptions() Options {
	return Options{
		GlobalName:  DefaultGlobalName,
		Concurrency: linker.DefaultOptions().Concurrency,
	}
}

// World is one isolated module graph: its own realm, its own cache, and
// the evaluated entry module.
type World struct {
	engine     *engine.Engine
	ownsEngine bool
	realm      *engine.Realm
	linker     *linker.Linker
	entry      *linker.Record
	root       string
	mu         sync.Mutex
}

// New creates a world and loads entry into it: every module reachable
// through static imports is linked, then evaluated once, dependencies
// first. entry must be a relative specifier.
//
// On failure the error of the failing module is returned and nothing of
// the world is kept.
func New(ctx context.Context, entry string, opts Options) (*World, error) {
	if kind := linker.Classify(entry); kind != linker.SpecifierRelative {
		return nil, errors.New(errors.PhaseConfig, errors.KindConfiguration).
			Specifier(entry).
			Detail("entry must be a relative path, got %s specifier", kind).
			Build()
	}

	root, err := rootDir(opts)
	if err != nil {
		return nil, err
	}

	w := &World{
		engine: opts.Engine,
		root:   root,
	}
	if w.engine == nil {
		w.engine = engine.New(engine.DefaultOptions())
		w.ownsEngine = true
	}

	globalName := opts.GlobalName
	if globalName == "" {
		globalName = DefaultGlobalName
	}
	w.realm, err = w.engine.NewRealm(ctx, engine.RealmConfig{
		Globals:    opts.Globals,
		GlobalName: globalName,
		Console:    opts.Console,
	})
	if err != nil {
		w.release(ctx)
		return nil, err
	}

	ld := opts.Loader
	if ld == nil {
		ld = loader.NewDir("")
	}
	importer := opts.Importer
	if importer == nil {
		importer = builtin.Default(opts.Console)
	}

	w.linker = linker.New(linker.NewCache(), linker.Options{
		Loader:      ld,
		Compiler:    w.realm,
		Importer:    callImporter{importer: importer, realm: w.realm},
		Hooks:       opts.ImportHooks,
		Concurrency: opts.Concurrency,
	})

	if err := w.load(ctx, entry); err != nil {
		Logger().Debug("world failed",
			zap.String("entry", entry),
			zap.String("root", root),
			zap.Error(err))
		w.release(ctx)
		return nil, err
	}

	Logger().Debug("world loaded",
		zap.String("entry", w.entry.Identifier()),
		zap.Int("modules", w.linker.Cache().Len()))
	return w, nil
}

// Load creates a world for entry and returns its entry namespace. The
// world stays alive as long as the namespace is used; use New to be able
// to Close it.
func Load(ctx context.Context, entry string, opts Options) (worlds.Namespace, error) {
	w, err := New(ctx, entry, opts)
	if err != nil {
		return nil, err
	}
	return w.Namespace(), nil
}

func (w *World) load(ctx context.Context, entry string) error {
	rec, err := w.linker.ResolveFile(ctx, entry, linker.RootReferrer(w.root))
	if err != nil {
		return err
	}
	if err := w.linker.Link(ctx, rec); err != nil {
		return err
	}
	if err := w.linker.Evaluate(ctx, rec); err != nil {
		return err
	}
	w.entry = rec
	return nil
}

// callImporter hands host values the context of the realm call that uses
// them rather than the one they were imported under.
type callImporter struct {
	importer linker.Importer
	realm    *engine.Realm
}

func (i callImporter) Import(ctx context.Context, specifier string) (any, error) {
	return i.importer.Import(host.WithCallContext(ctx, i.realm.CallContext), specifier)
}

// rootDir returns the slash path the entry is resolved against.
func rootDir(opts Options) (string, error) {
	if opts.Loader != nil {
		return path.Clean("/" + filepath.ToSlash(opts.Dir)), nil
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "resolve world directory")
	}
	return filepath.ToSlash(abs), nil
}

// Namespace returns the namespace of the entry module.
func (w *World) Namespace() worlds.Namespace {
	return w.entry.Namespace()
}

// Entry returns the record of the entry module.
func (w *World) Entry() *linker.Record {
	return w.entry
}

// Global returns the world's global namespace.
func (w *World) Global() worlds.Namespace {
	return w.realm.Global()
}

// Linker returns the linker of the world, for introspection of its cache.
func (w *World) Linker() *linker.Linker {
	return w.linker
}

// Root returns the directory identifiers of the world are rooted at.
func (w *World) Root() string {
	return w.root
}

// Call invokes the exported function name of the entry module.
func (w *World) Call(ctx context.Context, name string, args ...any) (any, error) {
	return w.CallIn(ctx, w.Namespace(), name, args...)
}

// CallIn invokes the exported function name of ns, a namespace of this
// world.
func (w *World) CallIn(ctx context.Context, ns worlds.Namespace, name string, args ...any) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.realm.Call(ctx, ns, name, args...)
}

// Describe lists the exports of ns, a namespace of this world.
func (w *World) Describe(ns worlds.Namespace) []engine.Export {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.realm.Describe(ns)
}

// Import dynamically imports specifier relative to the world root, linking
// and evaluating what it pulls in.
func (w *World) Import(ctx context.Context, specifier string) (worlds.Namespace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.linker.Import(ctx, specifier, linker.RootReferrer(w.root))
}

// Close releases the world's realm, and its engine if the world created it.
func (w *World) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.release(ctx)
}

func (w *World) release(ctx context.Context) error {
	var err error
	if w.realm != nil {
		err = w.realm.Close(ctx)
	}
	if w.ownsEngine {
		if cerr := w.engine.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
