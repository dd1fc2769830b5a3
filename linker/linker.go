package linker

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/worlds"
	"github.com/wippyai/worlds/errors"
)

// Options configures linker behavior.
type Options struct {
	// Loader reads source bytes for file records.
	Loader Loader

	// Compiler turns source bytes into units.
	Compiler Compiler

	// Importer resolves bare specifiers that have no hook.
	// A nil Importer makes every unhooked bare specifier NotFound.
	Importer Importer

	// Hooks maps exact bare specifiers to value factories.
	Hooks map[string]Hook

	// Concurrency bounds parallel resolution of one record's requests.
	// 0 means unbounded.
	Concurrency int
}

// DefaultOptions returns default linker configuration.
func DefaultOptions() Options {
	return Options{
		Concurrency: 8,
	}
}

// Linker resolves specifiers for one world and drives its records through
// link and evaluate.
type Linker struct {
	cache       *Cache
	loader      Loader
	compiler    Compiler
	importer    Importer
	hooks       map[string]Hook
	concurrency int
}

// New creates a Linker bound to cache. Hooks are copied; later changes to
// opts.Hooks have no effect.
func New(cache *Cache, opts Options) *Linker {
	hooks := make(map[string]Hook, len(opts.Hooks))
	for spec, h := range opts.Hooks {
		hooks[spec] = h
	}
	return &Linker{
		cache:       cache,
		loader:      opts.Loader,
		compiler:    opts.Compiler,
		importer:    opts.Importer,
		hooks:       hooks,
		concurrency: opts.Concurrency,
	}
}

// Cache returns the cache the linker populates.
func (l *Linker) Cache() *Cache {
	return l.cache
}

// Resolve routes specifier to the file or external resolver.
// The record is returned as found in the cache; a fresh one is unlinked.
func (l *Linker) Resolve(ctx context.Context, specifier, referrer string) (*Record, error) {
	kind, err := checkSpecifier(specifier, referrer)
	if err != nil {
		return nil, err
	}
	if kind == SpecifierRelative {
		return l.ResolveFile(ctx, specifier, referrer)
	}
	return l.ResolveExternal(ctx, specifier)
}

// ResolveFile resolves a relative specifier against referrer, loading and
// compiling the source on first use.
func (l *Linker) ResolveFile(ctx context.Context, specifier, referrer string) (*Record, error) {
	kind, err := checkSpecifier(specifier, referrer)
	if err != nil {
		return nil, err
	}
	if kind != SpecifierRelative {
		return nil, errors.Configuration(errors.PhaseResolve, specifier, "not a relative path")
	}

	id := Canonicalize(specifier, referrer)
	rec, hit, err := l.cache.load(ctx, id, func(ctx context.Context) (*Record, error) {
		return l.loadSource(ctx, id)
	})
	Logger().Debug("resolve file",
		zap.String("specifier", specifier),
		zap.String("referrer", referrer),
		zap.String("identifier", id),
		zap.Bool("cached", hit),
		zap.Error(err))
	return rec, err
}

// ResolveExternal resolves a bare specifier through its hook or the host
// importer and wraps the value as a synthetic record.
func (l *Linker) ResolveExternal(ctx context.Context, specifier string) (*Record, error) {
	kind, err := checkSpecifier(specifier, "")
	if err != nil {
		return nil, err
	}
	if kind != SpecifierBare {
		return nil, errors.Configuration(errors.PhaseResolve, specifier, "not a bare specifier")
	}

	rec, hit, err := l.cache.load(ctx, specifier, func(ctx context.Context) (*Record, error) {
		v, err := l.importValue(ctx, specifier)
		if err != nil {
			return nil, err
		}
		return newSyntheticRecord(l.cache, specifier, v), nil
	})
	Logger().Debug("resolve external",
		zap.String("specifier", specifier),
		zap.Bool("cached", hit),
		zap.Error(err))
	return rec, err
}

func (l *Linker) loadSource(ctx context.Context, id string) (*Record, error) {
	if l.loader == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "loader")
	}
	if l.compiler == nil {
		return nil, errors.NotInitialized(errors.PhaseCompile, "compiler")
	}

	src, err := l.loader.ReadFile(ctx, id)
	if err != nil {
		if errors.KindOf(err) == "" {
			err = errors.Load(id, err)
		}
		return nil, err
	}

	unit, err := l.compiler.Compile(ctx, id, src)
	if err != nil {
		if errors.KindOf(err) == "" {
			err = errors.CompileFailed(id, err)
		}
		return nil, err
	}

	return newSourceRecord(l.cache, id, unit), nil
}

// importValue produces the host value for a bare specifier. A registered
// hook shadows the importer entirely.
func (l *Linker) importValue(ctx context.Context, specifier string) (any, error) {
	if hook, ok := l.hooks[specifier]; ok {
		Logger().Debug("import hook", zap.String("specifier", specifier))
		v, err := hook(ctx, specifier)
		if err != nil {
			return nil, errors.New(errors.PhaseEvaluate, errors.KindEvaluation).
				Specifier(specifier).
				Detail("import hook failed").
				Cause(err).
				Build()
		}
		return v, nil
	}

	if l.importer == nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Specifier(specifier).
			Detail("no import hook and no host importer").
			Build()
	}

	v, err := l.importer.Import(ctx, specifier)
	if err != nil {
		if errors.KindOf(err) == "" {
			err = errors.New(errors.PhaseResolve, errors.KindNotFound).
				Specifier(specifier).
				Detail("host import failed").
				Cause(err).
				Build()
		}
		return nil, err
	}
	return v, nil
}

// Link resolves every static request reachable from rec and instantiates
// the records depth first. Records already linking or past linked are left
// alone, which terminates cycles.
func (l *Linker) Link(ctx context.Context, rec *Record) error {
	switch rec.Status() {
	case StatusLinking, StatusLinked, StatusEvaluating, StatusEvaluated:
		return nil
	case StatusErrored:
		return rec.Err()
	}

	rec.setStatus(StatusLinking)
	Logger().Debug("link", zap.String("identifier", rec.Identifier()))

	deps, err := l.resolveRequests(ctx, rec)
	if err != nil {
		return l.linkFailed(ctx, rec, err)
	}
	rec.setDependencies(deps)

	for _, dep := range rec.Dependencies() {
		if err := l.Link(ctx, dep); err != nil {
			return l.linkFailed(ctx, rec, err)
		}
	}

	if err := rec.instantiate(moduleEnv{linker: l, record: rec}); err != nil {
		return l.linkFailed(ctx, rec, linkError(errors.PhaseLink, rec.Identifier(), "", err))
	}

	rec.setStatus(StatusLinked)
	return nil
}

// resolveRequests resolves the static requests of rec in parallel. The
// error reported is the one of the first failing request in source order.
func (l *Linker) resolveRequests(ctx context.Context, rec *Record) (map[string]*Record, error) {
	reqs := rec.Requests()
	if len(reqs) == 0 {
		return nil, nil
	}

	resolved := make([]*Record, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	if l.concurrency > 0 {
		g.SetLimit(l.concurrency)
	}
	for i, spec := range reqs {
		i, spec := i, spec
		g.Go(func() error {
			resolved[i], errs[i] = l.Resolve(ctx, spec, rec.Identifier())
			return errs[i]
		})
	}
	_ = g.Wait()

	deps := make(map[string]*Record, len(reqs))
	for i, spec := range reqs {
		if errs[i] != nil {
			return nil, linkError(errors.PhaseResolve, rec.Identifier(), spec, errs[i])
		}
		deps[spec] = resolved[i]
	}
	return deps, nil
}

// Evaluate runs the bodies of rec and its dependencies, dependencies first.
// Each body runs exactly once; a record already evaluating is a cycle edge
// and is skipped.
func (l *Linker) Evaluate(ctx context.Context, rec *Record) error {
	switch rec.Status() {
	case StatusEvaluated, StatusEvaluating:
		return nil
	case StatusErrored:
		return rec.Err()
	case StatusUnlinked, StatusLinking:
		return errors.New(errors.PhaseEvaluate, errors.KindNotInitialized).
			Identifier(rec.Identifier()).
			Detail("record is %s", rec.Status()).
			Build()
	}

	if err := ctx.Err(); err != nil {
		return linkError(errors.PhaseEvaluate, rec.Identifier(), "",
			errors.Wrap(errors.PhaseEvaluate, errors.KindEvaluation, err, "interrupted"))
	}

	rec.setStatus(StatusEvaluating)
	Logger().Debug("evaluate", zap.String("identifier", rec.Identifier()))

	for _, dep := range rec.Dependencies() {
		if err := l.Evaluate(ctx, dep); err != nil {
			if ctx.Err() != nil {
				// The body of rec has not run yet.
				rec.setStatus(StatusLinked)
				return err
			}
			return l.fail(rec, err)
		}
	}

	if err := rec.run(ctx); err != nil {
		return l.fail(rec, linkError(errors.PhaseEvaluate, rec.Identifier(), "", err))
	}

	rec.setStatus(StatusEvaluated)
	return nil
}

// Import is the dynamic import path: it resolves specifier relative to
// referrer and, since no outer pass will, links and evaluates the result
// before returning its namespace.
func (l *Linker) Import(ctx context.Context, specifier, referrer string) (worlds.Namespace, error) {
	Logger().Debug("dynamic import",
		zap.String("specifier", specifier),
		zap.String("referrer", referrer))

	rec, err := l.Resolve(ctx, specifier, referrer)
	if err != nil {
		return nil, err
	}
	if err := l.Link(ctx, rec); err != nil {
		return nil, err
	}
	if err := l.Evaluate(ctx, rec); err != nil {
		return nil, err
	}
	return rec.Namespace(), nil
}

// linkFailed ends a failed Link of rec. A failure while ctx has ended
// leaves rec unlinked so a later Link starts over; any other failure is
// final.
func (l *Linker) linkFailed(ctx context.Context, rec *Record, err error) error {
	if ctx.Err() == nil {
		return l.fail(rec, err)
	}
	var le *LinkError
	if !stderrors.As(err, &le) {
		err = linkError(errors.PhaseLink, rec.Identifier(), "", err)
	}
	rec.unlink()
	Logger().Debug("link abandoned",
		zap.String("identifier", rec.Identifier()),
		zap.Error(err))
	return err
}

// fail marks rec errored with err, wrapping it in a LinkError unless one
// was already created further down the graph.
func (l *Linker) fail(rec *Record, err error) error {
	var le *LinkError
	if !stderrors.As(err, &le) {
		err = linkError(errors.PhaseLink, rec.Identifier(), "", err)
	}
	rec.fail(err)
	Logger().Debug("record errored",
		zap.String("identifier", rec.Identifier()),
		zap.Error(err))
	return err
}
