package linker

import (
	"context"
	"sync"

	"github.com/wippyai/worlds"
	"github.com/wippyai/worlds/errors"
)

// Kind distinguishes source records from synthetic ones.
type Kind uint8

const (
	KindSource Kind = iota
	KindSynthetic
)

func (k Kind) String() string {
	if k == KindSynthetic {
		return "synthetic"
	}
	return "source"
}

// Status is the position of a record in the link/evaluate state machine.
type Status uint8

const (
	StatusUnlinked Status = iota
	StatusLinking
	StatusLinked
	StatusEvaluating
	StatusEvaluated
	StatusErrored
)

var statusNames = [...]string{
	StatusUnlinked:   "unlinked",
	StatusLinking:    "linking",
	StatusLinked:     "linked",
	StatusEvaluating: "evaluating",
	StatusEvaluated:  "evaluated",
	StatusErrored:    "errored",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Meta is the import-time metadata exposed to a module body.
// URL carries the canonical identifier of the module.
type Meta struct {
	URL string
}

// Record is one module of a world's graph.
// Its identifier never changes. Status only moves forward, except that a
// link or evaluation abandoned because its context ended steps back to
// where it started.
type Record struct {
	owner      *Cache
	unit       Unit
	synthetic  *syntheticNamespace
	ns         worlds.Namespace
	err        error
	deps       map[string]*Record
	identifier string
	meta       Meta
	requests   []string
	kind       Kind
	status     Status
	mu         sync.RWMutex
}

func newSourceRecord(owner *Cache, identifier string, unit Unit) *Record {
	return &Record{
		owner:      owner,
		unit:       unit,
		identifier: identifier,
		meta:       Meta{URL: identifier},
		requests:   unit.Requests(),
		kind:       KindSource,
	}
}

func newSyntheticRecord(owner *Cache, specifier string, value any) *Record {
	ns := newSyntheticNamespace(value)
	return &Record{
		owner:      owner,
		synthetic:  ns,
		ns:         ns,
		identifier: specifier,
		meta:       Meta{URL: specifier},
		kind:       KindSynthetic,
	}
}

// Identifier returns the canonical identifier of the record.
func (r *Record) Identifier() string { return r.identifier }

// Kind returns whether the record is a source or synthetic module.
func (r *Record) Kind() Kind { return r.kind }

// Owner returns the cache of the world the record belongs to.
func (r *Record) Owner() *Cache { return r.owner }

// Meta returns the import-time metadata of the record.
func (r *Record) Meta() Meta { return r.meta }

// Requests returns the static import specifiers of a source record.
func (r *Record) Requests() []string {
	out := make([]string, len(r.requests))
	copy(out, r.requests)
	return out
}

// Status returns the current state of the record.
func (r *Record) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Err returns the error that moved the record to errored, if any.
func (r *Record) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Namespace returns the module namespace, or nil before the record is linked.
func (r *Record) Namespace() worlds.Namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ns
}

// Dependency returns the record a static request resolved to.
func (r *Record) Dependency(specifier string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dep, ok := r.deps[specifier]
	return dep, ok
}

// Dependencies returns the resolved static imports in request order.
// Requests naming the same record appear once.
func (r *Record) Dependencies() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, len(r.deps))
	seen := make(map[*Record]bool, len(r.deps))
	for _, spec := range r.requests {
		dep, ok := r.deps[spec]
		if !ok || seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	return out
}

func (r *Record) setStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

// unlink returns a record whose Link was abandoned to unlinked.
func (r *Record) unlink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusUnlinked
	r.deps = nil
}

func (r *Record) setDependencies(deps map[string]*Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps = deps
}

// fail moves the record to errored. The first error wins.
func (r *Record) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
	r.status = StatusErrored
}

// instantiate binds a source unit to env; synthetic records already have
// their namespace.
func (r *Record) instantiate(env Env) error {
	if r.kind == KindSynthetic {
		return nil
	}
	ns, err := r.unit.Instantiate(env)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.ns = ns
	r.mu.Unlock()
	return nil
}

// run executes the module body.
func (r *Record) run(ctx context.Context) error {
	if r.kind == KindSynthetic {
		r.synthetic.evaluate()
		return nil
	}
	if err := r.unit.Evaluate(ctx); err != nil {
		if errors.KindOf(err) != "" {
			return err
		}
		return errors.Evaluation(r.identifier, err)
	}
	return nil
}
