package linker

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/worlds"
	"github.com/wippyai/worlds/errors"
)

// Test modules are line based:
//
//	import ./a.js      static request
//	dynamic ./b.js     dynamic import while evaluating
//	export name=value  string export
//	throw message      body fails

type evalLog struct {
	order []string
	mu    sync.Mutex
}

func (l *evalLog) add(id string) {
	l.mu.Lock()
	l.order = append(l.order, id)
	l.mu.Unlock()
}

func (l *evalLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.order, ",")
}

type memLoader struct {
	files map[string]string
	gate  chan struct{}
	reads atomic.Int32
}

func (m *memLoader) ReadFile(ctx context.Context, id string) ([]byte, error) {
	m.reads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	src, ok := m.files[id]
	if !ok {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Identifier(id).
			Detail("no such file").
			Build()
	}
	return []byte(src), nil
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		runtime.Gosched()
	}
}

type fakeCompiler struct {
	log *evalLog
}

func (c *fakeCompiler) Compile(_ context.Context, id string, src []byte) (Unit, error) {
	u := &fakeUnit{id: id, log: c.log, ns: &fakeNamespace{values: map[string]any{}}}
	for _, line := range strings.Split(string(src), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		op, arg, _ := strings.Cut(line, " ")
		switch op {
		case "import":
			u.requests = append(u.requests, arg)
		case "dynamic":
			u.dynamic = append(u.dynamic, arg)
		case "export":
			name, value, _ := strings.Cut(arg, "=")
			u.ns.names = append(u.ns.names, name)
			u.exports = append(u.exports, [2]string{name, value})
		case "throw":
			u.throw = arg
		default:
			return nil, fmt.Errorf("unknown directive %q", op)
		}
	}
	return u, nil
}

type fakeUnit struct {
	env      Env
	log      *evalLog
	ns       *fakeNamespace
	id       string
	throw    string
	requests []string
	dynamic  []string
	exports  [][2]string
	imported []worlds.Namespace
	runs     int
}

func (u *fakeUnit) Requests() []string { return u.requests }

func (u *fakeUnit) Instantiate(env Env) (worlds.Namespace, error) {
	u.env = env
	return u.ns, nil
}

func (u *fakeUnit) Evaluate(ctx context.Context) error {
	u.runs++
	u.log.add(u.id)
	for _, spec := range u.dynamic {
		ns, err := u.env.Import(ctx, spec)
		if err != nil {
			return err
		}
		u.imported = append(u.imported, ns)
	}
	if u.throw != "" {
		return fmt.Errorf("%s", u.throw)
	}
	for _, kv := range u.exports {
		u.ns.set(kv[0], kv[1])
	}
	return nil
}

type fakeNamespace struct {
	values map[string]any
	names  []string
	mu     sync.Mutex
}

func (n *fakeNamespace) Names() []string { return n.names }

func (n *fakeNamespace) Get(name string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.values[name]
	if !ok {
		for _, known := range n.names {
			if known == name {
				return nil, true
			}
		}
	}
	return v, ok
}

func (n *fakeNamespace) set(name string, v any) {
	n.mu.Lock()
	n.values[name] = v
	n.mu.Unlock()
}

type testWorld struct {
	linker *Linker
	loader *memLoader
	log    *evalLog
}

func newTestWorld(files map[string]string, opts Options) *testWorld {
	log := &evalLog{}
	ld := &memLoader{files: files}
	opts.Loader = ld
	opts.Compiler = &fakeCompiler{log: log}
	return &testWorld{
		linker: New(NewCache(), opts),
		loader: ld,
		log:    log,
	}
}

// load resolves the entry relative to /app, then links and evaluates it.
func (w *testWorld) load(ctx context.Context, entry string) (*Record, error) {
	rec, err := w.linker.ResolveFile(ctx, entry, RootReferrer("/app"))
	if err != nil {
		return nil, err
	}
	if err := w.linker.Link(ctx, rec); err != nil {
		return rec, err
	}
	return rec, w.linker.Evaluate(ctx, rec)
}

func unitOf(rec *Record) *fakeUnit {
	return rec.unit.(*fakeUnit)
}
