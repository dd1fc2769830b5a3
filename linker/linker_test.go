package linker

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
	"testing"

	"github.com/wippyai/worlds/errors"
)

func TestLinkEvaluateOrder(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js": "import ./a.js\nimport ./b.js\nexport main=yes",
		"/app/a.js":     "import ./lib/c.js\nexport a=1",
		"/app/b.js":     "import ./lib/c.js\nexport b=2",
		"/app/lib/c.js": "export c=3",
	}, DefaultOptions())

	rec, err := w.load(context.Background(), "./index.js")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := w.log.String(); got != "/app/lib/c.js,/app/a.js,/app/b.js,/app/index.js" {
		t.Errorf("evaluation order = %s", got)
	}
	if rec.Status() != StatusEvaluated {
		t.Errorf("status = %v, want evaluated", rec.Status())
	}
	if v, _ := rec.Namespace().Get("main"); v != "yes" {
		t.Errorf("main = %v, want yes", v)
	}
	if rec.Meta().URL != "/app/index.js" {
		t.Errorf("meta url = %q", rec.Meta().URL)
	}

	deps := rec.Dependencies()
	if len(deps) != 2 || deps[0].Identifier() != "/app/a.js" || deps[1].Identifier() != "/app/b.js" {
		t.Errorf("unexpected dependencies: %v", deps)
	}
	a, _ := rec.Dependency("./a.js")
	b, _ := rec.Dependency("./b.js")
	ca, _ := a.Dependency("./lib/c.js")
	cb, _ := b.Dependency("./lib/c.js")
	if ca != cb {
		t.Error("shared dependency resolved to two records")
	}
	if got := w.linker.Cache().Len(); got != 4 {
		t.Errorf("cache len = %d, want 4", got)
	}
}

func TestSingleInstance(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/a.js":     "export a=1",
		"/app/lib/b.js": "export b=1",
	}, DefaultOptions())
	ctx := context.Background()

	r1, err := w.linker.ResolveFile(ctx, "./a.js", "/app/index.js")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	r2, err := w.linker.Resolve(ctx, "../a.js", "/app/lib/b.js")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	r3, err := w.linker.Resolve(ctx, "./lib/../a.js", "/app/x.js")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r1 != r2 || r2 != r3 {
		t.Error("same identifier produced different records")
	}
	if n := w.loader.reads.Load(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
	if got, ok := w.linker.Cache().Get("/app/a.js"); !ok || got != r1 {
		t.Error("cache lookup did not return the resolved record")
	}
}

func TestSingleInstanceConcurrent(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/a.js": "export a=1",
	}, DefaultOptions())
	w.loader.gate = make(chan struct{})
	ctx := context.Background()

	const n = 16
	recs := make([]*Record, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spec := "./a.js"
			if i%2 == 1 {
				spec = "../app/a.js"
			}
			recs[i], errs[i] = w.linker.ResolveFile(ctx, spec, "/app/index.js")
		}(i)
	}

	// One request is blocked reading, the rest wait on its slot.
	waitFor(t, "first reader", func() bool { return w.loader.reads.Load() == 1 })
	waitFor(t, "waiters", func() bool { return w.linker.cache.waiting() == n-1 })
	close(w.loader.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("resolve %d: %v", i, errs[i])
		}
		if recs[i] != recs[0] {
			t.Fatalf("resolve %d returned a different record", i)
		}
	}
	if got := w.loader.reads.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
}

func TestInFlightWaitHonorsContext(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/a.js": "export a=1",
	}, DefaultOptions())
	w.loader.gate = make(chan struct{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := w.linker.ResolveFile(context.Background(), "./a.js", "/app/")
		done <- err
	}()
	<-started

	// Wait until the first request owns the slot.
	for w.linker.Cache().Len() == 0 {
		runtime.Gosched()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.linker.ResolveFile(ctx, "./a.js", "/app/"); !stderrors.Is(err, context.Canceled) {
		t.Errorf("waiter err = %v, want context.Canceled", err)
	}

	close(w.loader.gate)
	if err := <-done; err != nil {
		t.Errorf("owner err = %v", err)
	}
}

func TestCycleEvaluatesOnce(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js": "import ./a.js",
		"/app/a.js":     "import ./b.js\nexport a=1",
		"/app/b.js":     "import ./a.js\nimport ./b.js\nexport b=2",
	}, DefaultOptions())

	rec, err := w.load(context.Background(), "./index.js")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := w.log.String(); got != "/app/b.js,/app/a.js,/app/index.js" {
		t.Errorf("evaluation order = %s", got)
	}

	a, _ := rec.Dependency("./a.js")
	b, _ := a.Dependency("./b.js")
	for _, r := range []*Record{rec, a, b} {
		if r.Status() != StatusEvaluated {
			t.Errorf("%s status = %v", r.Identifier(), r.Status())
		}
		if runs := unitOf(r).runs; runs != 1 {
			t.Errorf("%s evaluated %d times", r.Identifier(), runs)
		}
	}
	if back, _ := b.Dependency("./a.js"); back != a {
		t.Error("cycle edge resolved to a new record")
	}
}

func TestAbsoluteImportRejected(t *testing.T) {
	tests := []string{"/etc/passwd", "file:///etc/passwd", "https://example.com/x.js"}

	for _, spec := range tests {
		t.Run(spec, func(t *testing.T) {
			w := newTestWorld(map[string]string{
				"/app/index.js": "import " + spec,
			}, DefaultOptions())

			rec, err := w.load(context.Background(), "./index.js")
			if !stderrors.Is(err, errors.ErrConfiguration) {
				t.Fatalf("err = %v, want configuration error", err)
			}
			var le *LinkError
			if !stderrors.As(err, &le) {
				t.Fatalf("err = %T, want *LinkError", err)
			}
			if le.Specifier != spec || le.Identifier != "/app/index.js" || le.Phase != errors.PhaseResolve {
				t.Errorf("unexpected link error: %+v", le)
			}
			if rec.Status() != StatusErrored {
				t.Errorf("status = %v, want errored", rec.Status())
			}
			if w.log.String() != "" {
				t.Errorf("bodies ran: %s", w.log)
			}
		})
	}
}

func TestResolveRejectsAbsoluteDirectly(t *testing.T) {
	w := newTestWorld(nil, DefaultOptions())
	ctx := context.Background()

	if _, err := w.linker.Resolve(ctx, "/x.js", "/app/"); !stderrors.Is(err, errors.ErrConfiguration) {
		t.Errorf("Resolve err = %v", err)
	}
	if _, err := w.linker.ResolveFile(ctx, "left-pad", "/app/"); !stderrors.Is(err, errors.ErrConfiguration) {
		t.Errorf("ResolveFile bare err = %v", err)
	}
	if _, err := w.linker.ResolveExternal(ctx, "./a.js"); !stderrors.Is(err, errors.ErrConfiguration) {
		t.Errorf("ResolveExternal relative err = %v", err)
	}
	if w.linker.Cache().Len() != 0 {
		t.Error("rejected specifiers reached the cache")
	}
}

func TestMissingModule(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js": "import ./a.js\nimport ./missing.js",
		"/app/a.js":     "export a=1",
	}, DefaultOptions())

	rec, err := w.load(context.Background(), "./index.js")
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	var le *LinkError
	if !stderrors.As(err, &le) || le.Specifier != "./missing.js" {
		t.Errorf("link error = %v", err)
	}
	if rec.Status() != StatusErrored {
		t.Errorf("status = %v", rec.Status())
	}

	// The failure is cached: asking again returns the same error without
	// reading the file again.
	reads := w.loader.reads.Load()
	if _, err := w.linker.ResolveFile(context.Background(), "./missing.js", "/app/index.js"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("second resolve err = %v", err)
	}
	if w.loader.reads.Load() != reads {
		t.Error("failed identifier was loaded twice")
	}
	if _, ok := w.linker.Cache().Get("/app/missing.js"); ok {
		t.Error("failed identifier visible through Get")
	}
}

func TestCompileError(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js": "bogus directive",
	}, DefaultOptions())

	_, err := w.load(context.Background(), "./index.js")
	if !stderrors.Is(err, errors.ErrInvalidData) {
		t.Fatalf("err = %v, want invalid data", err)
	}
}

func TestEvaluationErrorNoRollback(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js": "import ./a.js\nimport ./b.js\nimport ./c.js",
		"/app/a.js":     "export a=1",
		"/app/b.js":     "throw boom",
		"/app/c.js":     "export c=1",
	}, DefaultOptions())
	ctx := context.Background()

	rec, err := w.load(ctx, "./index.js")
	if !stderrors.Is(err, errors.ErrEvaluation) {
		t.Fatalf("err = %v, want evaluation error", err)
	}
	var le *LinkError
	if !stderrors.As(err, &le) || le.Identifier != "/app/b.js" || le.Phase != errors.PhaseEvaluate {
		t.Errorf("error not reported at origin: %v", err)
	}

	a, _ := rec.Dependency("./a.js")
	b, _ := rec.Dependency("./b.js")
	c, _ := rec.Dependency("./c.js")
	if a.Status() != StatusEvaluated {
		t.Errorf("a status = %v, want evaluated", a.Status())
	}
	if b.Status() != StatusErrored {
		t.Errorf("b status = %v, want errored", b.Status())
	}
	if c.Status() != StatusLinked {
		t.Errorf("c status = %v, want linked", c.Status())
	}
	if rec.Status() != StatusErrored {
		t.Errorf("index status = %v, want errored", rec.Status())
	}
	if rec.Err() != b.Err() {
		t.Error("dependent did not keep the original error")
	}

	if err2 := w.linker.Evaluate(ctx, rec); err2 != err {
		t.Errorf("re-evaluate returned %v, want the stored error", err2)
	}
	if got := w.log.String(); got != "/app/a.js,/app/b.js" {
		t.Errorf("evaluation order = %s", got)
	}
}

func TestEvaluateBeforeLink(t *testing.T) {
	w := newTestWorld(map[string]string{"/app/a.js": "export a=1"}, DefaultOptions())
	ctx := context.Background()

	rec, err := w.linker.ResolveFile(ctx, "./a.js", "/app/")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.Status() != StatusUnlinked {
		t.Fatalf("status = %v, want unlinked", rec.Status())
	}
	err = w.linker.Evaluate(ctx, rec)
	if errors.KindOf(err) != errors.KindNotInitialized {
		t.Errorf("err = %v, want not initialized", err)
	}
	if rec.Status() != StatusUnlinked {
		t.Errorf("status changed to %v", rec.Status())
	}
}

func TestDynamicImport(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js":    "dynamic ./lazy/mod.js\nexport main=1",
		"/app/lazy/mod.js": "import ../shared.js\nexport lazy=yes",
		"/app/shared.js":   "export shared=1",
	}, DefaultOptions())

	rec, err := w.load(context.Background(), "./index.js")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := w.log.String(); got != "/app/index.js,/app/shared.js,/app/lazy/mod.js" {
		t.Errorf("evaluation order = %s", got)
	}

	imported := unitOf(rec).imported
	if len(imported) != 1 {
		t.Fatalf("imported %d namespaces", len(imported))
	}
	if v, _ := imported[0].Get("lazy"); v != "yes" {
		t.Errorf("lazy = %v", v)
	}
	if len(rec.Requests()) != 0 {
		t.Errorf("dynamic import recorded as static request: %v", rec.Requests())
	}

	lazy, ok := w.linker.Cache().Get("/app/lazy/mod.js")
	if !ok || lazy.Status() != StatusEvaluated {
		t.Error("dynamically imported module not evaluated")
	}
}

func TestDynamicImportCycle(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js": "dynamic ./index.js\nexport main=1",
	}, DefaultOptions())

	rec, err := w.load(context.Background(), "./index.js")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if unitOf(rec).imported[0] != rec.Namespace() {
		t.Error("self import returned a different namespace")
	}
	if unitOf(rec).runs != 1 {
		t.Errorf("body ran %d times", unitOf(rec).runs)
	}
}

func TestLinkerImport(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/a.js": "export a=1",
	}, DefaultOptions())

	ns, err := w.linker.Import(context.Background(), "./a.js", RootReferrer("/app"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if v, _ := ns.Get("a"); v != "1" {
		t.Errorf("a = %v", v)
	}
	if _, err := w.linker.Import(context.Background(), "/a.js", "/app/"); !stderrors.Is(err, errors.ErrConfiguration) {
		t.Errorf("absolute import err = %v", err)
	}
}

func TestNoLoader(t *testing.T) {
	l := New(NewCache(), Options{})
	_, err := l.ResolveFile(context.Background(), "./a.js", "/app/")
	if errors.KindOf(err) != errors.KindNotInitialized {
		t.Errorf("err = %v, want not initialized", err)
	}
}

func TestCacheRecordsOrder(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js": "import ./a.js",
		"/app/a.js":     "export a=1",
	}, Options{Concurrency: 1})

	if _, err := w.load(context.Background(), "./index.js"); err != nil {
		t.Fatalf("load: %v", err)
	}
	recs := w.linker.Cache().Records()
	if len(recs) != 2 || recs[0].Identifier() != "/app/index.js" || recs[1].Identifier() != "/app/a.js" {
		t.Errorf("records = %v", recs)
	}
}

func TestCancelledLoadIsNotCached(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/late.js": "export late=1",
	}, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.linker.ResolveFile(ctx, "./late.js", "/app/index.js"); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := w.linker.Cache().Len(); n != 0 {
		t.Errorf("cache len = %d after cancelled load, want 0", n)
	}

	rec, err := w.linker.ResolveFile(context.Background(), "./late.js", "/app/index.js")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := w.linker.Cache().Records(); len(got) != 1 || got[0] != rec {
		t.Errorf("records = %v", got)
	}
}

func TestWaiterRebuildsReleasedSlot(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/a.js": "export a=1",
	}, DefaultOptions())
	w.loader.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	owner := make(chan error, 1)
	go func() {
		_, err := w.linker.ResolveFile(ctx, "./a.js", "/app/index.js")
		owner <- err
	}()
	waitFor(t, "owner reading", func() bool { return w.loader.reads.Load() == 1 })

	type result struct {
		rec *Record
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		rec, err := w.linker.ResolveFile(context.Background(), "./a.js", "/app/index.js")
		waiter <- result{rec, err}
	}()
	waitFor(t, "waiter", func() bool { return w.linker.cache.waiting() == 1 })

	cancel()
	if err := <-owner; !stderrors.Is(err, context.Canceled) {
		t.Fatalf("owner err = %v, want context.Canceled", err)
	}

	waitFor(t, "waiter reading", func() bool { return w.loader.reads.Load() == 2 })
	close(w.loader.gate)
	res := <-waiter
	if res.err != nil || res.rec == nil {
		t.Fatalf("waiter = %v, %v", res.rec, res.err)
	}
}

func TestCancelledLinkCanRetry(t *testing.T) {
	w := newTestWorld(map[string]string{
		"/app/index.js": "import ./a.js\nexport main=1",
		"/app/a.js":     "export a=1",
	}, DefaultOptions())

	rec, err := w.linker.ResolveFile(context.Background(), "./index.js", "/app/x.js")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.linker.Link(ctx, rec); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("link err = %v, want context.Canceled", err)
	}
	if rec.Status() != StatusUnlinked || rec.Err() != nil {
		t.Errorf("after cancelled link: status %v, err %v", rec.Status(), rec.Err())
	}

	if err := w.linker.Link(context.Background(), rec); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := w.linker.Evaluate(ctx, rec); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("evaluate err = %v, want context.Canceled", err)
	}
	if rec.Status() != StatusLinked {
		t.Errorf("after cancelled evaluate: status %v", rec.Status())
	}
	if err := w.linker.Evaluate(context.Background(), rec); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := w.log.String(); got != "/app/a.js,/app/index.js" {
		t.Errorf("evaluation order = %s", got)
	}
}
