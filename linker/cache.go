package linker

import (
	"context"
	"sync"
)

// Cache maps canonical identifiers to records for one world.
// A slot is reserved before its record is built, so concurrent requests
// for one identifier share a single record (or a single error).
// Built records and failures stay for the life of the cache. A build cut
// short by its caller's context releases the slot instead.
type Cache struct {
	entries map[string]*cacheEntry
	order   []string
	waiters int
	mu      sync.Mutex
}

type cacheEntry struct {
	done     chan struct{}
	record   *Record
	err      error
	released bool
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
	}
}

// Get returns the record for identifier if it has been built successfully.
// In-flight and failed entries report false.
func (c *Cache) Get(identifier string) (*Record, bool) {
	c.mu.Lock()
	e, ok := c.entries[identifier]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	select {
	case <-e.done:
		return e.record, e.record != nil
	default:
		return nil, false
	}
}

// Len returns the number of reserved identifiers, including in-flight ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Records returns the successfully built records in insertion order.
func (c *Cache) Records() []*Record {
	c.mu.Lock()
	order := make([]string, len(c.order))
	copy(order, c.order)
	c.mu.Unlock()

	out := make([]*Record, 0, len(order))
	for _, id := range order {
		if rec, ok := c.Get(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// load returns the record for identifier, calling build on the first
// request only. Later requests wait for the first one to finish or for
// their own ctx to end, and build again if the first request gave up its
// slot. hit reports whether the slot already existed.
func (c *Cache) load(ctx context.Context, identifier string, build func(context.Context) (*Record, error)) (rec *Record, hit bool, err error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[identifier]
		if !ok {
			break
		}
		c.waiters++
		c.mu.Unlock()

		select {
		case <-e.done:
			c.leave()
			if e.released {
				continue
			}
			return e.record, true, e.err
		case <-ctx.Done():
			c.leave()
			return nil, true, ctx.Err()
		}
	}

	e := &cacheEntry{done: make(chan struct{})}
	c.entries[identifier] = e
	c.order = append(c.order, identifier)
	c.mu.Unlock()

	rec, err = build(ctx)
	if err != nil && ctx.Err() != nil {
		c.release(identifier, e)
		return nil, false, err
	}

	e.record, e.err = rec, err
	if err != nil {
		e.record = nil
	}
	close(e.done)
	return e.record, false, e.err
}

// release drops the slot of an abandoned build so the next request for
// identifier builds it again.
func (c *Cache) release(identifier string, e *cacheEntry) {
	c.mu.Lock()
	delete(c.entries, identifier)
	for i, id := range c.order {
		if id == identifier {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	e.released = true
	c.mu.Unlock()
	close(e.done)
}

func (c *Cache) leave() {
	c.mu.Lock()
	c.waiters--
	c.mu.Unlock()
}

// waiting returns the number of requests blocked on another request's
// slot.
func (c *Cache) waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters
}
