// Package cache keeps prepared statements keyed by their SQL text.
package cache

import (
	"container/list"
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1000

// Preparer prepares statements. *sql.DB and *sql.Conn satisfy it.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	sql     string
	stmt    *sql.Stmt
	refs    int
	evicted bool
}

// StmtCache is an LRU of prepared statements. An evicted statement is closed
// once the last caller holding it releases it.
type StmtCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List

	// OnLookup, when set, is called after every Prepare with the lookup result.
	OnLookup func(hit bool)

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New returns a cache holding at most capacity statements.
func New(capacity int) *StmtCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &StmtCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Prepare returns the cached statement for query, preparing it with p on a
// miss. The statement stays open until release is called, even if it is
// evicted meanwhile. release must be called exactly once.
func (c *StmtCache) Prepare(ctx context.Context, p Preparer, query string) (stmt *sql.Stmt, release func(), err error) {
	if e, ok := c.lookup(query); ok {
		c.observe(true)
		return e.stmt, c.releaser(e), nil
	}
	c.observe(false)

	stmt, err = p.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	e := c.store(query, stmt)
	return e.stmt, c.releaser(e), nil
}

func (c *StmtCache) lookup(query string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[query]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits.Add(1)
	e := el.Value.(*entry)
	e.refs++
	return e, true
}

// store keeps stmt unless a concurrent Prepare already stored the same query,
// in which case stmt is closed and the stored entry is returned.
func (c *StmtCache) store(query string, stmt *sql.Stmt) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[query]; ok {
		_ = stmt.Close()
		c.order.MoveToFront(el)
		e := el.Value.(*entry)
		e.refs++
		return e
	}

	for c.order.Len() >= c.capacity {
		c.evict(c.order.Back())
		c.evictions.Add(1)
	}
	e := &entry{sql: query, stmt: stmt, refs: 1}
	c.entries[query] = c.order.PushFront(e)
	return e
}

func (c *StmtCache) releaser(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			e.refs--
			if e.evicted && e.refs == 0 {
				_ = e.stmt.Close()
			}
		})
	}
}

// evict drops el from the cache. The statement is closed now if nobody holds
// it, otherwise by the last release. c.mu must be held.
func (c *StmtCache) evict(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.sql)
	e.evicted = true
	if e.refs == 0 {
		_ = e.stmt.Close()
	}
}

func (c *StmtCache) observe(hit bool) {
	if c.OnLookup != nil {
		c.OnLookup(hit)
	}
}

// Forget drops the statement for query, if cached.
func (c *StmtCache) Forget(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[query]; ok {
		c.evict(el)
	}
}

// Clear drops every cached statement.
func (c *StmtCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		c.evict(el)
		el = next
	}
}

// Stats reports current usage.
func (c *StmtCache) Stats() Stats {
	c.mu.Lock()
	size := c.order.Len()
	c.mu.Unlock()
	return Stats{
		Size:      size,
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
