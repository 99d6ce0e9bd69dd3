package buffer

import "grove/internal/base"

// ReadGuard grants shared access to a pinned page. The pin holds the
// frame against eviction; Drop releases both and is idempotent. A
// guard must be dropped on every exit path; slices obtained from the
// page are invalid after Drop.
type ReadGuard struct {
	pool *Pool
	f    *frame
	idx  int
	id   base.PageID
	done bool
}

// Page returns the guarded page.
func (g *ReadGuard) Page() *base.Page { return &g.f.page }

// PageID returns the guarded page's id.
func (g *ReadGuard) PageID() base.PageID { return g.id }

// Drop releases the shared latch and the pin.
func (g *ReadGuard) Drop() {
	if g.done {
		return
	}
	g.done = true
	g.f.mu.RUnlock()
	g.pool.unpin(g.idx, false)
}

// WriteGuard grants exclusive access to a pinned page. Drop marks the
// frame dirty; the pool persists it on eviction or flush.
type WriteGuard struct {
	pool *Pool
	f    *frame
	idx  int
	id   base.PageID
	done bool
}

// Page returns the guarded page for mutation.
func (g *WriteGuard) Page() *base.Page { return &g.f.page }

// PageID returns the guarded page's id.
func (g *WriteGuard) PageID() base.PageID { return g.id }

// Drop releases the exclusive latch and the pin.
func (g *WriteGuard) Drop() {
	if g.done {
		return
	}
	g.done = true
	g.f.mu.Unlock()
	g.pool.unpin(g.idx, true)
}
