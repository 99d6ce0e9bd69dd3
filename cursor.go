package grove

import (
	"fmt"

	"grove/internal/base"
	"grove/internal/buffer"
)

// Cursor iterates the leaf chain in ascending key order. A positioned
// cursor holds a read guard on its current leaf; the guard is swapped
// for the next leaf's only when advancing across a leaf boundary. An
// exhausted cursor carries the end sentinel (pid -1, slot -1) and no
// guard.
//
// Close releases the guard early; Next releases it automatically when
// iteration runs off the last leaf.
type Cursor struct {
	pool *buffer.Pool
	pid  base.PageID
	slot int
	g    *buffer.ReadGuard
}

// End returns the sentinel cursor every exhausted iteration compares
// equal to.
func (t *BTree) End() *Cursor {
	return &Cursor{pool: t.pool, pid: base.InvalidPageID, slot: -1}
}

// Begin positions a cursor at the tree's smallest key, or at end for
// an empty tree.
func (t *BTree) Begin() (*Cursor, error) {
	hg, err := t.pool.FetchRead(t.headerID)
	if err != nil {
		return nil, err
	}
	meta := base.AsMeta(hg.Page())
	if err := meta.Validate(); err != nil {
		hg.Drop()
		return nil, err
	}
	root := meta.Root()
	if root == base.InvalidPageID {
		hg.Drop()
		return t.End(), nil
	}

	g, err := t.pool.FetchRead(root)
	hg.Drop()
	if err != nil {
		return nil, err
	}

	// Leftmost descent: routing always picks child 0.
	node := base.ViewNode(g.Page())
	for node.Valid() && !node.IsLeaf() {
		child := base.AsInternal(g.Page()).ChildAt(0)
		g.Drop()
		if g, err = t.pool.FetchRead(child); err != nil {
			return nil, err
		}
		node = base.ViewNode(g.Page())
	}
	if !node.Valid() {
		pid := g.PageID()
		g.Drop()
		return nil, fmt.Errorf("%w: page %d", ErrCorruption, pid)
	}

	if base.AsLeaf(g.Page()).Size() == 0 {
		g.Drop()
		return t.End(), nil
	}
	return &Cursor{pool: t.pool, pid: g.PageID(), slot: 0, g: g}, nil
}

// Seek positions a cursor at the first slot whose key is >= key. When
// the leaf the descent reaches has no such slot, the cursor is at end.
func (t *BTree) Seek(key []byte) (*Cursor, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}

	hg, err := t.pool.FetchRead(t.headerID)
	if err != nil {
		return nil, err
	}
	meta := base.AsMeta(hg.Page())
	if err := meta.Validate(); err != nil {
		hg.Drop()
		return nil, err
	}
	root := meta.Root()
	if root == base.InvalidPageID {
		hg.Drop()
		return t.End(), nil
	}

	g, err := t.pool.FetchRead(root)
	hg.Drop()
	if err != nil {
		return nil, err
	}

	node := base.ViewNode(g.Page())
	for node.Valid() && !node.IsLeaf() {
		in := base.AsInternal(g.Page())
		child := in.ChildAt(in.Route(key, t.cmp))
		g.Drop()
		if g, err = t.pool.FetchRead(child); err != nil {
			return nil, err
		}
		node = base.ViewNode(g.Page())
	}
	if !node.Valid() {
		pid := g.PageID()
		g.Drop()
		return nil, fmt.Errorf("%w: page %d", ErrCorruption, pid)
	}

	leaf := base.AsLeaf(g.Page())
	slot := leaf.Find(key, t.cmp)
	if slot == -1 || t.cmp(leaf.KeyAt(slot), key) != 0 {
		slot++ // first slot strictly greater
	}
	if slot >= leaf.Size() {
		g.Drop()
		return t.End(), nil
	}
	return &Cursor{pool: t.pool, pid: g.PageID(), slot: slot, g: g}, nil
}

// IsEnd reports whether the cursor is exhausted.
func (c *Cursor) IsEnd() bool {
	return c.pid == base.InvalidPageID
}

// Key returns the current key. The slice aliases the pinned leaf page
// and is valid until the cursor advances off the leaf or closes.
func (c *Cursor) Key() []byte {
	return base.AsLeaf(c.g.Page()).KeyAt(c.slot)
}

// Value returns the current record identifier.
func (c *Cursor) Value() base.RID {
	return base.AsLeaf(c.g.Page()).RIDAt(c.slot)
}

// Next advances by one slot, following the leaf chain across page
// boundaries. Running off the rightmost leaf transitions to end.
func (c *Cursor) Next() error {
	if c.IsEnd() {
		return nil
	}

	leaf := base.AsLeaf(c.g.Page())
	if c.slot+1 < leaf.Size() {
		c.slot++
		return nil
	}

	next := leaf.Next()
	c.g.Drop()
	c.g = nil
	if next == base.InvalidPageID {
		c.pid = base.InvalidPageID
		c.slot = -1
		return nil
	}

	g, err := c.pool.FetchRead(next)
	if err != nil {
		c.pid = base.InvalidPageID
		c.slot = -1
		return err
	}
	c.g = g
	c.pid = next
	c.slot = 0
	return nil
}

// Close releases the cursor's leaf guard and moves it to end. Safe to
// call on an end cursor or twice.
func (c *Cursor) Close() {
	if c.g != nil {
		c.g.Drop()
		c.g = nil
	}
	c.pid = base.InvalidPageID
	c.slot = -1
}
