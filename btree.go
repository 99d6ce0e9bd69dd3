package grove

import (
	"fmt"

	"grove/internal/base"
	"grove/internal/buffer"
)

// BTree is a disk-backed B+tree index mapping fixed-size keys to
// record identifiers. It owns no pages itself, only ids; every page
// access goes through guards supplied by the buffer pool, and all
// structural modifications are serialised on the header page's write
// guard.
type BTree struct {
	name        string
	headerID    base.PageID
	pool        *buffer.Pool
	cmp         Compare
	keySize     int
	leafMax     int
	internalMax int
	log         Logger
}

// New initialises a tree over the given header page. The header's
// root id is reset to the empty-tree sentinel, so New on an existing
// header discards the previous tree structure.
func New(name string, headerID base.PageID, pool *buffer.Pool, cmp Compare, opts ...Option) (*BTree, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.resolve(); err != nil {
		return nil, err
	}

	hg, err := pool.FetchWrite(headerID)
	if err != nil {
		return nil, err
	}
	base.AsMeta(hg.Page()).Init()
	hg.Drop()

	t := &BTree{
		name:        name,
		headerID:    headerID,
		pool:        pool,
		cmp:         cmp,
		keySize:     o.keySize,
		leafMax:     o.leafMax,
		internalMax: o.internalMax,
		log:         o.logger,
	}
	t.log.Info("index initialized",
		"name", name,
		"header_page", int64(headerID),
		"key_size", o.keySize,
		"leaf_max", o.leafMax,
		"internal_max", o.internalMax)
	return t, nil
}

// Open attaches to the tree already recorded on the header page,
// validating the header record instead of resetting it. For a
// non-empty tree the key size and node fan-outs are read back from
// the pages along the leftmost path, so they need not be passed
// again; explicit options still apply to an empty tree.
func Open(name string, headerID base.PageID, pool *buffer.Pool, cmp Compare, opts ...Option) (*BTree, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	hg, err := pool.FetchRead(headerID)
	if err != nil {
		return nil, err
	}
	meta := base.AsMeta(hg.Page())
	if err := meta.Validate(); err != nil {
		hg.Drop()
		return nil, err
	}
	root := meta.Root()
	hg.Drop()

	// A shallow tree has no internal nodes; any internalMax the
	// options carry (or the derived default) stays in force then.
	for pid := root; pid != base.InvalidPageID; {
		g, err := pool.FetchRead(pid)
		if err != nil {
			return nil, err
		}
		node := base.ViewNode(g.Page())
		if !node.Valid() {
			g.Drop()
			return nil, fmt.Errorf("%w: page %d", ErrCorruption, pid)
		}
		o.keySize = node.KeySize()
		if node.IsLeaf() {
			o.leafMax = node.MaxSize()
			g.Drop()
			break
		}
		o.internalMax = node.MaxSize()
		pid = base.AsInternal(g.Page()).ChildAt(0)
		g.Drop()
	}

	if err := o.resolve(); err != nil {
		return nil, err
	}

	t := &BTree{
		name:        name,
		headerID:    headerID,
		pool:        pool,
		cmp:         cmp,
		keySize:     o.keySize,
		leafMax:     o.leafMax,
		internalMax: o.internalMax,
		log:         o.logger,
	}
	t.log.Info("index opened",
		"name", name,
		"header_page", int64(headerID),
		"root_page", int64(root),
		"key_size", o.keySize)
	return t, nil
}

// Name returns the index name given at construction.
func (t *BTree) Name() string { return t.name }

// KeySize returns the fixed key width in bytes.
func (t *BTree) KeySize() int { return t.keySize }

// IsEmpty reports whether the tree holds no keys.
func (t *BTree) IsEmpty() (bool, error) {
	root, err := t.RootPageID()
	if err != nil {
		return false, err
	}
	return root == base.InvalidPageID, nil
}

// RootPageID returns the current root page id, or InvalidPageID for
// an empty tree.
func (t *BTree) RootPageID() (base.PageID, error) {
	hg, err := t.pool.FetchRead(t.headerID)
	if err != nil {
		return base.InvalidPageID, err
	}
	defer hg.Drop()

	meta := base.AsMeta(hg.Page())
	if err := meta.Validate(); err != nil {
		return base.InvalidPageID, err
	}
	return meta.Root(), nil
}

func (t *BTree) checkKey(key []byte) error {
	if len(key) != t.keySize {
		return fmt.Errorf("%w: got %d, want %d", ErrKeySize, len(key), t.keySize)
	}
	return nil
}

// Get returns the record identifier stored under key. The descent
// holds at most one read guard at a time: the parent's guard is
// dropped before the child's is taken.
func (t *BTree) Get(key []byte) (base.RID, bool, error) {
	if err := t.checkKey(key); err != nil {
		return base.RID{}, false, err
	}

	hg, err := t.pool.FetchRead(t.headerID)
	if err != nil {
		return base.RID{}, false, err
	}
	meta := base.AsMeta(hg.Page())
	if err := meta.Validate(); err != nil {
		hg.Drop()
		return base.RID{}, false, err
	}
	root := meta.Root()
	if root == base.InvalidPageID {
		hg.Drop()
		return base.RID{}, false, nil
	}

	g, err := t.pool.FetchRead(root)
	hg.Drop()
	if err != nil {
		return base.RID{}, false, err
	}

	node := base.ViewNode(g.Page())
	for node.Valid() && !node.IsLeaf() {
		in := base.AsInternal(g.Page())
		child := in.ChildAt(in.Route(key, t.cmp))
		g.Drop()
		if g, err = t.pool.FetchRead(child); err != nil {
			return base.RID{}, false, err
		}
		node = base.ViewNode(g.Page())
	}
	if !node.Valid() {
		g.Drop()
		return base.RID{}, false, fmt.Errorf("%w: page %d", ErrCorruption, g.PageID())
	}

	leaf := base.AsLeaf(g.Page())
	i := leaf.Find(key, t.cmp)
	if i == -1 || t.cmp(leaf.KeyAt(i), key) != 0 {
		g.Drop()
		return base.RID{}, false, nil
	}
	rid := leaf.RIDAt(i)
	g.Drop()
	return rid, true, nil
}

// descend walks from the root to the leaf covering key under read
// guards, recording each visited page id and, for every internal node,
// the routing slot taken inside it (the next entry's slot in that
// node). The leaf entry's slot is left for the caller to fill.
type pathEntry struct {
	pid  base.PageID
	slot int
}

func (t *BTree) descend(root base.PageID, key []byte) ([]pathEntry, error) {
	path := make([]pathEntry, 0, 8)
	path = append(path, pathEntry{pid: root})

	g, err := t.pool.FetchRead(root)
	if err != nil {
		return nil, err
	}
	node := base.ViewNode(g.Page())
	for node.Valid() && !node.IsLeaf() {
		in := base.AsInternal(g.Page())
		slot := in.Route(key, t.cmp)
		child := in.ChildAt(slot)
		path[len(path)-1].slot = slot
		path = append(path, pathEntry{pid: child})
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
	g.Drop()
	return path, nil
}

// Insert adds a unique key. It returns false (with no error and no
// tree change) when the key already exists.
//
// The header's write guard is held across the whole modification, so
// mutators run one at a time and root swaps are atomic against other
// operations. The descent records the root-to-leaf path; the modify
// phase then re-acquires write guards level by level from the leaf
// upward, propagating a (key, pid) carry while splits continue.
func (t *BTree) Insert(key []byte, rid base.RID) (bool, error) {
	if err := t.checkKey(key); err != nil {
		return false, err
	}

	hg, err := t.pool.FetchWrite(t.headerID)
	if err != nil {
		return false, err
	}
	defer hg.Drop()

	meta := base.AsMeta(hg.Page())
	if err := meta.Validate(); err != nil {
		return false, err
	}

	if meta.Root() == base.InvalidPageID {
		g, pid, err := t.pool.NewPage()
		if err != nil {
			return false, err
		}
		base.AsLeaf(g.Page()).Init(t.leafMax, t.keySize)
		g.Drop()
		meta.SetRoot(pid)
	}

	path, err := t.descend(meta.Root(), key)
	if err != nil {
		return false, err
	}

	// Duplicate check on the target leaf before any mutation.
	g, err := t.pool.FetchRead(path[len(path)-1].pid)
	if err != nil {
		return false, err
	}
	leaf := base.AsLeaf(g.Page())
	if i := leaf.Find(key, t.cmp); i != -1 && t.cmp(leaf.KeyAt(i), key) == 0 {
		g.Drop()
		return false, nil
	}
	g.Drop()

	carryKey := make([]byte, t.keySize)
	carryPID := base.InvalidPageID

	for i := len(path) - 1; i >= 0; i-- {
		wg, err := t.pool.FetchWrite(path[i].pid)
		if err != nil {
			return false, err
		}

		if i == len(path)-1 {
			leaf := base.AsLeaf(wg.Page())
			pos := leaf.Find(key, t.cmp) + 1
			leaf.InsertAt(pos, key, rid)
			if leaf.Size() <= leaf.MaxSize() {
				wg.Drop()
				return true, nil
			}

			ng, npid, err := t.pool.NewPage()
			if err != nil {
				wg.Drop()
				return false, err
			}
			right := base.AsLeaf(ng.Page())
			right.Init(t.leafMax, t.keySize)
			right.SetNext(leaf.Next())
			leaf.SetNext(npid)
			leaf.MoveHalfTo(right)
			t.log.Debug("leaf split", "name", t.name, "page", int64(path[i].pid), "sibling", int64(npid))

			copy(carryKey, right.KeyAt(0))
			carryPID = npid

			if i == 0 {
				err = t.growRoot(meta, leaf.KeyAt(0), path[i].pid, carryKey, carryPID)
				ng.Drop()
				wg.Drop()
				return err == nil, err
			}
			ng.Drop()
			wg.Drop()
		} else {
			in := base.AsInternal(wg.Page())
			pos := in.Route(carryKey, t.cmp) + 1
			in.InsertAt(pos, carryKey, carryPID)
			if in.Size() <= in.MaxSize() {
				wg.Drop()
				return true, nil
			}

			ng, npid, err := t.pool.NewPage()
			if err != nil {
				wg.Drop()
				return false, err
			}
			right := base.AsInternal(ng.Page())
			right.Init(t.internalMax, t.keySize)
			in.MoveHalfTo(right)
			t.log.Debug("internal split", "name", t.name, "page", int64(path[i].pid), "sibling", int64(npid))

			copy(carryKey, right.KeyAt(0))
			carryPID = npid

			if i == 0 {
				err = t.growRoot(meta, in.KeyAt(0), path[i].pid, carryKey, carryPID)
				ng.Drop()
				wg.Drop()
				return err == nil, err
			}
			ng.Drop()
			wg.Drop()
		}
	}
	return true, nil
}

// growRoot installs a fresh internal root over the split halves and
// swaps the header's root id.
func (t *BTree) growRoot(meta *base.Meta, leftKey []byte, leftPID base.PageID, rightKey []byte, rightPID base.PageID) error {
	rg, rpid, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	root := base.AsInternal(rg.Page())
	root.Init(t.internalMax, t.keySize)
	root.Append(leftKey, leftPID)
	root.Append(rightKey, rightPID)
	rg.Drop()

	meta.SetRoot(rpid)
	t.log.Info("root split", "name", t.name, "new_root", int64(rpid))
	return nil
}

// Remove deletes a key; removing an absent key is a no-op. Underflow
// is repaired by merging with or borrowing from the left sibling, or
// the right sibling when the node is its parent's leftmost child. A
// merge that stays within capacity frees the emptied page and
// propagates the lost child upward; one that overflows is re-split at
// its midpoint and writes the fresh separator into the parent.
func (t *BTree) Remove(key []byte) error {
	if err := t.checkKey(key); err != nil {
		return err
	}

	hg, err := t.pool.FetchWrite(t.headerID)
	if err != nil {
		return err
	}
	defer hg.Drop()

	meta := base.AsMeta(hg.Page())
	if err := meta.Validate(); err != nil {
		return err
	}
	if meta.Root() == base.InvalidPageID {
		return nil
	}

	path, err := t.descend(meta.Root(), key)
	if err != nil {
		return err
	}

	// Locate the doomed slot; absent key means nothing to do.
	g, err := t.pool.FetchRead(path[len(path)-1].pid)
	if err != nil {
		return err
	}
	leaf := base.AsLeaf(g.Page())
	slot := leaf.Find(key, t.cmp)
	if slot == -1 || t.cmp(leaf.KeyAt(slot), key) != 0 {
		g.Drop()
		return nil
	}
	path[len(path)-1].slot = slot
	g.Drop()

	for i := len(path) - 1; i >= 0; i-- {
		if i == len(path)-1 {
			done, err := t.removeFromLeaf(meta, path, i)
			if done || err != nil {
				return err
			}
		} else {
			done, err := t.removeFromInternal(meta, path, i)
			if done || err != nil {
				return err
			}
		}
	}
	return nil
}

// removeFromLeaf deletes the recorded slot from the leaf at path[i]
// and repairs any underflow. It reports true when propagation stops;
// false means a page was freed and path[i-1].slot points at the hole
// the parent must close.
func (t *BTree) removeFromLeaf(meta *base.Meta, path []pathEntry, i int) (bool, error) {
	wg, err := t.pool.FetchWrite(path[i].pid)
	if err != nil {
		return true, err
	}
	leaf := base.AsLeaf(wg.Page())
	leaf.RemoveAt(path[i].slot)

	// Dropping a leaf's first key raises its subtree minimum: refresh the
	// nearest ancestor separator that routes to it (none when leftmost).
	for j := i - 1; path[i].slot == 0 && leaf.Size() > 0 && j >= 0; j-- {
		if path[j].slot > 0 {
			ag, err := t.pool.FetchWrite(path[j].pid)
			if err != nil {
				wg.Drop()
				return true, err
			}
			base.AsInternal(ag.Page()).SetKeyAt(path[j].slot, leaf.KeyAt(0))
			ag.Drop()
			break
		}
	}

	if leaf.Size() >= leaf.MinSize() {
		wg.Drop()
		return true, nil
	}

	if i == 0 {
		// A root leaf may run arbitrarily low; only empty kills the tree.
		if leaf.Size() > 0 {
			wg.Drop()
			return true, nil
		}
		meta.SetRoot(base.InvalidPageID)
		wg.Drop()
		t.log.Info("tree emptied", "name", t.name)
		return true, t.pool.DeletePage(path[i].pid)
	}

	pg, err := t.pool.FetchWrite(path[i-1].pid)
	if err != nil {
		wg.Drop()
		return true, err
	}
	parent := base.AsInternal(pg.Page())
	pos := path[i-1].slot

	if pos > 0 {
		// Fold into the left sibling; re-split if the merge overflows.
		sg, err := t.pool.FetchWrite(parent.ChildAt(pos - 1))
		if err != nil {
			pg.Drop()
			wg.Drop()
			return true, err
		}
		sib := base.AsLeaf(sg.Page())
		leaf.MoveAllTo(sib)

		if sib.Size() <= sib.MaxSize() {
			sib.SetNext(leaf.Next())
			sg.Drop()
			pg.Drop()
			wg.Drop()
			t.log.Debug("leaf merged left", "name", t.name, "page", int64(path[i].pid))
			if err := t.pool.DeletePage(path[i].pid); err != nil {
				return true, err
			}
			path[i-1].slot = pos
			return false, nil
		}

		sib.MoveHalfTo(leaf)
		parent.SetKeyAt(pos, leaf.KeyAt(0))
		t.log.Debug("leaf rebalanced left", "name", t.name, "page", int64(path[i].pid))
		sg.Drop()
		pg.Drop()
		wg.Drop()
		return true, nil
	}

	// Leftmost child: fold the right sibling into this leaf instead.
	rightPID := parent.ChildAt(pos + 1)
	sg, err := t.pool.FetchWrite(rightPID)
	if err != nil {
		pg.Drop()
		wg.Drop()
		return true, err
	}
	sib := base.AsLeaf(sg.Page())
	next := sib.Next()
	sib.MoveAllTo(leaf)

	if leaf.Size() <= leaf.MaxSize() {
		leaf.SetNext(next)
		sg.Drop()
		pg.Drop()
		wg.Drop()
		t.log.Debug("leaf merged right", "name", t.name, "page", int64(rightPID))
		if err := t.pool.DeletePage(rightPID); err != nil {
			return true, err
		}
		path[i-1].slot = pos + 1
		return false, nil
	}

	leaf.MoveHalfTo(sib)
	parent.SetKeyAt(pos+1, sib.KeyAt(0))
	t.log.Debug("leaf rebalanced right", "name", t.name, "page", int64(path[i].pid))
	sg.Drop()
	pg.Drop()
	wg.Drop()
	return true, nil
}

// removeFromInternal closes the hole left by a freed child at
// path[i].slot and repairs any underflow, mirroring removeFromLeaf.
// An internal merge lifts the parent's separator over the absorbed
// node's first child so every subtree keeps a routing key.
func (t *BTree) removeFromInternal(meta *base.Meta, path []pathEntry, i int) (bool, error) {
	wg, err := t.pool.FetchWrite(path[i].pid)
	if err != nil {
		return true, err
	}
	in := base.AsInternal(wg.Page())
	in.RemoveAt(path[i].slot)

	if in.Size() >= in.MinSize() {
		wg.Drop()
		return true, nil
	}

	if i == 0 {
		if in.Size() == 1 {
			// Collapse the root into its sole child.
			meta.SetRoot(in.ChildAt(0))
			wg.Drop()
			t.log.Info("root collapsed", "name", t.name, "new_root", int64(meta.Root()))
			return true, t.pool.DeletePage(path[i].pid)
		}
		wg.Drop()
		return true, nil
	}

	pg, err := t.pool.FetchWrite(path[i-1].pid)
	if err != nil {
		wg.Drop()
		return true, err
	}
	parent := base.AsInternal(pg.Page())
	pos := path[i-1].slot

	if pos > 0 {
		sg, err := t.pool.FetchWrite(parent.ChildAt(pos - 1))
		if err != nil {
			pg.Drop()
			wg.Drop()
			return true, err
		}
		sib := base.AsInternal(sg.Page())
		in.MergeInto(sib, parent.KeyAt(pos))

		if sib.Size() <= sib.MaxSize() {
			sg.Drop()
			pg.Drop()
			wg.Drop()
			t.log.Debug("internal merged left", "name", t.name, "page", int64(path[i].pid))
			if err := t.pool.DeletePage(path[i].pid); err != nil {
				return true, err
			}
			path[i-1].slot = pos
			return false, nil
		}

		sib.MoveHalfTo(in)
		parent.SetKeyAt(pos, in.KeyAt(0))
		sg.Drop()
		pg.Drop()
		wg.Drop()
		return true, nil
	}

	rightPID := parent.ChildAt(pos + 1)
	sg, err := t.pool.FetchWrite(rightPID)
	if err != nil {
		pg.Drop()
		wg.Drop()
		return true, err
	}
	sib := base.AsInternal(sg.Page())
	sib.MergeInto(in, parent.KeyAt(pos+1))

	if in.Size() <= in.MaxSize() {
		sg.Drop()
		pg.Drop()
		wg.Drop()
		t.log.Debug("internal merged right", "name", t.name, "page", int64(rightPID))
		if err := t.pool.DeletePage(rightPID); err != nil {
			return true, err
		}
		path[i-1].slot = pos + 1
		return false, nil
	}

	in.MoveHalfTo(sib)
	parent.SetKeyAt(pos+1, sib.KeyAt(0))
	sg.Drop()
	pg.Drop()
	wg.Drop()
	return true, nil
}
