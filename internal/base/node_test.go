package base

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cmpBytes(a, b []byte) int { return bytes.Compare(a, b) }

func k8(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func TestLeafInitAndAccessors(t *testing.T) {
	t.Parallel()

	var p Page
	leaf := AsLeaf(&p)
	leaf.Init(4, 8)

	assert.True(t, leaf.IsLeaf())
	assert.True(t, leaf.Valid())
	assert.Equal(t, 0, leaf.Size())
	assert.Equal(t, 4, leaf.MaxSize())
	assert.Equal(t, 2, leaf.MinSize())
	assert.Equal(t, 8, leaf.KeySize())
	assert.Equal(t, InvalidPageID, leaf.Next())

	leaf.Append(k8(10), RID{PageID: 1, Slot: 10})
	leaf.Append(k8(20), RID{PageID: 2, Slot: 20})
	require.Equal(t, 2, leaf.Size())
	assert.Equal(t, k8(10), leaf.KeyAt(0))
	assert.Equal(t, RID{PageID: 2, Slot: 20}, leaf.RIDAt(1))

	leaf.SetNext(7)
	assert.Equal(t, PageID(7), leaf.Next())
}

func TestLeafInsertAtShifts(t *testing.T) {
	t.Parallel()

	var p Page
	leaf := AsLeaf(&p)
	leaf.Init(4, 8)

	leaf.Append(k8(10), RID{Slot: 10})
	leaf.Append(k8(30), RID{Slot: 30})
	leaf.InsertAt(1, k8(20), RID{Slot: 20})

	require.Equal(t, 3, leaf.Size())
	for i, want := range []uint64{10, 20, 30} {
		assert.Equal(t, k8(want), leaf.KeyAt(i))
		assert.Equal(t, uint32(want), leaf.RIDAt(i).Slot)
	}

	leaf.RemoveAt(0)
	require.Equal(t, 2, leaf.Size())
	assert.Equal(t, k8(20), leaf.KeyAt(0))
	assert.Equal(t, k8(30), leaf.KeyAt(1))
}

func TestLeafMoveHalfAndAll(t *testing.T) {
	t.Parallel()

	var p1, p2 Page
	src := AsLeaf(&p1)
	dst := AsLeaf(&p2)
	src.Init(4, 8)
	dst.Init(4, 8)

	for i := uint64(1); i <= 5; i++ {
		src.Append(k8(i), RID{Slot: uint32(i)})
	}

	src.MoveHalfTo(dst)
	assert.Equal(t, 2, src.Size())
	assert.Equal(t, 3, dst.Size())
	assert.Equal(t, k8(3), dst.KeyAt(0))

	src.MoveAllTo(dst)
	assert.Equal(t, 0, src.Size())
	require.Equal(t, 5, dst.Size())
	// Appended after the moved upper half: 3,4,5,1,2.
	assert.Equal(t, k8(1), dst.KeyAt(3))
}

func TestLeafFind(t *testing.T) {
	t.Parallel()

	var p Page
	leaf := AsLeaf(&p)
	leaf.Init(8, 8)
	for _, v := range []uint64{10, 20, 30, 40} {
		leaf.Append(k8(v), RID{})
	}

	tests := []struct {
		key  uint64
		want int
	}{
		{5, -1}, // below all entries
		{10, 0}, // exact first
		{15, 0}, // between 10 and 20
		{20, 1}, // exact
		{35, 2}, // between
		{40, 3}, // exact last
		{99, 3}, // above all entries
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, leaf.Find(k8(tt.key), cmpBytes), "key %d", tt.key)
	}

	empty := AsLeaf(&Page{})
	empty.Init(8, 8)
	assert.Equal(t, -1, empty.Find(k8(1), cmpBytes))
}

func TestInternalAccessorsAndRoute(t *testing.T) {
	t.Parallel()

	var p Page
	in := AsInternal(&p)
	in.Init(4, 8)

	assert.False(t, in.IsLeaf())
	assert.True(t, in.Valid())

	// Slot 0's key is a routing placeholder.
	in.Append(k8(1), 100)
	in.Append(k8(10), 200)
	in.Append(k8(20), 300)
	require.Equal(t, 3, in.Size())

	tests := []struct {
		key  uint64
		want int
	}{
		{0, 0},   // below key[1]: leftmost child
		{5, 0},   //
		{10, 1},  // exact separator
		{15, 1},  //
		{20, 2},  //
		{999, 2}, // above all separators
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, in.Route(k8(tt.key), cmpBytes), "key %d", tt.key)
	}

	assert.Equal(t, PageID(200), in.ChildAt(in.Route(k8(12), cmpBytes)))
}

func TestInternalRouteSingleChild(t *testing.T) {
	t.Parallel()

	var p Page
	in := AsInternal(&p)
	in.Init(4, 8)
	in.Append(k8(1), 100)

	assert.Equal(t, 0, in.Route(k8(50), cmpBytes))
}

func TestInternalInsertRemoveShift(t *testing.T) {
	t.Parallel()

	var p Page
	in := AsInternal(&p)
	in.Init(4, 8)
	in.Append(k8(1), 100)
	in.Append(k8(30), 300)

	in.InsertAt(1, k8(20), 200)
	require.Equal(t, 3, in.Size())
	assert.Equal(t, PageID(200), in.ChildAt(1))
	assert.Equal(t, k8(30), in.KeyAt(2))

	in.RemoveAt(1)
	require.Equal(t, 2, in.Size())
	assert.Equal(t, PageID(300), in.ChildAt(1))
}

func TestInternalMergeInto(t *testing.T) {
	t.Parallel()

	var p1, p2 Page
	left := AsInternal(&p1)
	right := AsInternal(&p2)
	left.Init(6, 8)
	right.Init(6, 8)

	left.Append(k8(1), 10)
	left.Append(k8(5), 20)
	right.Append(k8(9), 30) // placeholder key
	right.Append(k8(12), 40)

	right.MergeInto(left, k8(8))

	assert.Equal(t, 0, right.Size())
	require.Equal(t, 4, left.Size())
	// The lifted separator covers right's first child.
	assert.Equal(t, k8(8), left.KeyAt(2))
	assert.Equal(t, PageID(30), left.ChildAt(2))
	assert.Equal(t, k8(12), left.KeyAt(3))
	assert.Equal(t, PageID(40), left.ChildAt(3))
}

func TestCapacities(t *testing.T) {
	t.Parallel()

	// 4096-byte page, 16-byte node header.
	assert.Equal(t, (PageSize-NodeHeaderSize)/(8+RIDSize), LeafCapacity(8))
	assert.Equal(t, (PageSize-NodeHeaderSize)/(8+8), InternalCapacity(8))
	assert.Greater(t, InternalCapacity(8), LeafCapacity(8))
}

func TestViewNodeKindDispatch(t *testing.T) {
	t.Parallel()

	var p Page
	assert.False(t, ViewNode(&p).Valid())

	AsLeaf(&p).Init(4, 8)
	assert.True(t, ViewNode(&p).IsLeaf())

	AsInternal(&p).Init(4, 8)
	assert.False(t, ViewNode(&p).IsLeaf())
	assert.True(t, ViewNode(&p).Valid())
}
