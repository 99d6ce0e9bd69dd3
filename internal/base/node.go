package base

import (
	"encoding/binary"
	"unsafe"
)

// Compare is a three-way total order over fixed-size keys, returning
// -1, 0, or +1.
type Compare func(a, b []byte) int

const (
	KindInvalid uint16 = iota
	KindLeaf
	KindInternal
)

const (
	NodeHeaderSize = 16

	childSize = 8 // serialized child PageID on internal slots
)

// NodeHeader is the common prefix of every node page.
// Layout: [Kind: 2][Size: 2][MaxSize: 2][KeySize: 2][Next: 8]
// Next is the leaf-chain pointer; internal nodes keep it at
// InvalidPageID.
type NodeHeader struct {
	Kind    uint16
	Size    uint16
	MaxSize uint16
	KeySize uint16
	Next    PageID
}

// LeafCapacity returns how many (key, RID) pairs fit on one page for
// the given key size.
func LeafCapacity(keySize int) int {
	return (PageSize - NodeHeaderSize) / (keySize + RIDSize)
}

// InternalCapacity returns how many (key, child) slots fit on one page
// for the given key size.
func InternalCapacity(keySize int) int {
	return (PageSize - NodeHeaderSize) / (keySize + childSize)
}

// Node is a view over a node page's common header. Leaf and Internal
// embed it and add the kind-specific slot accessors.
type Node struct {
	page *Page
}

// ViewNode wraps a page without asserting its kind. Callers dispatch
// on IsLeaf after checking Kind is valid.
func ViewNode(p *Page) Node {
	return Node{page: p}
}

func (n Node) header() *NodeHeader {
	return (*NodeHeader)(unsafe.Pointer(&n.page.Data[0]))
}

func (n Node) Kind() uint16 { return n.header().Kind }

func (n Node) IsLeaf() bool { return n.header().Kind == KindLeaf }

// Valid reports whether the page carries a recognisable node header.
func (n Node) Valid() bool {
	k := n.header().Kind
	return k == KindLeaf || k == KindInternal
}

func (n Node) Size() int { return int(n.header().Size) }

func (n Node) SetSize(size int) { n.header().Size = uint16(size) }

func (n Node) MaxSize() int { return int(n.header().MaxSize) }

// MinSize is the occupancy floor for non-root nodes: ⌈MaxSize/2⌉.
func (n Node) MinSize() int { return (n.MaxSize() + 1) / 2 }

func (n Node) KeySize() int { return int(n.header().KeySize) }

// Leaf is a view over a leaf page: a sorted fixed-stride array of
// (key, RID) pairs plus the next-leaf chain pointer.
type Leaf struct {
	Node
}

// AsLeaf reinterprets the page as a leaf node.
func AsLeaf(p *Page) Leaf {
	return Leaf{Node{page: p}}
}

// Init stamps a fresh, empty leaf.
func (l Leaf) Init(maxSize, keySize int) {
	*l.header() = NodeHeader{
		Kind:    KindLeaf,
		Size:    0,
		MaxSize: uint16(maxSize),
		KeySize: uint16(keySize),
		Next:    InvalidPageID,
	}
}

func (l Leaf) Next() PageID { return l.header().Next }

func (l Leaf) SetNext(id PageID) { l.header().Next = id }

func (l Leaf) stride() int { return l.KeySize() + RIDSize }

func (l Leaf) slotOffset(i int) int { return NodeHeaderSize + i*l.stride() }

// KeyAt returns the key at slot i. The slice aliases the page and is
// valid only while the page's guard is held.
func (l Leaf) KeyAt(i int) []byte {
	off := l.slotOffset(i)
	return l.page.Data[off : off+l.KeySize()]
}

func (l Leaf) SetKeyAt(i int, key []byte) {
	copy(l.KeyAt(i), key)
}

func (l Leaf) RIDAt(i int) RID {
	off := l.slotOffset(i) + l.KeySize()
	pid := PageID(binary.LittleEndian.Uint64(l.page.Data[off:]))
	slot := binary.LittleEndian.Uint32(l.page.Data[off+8:])
	return RID{PageID: pid, Slot: slot}
}

func (l Leaf) SetRIDAt(i int, r RID) {
	off := l.slotOffset(i) + l.KeySize()
	binary.LittleEndian.PutUint64(l.page.Data[off:], uint64(r.PageID))
	binary.LittleEndian.PutUint32(l.page.Data[off+8:], r.Slot)
	binary.LittleEndian.PutUint32(l.page.Data[off+12:], 0)
}

// InsertAt shifts slots [i, size) up by one and writes the pair at i.
// The caller checks capacity afterwards; one slot of slack beyond
// MaxSize always fits because capacity is validated at tree init.
func (l Leaf) InsertAt(i int, key []byte, r RID) {
	from, to := l.slotOffset(i), l.slotOffset(i+1)
	end := l.slotOffset(l.Size())
	copy(l.page.Data[to:end+l.stride()], l.page.Data[from:end])
	l.SetSize(l.Size() + 1)
	l.SetKeyAt(i, key)
	l.SetRIDAt(i, r)
}

// RemoveAt shifts slots [i+1, size) down by one.
func (l Leaf) RemoveAt(i int) {
	from, to := l.slotOffset(i+1), l.slotOffset(i)
	end := l.slotOffset(l.Size())
	copy(l.page.Data[to:], l.page.Data[from:end])
	l.SetSize(l.Size() - 1)
}

// Append writes the pair at the end without shifting.
func (l Leaf) Append(key []byte, r RID) {
	i := l.Size()
	l.SetSize(i + 1)
	l.SetKeyAt(i, key)
	l.SetRIDAt(i, r)
}

// MoveHalfTo moves the upper half [size/2, size) to dst, which must be
// empty. The receiver keeps the lower half.
func (l Leaf) MoveHalfTo(dst Leaf) {
	half := l.Size() / 2
	for j := half; j < l.Size(); j++ {
		dst.Append(l.KeyAt(j), l.RIDAt(j))
	}
	l.SetSize(half)
}

// MoveAllTo appends every pair to dst and empties the receiver.
func (l Leaf) MoveAllTo(dst Leaf) {
	for j := 0; j < l.Size(); j++ {
		dst.Append(l.KeyAt(j), l.RIDAt(j))
	}
	l.SetSize(0)
}

// Find returns the largest slot index i with key[i] <= key, or -1 when
// key is strictly less than every entry. The caller tests equality.
func (l Leaf) Find(key []byte, cmp Compare) int {
	lo, hi := 0, l.Size()-1
	for lo < hi {
		mid := (lo + hi + 1) >> 1
		if cmp(l.KeyAt(mid), key) != 1 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if hi >= 0 && cmp(l.KeyAt(hi), key) == 1 {
		hi = -1
	}
	return hi
}

// Internal is a view over an internal page: a sorted fixed-stride
// array of (key, child) slots. Slot 0's key is a placeholder ignored
// by routing; child i covers [key[i], key[i+1]).
type Internal struct {
	Node
}

// AsInternal reinterprets the page as an internal node.
func AsInternal(p *Page) Internal {
	return Internal{Node{page: p}}
}

// Init stamps a fresh, empty internal node.
func (in Internal) Init(maxSize, keySize int) {
	*in.header() = NodeHeader{
		Kind:    KindInternal,
		Size:    0,
		MaxSize: uint16(maxSize),
		KeySize: uint16(keySize),
		Next:    InvalidPageID,
	}
}

func (in Internal) stride() int { return in.KeySize() + childSize }

func (in Internal) slotOffset(i int) int { return NodeHeaderSize + i*in.stride() }

// KeyAt returns the routing key at slot i. The slice aliases the page.
func (in Internal) KeyAt(i int) []byte {
	off := in.slotOffset(i)
	return in.page.Data[off : off+in.KeySize()]
}

func (in Internal) SetKeyAt(i int, key []byte) {
	copy(in.KeyAt(i), key)
}

func (in Internal) ChildAt(i int) PageID {
	off := in.slotOffset(i) + in.KeySize()
	return PageID(binary.LittleEndian.Uint64(in.page.Data[off:]))
}

func (in Internal) SetChildAt(i int, id PageID) {
	off := in.slotOffset(i) + in.KeySize()
	binary.LittleEndian.PutUint64(in.page.Data[off:], uint64(id))
}

// InsertAt shifts slots [i, size) up by one and writes the slot at i.
func (in Internal) InsertAt(i int, key []byte, child PageID) {
	from, to := in.slotOffset(i), in.slotOffset(i+1)
	end := in.slotOffset(in.Size())
	copy(in.page.Data[to:end+in.stride()], in.page.Data[from:end])
	in.SetSize(in.Size() + 1)
	in.SetKeyAt(i, key)
	in.SetChildAt(i, child)
}

// RemoveAt shifts slots [i+1, size) down by one.
func (in Internal) RemoveAt(i int) {
	from, to := in.slotOffset(i+1), in.slotOffset(i)
	end := in.slotOffset(in.Size())
	copy(in.page.Data[to:], in.page.Data[from:end])
	in.SetSize(in.Size() - 1)
}

// Append writes the slot at the end without shifting.
func (in Internal) Append(key []byte, child PageID) {
	i := in.Size()
	in.SetSize(i + 1)
	in.SetKeyAt(i, key)
	in.SetChildAt(i, child)
}

// MoveHalfTo moves the upper half [size/2, size) to dst, which must be
// empty. The moved slot 0 key becomes dst's placeholder and still
// equals the minimum key of dst's subtree.
func (in Internal) MoveHalfTo(dst Internal) {
	half := in.Size() / 2
	for j := half; j < in.Size(); j++ {
		dst.Append(in.KeyAt(j), in.ChildAt(j))
	}
	in.SetSize(half)
}

// MergeInto lifts sep (the parent separator covering the receiver)
// above the receiver's first child, then appends every slot to dst and
// empties the receiver.
func (in Internal) MergeInto(dst Internal, sep []byte) {
	dst.Append(sep, in.ChildAt(0))
	for j := 1; j < in.Size(); j++ {
		dst.Append(in.KeyAt(j), in.ChildAt(j))
	}
	in.SetSize(0)
}

// Route returns the slot whose subtree covers key: the largest index
// i >= 1 with key[i] <= key, or 0 to descend into the leftmost child.
func (in Internal) Route(key []byte, cmp Compare) int {
	lo, hi := 1, in.Size()-1
	for lo < hi {
		mid := (lo + hi + 1) >> 1
		if cmp(in.KeyAt(mid), key) != 1 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if hi <= 0 || cmp(in.KeyAt(hi), key) == 1 {
		return 0
	}
	return hi
}
