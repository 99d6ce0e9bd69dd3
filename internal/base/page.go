package base

import (
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

const (
	PageSize = 4096

	// MagicNumber for file format identification ("grov" in hex)
	MagicNumber uint32 = 0x67726f76

	FormatVersion uint16 = 1
)

// PageID locates a page inside the index file. Valid ids are
// non-negative; InvalidPageID is the reserved sentinel used for "no
// page" (empty tree root, end of the leaf chain, cursor end).
type PageID int64

const InvalidPageID PageID = -1

// Page is a raw disk Page (4096 bytes).
//
// META PAGE LAYOUT (one per tree, the "header record"):
// ┌─────────────────────────────────────────────────────────────────────┐
// │ Magic(4) | Version(2) | PageSize(2) | RootPID(8) | Checksum(8)      │
// └─────────────────────────────────────────────────────────────────────┘
//
// NODE PAGE LAYOUT (leaf and internal):
// ┌─────────────────────────────────────────────────────────────────────┐
// │ NodeHeader (16 bytes)                                               │
// │ Kind(2) | Size(2) | MaxSize(2) | KeySize(2) | Next(8)               │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Slot[0]                                                             │
// │   leaf:     Key(KeySize) | RID (16 bytes)                           │
// │   internal: Key(KeySize) | ChildID (8 bytes)                        │
// ├─────────────────────────────────────────────────────────────────────┤
// │ Slot[1] ...                                                         │
// └─────────────────────────────────────────────────────────────────────┘
//
// Slots are a fixed-stride array; the stride is derived from KeySize in
// the header, so every node page is self-describing.
type Page struct {
	Data [PageSize]byte
}

// Zero clears the page contents.
func (p *Page) Zero() {
	p.Data = [PageSize]byte{}
}

// Meta is the header record stored on the tree's header page. It holds
// the single piece of process-wide mutable state: the current root
// page id.
// Layout: [Magic: 4][Version: 2][PageSize: 2][RootPID: 8][Checksum: 8]
type Meta struct {
	Magic    uint32
	Version  uint16
	PageSize uint16
	RootPID  PageID
	Checksum uint64
}

const metaChecksumLen = 16 // hash everything before the Checksum field

// AsMeta reinterprets the page as the tree header record.
func AsMeta(p *Page) *Meta {
	return (*Meta)(unsafe.Pointer(&p.Data[0]))
}

// Init stamps a fresh header record with an empty tree.
func (m *Meta) Init() {
	m.Magic = MagicNumber
	m.Version = FormatVersion
	m.PageSize = PageSize
	m.SetRoot(InvalidPageID)
}

// Root returns the current root page id, or InvalidPageID for an empty
// tree.
func (m *Meta) Root() PageID {
	return m.RootPID
}

// SetRoot updates the root page id and reseals the checksum.
func (m *Meta) SetRoot(id PageID) {
	m.RootPID = id
	m.Checksum = m.calculateChecksum()
}

func (m *Meta) calculateChecksum() uint64 {
	data := unsafe.Slice((*byte)(unsafe.Pointer(m)), metaChecksumLen)
	return xxhash.Sum64(data)
}

// Validate checks the header record before it is trusted.
func (m *Meta) Validate() error {
	if m.Magic != MagicNumber {
		return ErrInvalidMagicNumber
	}
	if m.Version != FormatVersion {
		return ErrInvalidVersion
	}
	if m.PageSize != PageSize {
		return ErrInvalidPageSize
	}
	if m.Checksum != m.calculateChecksum() {
		return ErrInvalidChecksum
	}
	return nil
}
