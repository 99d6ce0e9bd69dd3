package storage

import "grove/internal/base"

// FreeList tracks page ids returned by the tree (emptied leaves,
// collapsed roots) for reuse by later allocations. Ids are recycled
// LIFO so recently freed pages, likely still resident in the buffer
// pool's frames, are handed out first.
type FreeList struct {
	ids []base.PageID
}

// NewFreeList creates an empty freelist.
func NewFreeList() *FreeList {
	return &FreeList{ids: make([]base.PageID, 0)}
}

// Allocate pops a free page id, or InvalidPageID if none is available.
func (f *FreeList) Allocate() base.PageID {
	if len(f.ids) == 0 {
		return base.InvalidPageID
	}
	id := f.ids[len(f.ids)-1]
	f.ids = f.ids[:len(f.ids)-1]
	return id
}

// Free returns a page id to the list.
func (f *FreeList) Free(id base.PageID) {
	f.ids = append(f.ids, id)
}

// Len returns the number of free ids held.
func (f *FreeList) Len() int {
	return len(f.ids)
}
