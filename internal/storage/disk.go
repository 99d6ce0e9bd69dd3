package storage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"grove/internal/base"
)

// DiskManager owns the index file. Pages live at id * PageSize; ids
// are dense, handed out by a bump counter and recycled through the
// freelist. All methods are safe for concurrent use.
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	next     base.PageID // next never-allocated id
	freelist *FreeList
	closed   bool
}

// Open opens or creates an index file.
func Open(path string) (*DiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &DiskManager{
		file:     file,
		path:     path,
		next:     base.PageID(info.Size() / base.PageSize),
		freelist: NewFreeList(),
	}, nil
}

// ReadPage fills p with the page's on-disk contents. Reading a page
// that was allocated but never written yields zeroes.
func (d *DiskManager) ReadPage(id base.PageID, p *base.Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrStorageClosed
	}
	if id < 0 || id >= d.next {
		return fmt.Errorf("%w: page %d", ErrPageOutOfRange, id)
	}

	n, err := d.file.ReadAt(p.Data[:], int64(id)*base.PageSize)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// Allocated beyond the file's end; the tail is all zeroes.
		for i := n; i < base.PageSize; i++ {
			p.Data[i] = 0
		}
		return nil
	}
	return err
}

// WritePage persists p at the page's file offset.
func (d *DiskManager) WritePage(id base.PageID, p *base.Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrStorageClosed
	}
	if id < 0 || id >= d.next {
		return fmt.Errorf("%w: page %d", ErrPageOutOfRange, id)
	}

	_, err := d.file.WriteAt(p.Data[:], int64(id)*base.PageSize)
	return err
}

// Allocate hands out a page id, preferring recycled ids over growing
// the file.
func (d *DiskManager) Allocate() (base.PageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return base.InvalidPageID, ErrStorageClosed
	}
	if id := d.freelist.Allocate(); id != base.InvalidPageID {
		return id, nil
	}
	id := d.next
	d.next++
	return id, nil
}

// Deallocate returns a page id to the freelist for reuse.
func (d *DiskManager) Deallocate(id base.PageID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrStorageClosed
	}
	if id < 0 || id >= d.next {
		return fmt.Errorf("%w: page %d", ErrPageOutOfRange, id)
	}
	d.freelist.Free(id)
	return nil
}

// NumPages returns how many page ids have ever been allocated.
func (d *DiskManager) NumPages() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.next)
}

// Sync flushes file contents to stable storage.
func (d *DiskManager) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrStorageClosed
	}
	return fdatasync(d.file)
}

// Close syncs and closes the index file.
func (d *DiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if err := fdatasync(d.file); err != nil {
		d.file.Close()
		return err
	}
	return d.file.Close()
}
