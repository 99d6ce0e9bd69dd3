package buffer

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
)

// replacer tracks evictable frames in LRU order. A frame enters when
// its pin count drops to zero and leaves when it is pinned again;
// victims come off the cold end. Callers hold the pool's latch, so the
// plain (unsynchronised) LRU variant is used.
type replacer struct {
	lru *freelru.LRU[int, struct{}]
}

func hashFrame(id int) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return uint32(xxhash.Sum64(b[:]))
}

// newReplacer sizes the LRU to the pool's frame count, so insertion
// never evicts on its own; victims leave only through victim().
func newReplacer(frames int) (*replacer, error) {
	lru, err := freelru.New[int, struct{}](uint32(frames), hashFrame)
	if err != nil {
		return nil, err
	}
	return &replacer{lru: lru}, nil
}

// add marks a frame evictable (most recently used position).
func (r *replacer) add(frame int) {
	r.lru.Add(frame, struct{}{})
}

// remove pins a frame out of the evictable set.
func (r *replacer) remove(frame int) {
	r.lru.Remove(frame)
}

// victim pops the least recently used evictable frame.
func (r *replacer) victim() (int, bool) {
	frame, _, ok := r.lru.RemoveOldest()
	return frame, ok
}

func (r *replacer) len() int {
	return r.lru.Len()
}
