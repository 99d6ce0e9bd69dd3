package grove

import "grove/internal/base"

// DefaultKeySize is the key width used when WithKeySize is not given.
const DefaultKeySize = 8

// Options configures a tree. Zero values mean "derive a default".
type Options struct {
	keySize     int
	leafMax     int
	internalMax int
	logger      Logger
}

// Option configures tree behavior using the functional options pattern.
type Option func(*Options)

// WithKeySize sets the fixed key width in bytes (e.g. 4, 8, 16, 32, 64).
//
//goland:noinspection GoUnusedExportedFunction
func WithKeySize(n int) Option {
	return func(o *Options) {
		o.keySize = n
	}
}

// WithLeafMaxSize caps the number of (key, value) pairs per leaf.
//
//goland:noinspection GoUnusedExportedFunction
func WithLeafMaxSize(n int) Option {
	return func(o *Options) {
		o.leafMax = n
	}
}

// WithInternalMaxSize caps the number of (key, child) slots per
// internal node.
//
//goland:noinspection GoUnusedExportedFunction
func WithInternalMaxSize(n int) Option {
	return func(o *Options) {
		o.internalMax = n
	}
}

// WithLogger attaches a logger; the default discards everything.
//
//goland:noinspection GoUnusedExportedFunction
func WithLogger(l Logger) Option {
	return func(o *Options) {
		o.logger = l
	}
}

// resolve fills defaults and validates sizes against the page layout.
// A node may briefly hold maxSize+1 entries mid-split, and a merge may
// pack maxSize+minSize-1 entries into one page before re-splitting, so
// maxSize is bounded by capacity with that headroom.
func (o *Options) resolve() error {
	if o.logger == nil {
		o.logger = DiscardLogger{}
	}
	if o.keySize == 0 {
		o.keySize = DefaultKeySize
	}
	if o.keySize < 1 || o.keySize > base.PageSize/8 {
		return ErrKeySizeInvalid
	}

	if o.leafMax == 0 {
		o.leafMax = fitMaxSize(base.LeafCapacity(o.keySize))
	}
	if o.internalMax == 0 {
		o.internalMax = fitMaxSize(base.InternalCapacity(o.keySize))
	}

	for _, pair := range [][2]int{
		{o.leafMax, base.LeafCapacity(o.keySize)},
		{o.internalMax, base.InternalCapacity(o.keySize)},
	} {
		max, capacity := pair[0], pair[1]
		if max < 3 {
			return ErrMaxSizeTooSmall
		}
		if mergePeak(max) > capacity {
			return ErrMaxSizeTooLarge
		}
	}
	return nil
}

// mergePeak is the largest transient occupancy max can produce.
func mergePeak(max int) int {
	return max + (max+1)/2 - 1
}

// fitMaxSize starts at two thirds of capacity and lowers max until its
// transient peak fits; this can sit one below the largest fitting max.
func fitMaxSize(capacity int) int {
	max := (2 * capacity) / 3
	for max > 3 && mergePeak(max) > capacity {
		max--
	}
	return max
}
