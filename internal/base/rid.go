package base

import "fmt"

// RID identifies a record in external storage: the page that holds the
// tuple and the slot within that page. Leaves store one RID per key.
type RID struct {
	PageID PageID
	Slot   uint32
}

// RIDSize is the on-page footprint of a serialized RID.
const RIDSize = 16

// NewRID builds an RID from a packed 64-bit representation, with the
// page id in the upper 32 bits and the slot in the lower 32.
func NewRID(packed int64) RID {
	return RID{PageID: PageID(packed >> 32), Slot: uint32(packed)}
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.Slot)
}
