package ext2

import (
	"github.com/diskfs/go-diskfs/util/bitmap"
)

// idBitmap records the usage of 1-based ids. Within each byte the lowest id
// owns the most significant bit: id 1 is 0x80 of byte 0, id 8 is 0x01.
type idBitmap struct {
	bits  *bitmap.Bitmap
	count uint32
	used  uint32
}

func bitmapLen(count uint32) int {
	return int((count + 7) / 8)
}

func newIDBitmap(count uint32) *idBitmap {
	return &idBitmap{
		bits:  bitmap.NewBits(bitmapLen(count) * 8),
		count: count,
	}
}

func loadIDBitmap(count uint32, raw []byte) *idBitmap {
	b := newIDBitmap(count)
	b.bits.FromBytes(raw)
	for id := uint32(1); id <= count; id++ {
		if b.get(id) {
			b.used++
		}
	}
	return b
}

// location maps an id onto the least-significant-first bit index used by the
// underlying bitmap.
func location(id uint32) int {
	i := int(id - 1)
	return i/8*8 + 7 - i%8
}

// get reports whether id is in use. Callers range-check ids with
// checkBlock/checkInode first; IsSet only fails for a location past the end
// of the bitmap, which such an id cannot reach.
func (b *idBitmap) get(id uint32) bool {
	set, err := b.bits.IsSet(location(id))
	return err == nil && set
}

// set reports whether the bit changed.
func (b *idBitmap) set(id uint32, used bool) (bool, error) {
	if b.get(id) == used {
		return false, nil
	}
	if used {
		if err := b.bits.Set(location(id)); err != nil {
			return false, err
		}
		b.used++
	} else {
		if err := b.bits.Clear(location(id)); err != nil {
			return false, err
		}
		b.used--
	}
	return true, nil
}

// findUnused returns the n lowest free ids, skipping any id for which skip
// returns true. It returns nil if fewer than n qualify.
func (b *idBitmap) findUnused(n int, skip func(uint32) bool) []uint32 {
	found := make([]uint32, 0, n)
	for id := uint32(1); id <= b.count && len(found) < n; id++ {
		if b.get(id) || (skip != nil && skip(id)) {
			continue
		}
		found = append(found, id)
	}
	if len(found) < n {
		return nil
	}
	return found
}

func (b *idBitmap) bytes() []byte {
	return b.bits.ToBytes()
}

func (b *idBitmap) clone() *idBitmap {
	c := newIDBitmap(b.count)
	c.bits.FromBytes(b.bits.ToBytes())
	c.used = b.used
	return c
}
