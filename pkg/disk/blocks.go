package disk

import (
	"github.com/example/ext2fs/pkg/fs"
)

// Geometry describes where the data blocks of an image live. The superblock
// implements it.
type Geometry interface {
	BlockSize() uint32
	TotalBlocks() uint32
	// DataOffset is the byte offset of block 1.
	DataOffset() int64
}

// BlockOffset translates a 1-based block id into a byte offset.
func BlockOffset(g Geometry, id uint32) (int64, error) {
	if id == 0 || id > g.TotalBlocks() {
		return 0, fs.Errorf("block", fs.ErrInvalidID, "block %d outside [1, %d]", id, g.TotalBlocks())
	}
	return g.DataOffset() + int64(id-1)*int64(g.BlockSize()), nil
}

// ReadBlocks reads the blocks named by ids, in order, into buf. The last block
// may be read partially: only the bytes left in buf are copied.
func ReadBlocks(dev *Device, g Geometry, ids []uint32, buf []byte) error {
	offsets, err := plan(g, ids, len(buf))
	if err != nil {
		return err
	}
	bs := int(g.BlockSize())
	for i, off := range offsets {
		start := i * bs
		end := min(start+bs, len(buf))
		if err := dev.ReadAt(buf[start:end], off); err != nil {
			return err
		}
	}
	return nil
}

// WriteBlocks writes buf across the blocks named by ids, in order. The unused
// tail of a partially filled last block is zeroed.
func WriteBlocks(dev *Device, g Geometry, ids []uint32, buf []byte) error {
	offsets, err := plan(g, ids, len(buf))
	if err != nil {
		return err
	}
	bs := int(g.BlockSize())
	for i, off := range offsets {
		start := i * bs
		chunk := buf[start:min(start+bs, len(buf))]
		if len(chunk) < bs {
			padded := make([]byte, bs)
			copy(padded, chunk)
			chunk = padded
		}
		if err := dev.WriteAt(chunk, off); err != nil {
			return err
		}
	}
	return nil
}

// plan validates every id before any I/O happens and checks that size bytes
// end inside the last listed block.
func plan(g Geometry, ids []uint32, size int) ([]int64, error) {
	offsets := make([]int64, len(ids))
	for i, id := range ids {
		off, err := BlockOffset(g, id)
		if err != nil {
			return nil, err
		}
		offsets[i] = off
	}
	bs := int(g.BlockSize())
	if size > len(ids)*bs || (len(ids) > 0 && size <= (len(ids)-1)*bs) {
		return nil, fs.Errorf("blocks", fs.ErrShortBuffer, "%d bytes for %d blocks of %d", size, len(ids), bs)
	}
	return offsets, nil
}
