package ext2

import (
	"bytes"
	"encoding/binary"

	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/fs"
)

// header is the fixed part of the superblock, in on-disk field order.
type header struct {
	Magic       uint16
	TotalBlocks uint32
	TotalInodes uint32
	FreeBlocks  uint32
	FreeInodes  uint32
	BlockSize   uint32
}

var headerSize = binary.Size(header{})

// Superblock holds the filesystem geometry and the block and inode bitmaps.
// The free counters always equal the number of clear bits over valid ids.
type Superblock struct {
	magic       uint16
	totalBlocks uint32
	totalInodes uint32
	freeBlocks  uint32
	freeInodes  uint32
	blockSize   uint32

	blocks *idBitmap
	inodes *idBitmap
}

// NewSuperblock returns a superblock with every block and inode free.
func NewSuperblock(magic uint16, totalBlocks, totalInodes, blockSize uint32) *Superblock {
	return &Superblock{
		magic:       magic,
		totalBlocks: totalBlocks,
		totalInodes: totalInodes,
		freeBlocks:  totalBlocks,
		freeInodes:  totalInodes,
		blockSize:   blockSize,
		blocks:      newIDBitmap(totalBlocks),
		inodes:      newIDBitmap(totalInodes),
	}
}

func (sb *Superblock) Magic() uint16       { return sb.magic }
func (sb *Superblock) TotalBlocks() uint32 { return sb.totalBlocks }
func (sb *Superblock) TotalInodes() uint32 { return sb.totalInodes }
func (sb *Superblock) FreeBlocks() uint32  { return sb.freeBlocks }
func (sb *Superblock) FreeInodes() uint32  { return sb.freeInodes }
func (sb *Superblock) BlockSize() uint32   { return sb.blockSize }

// Size is the serialized length of the header and both bitmaps.
func (sb *Superblock) Size() int64 {
	return int64(headerSize + bitmapLen(sb.totalBlocks) + bitmapLen(sb.totalInodes))
}

// DataOffset is the byte offset of the inode table and of block 1.
func (sb *Superblock) DataOffset() int64 {
	return BootOffset + sb.Size()
}

// ImageSize is the byte length of a fully formatted backing file.
func (sb *Superblock) ImageSize() int64 {
	return sb.DataOffset() + int64(sb.totalBlocks)*int64(sb.blockSize)
}

// PointersPerBlock is the number of block ids a pointer block holds.
func (sb *Superblock) PointersPerBlock() int {
	return int(sb.blockSize / pointerSize)
}

// SetBlockUse marks a block used or free. Setting a bit to its current state
// leaves the free counter alone.
func (sb *Superblock) SetBlockUse(id uint32, used bool) error {
	if err := sb.checkBlock(id); err != nil {
		return err
	}
	changed, err := sb.blocks.set(id, used)
	if err != nil {
		return fs.NewError("SetBlockUse", "", err)
	}
	if changed {
		sb.freeBlocks = adjust(sb.freeBlocks, used)
	}
	return nil
}

// SetInodeUse marks an inode used or free.
func (sb *Superblock) SetInodeUse(id uint32, used bool) error {
	if err := sb.checkInode(id); err != nil {
		return err
	}
	changed, err := sb.inodes.set(id, used)
	if err != nil {
		return fs.NewError("SetInodeUse", "", err)
	}
	if changed {
		sb.freeInodes = adjust(sb.freeInodes, used)
	}
	return nil
}

func adjust(free uint32, used bool) uint32 {
	if used {
		return free - 1
	}
	return free + 1
}

// BlockUsed reports whether a block is marked used.
func (sb *Superblock) BlockUsed(id uint32) (bool, error) {
	if err := sb.checkBlock(id); err != nil {
		return false, err
	}
	return sb.blocks.get(id), nil
}

// InodeUsed reports whether an inode is marked used.
func (sb *Superblock) InodeUsed(id uint32) (bool, error) {
	if err := sb.checkInode(id); err != nil {
		return false, err
	}
	return sb.inodes.get(id), nil
}

// FindUnusedBlocks returns the n lowest free block ids in ascending order.
func (sb *Superblock) FindUnusedBlocks(n int) ([]uint32, error) {
	return sb.findUnusedBlocks(n, nil)
}

func (sb *Superblock) findUnusedBlocks(n int, skip func(uint32) bool) ([]uint32, error) {
	if n == 0 {
		return []uint32{}, nil
	}
	ids := sb.blocks.findUnused(n, skip)
	if ids == nil {
		return nil, fs.Errorf("FindUnusedBlocks", fs.ErrNoSpace, "%d blocks requested, %d free", n, sb.freeBlocks)
	}
	return ids, nil
}

// FindUnusedInodes returns the n lowest free inode ids in ascending order.
func (sb *Superblock) FindUnusedInodes(n int) ([]uint32, error) {
	if n == 0 {
		return []uint32{}, nil
	}
	ids := sb.inodes.findUnused(n, nil)
	if ids == nil {
		return nil, fs.Errorf("FindUnusedInodes", fs.ErrNoSpace, "%d inodes requested, %d free", n, sb.freeInodes)
	}
	return ids, nil
}

func (sb *Superblock) checkBlock(id uint32) error {
	if id == 0 || id > sb.totalBlocks {
		return fs.Errorf("block", fs.ErrInvalidID, "block %d outside [1, %d]", id, sb.totalBlocks)
	}
	return nil
}

func (sb *Superblock) checkInode(id uint32) error {
	if id == 0 || id > sb.totalInodes {
		return fs.Errorf("inode", fs.ErrInvalidID, "inode %d outside [1, %d]", id, sb.totalInodes)
	}
	return nil
}

// MarshalBinary encodes the header followed by the block and inode bitmaps.
func (sb *Superblock) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(sb.Size()))
	h := header{
		Magic:       sb.magic,
		TotalBlocks: sb.totalBlocks,
		TotalInodes: sb.totalInodes,
		FreeBlocks:  sb.freeBlocks,
		FreeInodes:  sb.freeInodes,
		BlockSize:   sb.blockSize,
	}
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	buf.Write(sb.blocks.bytes())
	buf.Write(sb.inodes.bytes())
	return buf.Bytes(), nil
}

// Persist writes the superblock at BootOffset.
func (sb *Superblock) Persist(dev *disk.Device) error {
	raw, err := sb.MarshalBinary()
	if err != nil {
		return fs.NewError("PersistSuperblock", dev.Name(), err)
	}
	return dev.WriteAt(raw, BootOffset)
}

// LoadSuperblock reads and validates the superblock of an image.
func LoadSuperblock(dev *disk.Device) (*Superblock, error) {
	raw := make([]byte, headerSize)
	if err := dev.ReadAt(raw, BootOffset); err != nil {
		return nil, err
	}
	var h header
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &h); err != nil {
		return nil, fs.NewError("LoadSuperblock", dev.Name(), err)
	}
	if h.Magic != Magic {
		return nil, fs.Errorf("LoadSuperblock", fs.ErrCorrupt, "bad magic %#04x", h.Magic)
	}
	if h.TotalBlocks == 0 || h.TotalInodes == 0 || h.BlockSize == 0 || h.BlockSize%pointerSize != 0 {
		return nil, fs.Errorf("LoadSuperblock", fs.ErrCorrupt, "bad geometry %d blocks of %d bytes, %d inodes",
			h.TotalBlocks, h.BlockSize, h.TotalInodes)
	}

	blockBits := make([]byte, bitmapLen(h.TotalBlocks))
	if err := dev.ReadAt(blockBits, BootOffset+int64(headerSize)); err != nil {
		return nil, err
	}
	inodeBits := make([]byte, bitmapLen(h.TotalInodes))
	if err := dev.ReadAt(inodeBits, BootOffset+int64(headerSize+len(blockBits))); err != nil {
		return nil, err
	}

	sb := &Superblock{
		magic:       h.Magic,
		totalBlocks: h.TotalBlocks,
		totalInodes: h.TotalInodes,
		freeBlocks:  h.FreeBlocks,
		freeInodes:  h.FreeInodes,
		blockSize:   h.BlockSize,
		blocks:      loadIDBitmap(h.TotalBlocks, blockBits),
		inodes:      loadIDBitmap(h.TotalInodes, inodeBits),
	}
	if sb.freeBlocks != sb.totalBlocks-sb.blocks.used || sb.freeInodes != sb.totalInodes-sb.inodes.used {
		return nil, fs.Errorf("LoadSuperblock", fs.ErrCorrupt, "free counters %d/%d disagree with bitmaps %d/%d",
			sb.freeBlocks, sb.freeInodes, sb.totalBlocks-sb.blocks.used, sb.totalInodes-sb.inodes.used)
	}
	return sb, nil
}

// snapshot copies the superblock so a failed operation can be rolled back.
func (sb *Superblock) snapshot() *Superblock {
	c := *sb
	c.blocks = sb.blocks.clone()
	c.inodes = sb.inodes.clone()
	return &c
}

func (sb *Superblock) restore(snap *Superblock) {
	*sb = *snap
}
