package ext2

import (
	"bytes"
	"encoding/binary"

	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/fs"
)

// Inode is the on-disk record of one file or directory.
type Inode struct {
	FileSize   uint32
	LinksCount uint32
	Blocks     [InodeBlockCount]uint32
}

// inodeTable performs fixed-offset I/O into the table that starts at the
// superblock's DataOffset.
type inodeTable struct {
	dev *disk.Device
	sb  *Superblock
}

func (t inodeTable) offset(id uint32) (int64, error) {
	if err := t.sb.checkInode(id); err != nil {
		return 0, err
	}
	return t.sb.DataOffset() + int64(id-1)*InodeSize, nil
}

// ReadInode reads inode id from the table.
func (t inodeTable) ReadInode(id uint32) (Inode, error) {
	var ino Inode
	off, err := t.offset(id)
	if err != nil {
		return ino, err
	}
	raw := make([]byte, InodeSize)
	if err := t.dev.ReadAt(raw, off); err != nil {
		return ino, err
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &ino); err != nil {
		return ino, fs.NewError("ReadInode", t.dev.Name(), err)
	}
	return ino, nil
}

// WriteInode stores ino at slot id.
func (t inodeTable) WriteInode(id uint32, ino *Inode) error {
	off, err := t.offset(id)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.Grow(InodeSize)
	if err := binary.Write(&buf, binary.LittleEndian, ino); err != nil {
		return fs.NewError("WriteInode", t.dev.Name(), err)
	}
	return t.dev.WriteAt(buf.Bytes(), off)
}

// inodeTableBlocks is the number of data blocks overlapping the inode table.
func inodeTableBlocks(totalInodes, blockSize uint32) uint32 {
	n := uint64(totalInodes) * InodeSize
	return uint32((n + uint64(blockSize) - 1) / uint64(blockSize))
}
