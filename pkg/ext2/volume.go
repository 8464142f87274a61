package ext2

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/fs"
)

// Params is the geometry of a new image.
type Params struct {
	BlockSize   uint32 `yaml:"block_size"`
	TotalBlocks uint32 `yaml:"total_blocks"`
	TotalInodes uint32 `yaml:"total_inodes"`
}

// DefaultParams returns the geometry mkfs uses when none is given.
func DefaultParams() Params {
	return Params{
		BlockSize:   128,
		TotalBlocks: 8192,
		TotalInodes: 1024,
	}
}

// Validate checks that p describes a usable image.
func (p Params) Validate() error {
	switch {
	case p.BlockSize < 16 || p.BlockSize%pointerSize != 0:
		return fs.Errorf("Format", fs.ErrInvalid, "block size %d must be a multiple of %d and at least 16", p.BlockSize, pointerSize)
	case p.TotalInodes == 0:
		return fs.Errorf("Format", fs.ErrInvalid, "need at least one inode")
	case p.TotalBlocks <= inodeTableBlocks(p.TotalInodes, p.BlockSize):
		return fs.Errorf("Format", fs.ErrInvalid, "%d blocks do not leave room after a %d-block inode table",
			p.TotalBlocks, inodeTableBlocks(p.TotalInodes, p.BlockSize))
	}
	return nil
}

// Volume is an open image. It is not safe for concurrent use.
type Volume struct {
	dev *disk.Device
	sb  *Superblock
	log logrus.FieldLogger
}

// Option configures a Volume.
type Option func(*Volume)

// WithLogger sets the logger for allocation and lifecycle events.
func WithLogger(log logrus.FieldLogger) Option {
	return func(v *Volume) {
		v.log = log
	}
}

func newVolume(dev *disk.Device, sb *Superblock, opts []Option) *Volume {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	v := &Volume{dev: dev, sb: sb, log: discard}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.WithField("image", dev.Name())
	return v
}

// Format writes an empty filesystem to dev: the file is zeroed to its final
// size, the blocks under the inode table are reserved, the root directory is
// created with a single "." entry and the superblock is written last.
func Format(dev *disk.Device, p Params, opts ...Option) (*Volume, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	sb := NewSuperblock(Magic, p.TotalBlocks, p.TotalInodes, p.BlockSize)
	v := newVolume(dev, sb, opts)

	if err := dev.Zero(sb.ImageSize()); err != nil {
		return nil, err
	}
	reserved := inodeTableBlocks(p.TotalInodes, p.BlockSize)
	for id := uint32(1); id <= reserved; id++ {
		if err := sb.SetBlockUse(id, true); err != nil {
			return nil, err
		}
	}
	if err := sb.SetInodeUse(RootInode, true); err != nil {
		return nil, err
	}
	root := &File{InodeID: RootInode, Inode: Inode{LinksCount: 1}, Type: FileTypeDirectory, Path: "/"}
	self := []DirEntry{{InodeID: RootInode, Type: FileTypeDirectory, Name: "."}}
	if err := v.replace(root, encodeEntries(self)); err != nil {
		return nil, err
	}

	v.log.WithFields(logrus.Fields{
		"block_size": p.BlockSize,
		"blocks":     p.TotalBlocks,
		"inodes":     p.TotalInodes,
		"reserved":   reserved,
	}).Info("formatted image")
	return v, nil
}

// Open loads the superblock of a formatted image.
func Open(dev *disk.Device, opts ...Option) (*Volume, error) {
	sb, err := LoadSuperblock(dev)
	if err != nil {
		return nil, err
	}
	if !sb.inodes.get(RootInode) {
		return nil, fs.Errorf("Open", fs.ErrCorrupt, "%s: root inode is not allocated", dev.Name())
	}
	v := newVolume(dev, sb, opts)
	v.log.WithFields(logrus.Fields{
		"free_blocks": sb.FreeBlocks(),
		"free_inodes": sb.FreeInodes(),
	}).Info("opened image")
	return v, nil
}

// Superblock returns the in-memory superblock. Callers must not modify it.
func (v *Volume) Superblock() *Superblock {
	return v.sb
}

// ReadInode reads inode id from the inode table.
func (v *Volume) ReadInode(id uint32) (Inode, error) {
	return inodeTable{dev: v.dev, sb: v.sb}.ReadInode(id)
}

// WriteInode stores ino in slot id of the inode table.
func (v *Volume) WriteInode(id uint32, ino *Inode) error {
	return inodeTable{dev: v.dev, sb: v.sb}.WriteInode(id, ino)
}

// Stat describes f.
func (v *Volume) Stat(f *File) fs.FileInfo {
	return fs.FileInfo{
		Type:      f.Type,
		Size:      int64(f.Inode.FileSize),
		Nlink:     f.Inode.LinksCount,
		Inode:     f.InodeID,
		BlockSize: v.sb.blockSize,
		Blocks:    uint64(v.blocksFor(uint64(f.Inode.FileSize))),
	}
}

// StatFS reports the capacity of the volume. Blocks under the inode table
// count as used.
func (v *Volume) StatFS() fs.FSStat {
	bs := uint64(v.sb.blockSize)
	return fs.FSStat{
		BlockSize:     v.sb.blockSize,
		TotalBytes:    uint64(v.sb.totalBlocks) * bs,
		FreeBytes:     uint64(v.sb.freeBlocks) * bs,
		TotalFiles:    uint64(v.sb.totalInodes),
		FreeFiles:     uint64(v.sb.freeInodes),
		NameMaxLength: MaxNameLen,
	}
}

// Close closes the backing device. The superblock is already on disk after
// every mutating call.
func (v *Volume) Close() error {
	return v.dev.Close()
}
