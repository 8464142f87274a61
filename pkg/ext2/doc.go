// Package ext2 implements a small ext2-style filesystem engine on top of a
// single flat backing file.
//
// On-disk layout, in bytes:
//
//	[0, 1024)                     boot area, unused
//	[1024, 1024+sb.Size())        superblock header, block bitmap, inode bitmap
//	[DataOffset, +64*inodes)      inode table
//	[DataOffset, +bs*blocks)      data blocks, 1-indexed
//
// Data blocks are addressed from the start of the inode table, so Format
// reserves the blocks that overlap the table. Each inode has twelve direct
// block pointers, one indirect pointer and one double-indirect pointer.
// Directories are arrays of fixed-size entries.
//
// A Volume is not safe for concurrent use. Callers sharing one across
// goroutines must serialize every call behind a single lock.
package ext2

import (
	"github.com/example/ext2fs/pkg/fs"
)

const (
	// Magic identifies a formatted image.
	Magic uint16 = 0xEF53

	// BootOffset is the size of the reserved area before the superblock.
	BootOffset = 1024

	// InodeBlockCount is the number of block-pointer slots in an inode.
	InodeBlockCount = 14
	// IndirectSlot holds the id of a block of direct ids.
	IndirectSlot = 12
	// DoubleIndirectSlot holds the id of a block of indirect-block ids.
	DoubleIndirectSlot = 13

	// InodeSize is the on-disk size of an inode record.
	InodeSize = 4 + 4 + 4*InodeBlockCount

	// MaxNameLen is the capacity of a directory entry's name.
	MaxNameLen = 255
	// DirEntrySize is the on-disk size of a directory entry.
	DirEntrySize = 4 + 1 + 1 + MaxNameLen

	// RootInode is the inode id of the root directory.
	RootInode uint32 = 1

	pointerSize = 4
)

const (
	// FileTypeFile marks a regular file entry.
	FileTypeFile = fs.FileTypeRegular
	// FileTypeDirectory marks a directory entry.
	FileTypeDirectory = fs.FileTypeDirectory
)
