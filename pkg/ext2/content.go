package ext2

import (
	"math"

	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/fs"
)

// File is a resolved inode together with the path it was reached by. It is
// an in-memory handle only; Inode is kept in sync with the table by every
// Volume method that modifies it.
type File struct {
	InodeID uint32
	Inode   Inode
	Type    fs.FileType
	Path    string
}

// IsDir reports whether f is a directory.
func (f *File) IsDir() bool {
	return f.Type == FileTypeDirectory
}

func (v *Volume) blocksFor(size uint64) int {
	bs := uint64(v.sb.blockSize)
	return int((size + bs - 1) / bs)
}

// LoadContents reads the whole content of f.
func (v *Volume) LoadContents(f *File) ([]byte, error) {
	ids, err := v.ResolveBlockIDs(&f.Inode)
	if err != nil {
		return nil, err
	}
	n := v.blocksFor(uint64(f.Inode.FileSize))
	if len(ids) < n {
		return nil, fs.Errorf("LoadContents", fs.ErrCorrupt, "%s: inode %d has %d blocks for %d bytes",
			f.Path, f.InodeID, len(ids), f.Inode.FileSize)
	}
	buf := make([]byte, f.Inode.FileSize)
	if err := disk.ReadBlocks(v.dev, v.sb, ids[:n], buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReplaceContents stores data as the new content of f. Every call releases
// the current blocks and allocates a fresh list. On failure the superblock
// and f.Inode are restored.
func (v *Volume) ReplaceContents(f *File, data []byte) error {
	return v.atomically([]*File{f}, func() error {
		return v.replace(f, data)
	})
}

func (v *Volume) replace(f *File, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fs.Errorf("ReplaceContents", fs.ErrFileTooLarge, "%s: %d bytes", f.Path, len(data))
	}
	n := v.blocksFor(uint64(len(data)))
	if n > v.MaxFileBlocks() {
		return fs.Errorf("ReplaceContents", fs.ErrFileTooLarge, "%s: %d bytes need %d blocks, at most %d addressable",
			f.Path, len(data), n, v.MaxFileBlocks())
	}
	if err := v.ReleaseAllBlockIDs(&f.Inode); err != nil {
		return err
	}
	ids, err := v.sb.FindUnusedBlocks(n)
	if err != nil {
		return err
	}
	if err := v.AssignBlockIDs(&f.Inode, ids); err != nil {
		return err
	}
	if err := disk.WriteBlocks(v.dev, v.sb, ids, data); err != nil {
		return err
	}
	f.Inode.FileSize = uint32(len(data))
	if err := v.WriteInode(f.InodeID, &f.Inode); err != nil {
		return err
	}
	return v.sb.Persist(v.dev)
}

// Truncate shrinks f or extends it with zero bytes to size.
func (v *Volume) Truncate(f *File, size int64) error {
	if size < 0 {
		return fs.Errorf("Truncate", fs.ErrInvalid, "%s: negative size %d", f.Path, size)
	}
	if size > math.MaxUint32 {
		return fs.Errorf("Truncate", fs.ErrFileTooLarge, "%s: %d bytes", f.Path, size)
	}
	if size == int64(f.Inode.FileSize) {
		return nil
	}
	data, err := v.LoadContents(f)
	if err != nil {
		return err
	}
	if size < int64(len(data)) {
		data = data[:size]
	} else {
		data = append(data, make([]byte, size-int64(len(data)))...)
	}
	return v.ReplaceContents(f, data)
}

// atomically runs fn and, if it fails, restores the superblock and the
// inodes of files to their state before the call. Nested updates inside fn
// may already have persisted the superblock, so the restored superblock and
// inode records are written back on a best-effort basis.
func (v *Volume) atomically(files []*File, fn func() error) error {
	snap := v.sb.snapshot()
	saved := make([]Inode, len(files))
	for i, f := range files {
		saved[i] = f.Inode
	}
	err := fn()
	if err == nil {
		return nil
	}
	v.sb.restore(snap)
	if perr := v.sb.Persist(v.dev); perr != nil {
		v.log.WithError(perr).Warn("could not restore superblock after failed update")
	}
	for i, f := range files {
		f.Inode = saved[i]
		if werr := v.WriteInode(f.InodeID, &f.Inode); werr != nil {
			v.log.WithError(werr).WithField("inode", f.InodeID).Warn("could not restore inode after failed update")
		}
	}
	return err
}
