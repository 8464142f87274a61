package ext2

import (
	"path"
	"strings"

	"github.com/example/ext2fs/pkg/fs"
)

// ResolvePath walks p one component at a time. Absolute paths, and any path
// when start is nil, begin at the root directory. The returned File is a new
// value; start is never modified.
//
// The root directory holds no ".." entry, so ".." at the root stays there.
func (v *Volume) ResolvePath(start *File, p string) (*File, error) {
	var cur *File
	if start == nil || strings.HasPrefix(p, "/") {
		root, err := v.Root()
		if err != nil {
			return nil, err
		}
		cur = root
	} else {
		c := *start
		cur = &c
	}

	for _, name := range strings.Split(p, "/") {
		if name == "" {
			continue
		}
		if !cur.IsDir() {
			return nil, fs.NewError("ResolvePath", cur.Path, fs.ErrNotDir)
		}
		entries, err := v.ReadDir(cur)
		if err != nil {
			return nil, err
		}
		i := findEntry(entries, name)
		if i < 0 {
			if name == ".." && cur.InodeID == RootInode {
				continue
			}
			return nil, fs.NewError("ResolvePath", path.Join(cur.Path, name), fs.ErrNotExist)
		}
		if entries[i].InodeID == cur.InodeID {
			continue
		}
		ino, err := v.ReadInode(entries[i].InodeID)
		if err != nil {
			return nil, err
		}
		cur = &File{
			InodeID: entries[i].InodeID,
			Inode:   ino,
			Type:    entries[i].Type,
			Path:    path.Join(cur.Path, name),
		}
	}
	return cur, nil
}

// Root returns the root directory.
func (v *Volume) Root() (*File, error) {
	ino, err := v.ReadInode(RootInode)
	if err != nil {
		return nil, err
	}
	return &File{InodeID: RootInode, Inode: ino, Type: FileTypeDirectory, Path: "/"}, nil
}
