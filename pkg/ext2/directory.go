package ext2

import (
	"bytes"
	"encoding/binary"
	"path"

	"github.com/example/ext2fs/pkg/fs"
)

// DirEntry maps a name to an inode within a directory.
type DirEntry struct {
	InodeID uint32
	Type    fs.FileType
	Name    string
}

// rawDirEntry is the packed on-disk form of a DirEntry.
type rawDirEntry struct {
	InodeID  uint32
	FileType uint8
	NameLen  uint8
	Name     [MaxNameLen]byte
}

func encodeEntries(entries []DirEntry) []byte {
	var buf bytes.Buffer
	buf.Grow(len(entries) * DirEntrySize)
	for _, e := range entries {
		raw := rawDirEntry{InodeID: e.InodeID, FileType: uint8(e.Type), NameLen: uint8(len(e.Name))}
		copy(raw.Name[:], e.Name)
		// Writes to a bytes.Buffer cannot fail.
		_ = binary.Write(&buf, binary.LittleEndian, &raw)
	}
	return buf.Bytes()
}

func decodeEntries(dir string, content []byte) ([]DirEntry, error) {
	if len(content)%DirEntrySize != 0 {
		return nil, fs.Errorf("ReadDir", fs.ErrCorrupt, "%s: %d bytes is not a whole number of entries", dir, len(content))
	}
	entries := make([]DirEntry, 0, len(content)/DirEntrySize)
	r := bytes.NewReader(content)
	for r.Len() > 0 {
		var raw rawDirEntry
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fs.NewError("ReadDir", dir, err)
		}
		entries = append(entries, DirEntry{
			InodeID: raw.InodeID,
			Type:    fs.FileType(raw.FileType),
			Name:    string(raw.Name[:raw.NameLen]),
		})
	}
	return entries, nil
}

func findEntry(entries []DirEntry, name string) int {
	for i, e := range entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func validateName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return fs.Errorf("name", fs.ErrInvalidName, "%q is reserved", name)
	case len(name) > MaxNameLen:
		return fs.Errorf("name", fs.ErrInvalidName, "%d bytes, at most %d", len(name), MaxNameLen)
	case bytes.ContainsAny([]byte(name), "/\x00"):
		return fs.Errorf("name", fs.ErrInvalidName, "%q contains a separator", name)
	}
	return nil
}

// ReadDir decodes the entries of dir in storage order, "." and ".." included.
func (v *Volume) ReadDir(dir *File) ([]DirEntry, error) {
	if !dir.IsDir() {
		return nil, fs.NewError("ReadDir", dir.Path, fs.ErrNotDir)
	}
	content, err := v.LoadContents(dir)
	if err != nil {
		return nil, err
	}
	return decodeEntries(dir.Path, content)
}

// CreateEntry adds a new, empty file or directory called name to parent and
// returns it. A directory starts with "." and ".." entries, each counting as
// one link on the inode it names. The superblock and parent are unchanged if
// the call fails.
func (v *Volume) CreateEntry(parent *File, name string, ft fs.FileType) (*File, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if ft != FileTypeFile && ft != FileTypeDirectory {
		return nil, fs.Errorf("CreateEntry", fs.ErrInvalid, "file type %d", ft)
	}
	entries, err := v.ReadDir(parent)
	if err != nil {
		return nil, err
	}
	if findEntry(entries, name) >= 0 {
		return nil, fs.NewError("CreateEntry", path.Join(parent.Path, name), fs.ErrExist)
	}

	var child *File
	err = v.atomically([]*File{parent}, func() error {
		ids, err := v.sb.FindUnusedInodes(1)
		if err != nil {
			return err
		}
		if err := v.sb.SetInodeUse(ids[0], true); err != nil {
			return err
		}
		child = &File{
			InodeID: ids[0],
			Inode:   Inode{LinksCount: 1},
			Type:    ft,
			Path:    path.Join(parent.Path, name),
		}
		if ft == FileTypeDirectory {
			child.Inode.LinksCount++
			parent.Inode.LinksCount++
			self := []DirEntry{
				{InodeID: child.InodeID, Type: FileTypeDirectory, Name: "."},
				{InodeID: parent.InodeID, Type: FileTypeDirectory, Name: ".."},
			}
			if err := v.replace(child, encodeEntries(self)); err != nil {
				return err
			}
		} else if err := v.WriteInode(child.InodeID, &child.Inode); err != nil {
			return err
		}
		entries = append(entries, DirEntry{InodeID: child.InodeID, Type: ft, Name: name})
		return v.replace(parent, encodeEntries(entries))
	})
	if err != nil {
		return nil, err
	}
	v.log.WithField("path", child.Path).WithField("inode", child.InodeID).Debug("created entry")
	return child, nil
}

// RemoveEntry unlinks name from parent. A directory is emptied recursively
// first. The removal is not atomic: if a nested step fails, subtrees removed
// before the failure stay removed.
func (v *Volume) RemoveEntry(parent *File, name string) error {
	if name == "." || name == ".." {
		return fs.Errorf("RemoveEntry", fs.ErrInvalidName, "cannot remove %q", name)
	}
	entries, err := v.ReadDir(parent)
	if err != nil {
		return err
	}
	i := findEntry(entries, name)
	if i < 0 {
		return fs.NewError("RemoveEntry", path.Join(parent.Path, name), fs.ErrNotExist)
	}
	target := entries[i]
	last := len(entries) - 1
	entries[i] = entries[last]
	if err := v.ReplaceContents(parent, encodeEntries(entries[:last])); err != nil {
		return err
	}

	ino, err := v.ReadInode(target.InodeID)
	if err != nil {
		return err
	}
	child := &File{InodeID: target.InodeID, Inode: ino, Type: target.Type, Path: path.Join(parent.Path, name)}
	return v.unlink(parent, child)
}

func (v *Volume) unlink(parent, child *File) error {
	dropLink(&child.Inode)
	if child.IsDir() {
		dropLink(&parent.Inode)
		if err := v.WriteInode(parent.InodeID, &parent.Inode); err != nil {
			return err
		}
		entries, err := v.ReadDir(child)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			if err := v.RemoveEntry(child, e.Name); err != nil {
				return err
			}
		}
		dropLink(&child.Inode)
	}

	if child.Inode.LinksCount > 0 {
		if err := v.WriteInode(child.InodeID, &child.Inode); err != nil {
			return err
		}
		return v.sb.Persist(v.dev)
	}
	if err := v.ReleaseAllBlockIDs(&child.Inode); err != nil {
		return err
	}
	child.Inode = Inode{}
	if err := v.WriteInode(child.InodeID, &child.Inode); err != nil {
		return err
	}
	if err := v.sb.SetInodeUse(child.InodeID, false); err != nil {
		return err
	}
	v.log.WithField("path", child.Path).WithField("inode", child.InodeID).Debug("freed inode")
	return v.sb.Persist(v.dev)
}

func dropLink(ino *Inode) {
	if ino.LinksCount > 0 {
		ino.LinksCount--
	}
}
