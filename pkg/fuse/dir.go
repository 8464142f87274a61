package fuse

import (
	"context"
	"path"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/example/ext2fs/pkg/api"
)

// Dir represents a directory in the filesystem
type Dir struct {
	fs     *FS
	handle []byte
	path   string
}

// Attr sets the attributes of the directory
func (d *Dir) Attr(ctx context.Context, attr *fuse.Attr) error {
	a, err := d.fs.client.GetAttr(ctx, d.handle)
	if err != nil {
		return d.fs.errno("getattr", d.path, err)
	}
	d.fs.fillAttr(a, attr)
	return nil
}

// Lookup looks up a specific entry in the directory
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	handle, attrs, err := d.fs.client.Lookup(ctx, d.handle, name)
	if err != nil {
		return nil, d.fs.errno("lookup", path.Join(d.path, name), err)
	}
	return d.fs.node(handle, path.Join(d.path, name), attrs), nil
}

// ReadDirAll returns all entries in the directory
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fs.client.ReadDir(ctx, d.handle)
	if err != nil {
		return nil, d.fs.errno("readdir", d.path, err)
	}
	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		typ := fuse.DT_File
		if e.Type == api.FileType_DIRECTORY {
			typ = fuse.DT_Dir
		}
		dirents = append(dirents, fuse.Dirent{Inode: uint64(e.FileId), Name: e.Name, Type: typ})
	}
	return dirents, nil
}

// Create creates a regular file and returns it as both node and handle
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	p := path.Join(d.path, req.Name)
	exclusive := req.Flags&fuse.OpenExclusive != 0
	handle, attrs, err := d.fs.client.Create(ctx, d.handle, req.Name, exclusive)
	if err != nil {
		return nil, nil, d.fs.errno("create", p, err)
	}
	if req.Flags&fuse.OpenTruncate != 0 && attrs.Size > 0 {
		if attrs, err = d.fs.client.Truncate(ctx, handle, 0); err != nil {
			return nil, nil, d.fs.errno("create", p, err)
		}
	}
	d.fs.fillAttr(attrs, &resp.Attr)
	f := &File{fs: d.fs, handle: handle, path: p}
	return f, f, nil
}

// Mkdir creates a subdirectory
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	p := path.Join(d.path, req.Name)
	handle, _, err := d.fs.client.Mkdir(ctx, d.handle, req.Name)
	if err != nil {
		return nil, d.fs.errno("mkdir", p, err)
	}
	return &Dir{fs: d.fs, handle: handle, path: p}, nil
}

// Remove unlinks a file or removes a directory with everything under it
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if err := d.fs.client.Remove(ctx, d.handle, req.Name); err != nil {
		return d.fs.errno("remove", path.Join(d.path, req.Name), err)
	}
	return nil
}

var (
	_ fs.Node               = (*Dir)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
	_ fs.NodeCreater        = (*Dir)(nil)
	_ fs.NodeMkdirer        = (*Dir)(nil)
	_ fs.NodeRemover        = (*Dir)(nil)
)
