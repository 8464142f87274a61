package fuse

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

// File represents a regular file. It serves as its own handle.
type File struct {
	fs     *FS
	handle []byte
	path   string
}

// Attr sets the attributes of the file
func (f *File) Attr(ctx context.Context, attr *fuse.Attr) error {
	a, err := f.fs.client.GetAttr(ctx, f.handle)
	if err != nil {
		return f.fs.errno("getattr", f.path, err)
	}
	f.fs.fillAttr(a, attr)
	return nil
}

// Read reads up to req.Size bytes at req.Offset
func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, _, err := f.fs.client.Read(ctx, f.handle, req.Offset, req.Size)
	if err != nil {
		return f.fs.errno("read", f.path, err)
	}
	resp.Data = data
	return nil
}

// Write writes req.Data at req.Offset
func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := f.fs.client.Write(ctx, f.handle, req.Offset, req.Data)
	if err != nil {
		return f.fs.errno("write", f.path, err)
	}
	resp.Size = n
	return nil
}

// Setattr applies size changes; other attributes are not stored on disk
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if _, err := f.fs.client.Truncate(ctx, f.handle, int64(req.Size)); err != nil {
			return f.fs.errno("setattr", f.path, err)
		}
	}
	return f.Attr(ctx, &resp.Attr)
}

// Fsync is a no-op: every write reaches the image before it returns.
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return nil
}

var (
	_ fs.Node          = (*File)(nil)
	_ fs.HandleReader  = (*File)(nil)
	_ fs.HandleWriter  = (*File)(nil)
	_ fs.NodeSetattrer = (*File)(nil)
	_ fs.NodeFsyncer   = (*File)(nil)
)
