// Package fuse exposes a remote ext2 image as a FUSE mount.
package fuse

import (
	"context"
	"os"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/example/ext2fs/pkg/api"
	"github.com/example/ext2fs/pkg/client"
)

// FS implements the FUSE filesystem interface on top of a FileClient
type FS struct {
	client    client.FileClient
	root      []byte
	attrValid time.Duration
	log       logrus.FieldLogger
}

// Option configures an FS.
type Option func(*FS)

// WithLogger sets the logger used for node operations.
func WithLogger(log logrus.FieldLogger) Option {
	return func(f *FS) { f.log = log }
}

// WithAttrValid sets how long the kernel may cache attributes.
func WithAttrValid(d time.Duration) Option {
	return func(f *FS) { f.attrValid = d }
}

// NewFS creates a filesystem rooted at rootHandle
func NewFS(c client.FileClient, rootHandle []byte, opts ...Option) *FS {
	f := &FS{
		client:    c,
		root:      rootHandle,
		attrValid: time.Second,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root returns the root directory of the filesystem
func (f *FS) Root() (fs.Node, error) {
	return &Dir{fs: f, handle: f.root, path: "/"}, nil
}

// Statfs reports capacity from the server's StatFS
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	st, err := f.client.StatFS(ctx)
	if err != nil {
		return f.errno("statfs", "/", err)
	}
	resp.Bsize = st.BlockSize
	resp.Frsize = st.BlockSize
	if st.BlockSize > 0 {
		resp.Blocks = st.TotalBytes / uint64(st.BlockSize)
		resp.Bfree = st.FreeBytes / uint64(st.BlockSize)
		resp.Bavail = resp.Bfree
	}
	resp.Files = st.TotalFiles
	resp.Ffree = st.FreeFiles
	resp.Namelen = st.NameMaxLength
	return nil
}

// fillAttr copies server attributes into a FUSE attribute block.
func (f *FS) fillAttr(a *api.FileAttributes, attr *fuse.Attr) {
	attr.Valid = f.attrValid
	attr.Inode = uint64(a.FileId)
	attr.Size = a.Size
	attr.Nlink = a.Nlink
	attr.BlockSize = a.BlockSize
	attr.Blocks = a.Blocks * uint64(a.BlockSize) / 512
	attr.Mtime = time.Now()
	if a.Type == api.FileType_DIRECTORY {
		attr.Mode = os.ModeDir | 0o755
	} else {
		attr.Mode = 0o644
	}
}

func (f *FS) node(handle []byte, p string, a *api.FileAttributes) fs.Node {
	if a != nil && a.Type == api.FileType_DIRECTORY {
		return &Dir{fs: f, handle: handle, path: p}
	}
	return &File{fs: f, handle: handle, path: p}
}

var _ fs.FS = (*FS)(nil)
var _ fs.FSStatfser = (*FS)(nil)
