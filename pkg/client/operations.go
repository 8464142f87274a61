package client

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/example/ext2fs/pkg/api"
	"github.com/example/ext2fs/pkg/fs"
	"github.com/example/ext2fs/pkg/rpc"
)

// GetRootFileHandle retrieves the root directory file handle from the server
func (c *Client) GetRootFileHandle(ctx context.Context) ([]byte, error) {
	if handle, ok := c.handleCache.GetHandle("/"); ok {
		return handle, nil
	}

	var resp *api.GetRootHandleResponse
	err := c.callWithRetry(ctx, "GetRootHandle", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.GetRootHandle(ctx, &api.GetRootHandleRequest{})
		return err
	})
	if err != nil {
		return nil, err
	}

	c.handleCache.StorePathHandle("/", resp.FileHandle)
	c.handleCache.StoreHandlePath(resp.FileHandle, "/")
	c.attrCache.StoreHandleAttrs(resp.FileHandle, resp.Attributes)
	return resp.FileHandle, nil
}

// GetAttr retrieves attributes for a file or directory
func (c *Client) GetAttr(ctx context.Context, fileHandle []byte) (*api.FileAttributes, error) {
	if attrs, ok := c.attrCache.GetHandleAttrs(fileHandle); ok {
		return attrs, nil
	}

	var resp *api.GetAttrResponse
	err := c.callWithRetry(ctx, "GetAttr", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.GetAttr(ctx, &api.GetAttrRequest{FileHandle: fileHandle})
		return err
	})
	if err != nil {
		return nil, err
	}

	c.attrCache.StoreHandleAttrs(fileHandle, resp.Attributes)
	return resp.Attributes, nil
}

// Lookup looks up a file name in a directory
func (c *Client) Lookup(ctx context.Context, dirHandle []byte, name string) ([]byte, *api.FileAttributes, error) {
	var resp *api.LookupResponse
	err := c.callWithRetry(ctx, "Lookup", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.Lookup(ctx, &api.LookupRequest{
			DirectoryHandle: dirHandle,
			Name:            name,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	c.attrCache.StoreHandleAttrs(resp.FileHandle, resp.Attributes)
	c.attrCache.StoreHandleAttrs(dirHandle, resp.DirAttributes)
	if dirPath, ok := c.handleCache.GetPath(dirHandle); ok {
		c.remember(path.Join(dirPath, name), resp.FileHandle)
	}
	return resp.FileHandle, resp.Attributes, nil
}

// LookupPath resolves a slash separated path from the root, one Lookup per
// component. Resolved prefixes are cached.
func (c *Client) LookupPath(ctx context.Context, p string) ([]byte, error) {
	if p == "" {
		return nil, ErrInvalidPath
	}
	p = path.Clean("/" + p)
	if handle, ok := c.handleCache.GetHandle(p); ok {
		return handle, nil
	}

	handle, err := c.GetRootFileHandle(ctx)
	if err != nil {
		return nil, err
	}

	current := "/"
	for _, name := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if name == "" {
			continue
		}
		current = path.Join(current, name)
		if cached, ok := c.handleCache.GetHandle(current); ok {
			handle = cached
			continue
		}
		handle, _, err = c.Lookup(ctx, handle, name)
		if err != nil {
			return nil, err
		}
		c.remember(current, handle)
	}
	return handle, nil
}

// Read reads data from a file at the specified offset
func (c *Client) Read(ctx context.Context, fileHandle []byte, offset int64, count int) ([]byte, bool, error) {
	if offset < 0 || count < 0 {
		return nil, false, &fs.FSError{Op: "read", Err: fs.ErrInvalid}
	}

	var resp *api.ReadResponse
	err := c.callWithRetry(ctx, "Read", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.Read(ctx, &api.ReadRequest{
			FileHandle: fileHandle,
			Offset:     uint64(offset),
			Count:      uint32(count),
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}

	c.attrCache.StoreHandleAttrs(fileHandle, resp.Attributes)
	return resp.Data, resp.Eof, nil
}

// ReadAll reads a whole file in chunks of config.ReadChunkSize
func (c *Client) ReadAll(ctx context.Context, fileHandle []byte, w io.Writer) (int64, error) {
	var total int64
	for {
		data, eof, err := c.Read(ctx, fileHandle, total, c.config.ReadChunkSize)
		if err != nil {
			return total, err
		}
		n, err := w.Write(data)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if eof || len(data) == 0 {
			return total, nil
		}
	}
}

// Write writes data to a file at the specified offset
func (c *Client) Write(ctx context.Context, fileHandle []byte, offset int64, data []byte) (int, error) {
	if offset < 0 {
		return 0, &fs.FSError{Op: "write", Err: fs.ErrInvalid}
	}

	var resp *api.WriteResponse
	err := c.callWithRetry(ctx, "Write", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.Write(ctx, &api.WriteRequest{
			FileHandle: fileHandle,
			Offset:     uint64(offset),
			Data:       data,
		})
		return err
	})
	if err != nil {
		c.attrCache.Invalidate(fileHandle)
		return 0, err
	}

	c.attrCache.StoreHandleAttrs(fileHandle, resp.Attributes)
	return int(resp.Count), nil
}

// Truncate sets the size of a file
func (c *Client) Truncate(ctx context.Context, fileHandle []byte, size int64) (*api.FileAttributes, error) {
	if size < 0 {
		return nil, &fs.FSError{Op: "truncate", Err: fs.ErrInvalid}
	}

	var resp *api.TruncateResponse
	err := c.callWithRetry(ctx, "Truncate", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.Truncate(ctx, &api.TruncateRequest{
			FileHandle: fileHandle,
			Size:       uint64(size),
		})
		return err
	})
	if err != nil {
		c.attrCache.Invalidate(fileHandle)
		return nil, err
	}

	c.attrCache.StoreHandleAttrs(fileHandle, resp.Attributes)
	return resp.Attributes, nil
}

// ReadDir reads a whole directory, following cookies until the server
// reports EOF
func (c *Client) ReadDir(ctx context.Context, dirHandle []byte) ([]*api.DirEntry, error) {
	var entries []*api.DirEntry
	var cookie uint64
	for {
		var resp *api.ReadDirResponse
		err := c.callWithRetry(ctx, "ReadDir", func(ctx context.Context) error {
			var err error
			resp, err = c.fileClient.ReadDir(ctx, &api.ReadDirRequest{
				DirectoryHandle: dirHandle,
				Cookie:          cookie,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, resp.Entries...)
		if resp.Eof || len(resp.Entries) == 0 {
			return entries, nil
		}
		cookie = resp.Cookie
	}
}

// Create creates a new file in the specified directory
func (c *Client) Create(ctx context.Context, dirHandle []byte, name string, exclusive bool) ([]byte, *api.FileAttributes, error) {
	var resp *api.CreateResponse
	err := c.callWithRetry(ctx, "Create", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.Create(ctx, &api.CreateRequest{
			DirectoryHandle: dirHandle,
			Name:            name,
			Exclusive:       exclusive,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	c.attrCache.Invalidate(dirHandle)
	c.attrCache.StoreHandleAttrs(resp.FileHandle, resp.Attributes)
	if dirPath, ok := c.handleCache.GetPath(dirHandle); ok {
		c.remember(path.Join(dirPath, name), resp.FileHandle)
	}
	return resp.FileHandle, resp.Attributes, nil
}

// Mkdir creates a new directory
func (c *Client) Mkdir(ctx context.Context, dirHandle []byte, name string) ([]byte, *api.FileAttributes, error) {
	var resp *api.MkdirResponse
	err := c.callWithRetry(ctx, "Mkdir", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.Mkdir(ctx, &api.MkdirRequest{
			DirectoryHandle: dirHandle,
			Name:            name,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	c.attrCache.Invalidate(dirHandle)
	c.attrCache.StoreHandleAttrs(resp.FileHandle, resp.Attributes)
	if dirPath, ok := c.handleCache.GetPath(dirHandle); ok {
		c.remember(path.Join(dirPath, name), resp.FileHandle)
	}
	return resp.FileHandle, resp.Attributes, nil
}

// Remove removes a file or a whole directory tree
func (c *Client) Remove(ctx context.Context, dirHandle []byte, name string) error {
	err := c.callWithRetry(ctx, "Remove", func(ctx context.Context) error {
		_, err := c.fileClient.Remove(ctx, &api.RemoveRequest{
			DirectoryHandle: dirHandle,
			Name:            name,
		})
		return err
	})
	if err != nil {
		return err
	}

	// A removed directory takes an unknown number of cached paths with it.
	c.ClearCache()
	return nil
}

// StatFS retrieves file system statistics
func (c *Client) StatFS(ctx context.Context) (fs.FSStat, error) {
	var resp *api.StatFSResponse
	err := c.callWithRetry(ctx, "StatFS", func(ctx context.Context) error {
		var err error
		resp, err = c.fileClient.StatFS(ctx, &api.StatFSRequest{})
		return err
	})
	if err != nil {
		return fs.FSStat{}, err
	}
	return rpc.ProtoToFSStat(resp), nil
}

func (c *Client) remember(p string, handle []byte) {
	c.handleCache.StorePathHandle(p, handle)
	c.handleCache.StoreHandlePath(handle, p)
}
