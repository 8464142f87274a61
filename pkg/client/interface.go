package client

import (
	"context"
	"time"

	"github.com/example/ext2fs/pkg/api"
	"github.com/example/ext2fs/pkg/fs"
)

// FileClient defines the interface for remote file operations
type FileClient interface {
	// GetAttr retrieves attributes for a file or directory
	GetAttr(ctx context.Context, fileHandle []byte) (*api.FileAttributes, error)

	// Lookup looks up a file name in a directory
	// Returns the file handle, attributes, and any error
	Lookup(ctx context.Context, dirHandle []byte, name string) ([]byte, *api.FileAttributes, error)

	// Read reads data from a file at the specified offset
	// Returns the data read, a boolean indicating if EOF was reached, and any error
	Read(ctx context.Context, fileHandle []byte, offset int64, count int) ([]byte, bool, error)

	// Write writes data to a file at the specified offset
	// Returns the number of bytes written and any error
	Write(ctx context.Context, fileHandle []byte, offset int64, data []byte) (int, error)

	// Truncate sets the size of a file
	Truncate(ctx context.Context, fileHandle []byte, size int64) (*api.FileAttributes, error)

	// ReadDir reads every entry of a directory
	ReadDir(ctx context.Context, dirHandle []byte) ([]*api.DirEntry, error)

	// Create creates a new file in the specified directory
	// Returns the file handle, attributes, and any error
	Create(ctx context.Context, dirHandle []byte, name string, exclusive bool) ([]byte, *api.FileAttributes, error)

	// Mkdir creates a new directory
	// Returns the directory handle, attributes, and any error
	Mkdir(ctx context.Context, dirHandle []byte, name string) ([]byte, *api.FileAttributes, error)

	// Remove removes a file or a whole directory tree
	Remove(ctx context.Context, dirHandle []byte, name string) error

	// StatFS retrieves file system statistics
	StatFS(ctx context.Context) (fs.FSStat, error)

	// Close closes the client connection and releases all resources
	Close() error

	// GetRootFileHandle retrieves the root directory file handle from the server
	GetRootFileHandle(ctx context.Context) ([]byte, error)

	// LookupPath resolves a file path to a file handle, starting from the root
	LookupPath(ctx context.Context, path string) ([]byte, error)
}

// CacheableClient extends FileClient with cache management capabilities
type CacheableClient interface {
	FileClient

	// ClearCache clears all cached handles and attributes
	ClearCache() error

	// SetCacheTTL sets the time-to-live for cache entries
	SetCacheTTL(duration time.Duration)
}

var _ CacheableClient = (*Client)(nil)
