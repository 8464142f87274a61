package fs

import (
	"context"
)

// FileSystem defines the interface the remote service and the FUSE mount use
// to interact with the underlying storage. Paths are absolute and slash
// separated.
type FileSystem interface {
	// GetAttr retrieves attributes for the file at the specified path.
	GetAttr(ctx context.Context, path string) (FileInfo, error)

	// Lookup finds a file by name within a directory.
	// Returns the full path to the file and its attributes.
	Lookup(ctx context.Context, dir string, name string) (string, FileInfo, error)

	// Read reads data from a file at the specified offset.
	// Returns the data read, whether the end of file was reached, and any error.
	Read(ctx context.Context, path string, offset int64, length int) ([]byte, bool, error)

	// Write writes data to a file at the specified offset, zero-extending the
	// file when offset is past its end. Returns the number of bytes written.
	Write(ctx context.Context, path string, offset int64, data []byte) (int, error)

	// Truncate sets the size of a file, discarding or zero-filling content.
	Truncate(ctx context.Context, path string, size int64) (FileInfo, error)

	// Create creates a new file in the specified directory.
	// If excl is true, the operation will fail if the file already exists;
	// otherwise the existing file is returned.
	Create(ctx context.Context, dir string, name string, excl bool) (string, FileInfo, error)

	// Mkdir creates a new directory.
	Mkdir(ctx context.Context, dir string, name string) (string, FileInfo, error)

	// Remove removes the specified file. Directories are removed together
	// with everything below them.
	Remove(ctx context.Context, path string) error

	// ReadDir reads the contents of a directory.
	// cookie is the cookie of the last entry from a previous call (0 to start),
	// count is the maximum number of entries to return (0 for all).
	// Returns directory entries, the next cookie to use (0 when exhausted), and any error.
	ReadDir(ctx context.Context, dir string, cookie int64, count int) ([]DirEntry, int64, error)

	// StatFS retrieves file system statistics.
	StatFS(ctx context.Context) (FSStat, error)

	// FileHandleToPath converts a file handle to a file system path.
	FileHandleToPath(fh []byte) (string, error)

	// PathToFileHandle converts a file system path to a file handle.
	PathToFileHandle(path string) ([]byte, error)
}
