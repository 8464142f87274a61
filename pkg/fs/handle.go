// pkg/fs/handle.go
package fs

import (
	"encoding/binary"
	"fmt"
)

// HandleSize is the length of a serialized file handle.
const HandleSize = 12

// FileHandle is a structured representation of a file handle.
// It names an inode of one filesystem instance.
type FileHandle struct {
	// FileSystemID identifies the specific filesystem
	FileSystemID uint32

	// Inode is the inode id within the filesystem
	Inode uint32

	// Generation is bumped whenever the inode is freed, so handles to a
	// removed file go stale even if the id is reused
	Generation uint32
}

// Serialize converts the file handle to a byte slice
func (fh *FileHandle) Serialize() []byte {
	data := make([]byte, HandleSize)

	binary.BigEndian.PutUint32(data[0:4], fh.FileSystemID)
	binary.BigEndian.PutUint32(data[4:8], fh.Inode)
	binary.BigEndian.PutUint32(data[8:12], fh.Generation)

	return data
}

// DeserializeFileHandle parses a byte slice into a file handle
func DeserializeFileHandle(data []byte) (*FileHandle, error) {
	if len(data) != HandleSize {
		return nil, Errorf("DeserializeFileHandle", ErrInvalidHandle, "handle is %d bytes, want %d", len(data), HandleSize)
	}

	fh := &FileHandle{
		FileSystemID: binary.BigEndian.Uint32(data[0:4]),
		Inode:        binary.BigEndian.Uint32(data[4:8]),
		Generation:   binary.BigEndian.Uint32(data[8:12]),
	}
	if fh.Inode == 0 {
		return nil, Errorf("DeserializeFileHandle", ErrInvalidHandle, "inode id 0")
	}

	return fh, nil
}

// String returns a string representation of the file handle
func (fh *FileHandle) String() string {
	return fmt.Sprintf("FileHandle{FS:%d, Inode:%d, Gen:%d}",
		fh.FileSystemID, fh.Inode, fh.Generation)
}
