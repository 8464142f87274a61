package fs

// FileType represents the type of a file. The values match the filetype byte
// stored in directory entries.
type FileType uint8

const (
	// FileTypeRegular is a regular file
	FileTypeRegular FileType = iota
	// FileTypeDirectory is a directory
	FileTypeDirectory
)

// String returns a string representation of the file type
func (ft FileType) String() string {
	switch ft {
	case FileTypeRegular:
		return "FILE"
	case FileTypeDirectory:
		return "DIR"
	default:
		return "???"
	}
}

// FileInfo contains information about a file.
type FileInfo struct {
	// Type is the file type
	Type FileType

	// Size is the file size in bytes
	Size int64

	// Nlink is the number of directory entries referencing the inode
	Nlink uint32

	// Inode is the inode id backing the file
	Inode uint32

	// BlockSize is the filesystem block size
	BlockSize uint32

	// Blocks is the number of data blocks holding the content
	Blocks uint64
}

// IsDir reports whether the file is a directory.
func (fi FileInfo) IsDir() bool {
	return fi.Type == FileTypeDirectory
}

// DirEntry represents an entry in a directory.
type DirEntry struct {
	// Name is the name of the entry
	Name string

	// FileId is the inode id of the entry
	FileId uint32

	// Type is the file type recorded in the entry
	Type FileType

	// Cookie is a position for resuming readdir operations
	Cookie int64
}

// FSStat contains information about a filesystem.
type FSStat struct {
	// BlockSize is the size of one data block
	BlockSize uint32

	// TotalBytes is the total size of the data area in bytes
	TotalBytes uint64

	// FreeBytes is the number of free bytes available
	FreeBytes uint64

	// TotalFiles is the total number of inode slots
	TotalFiles uint64

	// FreeFiles is the number of free inode slots
	FreeFiles uint64

	// NameMaxLength is the maximum length of a file name
	NameMaxLength uint32
}
