// Package api defines the messages and the gRPC service used to reach an
// ext2 image over the network.
package api

// FileType mirrors fs.FileType on the wire.
type FileType int32

const (
	FileType_REGULAR   FileType = 0
	FileType_DIRECTORY FileType = 1
)

func (t FileType) String() string {
	switch t {
	case FileType_REGULAR:
		return "REGULAR"
	case FileType_DIRECTORY:
		return "DIRECTORY"
	default:
		return "UNKNOWN"
	}
}

// FileAttributes describes one file.
type FileAttributes struct {
	Type      FileType `json:"type"`
	Size      uint64   `json:"size"`
	Nlink     uint32   `json:"nlink"`
	FileId    uint32   `json:"file_id"`
	BlockSize uint32   `json:"block_size"`
	Blocks    uint64   `json:"blocks"`
}

type DirEntry struct {
	FileId uint32   `json:"file_id"`
	Name   string   `json:"name"`
	Type   FileType `json:"type"`
	Cookie uint64   `json:"cookie"`
}

type GetRootHandleRequest struct{}

type GetRootHandleResponse struct {
	FileHandle []byte          `json:"file_handle"`
	Attributes *FileAttributes `json:"attributes,omitempty"`
}

type GetAttrRequest struct {
	FileHandle []byte `json:"file_handle"`
}

type GetAttrResponse struct {
	Attributes *FileAttributes `json:"attributes,omitempty"`
}

type LookupRequest struct {
	DirectoryHandle []byte `json:"directory_handle"`
	Name            string `json:"name"`
}

type LookupResponse struct {
	FileHandle    []byte          `json:"file_handle"`
	Attributes    *FileAttributes `json:"attributes,omitempty"`
	DirAttributes *FileAttributes `json:"dir_attributes,omitempty"`
}

type ReadRequest struct {
	FileHandle []byte `json:"file_handle"`
	Offset     uint64 `json:"offset"`
	Count      uint32 `json:"count"`
}

type ReadResponse struct {
	Data       []byte          `json:"data"`
	Eof        bool            `json:"eof"`
	Attributes *FileAttributes `json:"attributes,omitempty"`
}

type WriteRequest struct {
	FileHandle []byte `json:"file_handle"`
	Offset     uint64 `json:"offset"`
	Data       []byte `json:"data"`
}

type WriteResponse struct {
	Count      uint32          `json:"count"`
	Attributes *FileAttributes `json:"attributes,omitempty"`
}

type TruncateRequest struct {
	FileHandle []byte `json:"file_handle"`
	Size       uint64 `json:"size"`
}

type TruncateResponse struct {
	Attributes *FileAttributes `json:"attributes,omitempty"`
}

type CreateRequest struct {
	DirectoryHandle []byte `json:"directory_handle"`
	Name            string `json:"name"`
	Exclusive       bool   `json:"exclusive"`
}

type CreateResponse struct {
	FileHandle []byte          `json:"file_handle"`
	Attributes *FileAttributes `json:"attributes,omitempty"`
}

type MkdirRequest struct {
	DirectoryHandle []byte `json:"directory_handle"`
	Name            string `json:"name"`
}

type MkdirResponse struct {
	FileHandle []byte          `json:"file_handle"`
	Attributes *FileAttributes `json:"attributes,omitempty"`
}

// RemoveRequest removes Name from the directory. Directories are removed
// with their whole subtree.
type RemoveRequest struct {
	DirectoryHandle []byte `json:"directory_handle"`
	Name            string `json:"name"`
}

type RemoveResponse struct{}

type ReadDirRequest struct {
	DirectoryHandle []byte `json:"directory_handle"`
	Cookie          uint64 `json:"cookie"`
	Count           uint32 `json:"count"`
}

type ReadDirResponse struct {
	Entries []*DirEntry `json:"entries"`
	// Cookie resumes the listing; it is 0 once Eof is set.
	Cookie uint64 `json:"cookie"`
	Eof    bool   `json:"eof"`
}

type StatFSRequest struct{}

type StatFSResponse struct {
	BlockSize     uint32 `json:"block_size"`
	TotalBytes    uint64 `json:"total_bytes"`
	FreeBytes     uint64 `json:"free_bytes"`
	TotalFiles    uint64 `json:"total_files"`
	FreeFiles     uint64 `json:"free_files"`
	NameMaxLength uint32 `json:"name_max_length"`
}
