package rpc

import (
	"github.com/example/ext2fs/pkg/api"
	"github.com/example/ext2fs/pkg/fs"
)

// FileTypeToProto converts an fs.FileType to its wire value.
func FileTypeToProto(t fs.FileType) api.FileType {
	if t == fs.FileTypeDirectory {
		return api.FileType_DIRECTORY
	}
	return api.FileType_REGULAR
}

// FileTypeFromProto converts a wire file type to an fs.FileType.
func FileTypeFromProto(t api.FileType) fs.FileType {
	if t == api.FileType_DIRECTORY {
		return fs.FileTypeDirectory
	}
	return fs.FileTypeRegular
}

// FSInfoToProtoAttributes converts filesystem FileInfo to wire attributes.
func FSInfoToProtoAttributes(info fs.FileInfo) *api.FileAttributes {
	return &api.FileAttributes{
		Type:      FileTypeToProto(info.Type),
		Size:      uint64(info.Size),
		Nlink:     info.Nlink,
		FileId:    info.Inode,
		BlockSize: info.BlockSize,
		Blocks:    info.Blocks,
	}
}

// ProtoAttributesToFSInfo converts wire attributes back to FileInfo. A nil
// value yields the zero FileInfo.
func ProtoAttributesToFSInfo(attr *api.FileAttributes) fs.FileInfo {
	if attr == nil {
		return fs.FileInfo{}
	}
	return fs.FileInfo{
		Type:      FileTypeFromProto(attr.Type),
		Size:      int64(attr.Size),
		Nlink:     attr.Nlink,
		Inode:     attr.FileId,
		BlockSize: attr.BlockSize,
		Blocks:    attr.Blocks,
	}
}

// DirEntryToProto converts a directory entry to its wire form.
func DirEntryToProto(e fs.DirEntry) *api.DirEntry {
	return &api.DirEntry{
		FileId: e.FileId,
		Name:   e.Name,
		Type:   FileTypeToProto(e.Type),
		Cookie: uint64(e.Cookie),
	}
}

// ProtoDirEntryToFS converts a wire directory entry to an fs.DirEntry.
func ProtoDirEntryToFS(e *api.DirEntry) fs.DirEntry {
	return fs.DirEntry{
		Name:   e.Name,
		FileId: e.FileId,
		Type:   FileTypeFromProto(e.Type),
		Cookie: int64(e.Cookie),
	}
}

// FSStatToProto converts filesystem statistics to a StatFS response.
func FSStatToProto(st fs.FSStat) *api.StatFSResponse {
	return &api.StatFSResponse{
		BlockSize:     st.BlockSize,
		TotalBytes:    st.TotalBytes,
		FreeBytes:     st.FreeBytes,
		TotalFiles:    st.TotalFiles,
		FreeFiles:     st.FreeFiles,
		NameMaxLength: st.NameMaxLength,
	}
}

// ProtoToFSStat converts a StatFS response to filesystem statistics.
func ProtoToFSStat(resp *api.StatFSResponse) fs.FSStat {
	return fs.FSStat{
		BlockSize:     resp.BlockSize,
		TotalBytes:    resp.TotalBytes,
		FreeBytes:     resp.FreeBytes,
		TotalFiles:    resp.TotalFiles,
		FreeFiles:     resp.FreeFiles,
		NameMaxLength: resp.NameMaxLength,
	}
}
