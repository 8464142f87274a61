package server

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/ext2fs/pkg/api"
	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/ext2"
	"github.com/example/ext2fs/pkg/fs"
	"github.com/example/ext2fs/pkg/fs/image"
	"github.com/example/ext2fs/pkg/rpc"
)

// setupServer formats an in-memory image and serves it without a listener.
func setupServer(t *testing.T, config *Config) (*FileServer, *test.Hook) {
	t.Helper()
	mem := memfs.New()
	dev, err := disk.Create(mem, "test.img", 0)
	require.NoError(t, err)
	vol, err := ext2.Format(dev, ext2.Params{BlockSize: 128, TotalBlocks: 512, TotalInodes: 64})
	require.NoError(t, err)
	require.NoError(t, vol.Close())

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	imgFS, err := image.Open(mem, "test.img", image.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { imgFS.Close() })

	if config == nil {
		config = DefaultConfig()
	}
	server, err := NewFileServer(config, imgFS, logger)
	require.NoError(t, err)
	return server, hook
}

func rootHandle(t *testing.T, s *FileServer) []byte {
	t.Helper()
	resp, err := s.GetRootHandle(context.Background(), &api.GetRootHandleRequest{})
	require.NoError(t, err)
	return resp.FileHandle
}

func createFile(t *testing.T, s *FileServer, dir []byte, name, content string) []byte {
	t.Helper()
	resp, err := s.Create(context.Background(), &api.CreateRequest{DirectoryHandle: dir, Name: name, Exclusive: true})
	require.NoError(t, err)
	if content != "" {
		_, err = s.Write(context.Background(), &api.WriteRequest{FileHandle: resp.FileHandle, Data: []byte(content)})
		require.NoError(t, err)
	}
	return resp.FileHandle
}

func TestNewFileServerRejectsBadConfig(t *testing.T) {
	config := DefaultConfig()
	config.MaxConcurrent = 0
	_, err := NewFileServer(config, nil, nil)
	assert.Error(t, err)
}

func TestGetRootHandle(t *testing.T) {
	s, hook := setupServer(t, nil)
	resp, err := s.GetRootHandle(context.Background(), &api.GetRootHandleRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.FileHandle, fs.HandleSize)
	require.NotNil(t, resp.Attributes)
	assert.Equal(t, api.FileType_DIRECTORY, resp.Attributes.Type)
	assert.Equal(t, ext2.RootInode, resp.Attributes.FileId)

	// Every request is logged with its op and a request id.
	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "response" && e.Data["op"] == "GetRootHandle" {
			found = true
			assert.NotEmpty(t, e.Data["request_id"])
			assert.Equal(t, "OK", e.Data["status"])
		}
	}
	assert.True(t, found)
}

func TestGetAttr(t *testing.T) {
	s, _ := setupServer(t, nil)
	fh := createFile(t, s, rootHandle(t, s), "testfile.txt", "test content")

	resp, err := s.GetAttr(context.Background(), &api.GetAttrRequest{FileHandle: fh})
	require.NoError(t, err)
	assert.Equal(t, api.FileType_REGULAR, resp.Attributes.Type)
	assert.Equal(t, uint64(12), resp.Attributes.Size)
	assert.Equal(t, uint32(1), resp.Attributes.Nlink)

	_, err = s.GetAttr(context.Background(), &api.GetAttrRequest{FileHandle: []byte("short")})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.ErrorIs(t, rpc.Error(err), fs.ErrInvalidHandle)
}

func TestLookup(t *testing.T) {
	s, _ := setupServer(t, nil)
	root := rootHandle(t, s)
	mk, err := s.Mkdir(context.Background(), &api.MkdirRequest{DirectoryHandle: root, Name: "testdir"})
	require.NoError(t, err)
	fh := createFile(t, s, mk.FileHandle, "inner.txt", "x")

	testCases := []struct {
		name     string
		dir      []byte
		target   string
		handle   []byte
		expected codes.Code
	}{
		{"file in subdir", mk.FileHandle, "inner.txt", fh, codes.OK},
		{"subdir from root", root, "testdir", mk.FileHandle, codes.OK},
		{"dot", mk.FileHandle, ".", mk.FileHandle, codes.OK},
		{"dotdot", mk.FileHandle, "..", root, codes.OK},
		{"dotdot at root", root, "..", root, codes.OK},
		{"missing", root, "nope", nil, codes.NotFound},
		{"not a directory", fh, "x", nil, codes.FailedPrecondition},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := s.Lookup(context.Background(), &api.LookupRequest{DirectoryHandle: tc.dir, Name: tc.target})
			require.Equal(t, tc.expected, status.Code(err), "%v", err)
			if tc.expected == codes.OK {
				assert.Equal(t, tc.handle, resp.FileHandle)
				assert.NotNil(t, resp.Attributes)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	s, _ := setupServer(t, nil)
	root := rootHandle(t, s)

	first, err := s.Create(context.Background(), &api.CreateRequest{DirectoryHandle: root, Name: "a.txt", Exclusive: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Attributes.Size)

	_, err = s.Create(context.Background(), &api.CreateRequest{DirectoryHandle: root, Name: "a.txt", Exclusive: true})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.ErrorIs(t, rpc.Error(err), fs.ErrExist)

	again, err := s.Create(context.Background(), &api.CreateRequest{DirectoryHandle: root, Name: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, first.FileHandle, again.FileHandle)

	for _, name := range []string{"", ".", "..", "a/b"} {
		_, err = s.Create(context.Background(), &api.CreateRequest{DirectoryHandle: root, Name: name})
		assert.ErrorIs(t, rpc.Error(err), fs.ErrInvalidName, "%q", name)
	}
}

func TestMkdirAndRemove(t *testing.T) {
	s, _ := setupServer(t, nil)
	root := rootHandle(t, s)
	before, err := s.StatFS(context.Background(), &api.StatFSRequest{})
	require.NoError(t, err)

	mk, err := s.Mkdir(context.Background(), &api.MkdirRequest{DirectoryHandle: root, Name: "d"})
	require.NoError(t, err)
	assert.Equal(t, api.FileType_DIRECTORY, mk.Attributes.Type)
	assert.Equal(t, uint32(2), mk.Attributes.Nlink)
	createFile(t, s, mk.FileHandle, "f", "payload")

	_, err = s.Mkdir(context.Background(), &api.MkdirRequest{DirectoryHandle: root, Name: "d"})
	assert.ErrorIs(t, rpc.Error(err), fs.ErrExist)

	_, err = s.Remove(context.Background(), &api.RemoveRequest{DirectoryHandle: root, Name: "d"})
	require.NoError(t, err)

	after, err := s.StatFS(context.Background(), &api.StatFSRequest{})
	require.NoError(t, err)
	assert.Equal(t, before.FreeBytes, after.FreeBytes)
	assert.Equal(t, before.FreeFiles, after.FreeFiles)

	_, err = s.GetAttr(context.Background(), &api.GetAttrRequest{FileHandle: mk.FileHandle})
	assert.ErrorIs(t, rpc.Error(err), fs.ErrStale)

	_, err = s.Remove(context.Background(), &api.RemoveRequest{DirectoryHandle: root, Name: "d"})
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = s.Remove(context.Background(), &api.RemoveRequest{DirectoryHandle: root, Name: ".."})
	assert.ErrorIs(t, rpc.Error(err), fs.ErrInvalidName)
}
