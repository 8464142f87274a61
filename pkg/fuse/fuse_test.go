package fuse

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"bazil.org/fuse"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/ext2fs/pkg/client"
	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/ext2"
	"github.com/example/ext2fs/pkg/fs"
	"github.com/example/ext2fs/pkg/fs/image"
	"github.com/example/ext2fs/pkg/server"
)

// setupFS serves an in-memory image and returns the FUSE root directory
// backed by a client connected over bufconn. Nodes are driven directly,
// without a kernel mount.
func setupFS(t *testing.T) (*FS, *Dir) {
	t.Helper()
	mem := memfs.New()
	dev, err := disk.Create(mem, "fuse.img", 0)
	require.NoError(t, err)
	vol, err := ext2.Format(dev, ext2.Params{BlockSize: 128, TotalBlocks: 256, TotalInodes: 32})
	require.NoError(t, err)
	require.NoError(t, vol.Close())

	logger, _ := test.NewNullLogger()
	imgFS, err := image.Open(mem, "fuse.img", image.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { imgFS.Close() })

	srv, err := server.NewFileServer(server.DefaultConfig(), imgFS, logger)
	require.NoError(t, err)
	lis := bufconn.Listen(1024 * 1024)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	config := client.DefaultConfig()
	config.CacheTTL = 0
	c := client.NewClientWithConn(conn, config)
	t.Cleanup(func() { c.Close() })

	root, err := c.GetRootFileHandle(context.Background())
	require.NoError(t, err)
	filesys := NewFS(c, root, WithLogger(logger), WithAttrValid(time.Minute))
	node, err := filesys.Root()
	require.NoError(t, err)
	return filesys, node.(*Dir)
}

func TestRootAttr(t *testing.T) {
	_, root := setupFS(t)
	var attr fuse.Attr
	require.NoError(t, root.Attr(context.Background(), &attr))
	assert.True(t, attr.Mode.IsDir())
	assert.Equal(t, uint64(1), attr.Inode)
	assert.Equal(t, time.Minute, attr.Valid)
}

func TestCreateWriteRead(t *testing.T) {
	_, root := setupFS(t)
	ctx := context.Background()

	var createResp fuse.CreateResponse
	node, handle, err := root.Create(ctx, &fuse.CreateRequest{
		Name:  "hello.txt",
		Flags: fuse.OpenCreate | fuse.OpenExclusive | fuse.OpenReadWrite,
	}, &createResp)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), createResp.Attr.Mode)
	file := node.(*File)
	assert.Same(t, file, handle)

	var writeResp fuse.WriteResponse
	require.NoError(t, file.Write(ctx, &fuse.WriteRequest{Offset: 0, Data: []byte("hello, world")}, &writeResp))
	assert.Equal(t, 12, writeResp.Size)

	var readResp fuse.ReadResponse
	require.NoError(t, file.Read(ctx, &fuse.ReadRequest{Offset: 7, Size: 100}, &readResp))
	assert.Equal(t, "world", string(readResp.Data))

	var setResp fuse.SetattrResponse
	require.NoError(t, file.Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 5}, &setResp))
	assert.Equal(t, uint64(5), setResp.Attr.Size)

	found, err := root.Lookup(ctx, "hello.txt")
	require.NoError(t, err)
	var attr fuse.Attr
	require.NoError(t, found.Attr(ctx, &attr))
	assert.Equal(t, uint64(5), attr.Size)

	// A second exclusive create fails with EEXIST.
	_, _, err = root.Create(ctx, &fuse.CreateRequest{Name: "hello.txt", Flags: fuse.OpenExclusive}, &createResp)
	assert.Equal(t, fuse.Errno(syscall.EEXIST), err)

	// A truncating create of an existing file empties it.
	_, _, err = root.Create(ctx, &fuse.CreateRequest{Name: "hello.txt", Flags: fuse.OpenTruncate}, &createResp)
	require.NoError(t, err)
	assert.Zero(t, createResp.Attr.Size)
}

func TestMkdirReadDirRemove(t *testing.T) {
	_, root := setupFS(t)
	ctx := context.Background()

	node, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "sub"})
	require.NoError(t, err)
	sub := node.(*Dir)
	assert.Equal(t, "/sub", sub.path)

	var resp fuse.CreateResponse
	_, _, err = sub.Create(ctx, &fuse.CreateRequest{Name: "inner"}, &resp)
	require.NoError(t, err)

	dirents, err := root.ReadDirAll(ctx)
	require.NoError(t, err)
	require.Len(t, dirents, 1)
	assert.Equal(t, "sub", dirents[0].Name)
	assert.Equal(t, fuse.DT_Dir, dirents[0].Type)

	dirents, err = sub.ReadDirAll(ctx)
	require.NoError(t, err)
	require.Len(t, dirents, 1)
	assert.Equal(t, fuse.DT_File, dirents[0].Type)

	require.NoError(t, root.Remove(ctx, &fuse.RemoveRequest{Name: "sub", Dir: true}))
	_, err = root.Lookup(ctx, "sub")
	assert.Equal(t, fuse.Errno(syscall.ENOENT), err)
}

func TestStatfs(t *testing.T) {
	filesys, _ := setupFS(t)
	var resp fuse.StatfsResponse
	require.NoError(t, filesys.Statfs(context.Background(), &fuse.StatfsRequest{}, &resp))
	assert.Equal(t, uint32(128), resp.Bsize)
	assert.Equal(t, uint64(31), resp.Ffree)
	assert.Equal(t, uint32(255), resp.Namelen)
	assert.Less(t, resp.Bfree, resp.Blocks)
}

func TestToErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{fs.NewError("lookup", "/x", fs.ErrNotExist), syscall.ENOENT},
		{fs.NewError("create", "/x", fs.ErrExist), syscall.EEXIST},
		{fs.NewError("write", "/x", fs.ErrNoSpace), syscall.ENOSPC},
		{fs.NewError("read", "/", fs.ErrIsDir), syscall.EISDIR},
		{fs.NewError("write", "/x", fs.ErrFileTooLarge), syscall.EFBIG},
		{fs.ErrStale, syscall.ESTALE},
		{context.DeadlineExceeded, syscall.ETIMEDOUT},
		{errors.New("unexpected"), syscall.EIO},
	}
	for _, tt := range tests {
		assert.Equal(t, fuse.Errno(tt.want), toErrno(tt.err), tt.err.Error())
	}
	assert.NoError(t, toErrno(nil))
}
