package ext2

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/fs"
)

const imageName = "test.img"

// smallParams is the geometry used by most tests: 8 inode-table blocks, root
// directory in blocks 9-11.
var smallParams = Params{BlockSize: 128, TotalBlocks: 64, TotalInodes: 16}

func setupVolume(t *testing.T, p Params) (*Volume, billy.Filesystem) {
	t.Helper()
	mem := memfs.New()
	dev, err := disk.Create(mem, imageName, 0)
	require.NoError(t, err)
	v, err := Format(dev, p)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v, mem
}

func root(t *testing.T, v *Volume) *File {
	t.Helper()
	r, err := v.Root()
	require.NoError(t, err)
	return r
}

func names(t *testing.T, v *Volume, dir *File) []string {
	t.Helper()
	entries, err := v.ReadDir(dir)
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

// assertCounters checks that the free counters match the bitmaps.
func assertCounters(t *testing.T, v *Volume) {
	t.Helper()
	sb := v.Superblock()
	var blocks, inodes uint32
	for id := uint32(1); id <= sb.TotalBlocks(); id++ {
		used, err := sb.BlockUsed(id)
		require.NoError(t, err)
		if used {
			blocks++
		}
	}
	for id := uint32(1); id <= sb.TotalInodes(); id++ {
		used, err := sb.InodeUsed(id)
		require.NoError(t, err)
		if used {
			inodes++
		}
	}
	assert.Equal(t, sb.TotalBlocks()-blocks, sb.FreeBlocks(), "free blocks")
	assert.Equal(t, sb.TotalInodes()-inodes, sb.FreeInodes(), "free inodes")
}

func TestFormatLayout(t *testing.T) {
	v, mem := setupVolume(t, smallParams)
	sb := v.Superblock()

	assert.Equal(t, Magic, sb.Magic())
	assert.Equal(t, int64(22+8+2), sb.Size())
	assert.Equal(t, int64(BootOffset+32), sb.DataOffset())
	assert.Equal(t, uint32(64-11), sb.FreeBlocks())
	assert.Equal(t, uint32(15), sb.FreeInodes())
	assertCounters(t, v)

	info, err := mem.Stat(imageName)
	require.NoError(t, err)
	assert.Equal(t, sb.ImageSize(), info.Size())

	r := root(t, v)
	assert.Equal(t, uint32(1), r.Inode.LinksCount)
	assert.Equal(t, uint32(DirEntrySize), r.Inode.FileSize)
	assert.Equal(t, []uint32{9, 10, 11}, r.Inode.Blocks[:3])
	assert.Equal(t, []string{"."}, names(t, v, r))
}

func TestFormatRejectsBadGeometry(t *testing.T) {
	for _, p := range []Params{
		{BlockSize: 130, TotalBlocks: 64, TotalInodes: 16},
		{BlockSize: 8, TotalBlocks: 64, TotalInodes: 16},
		{BlockSize: 128, TotalBlocks: 64, TotalInodes: 0},
		{BlockSize: 128, TotalBlocks: 8, TotalInodes: 16},
	} {
		assert.ErrorIs(t, p.Validate(), fs.ErrInvalid, "%+v", p)
	}
	assert.NoError(t, DefaultParams().Validate())
}

func TestOpenReloadsState(t *testing.T) {
	v, mem := setupVolume(t, smallParams)
	foo, err := v.CreateEntry(root(t, v), "foo", FileTypeFile)
	require.NoError(t, err)
	require.NoError(t, v.ReplaceContents(foo, []byte("persisted")))
	free := v.Superblock().FreeBlocks()
	require.NoError(t, v.Close())

	dev, err := disk.Open(mem, imageName)
	require.NoError(t, err)
	reopened, err := Open(dev)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, free, reopened.Superblock().FreeBlocks())
	got, err := reopened.ResolvePath(nil, "/foo")
	require.NoError(t, err)
	data, err := reopened.LoadContents(got)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}

func TestLoadSuperblockRejectsCorruption(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		v, _ := setupVolume(t, smallParams)
		require.NoError(t, v.dev.WriteAt([]byte{0x00, 0x00}, BootOffset))
		_, err := LoadSuperblock(v.dev)
		assert.ErrorIs(t, err, fs.ErrCorrupt)
	})

	t.Run("free counter mismatch", func(t *testing.T) {
		v, _ := setupVolume(t, smallParams)
		// free_blocks lives after magic, total_blocks and total_inodes.
		require.NoError(t, v.dev.WriteAt([]byte{0x01, 0, 0, 0}, BootOffset+10))
		_, err := LoadSuperblock(v.dev)
		assert.ErrorIs(t, err, fs.ErrCorrupt)
	})
}

func TestSuperblockBitOrder(t *testing.T) {
	sb := NewSuperblock(Magic, 16, 8, 128)
	require.NoError(t, sb.SetBlockUse(1, true))
	require.NoError(t, sb.SetBlockUse(8, true))
	require.NoError(t, sb.SetBlockUse(10, true))
	require.NoError(t, sb.SetInodeUse(3, true))

	raw, err := sb.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, int(sb.Size()))
	assert.Equal(t, []byte{0x81, 0x40}, raw[headerSize:headerSize+2])
	assert.Equal(t, byte(0x20), raw[headerSize+2])
}

func TestSuperblockSetUseIsIdempotent(t *testing.T) {
	sb := NewSuperblock(Magic, 16, 8, 128)
	require.NoError(t, sb.SetBlockUse(5, true))
	require.NoError(t, sb.SetBlockUse(5, true))
	assert.Equal(t, uint32(15), sb.FreeBlocks())
	require.NoError(t, sb.SetBlockUse(5, false))
	require.NoError(t, sb.SetBlockUse(5, false))
	assert.Equal(t, uint32(16), sb.FreeBlocks())

	require.NoError(t, sb.SetInodeUse(8, true))
	used, err := sb.InodeUsed(8)
	require.NoError(t, err)
	assert.True(t, used)
	assert.Equal(t, uint32(7), sb.FreeInodes())
}

func TestSuperblockRejectsInvalidIDs(t *testing.T) {
	sb := NewSuperblock(Magic, 16, 8, 128)
	assert.ErrorIs(t, sb.SetBlockUse(0, true), fs.ErrInvalidID)
	assert.ErrorIs(t, sb.SetBlockUse(17, true), fs.ErrInvalidID)
	assert.ErrorIs(t, sb.SetInodeUse(9, true), fs.ErrInvalidID)
	_, err := sb.BlockUsed(0)
	assert.ErrorIs(t, err, fs.ErrInvalidID)
	assert.Equal(t, uint32(16), sb.FreeBlocks())
}

func TestFindUnusedReturnsLowestIDs(t *testing.T) {
	sb := NewSuperblock(Magic, 10, 4, 128)
	for _, id := range []uint32{1, 3, 4, 7} {
		require.NoError(t, sb.SetBlockUse(id, true))
	}
	ids, err := sb.FindUnusedBlocks(3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 5, 6}, ids)

	ids, err = sb.FindUnusedBlocks(6)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 5, 6, 8, 9, 10}, ids)

	_, err = sb.FindUnusedBlocks(7)
	assert.ErrorIs(t, err, fs.ErrNoSpace)

	require.NoError(t, sb.SetInodeUse(1, true))
	inodes, err := sb.FindUnusedInodes(2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3}, inodes)
}

func TestInodeTableRoundTrip(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	ino := Inode{FileSize: 300, LinksCount: 2}
	ino.Blocks[0] = 20
	ino.Blocks[DoubleIndirectSlot] = 40
	require.NoError(t, v.WriteInode(16, &ino))

	got, err := v.ReadInode(16)
	require.NoError(t, err)
	assert.Equal(t, ino, got)

	_, err = v.ReadInode(0)
	assert.ErrorIs(t, err, fs.ErrInvalidID)
	assert.ErrorIs(t, v.WriteInode(17, &ino), fs.ErrInvalidID)
}

func TestContentRoundTrip(t *testing.T) {
	// 64-byte blocks hold 16 pointers: 12 direct, 16 indirect, 256 through
	// the double-indirect block.
	p := Params{BlockSize: 64, TotalBlocks: 512, TotalInodes: 16}
	bs := int(p.BlockSize)
	for _, size := range []int{0, 1, bs - 1, bs, 12 * bs, 12*bs + 1, 28 * bs, 28*bs + 1, 60*bs + 7} {
		v, _ := setupVolume(t, p)
		f, err := v.CreateEntry(root(t, v), "data", FileTypeFile)
		require.NoError(t, err)

		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i*7 + size)
		}
		require.NoError(t, v.ReplaceContents(f, data), "size %d", size)
		got, err := v.LoadContents(f)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, got), "size %d", size)
		assertCounters(t, v)

		ids, err := v.ResolveBlockIDs(&f.Inode)
		require.NoError(t, err)
		assert.Len(t, ids, (size+bs-1)/bs)
		assert.GreaterOrEqual(t, len(ids)*bs, int(f.Inode.FileSize))
	}
}

func TestIndirectBoundary(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	bs := int(smallParams.BlockSize)
	f, err := v.CreateEntry(root(t, v), "big", FileTypeFile)
	require.NoError(t, err)
	before := v.Superblock().FreeBlocks()

	require.NoError(t, v.ReplaceContents(f, make([]byte, 12*bs)))
	assert.Zero(t, f.Inode.Blocks[IndirectSlot])
	assert.Equal(t, before-12, v.Superblock().FreeBlocks())

	require.NoError(t, v.ReplaceContents(f, make([]byte, 12*bs+1)))
	assert.NotZero(t, f.Inode.Blocks[IndirectSlot])
	assert.Zero(t, f.Inode.Blocks[DoubleIndirectSlot])
	assert.Equal(t, before-14, v.Superblock().FreeBlocks())
	assertCounters(t, v)
}

func TestReplaceContentsOutOfSpaceRestores(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	f, err := v.CreateEntry(root(t, v), "f", FileTypeFile)
	require.NoError(t, err)
	require.NoError(t, v.ReplaceContents(f, []byte("keep me")))
	saved := f.Inode
	free := v.Superblock().FreeBlocks()

	err = v.ReplaceContents(f, make([]byte, 64*128))
	assert.ErrorIs(t, err, fs.ErrNoSpace)
	assert.Equal(t, saved, f.Inode)
	assert.Equal(t, free, v.Superblock().FreeBlocks())
	assertCounters(t, v)

	got, err := v.LoadContents(f)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))
}

func TestAssignBlockIDs(t *testing.T) {
	t.Run("rejects a block already in use", func(t *testing.T) {
		v, _ := setupVolume(t, smallParams)
		var ino Inode
		err := v.AssignBlockIDs(&ino, []uint32{20, 9})
		assert.ErrorIs(t, err, fs.ErrInvalidID)
		assert.Equal(t, Inode{}, ino)
		used, err := v.Superblock().BlockUsed(20)
		require.NoError(t, err)
		assert.False(t, used)
	})

	t.Run("replaces a stale indirect block", func(t *testing.T) {
		v, _ := setupVolume(t, smallParams)
		ids, err := v.Superblock().FindUnusedBlocks(13)
		require.NoError(t, err)
		var ino Inode
		require.NoError(t, v.AssignBlockIDs(&ino, ids))
		stale := ino.Blocks[IndirectSlot]
		require.NotZero(t, stale)

		// Freeing the pointer block cuts the list after the direct slots.
		require.NoError(t, v.Superblock().SetBlockUse(stale, false))
		resolved, err := v.ResolveBlockIDs(&ino)
		require.NoError(t, err)
		assert.Equal(t, ids[:12], resolved)
		require.NoError(t, v.Superblock().SetBlockUse(ids[12], false))

		// Leave garbage behind in the freed block. A replacement must start
		// from zeroed pointers even if it lands on the same id.
		garbage := make([]uint32, v.Superblock().PointersPerBlock())
		for i := range garbage {
			garbage[i] = 60
		}
		require.NoError(t, v.writePointers(stale, garbage))

		more, err := v.Superblock().FindUnusedBlocks(1)
		require.NoError(t, err)
		require.NoError(t, v.AssignBlockIDs(&ino, more))

		indirect := ino.Blocks[IndirectSlot]
		require.NotZero(t, indirect)
		used, err := v.Superblock().BlockUsed(indirect)
		require.NoError(t, err)
		assert.True(t, used)
		ptrs, err := v.readPointers(indirect)
		require.NoError(t, err)
		want := make([]uint32, v.Superblock().PointersPerBlock())
		copy(want, more)
		assert.Equal(t, want, ptrs)

		resolved, err = v.ResolveBlockIDs(&ino)
		require.NoError(t, err)
		assert.Equal(t, append(ids[:12:12], more...), resolved)
		assertCounters(t, v)
	})

	t.Run("overflow", func(t *testing.T) {
		// 16-byte blocks address 12 + 4 + 16 blocks.
		v, _ := setupVolume(t, Params{BlockSize: 16, TotalBlocks: 128, TotalInodes: 1})
		assert.Equal(t, 32, v.MaxFileBlocks())
		ids, err := v.Superblock().FindUnusedBlocks(33)
		require.NoError(t, err)
		var ino Inode
		assert.ErrorIs(t, v.AssignBlockIDs(&ino, ids), fs.ErrFileTooLarge)

		require.NoError(t, v.AssignBlockIDs(&ino, ids[:32]))
		resolved, err := v.ResolveBlockIDs(&ino)
		require.NoError(t, err)
		assert.Len(t, resolved, 32)
		assertCounters(t, v)
	})

	t.Run("appends across calls", func(t *testing.T) {
		v, _ := setupVolume(t, Params{BlockSize: 16, TotalBlocks: 128, TotalInodes: 1})
		var ino Inode
		var all []uint32
		for _, n := range []int{5, 9, 3, 7} {
			ids, err := v.Superblock().FindUnusedBlocks(n)
			require.NoError(t, err)
			require.NoError(t, v.AssignBlockIDs(&ino, ids))
			all = append(all, ids...)
		}
		resolved, err := v.ResolveBlockIDs(&ino)
		require.NoError(t, err)
		assert.Equal(t, all, resolved)
		assertCounters(t, v)

		free := v.Superblock().FreeBlocks()
		require.NoError(t, v.ReleaseAllBlockIDs(&ino))
		assert.Equal(t, [InodeBlockCount]uint32{}, ino.Blocks)
		// 24 data blocks, the indirect block, the double-indirect block and
		// two indirect blocks under it.
		assert.Equal(t, free+24+4, v.Superblock().FreeBlocks())
		assertCounters(t, v)
	})
}

func TestTruncate(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	f, err := v.CreateEntry(root(t, v), "f", FileTypeFile)
	require.NoError(t, err)
	require.NoError(t, v.ReplaceContents(f, []byte("hello world")))

	require.NoError(t, v.Truncate(f, 5))
	got, err := v.LoadContents(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, v.Truncate(f, 8))
	got, err = v.LoadContents(f)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\x00\x00\x00"), got)

	assert.ErrorIs(t, v.Truncate(f, -1), fs.ErrInvalid)
}

func TestResolvePath(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	r := root(t, v)
	a, err := v.CreateEntry(r, "a", FileTypeDirectory)
	require.NoError(t, err)
	b, err := v.CreateEntry(a, "b", FileTypeDirectory)
	require.NoError(t, err)
	_, err = v.CreateEntry(b, "file", FileTypeFile)
	require.NoError(t, err)

	ab, err := v.ResolvePath(r, "/a/b")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", ab.Path)
	assert.Equal(t, b.InodeID, ab.InodeID)

	same, err := v.ResolvePath(ab, ".")
	require.NoError(t, err)
	assert.Equal(t, ab, same)

	up, err := v.ResolvePath(ab, "..")
	require.NoError(t, err)
	assert.Equal(t, "/a", up.Path)
	assert.Equal(t, a.InodeID, up.InodeID)

	top, err := v.ResolvePath(ab, "../../..")
	require.NoError(t, err)
	assert.Equal(t, "/", top.Path)
	assert.Equal(t, RootInode, top.InodeID)

	rel, err := v.ResolvePath(up, "b//file")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/file", rel.Path)
	assert.False(t, rel.IsDir())

	_, err = v.ResolvePath(r, "/a/missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = v.ResolvePath(r, "/a/b/file/x")
	assert.ErrorIs(t, err, fs.ErrNotDir)
}

func TestCreateEntry(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	r := root(t, v)

	dir, err := v.CreateEntry(r, "dir", FileTypeDirectory)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), dir.InodeID)
	assert.Equal(t, uint32(2), dir.Inode.LinksCount)
	assert.Equal(t, uint32(2), r.Inode.LinksCount)
	assert.Equal(t, []string{".", ".."}, names(t, v, dir))

	file, err := v.CreateEntry(dir, "file", FileTypeFile)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), file.Inode.LinksCount)
	assert.Equal(t, uint32(2), dir.Inode.LinksCount)
	assert.Equal(t, "/dir/file", file.Path)

	ondisk, err := v.ReadInode(RootInode)
	require.NoError(t, err)
	assert.Equal(t, r.Inode, ondisk)
	assertCounters(t, v)
}

func TestCreateEntryErrors(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	r := root(t, v)
	f, err := v.CreateEntry(r, "foo", FileTypeFile)
	require.NoError(t, err)

	_, err = v.CreateEntry(r, "foo", FileTypeDirectory)
	assert.ErrorIs(t, err, fs.ErrExist)
	assert.Equal(t, []string{".", "foo"}, names(t, v, r))

	for _, name := range []string{"", ".", "..", "a/b", string(make([]byte, 256))} {
		_, err = v.CreateEntry(r, name, FileTypeFile)
		assert.ErrorIs(t, err, fs.ErrInvalidName, "%q", name)
	}
	_, err = v.CreateEntry(r, string(bytes.Repeat([]byte("n"), MaxNameLen)), FileTypeFile)
	assert.NoError(t, err)

	_, err = v.CreateEntry(f, "child", FileTypeFile)
	assert.ErrorIs(t, err, fs.ErrNotDir)
}

func TestCreateEntryOutOfInodesRestores(t *testing.T) {
	v, _ := setupVolume(t, Params{BlockSize: 128, TotalBlocks: 64, TotalInodes: 2})
	r := root(t, v)
	_, err := v.CreateEntry(r, "one", FileTypeFile)
	require.NoError(t, err)
	saved := r.Inode
	free := v.Superblock().FreeBlocks()

	_, err = v.CreateEntry(r, "two", FileTypeFile)
	assert.ErrorIs(t, err, fs.ErrNoSpace)
	assert.Equal(t, saved, r.Inode)
	assert.Equal(t, free, v.Superblock().FreeBlocks())
	assert.Equal(t, []string{".", "one"}, names(t, v, r))
}

func TestCreateDirectoryOutOfSpaceRestoresDisk(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	r := root(t, v)
	big, err := v.CreateEntry(r, "big", FileTypeFile)
	require.NoError(t, err)
	// 44 data blocks and one indirect block leave 6 free: enough for the
	// new directory's 5 blocks but not for the root growing from 5 to 7.
	require.NoError(t, v.ReplaceContents(big, make([]byte, 44*128)))
	require.Equal(t, uint32(6), v.Superblock().FreeBlocks())
	want, err := v.Superblock().MarshalBinary()
	require.NoError(t, err)

	_, err = v.CreateEntry(r, "d", FileTypeDirectory)
	assert.ErrorIs(t, err, fs.ErrNoSpace)
	assert.Equal(t, uint32(6), v.Superblock().FreeBlocks())
	assert.Equal(t, uint32(14), v.Superblock().FreeInodes())

	ondisk, err := LoadSuperblock(v.dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), ondisk.FreeBlocks())
	assert.Equal(t, uint32(14), ondisk.FreeInodes())
	got, err := ondisk.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{".", "big"}, names(t, v, r))
}

func TestEndToEnd(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	r := root(t, v)

	foo, err := v.CreateEntry(r, "foo", FileTypeFile)
	require.NoError(t, err)
	require.NoError(t, v.ReplaceContents(foo, []byte("hello")))
	got, err := v.LoadContents(foo)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	block := foo.Inode.Blocks[0]
	used, err := v.Superblock().BlockUsed(block)
	require.NoError(t, err)
	require.True(t, used)

	require.NoError(t, v.RemoveEntry(r, "foo"))
	ino, err := v.ReadInode(foo.InodeID)
	require.NoError(t, err)
	assert.Zero(t, ino.LinksCount)
	used, err = v.Superblock().BlockUsed(block)
	require.NoError(t, err)
	assert.False(t, used)
	used, err = v.Superblock().InodeUsed(foo.InodeID)
	require.NoError(t, err)
	assert.False(t, used)
	assert.Equal(t, uint32(64-11), v.Superblock().FreeBlocks())
	assertCounters(t, v)
}

func TestRemoveEntryRecursive(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	r := root(t, v)
	freeBlocks, freeInodes := v.Superblock().FreeBlocks(), v.Superblock().FreeInodes()

	a, err := v.CreateEntry(r, "a", FileTypeDirectory)
	require.NoError(t, err)
	b, err := v.CreateEntry(a, "b", FileTypeDirectory)
	require.NoError(t, err)
	c, err := v.CreateEntry(b, "c", FileTypeDirectory)
	require.NoError(t, err)
	f, err := v.CreateEntry(c, "notes", FileTypeFile)
	require.NoError(t, err)
	require.NoError(t, v.ReplaceContents(f, bytes.Repeat([]byte("x"), 300)))
	_, err = v.CreateEntry(a, "sibling", FileTypeFile)
	require.NoError(t, err)

	require.NoError(t, v.RemoveEntry(r, "a"))
	assert.Equal(t, freeBlocks, v.Superblock().FreeBlocks())
	assert.Equal(t, freeInodes, v.Superblock().FreeInodes())
	assert.Equal(t, uint32(1), r.Inode.LinksCount)
	assert.Equal(t, []string{"."}, names(t, v, r))
	assertCounters(t, v)

	_, err = v.ResolvePath(r, "/a")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

// faultyFS fails every write that overlaps a byte range once armed.
type faultyFS struct {
	billy.Filesystem
	fault *faultRange
}

type faultRange struct {
	armed      bool
	start, end int64
}

func (f *faultyFS) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	file, err := f.Filesystem.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fault: f.fault}, nil
}

type faultyFile struct {
	billy.File
	fault *faultRange
	pos   int64
}

var errInjected = errors.New("injected write failure")

func (f *faultyFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.File.Seek(offset, whence)
	f.pos = pos
	return pos, err
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.fault.armed && f.pos < f.fault.end && f.pos+int64(len(p)) > f.fault.start {
		return 0, errInjected
	}
	n, err := f.File.Write(p)
	f.pos += int64(n)
	return n, err
}

func TestRemoveEntryPartialFailureKeepsRemovedSubtrees(t *testing.T) {
	fault := &faultRange{}
	dev, err := disk.Create(&faultyFS{Filesystem: memfs.New(), fault: fault}, imageName, 0)
	require.NoError(t, err)
	v, err := Format(dev, Params{BlockSize: 128, TotalBlocks: 128, TotalInodes: 16})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	r := root(t, v)

	a, err := v.CreateEntry(r, "a", FileTypeDirectory)
	require.NoError(t, err)
	early, err := v.CreateEntry(a, "early", FileTypeDirectory)
	require.NoError(t, err)
	earlyFile, err := v.CreateEntry(early, "x", FileTypeFile)
	require.NoError(t, err)
	require.NoError(t, v.ReplaceContents(earlyFile, []byte("gone")))
	late, err := v.CreateEntry(a, "late", FileTypeDirectory)
	require.NoError(t, err)
	lateFile, err := v.CreateEntry(late, "y", FileTypeFile)
	require.NoError(t, err)
	require.NoError(t, v.ReplaceContents(lateFile, []byte("stays")))

	// Fail the write that frees the inode record of late/y. "early" comes
	// before "late" in a's entries, so its subtree is already gone by then.
	fault.start = v.Superblock().DataOffset() + int64(lateFile.InodeID-1)*InodeSize
	fault.end = fault.start + InodeSize
	fault.armed = true

	err = v.RemoveEntry(r, "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrIO)
	assert.Contains(t, err.Error(), errInjected.Error())
	fault.armed = false

	assert.Equal(t, []string{"."}, names(t, v, r))
	for _, id := range []uint32{early.InodeID, earlyFile.InodeID} {
		used, err := v.Superblock().InodeUsed(id)
		require.NoError(t, err)
		assert.False(t, used, "inode %d", id)
	}
	for _, id := range earlyFile.Inode.Blocks[:1] {
		used, err := v.Superblock().BlockUsed(id)
		require.NoError(t, err)
		assert.False(t, used, "block %d", id)
	}
	used, err := v.Superblock().InodeUsed(lateFile.InodeID)
	require.NoError(t, err)
	assert.True(t, used, "the failed step keeps its inode")
	assertCounters(t, v)
}

func TestRemoveEntrySwapsLast(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	r := root(t, v)
	for _, name := range []string{"a", "b", "c"} {
		_, err := v.CreateEntry(r, name, FileTypeFile)
		require.NoError(t, err)
	}
	require.NoError(t, v.RemoveEntry(r, "a"))
	assert.Equal(t, []string{".", "c", "b"}, names(t, v, r))
}

func TestRemoveEntryErrors(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	r := root(t, v)
	assert.ErrorIs(t, v.RemoveEntry(r, "."), fs.ErrInvalidName)
	assert.ErrorIs(t, v.RemoveEntry(r, ".."), fs.ErrInvalidName)
	assert.ErrorIs(t, v.RemoveEntry(r, "ghost"), fs.ErrNotExist)
	assert.Equal(t, []string{"."}, names(t, v, r))
}

func TestStat(t *testing.T) {
	v, _ := setupVolume(t, smallParams)
	f, err := v.CreateEntry(root(t, v), "f", FileTypeFile)
	require.NoError(t, err)
	require.NoError(t, v.ReplaceContents(f, make([]byte, 200)))

	info := v.Stat(f)
	assert.Equal(t, int64(200), info.Size)
	assert.Equal(t, uint64(2), info.Blocks)
	assert.Equal(t, f.InodeID, info.Inode)
	assert.False(t, info.IsDir())

	st := v.StatFS()
	assert.Equal(t, uint64(64*128), st.TotalBytes)
	assert.Equal(t, uint64(v.Superblock().FreeBlocks())*128, st.FreeBytes)
	assert.Equal(t, uint64(16), st.TotalFiles)
	assert.Equal(t, uint32(MaxNameLen), st.NameMaxLength)
}
