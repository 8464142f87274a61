// pkg/fs/image/image_fs.go
package image

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/ext2"
	"github.com/example/ext2fs/pkg/fs"
)

// ImageFileSystem implements fs.FileSystem on top of an ext2 image. The
// volume underneath is single-threaded, so every call holds one lock.
type ImageFileSystem struct {
	mu  sync.Mutex
	vol *ext2.Volume

	// fsID is a unique identifier for this filesystem instance
	fsID uint32

	// paths maps inode ids to the last path they were reached by
	paths map[uint32]string

	// generations tracks the generation number for each inode
	generations map[uint32]uint32

	log logrus.FieldLogger
}

// Option configures an ImageFileSystem.
type Option func(*ImageFileSystem)

// WithLogger sets the logger used by the filesystem and its volume.
func WithLogger(log logrus.FieldLogger) Option {
	return func(f *ImageFileSystem) {
		f.log = log
	}
}

// New wraps an open volume. name is used to derive the filesystem id.
func New(vol *ext2.Volume, name string, opts ...Option) *ImageFileSystem {
	f := &ImageFileSystem{
		vol:         vol,
		fsID:        generateFsID(name),
		paths:       map[uint32]string{ext2.RootInode: "/"},
		generations: make(map[uint32]uint32),
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open opens the image name on filesystem and wraps it.
func Open(filesystem billy.Filesystem, name string, opts ...Option) (*ImageFileSystem, error) {
	f := New(nil, name, opts...)
	dev, err := disk.Open(filesystem, name)
	if err != nil {
		return nil, err
	}
	vol, err := ext2.Open(dev, ext2.WithLogger(f.log))
	if err != nil {
		dev.Close()
		return nil, err
	}
	f.vol = vol
	return f, nil
}

// Close closes the underlying volume.
func (f *ImageFileSystem) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vol.Close()
}

// generateFsID creates a filesystem ID from a name
func generateFsID(name string) uint32 {
	var h uint32 = 0
	for _, c := range name {
		h = h*31 + uint32(c)
	}
	return h
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// resolve finds the file at p and remembers its inode for handle lookups.
func (f *ImageFileSystem) resolve(p string) (*ext2.File, error) {
	file, err := f.vol.ResolvePath(nil, cleanPath(p))
	if err != nil {
		return nil, err
	}
	f.paths[file.InodeID] = file.Path
	return file, nil
}

func (f *ImageFileSystem) generation(inode uint32) uint32 {
	if gen, ok := f.generations[inode]; ok {
		return gen
	}
	f.generations[inode] = 1
	return 1
}

// forget drops every remembered path at or below p and bumps the generation
// of its inode so outstanding handles go stale.
func (f *ImageFileSystem) forget(p string) {
	for inode, known := range f.paths {
		if known == p || strings.HasPrefix(known, p+"/") {
			delete(f.paths, inode)
			f.generations[inode] = f.generation(inode) + 1
		}
	}
}

func (f *ImageFileSystem) lockCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	return nil
}

// GetAttr retrieves attributes for the file at the specified path.
func (f *ImageFileSystem) GetAttr(ctx context.Context, p string) (fs.FileInfo, error) {
	if err := f.lockCtx(ctx); err != nil {
		return fs.FileInfo{}, err
	}
	defer f.mu.Unlock()

	file, err := f.resolve(p)
	if err != nil {
		return fs.FileInfo{}, err
	}
	return f.vol.Stat(file), nil
}

// Lookup finds a file by name within a directory.
func (f *ImageFileSystem) Lookup(ctx context.Context, dir string, name string) (string, fs.FileInfo, error) {
	if err := f.lockCtx(ctx); err != nil {
		return "", fs.FileInfo{}, err
	}
	defer f.mu.Unlock()

	if name == "" || strings.Contains(name, "/") {
		return "", fs.FileInfo{}, fs.NewError("Lookup", dir, fs.ErrInvalidName)
	}
	parent, err := f.resolve(dir)
	if err != nil {
		return "", fs.FileInfo{}, err
	}
	if !parent.IsDir() {
		return "", fs.FileInfo{}, fs.NewError("Lookup", parent.Path, fs.ErrNotDir)
	}
	file, err := f.vol.ResolvePath(parent, name)
	if err != nil {
		return "", fs.FileInfo{}, err
	}
	f.paths[file.InodeID] = file.Path
	return file.Path, f.vol.Stat(file), nil
}

// Read reads data from a file at the specified offset.
func (f *ImageFileSystem) Read(ctx context.Context, p string, offset int64, length int) ([]byte, bool, error) {
	if err := f.lockCtx(ctx); err != nil {
		return nil, false, err
	}
	defer f.mu.Unlock()

	if offset < 0 || length < 0 {
		return nil, false, fs.Errorf("Read", fs.ErrInvalid, "%s: offset %d length %d", p, offset, length)
	}
	file, err := f.resolve(p)
	if err != nil {
		return nil, false, err
	}
	if file.IsDir() {
		return nil, false, fs.NewError("Read", file.Path, fs.ErrIsDir)
	}
	data, err := f.vol.LoadContents(file)
	if err != nil {
		return nil, false, err
	}

	size := int64(len(data))
	if offset >= size {
		return []byte{}, true, nil
	}
	end := min(offset+int64(length), size)
	return data[offset:end], end >= size, nil
}

// Write writes data to a file at the specified offset. The whole content is
// rewritten.
func (f *ImageFileSystem) Write(ctx context.Context, p string, offset int64, data []byte) (int, error) {
	if err := f.lockCtx(ctx); err != nil {
		return 0, err
	}
	defer f.mu.Unlock()

	if offset < 0 {
		return 0, fs.Errorf("Write", fs.ErrInvalid, "%s: offset %d", p, offset)
	}
	file, err := f.resolve(p)
	if err != nil {
		return 0, err
	}
	if file.IsDir() {
		return 0, fs.NewError("Write", file.Path, fs.ErrIsDir)
	}
	content, err := f.vol.LoadContents(file)
	if err != nil {
		return 0, err
	}

	end := offset + int64(len(data))
	if end > int64(len(content)) {
		content = append(content, make([]byte, end-int64(len(content)))...)
	}
	copy(content[offset:], data)
	if err := f.vol.ReplaceContents(file, content); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Truncate sets the size of a file.
func (f *ImageFileSystem) Truncate(ctx context.Context, p string, size int64) (fs.FileInfo, error) {
	if err := f.lockCtx(ctx); err != nil {
		return fs.FileInfo{}, err
	}
	defer f.mu.Unlock()

	file, err := f.resolve(p)
	if err != nil {
		return fs.FileInfo{}, err
	}
	if file.IsDir() {
		return fs.FileInfo{}, fs.NewError("Truncate", file.Path, fs.ErrIsDir)
	}
	if err := f.vol.Truncate(file, size); err != nil {
		return fs.FileInfo{}, err
	}
	return f.vol.Stat(file), nil
}

// Create creates a new file in the specified directory.
func (f *ImageFileSystem) Create(ctx context.Context, dir string, name string, excl bool) (string, fs.FileInfo, error) {
	if err := f.lockCtx(ctx); err != nil {
		return "", fs.FileInfo{}, err
	}
	defer f.mu.Unlock()

	file, err := f.create(dir, name, ext2.FileTypeFile)
	if fs.Reason(err) == fs.ErrExist && !excl {
		file, err = f.resolve(path.Join(cleanPath(dir), name))
		if err == nil && file.IsDir() {
			err = fs.NewError("Create", file.Path, fs.ErrIsDir)
		}
	}
	if err != nil {
		return "", fs.FileInfo{}, err
	}
	return file.Path, f.vol.Stat(file), nil
}

// Mkdir creates a new directory.
func (f *ImageFileSystem) Mkdir(ctx context.Context, dir string, name string) (string, fs.FileInfo, error) {
	if err := f.lockCtx(ctx); err != nil {
		return "", fs.FileInfo{}, err
	}
	defer f.mu.Unlock()

	file, err := f.create(dir, name, ext2.FileTypeDirectory)
	if err != nil {
		return "", fs.FileInfo{}, err
	}
	return file.Path, f.vol.Stat(file), nil
}

func (f *ImageFileSystem) create(dir, name string, ft fs.FileType) (*ext2.File, error) {
	parent, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	file, err := f.vol.CreateEntry(parent, name, ft)
	if err != nil {
		return nil, err
	}
	f.paths[file.InodeID] = file.Path
	return file, nil
}

// Remove removes the specified file or directory tree.
func (f *ImageFileSystem) Remove(ctx context.Context, p string) error {
	if err := f.lockCtx(ctx); err != nil {
		return err
	}
	defer f.mu.Unlock()

	p = cleanPath(p)
	if p == "/" {
		return fs.Errorf("Remove", fs.ErrInvalid, "cannot remove the root directory")
	}
	parent, err := f.resolve(path.Dir(p))
	if err != nil {
		return err
	}
	err = f.vol.RemoveEntry(parent, path.Base(p))
	if err == nil || fs.Reason(err) != fs.ErrNotExist {
		// A failed recursive removal may still have freed part of the tree.
		f.forget(p)
	}
	return err
}

// ReadDir reads the contents of a directory, without "." and "..". The
// cookie of an entry is its position plus one.
func (f *ImageFileSystem) ReadDir(ctx context.Context, dir string, cookie int64, count int) ([]fs.DirEntry, int64, error) {
	if err := f.lockCtx(ctx); err != nil {
		return nil, 0, err
	}
	defer f.mu.Unlock()

	file, err := f.resolve(dir)
	if err != nil {
		return nil, 0, err
	}
	raw, err := f.vol.ReadDir(file)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]fs.DirEntry, 0, len(raw))
	for _, e := range raw {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entries = append(entries, fs.DirEntry{
			Name:   e.Name,
			FileId: e.InodeID,
			Type:   e.Type,
			Cookie: int64(len(entries) + 1),
		})
	}

	if cookie < 0 || cookie > int64(len(entries)) {
		return nil, 0, fs.Errorf("ReadDir", fs.ErrBadCookie, "%s: cookie %d of %d entries", file.Path, cookie, len(entries))
	}
	entries = entries[cookie:]
	if count <= 0 || count >= len(entries) {
		return entries, 0, nil
	}
	entries = entries[:count]
	return entries, entries[count-1].Cookie, nil
}

// StatFS retrieves file system statistics.
func (f *ImageFileSystem) StatFS(ctx context.Context) (fs.FSStat, error) {
	if err := f.lockCtx(ctx); err != nil {
		return fs.FSStat{}, err
	}
	defer f.mu.Unlock()
	return f.vol.StatFS(), nil
}

// FileHandleToPath converts a file handle to a file system path.
func (f *ImageFileSystem) FileHandleToPath(fh []byte) (string, error) {
	handle, err := fs.DeserializeFileHandle(fh)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Verify it's for our filesystem
	if handle.FileSystemID != f.fsID {
		return "", fs.NewError("FileHandleToPath", "", fs.ErrInvalidHandle)
	}
	p, ok := f.paths[handle.Inode]
	if !ok || f.generation(handle.Inode) != handle.Generation {
		return "", fs.NewError("FileHandleToPath", handle.String(), fs.ErrStale)
	}
	return p, nil
}

// PathToFileHandle converts a file system path to a file handle.
func (f *ImageFileSystem) PathToFileHandle(p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	handle := &fs.FileHandle{
		FileSystemID: f.fsID,
		Inode:        file.InodeID,
		Generation:   f.generation(file.InodeID),
	}
	return handle.Serialize(), nil
}
