// Package disk provides positioned block I/O against the single flat file
// backing a filesystem image.
package disk

import (
	"io"
	"os"

	"github.com/go-git/go-billy/v5"

	"github.com/example/ext2fs/pkg/fs"
)

const zeroChunk = 64 * 1024

// Device is a backing file opened for positioned reads and writes. It holds
// the file's advisory lock for as long as it is open; the engine assumes it is
// the only writer.
type Device struct {
	file billy.File
	name string
}

// Open opens an existing image for reading and writing.
func Open(filesystem billy.Filesystem, name string) (*Device, error) {
	f, err := filesystem.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, fs.NewError("open", name, err)
	}
	return lock(f, name)
}

// Create creates (or truncates) an image and fills it with size zero bytes.
func Create(filesystem billy.Filesystem, name string, size int64) (*Device, error) {
	f, err := filesystem.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fs.NewError("create", name, err)
	}
	d, err := lock(f, name)
	if err != nil {
		return nil, err
	}
	if err := d.Zero(size); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func lock(f billy.File, name string) (*Device, error) {
	if err := f.Lock(); err != nil {
		f.Close()
		return nil, fs.NewError("lock", name, err)
	}
	return &Device{file: f, name: name}, nil
}

// Name returns the name the device was opened with.
func (d *Device) Name() string {
	return d.name
}

// ReadAt fills p from offset off. A short read is an ErrIO.
func (d *Device) ReadAt(p []byte, off int64) error {
	n, err := d.file.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return fs.Errorf("read", fs.ErrIO, "%s: %d of %d bytes at offset %d: %v", d.name, n, len(p), off, err)
}

// WriteAt writes p at offset off. A failed seek or short write is an ErrIO.
func (d *Device) WriteAt(p []byte, off int64) error {
	if _, err := d.file.Seek(off, io.SeekStart); err != nil {
		return fs.Errorf("write", fs.ErrIO, "%s: seek to %d: %v", d.name, off, err)
	}
	n, err := d.file.Write(p)
	if n != len(p) || err != nil {
		return fs.Errorf("write", fs.ErrIO, "%s: %d of %d bytes at offset %d: %v", d.name, n, len(p), off, err)
	}
	return nil
}

// Zero overwrites the first size bytes of the device with zeros.
func (d *Device) Zero(size int64) error {
	chunk := make([]byte, zeroChunk)
	for off := int64(0); off < size; off += zeroChunk {
		n := size - off
		if n > zeroChunk {
			n = zeroChunk
		}
		if err := d.WriteAt(chunk[:n], off); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the lock and closes the backing file.
func (d *Device) Close() error {
	if err := d.file.Unlock(); err != nil {
		d.file.Close()
		return fs.NewError("unlock", d.name, err)
	}
	return d.file.Close()
}
