package fuse

import (
	"context"
	"errors"
	"syscall"

	"bazil.org/fuse"

	"github.com/example/ext2fs/pkg/fs"
)

var errnos = []struct {
	err   error
	errno syscall.Errno
}{
	{fs.ErrNotExist, syscall.ENOENT},
	{fs.ErrExist, syscall.EEXIST},
	{fs.ErrIsDir, syscall.EISDIR},
	{fs.ErrNotDir, syscall.ENOTDIR},
	{fs.ErrInvalidName, syscall.EINVAL},
	{fs.ErrInvalid, syscall.EINVAL},
	{fs.ErrNoSpace, syscall.ENOSPC},
	{fs.ErrFileTooLarge, syscall.EFBIG},
	{fs.ErrStale, syscall.ESTALE},
	{fs.ErrInvalidHandle, syscall.ESTALE},
	{fs.ErrNotSupported, syscall.ENOTSUP},
	{context.Canceled, syscall.EINTR},
	{context.DeadlineExceeded, syscall.ETIMEDOUT},
}

// toErrno maps an error from the client to the errno returned to the kernel.
// Anything unrecognised is EIO.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return fuse.Errno(e.errno)
		}
	}
	return fuse.Errno(syscall.EIO)
}

func (f *FS) errno(op, p string, err error) error {
	errno := toErrno(err)
	entry := f.log.WithField("op", op).WithField("path", p).WithError(err)
	if errors.Is(errno, fuse.Errno(syscall.EIO)) {
		entry.Warn("operation failed")
	} else {
		entry.Debug("operation failed")
	}
	return errno
}
