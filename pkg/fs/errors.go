// pkg/fs/errors.go
package fs

import (
	"errors"
	"fmt"
)

// Common filesystem errors. Every layer of the engine wraps one of these in an
// FSError so callers can match with errors.Is.
var (
	ErrNotExist      = errors.New("file does not exist")
	ErrExist         = errors.New("file already exists")
	ErrIO            = errors.New("input/output error")
	ErrIsDir         = errors.New("is a directory")
	ErrNotDir        = errors.New("not a directory")
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidID     = errors.New("invalid block or inode id")
	ErrInvalidHandle = errors.New("invalid file handle")
	ErrNoSpace       = errors.New("no space left on device")
	ErrFileTooLarge  = errors.New("file too large")
	ErrCorrupt       = errors.New("corrupt superblock")
	ErrShortBuffer   = errors.New("buffer does not match block list")
	ErrBadCookie     = errors.New("invalid directory cookie")
	ErrStale         = errors.New("stale file handle")
	ErrNotSupported  = errors.New("operation not supported")
	ErrInvalid       = errors.New("invalid argument")
)

// FSError represents a filesystem error with additional context.
type FSError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FSError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FSError) Unwrap() error {
	return e.Err
}

// NewError creates a new FSError.
func NewError(op, path string, err error) error {
	return &FSError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// Errorf wraps a sentinel with a formatted detail message while keeping it
// matchable through errors.Is.
func Errorf(op string, sentinel error, format string, args ...interface{}) error {
	return &FSError{
		Op:  op,
		Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// Reason returns the sentinel error wrapped by err, or nil if err does not
// carry one of the package sentinels.
func Reason(err error) error {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

var sentinels = []error{
	ErrNotExist, ErrExist, ErrIO, ErrIsDir, ErrNotDir, ErrInvalidName,
	ErrInvalidID, ErrInvalidHandle, ErrNoSpace, ErrFileTooLarge, ErrCorrupt,
	ErrShortBuffer, ErrBadCookie, ErrStale, ErrNotSupported, ErrInvalid,
}
