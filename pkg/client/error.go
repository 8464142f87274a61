package client

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/ext2fs/pkg/rpc"
)

// Common error types
var (
	ErrNoServer    = errors.New("no server connection")
	ErrInvalidPath = errors.New("invalid path")
)

// RemoteError represents a failed call to the file server. Err is the
// decoded cause, so errors.Is matches the fs sentinels.
type RemoteError struct {
	// Operation that failed
	Op string

	// gRPC status code
	Code codes.Code

	// Error message
	Message string

	// Underlying error
	Err error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %s (%s)", e.Op, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// wrapError converts a gRPC error into a *RemoteError. Errors that never
// reached the server pass through unchanged.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	return &RemoteError{
		Op:      op,
		Code:    s.Code(),
		Message: s.Message(),
		Err:     rpc.Error(err),
	}
}
