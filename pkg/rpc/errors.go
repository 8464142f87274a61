// Package rpc maps between the fs package and the FileService wire types:
// errors to gRPC statuses and back, attribute conversion, and request logging.
package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/ext2fs/pkg/fs"
)

// reason ties an fs sentinel to its wire name and gRPC code.
type reason struct {
	name string
	err  error
	code codes.Code
}

var reasons = []reason{
	{"NOT_EXIST", fs.ErrNotExist, codes.NotFound},
	{"EXIST", fs.ErrExist, codes.AlreadyExists},
	{"IO", fs.ErrIO, codes.Internal},
	{"IS_DIR", fs.ErrIsDir, codes.FailedPrecondition},
	{"NOT_DIR", fs.ErrNotDir, codes.FailedPrecondition},
	{"INVALID_NAME", fs.ErrInvalidName, codes.InvalidArgument},
	{"INVALID_ID", fs.ErrInvalidID, codes.InvalidArgument},
	{"INVALID_HANDLE", fs.ErrInvalidHandle, codes.InvalidArgument},
	{"NO_SPACE", fs.ErrNoSpace, codes.ResourceExhausted},
	{"FILE_TOO_LARGE", fs.ErrFileTooLarge, codes.OutOfRange},
	{"CORRUPT", fs.ErrCorrupt, codes.DataLoss},
	{"SHORT_BUFFER", fs.ErrShortBuffer, codes.Internal},
	{"BAD_COOKIE", fs.ErrBadCookie, codes.InvalidArgument},
	{"STALE", fs.ErrStale, codes.NotFound},
	{"NOT_SUPPORTED", fs.ErrNotSupported, codes.Unimplemented},
	{"INVALID", fs.ErrInvalid, codes.InvalidArgument},
}

// Code returns the gRPC code for err.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return codes.Unknown
}

// Status converts a filesystem error into a gRPC status error. When err wraps
// an fs sentinel the status carries a structpb detail with the sentinel name
// and, for an *fs.FSError, the failing op and path.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	st := status.New(Code(err), err.Error())
	fields := map[string]interface{}{}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			fields["reason"] = r.name
			break
		}
	}
	if len(fields) == 0 {
		return st.Err()
	}
	var fsErr *fs.FSError
	if errors.As(err, &fsErr) {
		fields["op"] = fsErr.Op
		fields["path"] = fsErr.Path
	}
	detail, derr := structpb.NewStruct(fields)
	if derr != nil {
		return st.Err()
	}
	if withDetail, derr := st.WithDetails(detail); derr == nil {
		st = withDetail
	}
	return st.Err()
}

// Error reverses Status: an error carrying a reason detail becomes an
// *fs.FSError wrapping the matching sentinel. Context codes become the
// context errors. Anything else is returned unchanged.
func Error(err error) error {
	s, ok := status.FromError(err)
	if err == nil || !ok {
		return err
	}
	for _, d := range s.Details() {
		detail, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := detail.GetFields()
		name := fields["reason"].GetStringValue()
		for _, r := range reasons {
			if r.name == name {
				return &fs.FSError{
					Op:   fields["op"].GetStringValue(),
					Path: fields["path"].GetStringValue(),
					Err:  r.err,
				}
			}
		}
	}
	switch s.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return err
}

// HasReason reports whether err carries an fs sentinel, either directly or as
// a status detail.
func HasReason(err error) bool {
	return fs.Reason(Error(err)) != nil
}
