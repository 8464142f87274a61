// Package server serves an fs.FileSystem over gRPC
package server

import (
	"context"
	"fmt"
	"net"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"github.com/example/ext2fs/pkg/api"
	"github.com/example/ext2fs/pkg/fs"
	"github.com/example/ext2fs/pkg/rpc"
)

// FileServer implements the FileService
type FileServer struct {
	api.UnimplementedFileServiceServer

	// Configuration
	config *Config

	// The underlying filesystem implementation
	fileSystem fs.FileSystem

	log logrus.FieldLogger

	// Worker pool for limiting concurrent requests
	workerPool chan struct{}

	grpcServer *grpc.Server
}

// NewFileServer creates a new file server
func NewFileServer(config *Config, fileSystem fs.FileSystem, log logrus.FieldLogger) (*FileServer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &FileServer{
		config:     config,
		fileSystem: fileSystem,
		log:        log,
		workerPool: make(chan struct{}, config.MaxConcurrent),
		grpcServer: grpc.NewServer(),
	}
	api.RegisterFileServiceServer(s.grpcServer, s)
	return s, nil
}

// Serve accepts connections on lis until Stop is called. The listener is
// capped at MaxConnections open connections.
func (s *FileServer) Serve(lis net.Listener) error {
	if s.config.MaxConnections > 0 {
		lis = netutil.LimitListener(lis, s.config.MaxConnections)
	}

	s.log.WithField("address", lis.Addr().String()).Info("file server starting")
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves
func (s *FileServer) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Stop waits for in-flight requests and shuts the server down
func (s *FileServer) Stop() {
	s.grpcServer.GracefulStop()
}

// acquireWorker gets a worker from the pool or times out
func (s *FileServer) acquireWorker(ctx context.Context) error {
	select {
	case s.workerPool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseWorker returns a worker to the pool
func (s *FileServer) releaseWorker() {
	<-s.workerPool
}

// process handles common request processing: request id, logging, the
// request timeout, the worker pool, and conversion of errors to statuses.
func process[T any](s *FileServer, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	reqID := uuid.NewString()
	clientAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		clientAddr = p.Addr.String()
	}

	rpc.LogRequest(s.log, op, reqID, clientAddr)
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.config.RequestTimeout)*time.Second)
	defer cancel()

	var result T
	err := s.acquireWorker(ctx)
	if err == nil {
		result, err = fn(ctx)
		s.releaseWorker()
	}

	if err != nil {
		rpc.LogError(s.log, op, reqID, err)
	}
	rpc.LogResponse(s.log, op, reqID, rpc.Code(err), time.Since(startTime))
	return result, rpc.Status(err)
}

// attrs returns the attributes of p.
func (s *FileServer) attrs(ctx context.Context, p string) (*api.FileAttributes, error) {
	info, err := s.fileSystem.GetAttr(ctx, p)
	if err != nil {
		return nil, err
	}
	return rpc.FSInfoToProtoAttributes(info), nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fs.Errorf("name", fs.ErrInvalidName, "%q", name)
	}
	return nil
}

// GetRootHandle returns the handle of the root directory
func (s *FileServer) GetRootHandle(ctx context.Context, req *api.GetRootHandleRequest) (*api.GetRootHandleResponse, error) {
	return process(s, ctx, "GetRootHandle", func(ctx context.Context) (*api.GetRootHandleResponse, error) {
		handle, err := s.fileSystem.PathToFileHandle("/")
		if err != nil {
			return nil, err
		}
		attrs, err := s.attrs(ctx, "/")
		if err != nil {
			return nil, err
		}
		return &api.GetRootHandleResponse{FileHandle: handle, Attributes: attrs}, nil
	})
}

// GetAttr implements the GetAttr RPC method
func (s *FileServer) GetAttr(ctx context.Context, req *api.GetAttrRequest) (*api.GetAttrResponse, error) {
	return process(s, ctx, "GetAttr", func(ctx context.Context) (*api.GetAttrResponse, error) {
		p, err := s.fileSystem.FileHandleToPath(req.FileHandle)
		if err != nil {
			return nil, err
		}
		attrs, err := s.attrs(ctx, p)
		if err != nil {
			return nil, err
		}
		return &api.GetAttrResponse{Attributes: attrs}, nil
	})
}

// Lookup implements the Lookup RPC method
func (s *FileServer) Lookup(ctx context.Context, req *api.LookupRequest) (*api.LookupResponse, error) {
	return process(s, ctx, "Lookup", func(ctx context.Context) (*api.LookupResponse, error) {
		dirPath, err := s.fileSystem.FileHandleToPath(req.DirectoryHandle)
		if err != nil {
			return nil, err
		}
		targetPath, info, err := s.fileSystem.Lookup(ctx, dirPath, req.Name)
		if err != nil {
			return nil, err
		}
		fileHandle, err := s.fileSystem.PathToFileHandle(targetPath)
		if err != nil {
			return nil, err
		}

		resp := &api.LookupResponse{
			FileHandle: fileHandle,
			Attributes: rpc.FSInfoToProtoAttributes(info),
		}
		if dirPath != targetPath {
			// Directory attributes are optional; a failure here is not fatal.
			if dirAttrs, err := s.attrs(ctx, dirPath); err == nil {
				resp.DirAttributes = dirAttrs
			}
		}
		return resp, nil
	})
}

// Read implements the Read RPC method
func (s *FileServer) Read(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	return process(s, ctx, "Read", func(ctx context.Context) (*api.ReadResponse, error) {
		p, err := s.fileSystem.FileHandleToPath(req.FileHandle)
		if err != nil {
			return nil, err
		}

		// Limit read size
		count := min(int(req.Count), s.config.MaxReadSize)
		data, eof, err := s.fileSystem.Read(ctx, p, int64(req.Offset), count)
		if err != nil {
			return nil, err
		}
		attrs, err := s.attrs(ctx, p)
		if err != nil {
			return nil, err
		}
		return &api.ReadResponse{Data: data, Eof: eof, Attributes: attrs}, nil
	})
}

// Write implements the Write RPC method
func (s *FileServer) Write(ctx context.Context, req *api.WriteRequest) (*api.WriteResponse, error) {
	return process(s, ctx, "Write", func(ctx context.Context) (*api.WriteResponse, error) {
		p, err := s.fileSystem.FileHandleToPath(req.FileHandle)
		if err != nil {
			return nil, err
		}
		if len(req.Data) > s.config.MaxWriteSize {
			return nil, fs.Errorf("Write", fs.ErrFileTooLarge, "%d bytes in one write, at most %d", len(req.Data), s.config.MaxWriteSize)
		}

		n, err := s.fileSystem.Write(ctx, p, int64(req.Offset), req.Data)
		if err != nil {
			return nil, err
		}
		attrs, err := s.attrs(ctx, p)
		if err != nil {
			return nil, err
		}
		return &api.WriteResponse{Count: uint32(n), Attributes: attrs}, nil
	})
}

// Truncate implements the Truncate RPC method
func (s *FileServer) Truncate(ctx context.Context, req *api.TruncateRequest) (*api.TruncateResponse, error) {
	return process(s, ctx, "Truncate", func(ctx context.Context) (*api.TruncateResponse, error) {
		p, err := s.fileSystem.FileHandleToPath(req.FileHandle)
		if err != nil {
			return nil, err
		}
		info, err := s.fileSystem.Truncate(ctx, p, int64(req.Size))
		if err != nil {
			return nil, err
		}
		return &api.TruncateResponse{Attributes: rpc.FSInfoToProtoAttributes(info)}, nil
	})
}

// Create implements the Create RPC method
func (s *FileServer) Create(ctx context.Context, req *api.CreateRequest) (*api.CreateResponse, error) {
	return process(s, ctx, "Create", func(ctx context.Context) (*api.CreateResponse, error) {
		dirPath, err := s.fileSystem.FileHandleToPath(req.DirectoryHandle)
		if err != nil {
			return nil, err
		}
		if err := checkName(req.Name); err != nil {
			return nil, err
		}
		p, info, err := s.fileSystem.Create(ctx, dirPath, req.Name, req.Exclusive)
		if err != nil {
			return nil, err
		}
		handle, err := s.fileSystem.PathToFileHandle(p)
		if err != nil {
			return nil, err
		}
		return &api.CreateResponse{FileHandle: handle, Attributes: rpc.FSInfoToProtoAttributes(info)}, nil
	})
}

// Mkdir implements the Mkdir RPC method
func (s *FileServer) Mkdir(ctx context.Context, req *api.MkdirRequest) (*api.MkdirResponse, error) {
	return process(s, ctx, "Mkdir", func(ctx context.Context) (*api.MkdirResponse, error) {
		dirPath, err := s.fileSystem.FileHandleToPath(req.DirectoryHandle)
		if err != nil {
			return nil, err
		}
		if err := checkName(req.Name); err != nil {
			return nil, err
		}
		p, info, err := s.fileSystem.Mkdir(ctx, dirPath, req.Name)
		if err != nil {
			return nil, err
		}
		handle, err := s.fileSystem.PathToFileHandle(p)
		if err != nil {
			return nil, err
		}
		return &api.MkdirResponse{FileHandle: handle, Attributes: rpc.FSInfoToProtoAttributes(info)}, nil
	})
}

// Remove implements the Remove RPC method
func (s *FileServer) Remove(ctx context.Context, req *api.RemoveRequest) (*api.RemoveResponse, error) {
	return process(s, ctx, "Remove", func(ctx context.Context) (*api.RemoveResponse, error) {
		dirPath, err := s.fileSystem.FileHandleToPath(req.DirectoryHandle)
		if err != nil {
			return nil, err
		}
		if err := checkName(req.Name); err != nil {
			return nil, err
		}
		if err := s.fileSystem.Remove(ctx, path.Join(dirPath, req.Name)); err != nil {
			return nil, err
		}
		return &api.RemoveResponse{}, nil
	})
}

// ReadDir implements the ReadDir RPC method
func (s *FileServer) ReadDir(ctx context.Context, req *api.ReadDirRequest) (*api.ReadDirResponse, error) {
	return process(s, ctx, "ReadDir", func(ctx context.Context) (*api.ReadDirResponse, error) {
		dirPath, err := s.fileSystem.FileHandleToPath(req.DirectoryHandle)
		if err != nil {
			return nil, err
		}

		// Determine the maximum number of entries to return
		maxCount := int(req.Count)
		if maxCount <= 0 || maxCount > s.config.MaxReadDirCount {
			maxCount = s.config.MaxReadDirCount
		}

		entries, next, err := s.fileSystem.ReadDir(ctx, dirPath, int64(req.Cookie), maxCount)
		if err != nil {
			return nil, err
		}
		protoEntries := make([]*api.DirEntry, len(entries))
		for i, entry := range entries {
			protoEntries[i] = rpc.DirEntryToProto(entry)
		}
		return &api.ReadDirResponse{
			Entries: protoEntries,
			Cookie:  uint64(next),
			Eof:     next == 0,
		}, nil
	})
}

// StatFS implements the StatFS RPC method
func (s *FileServer) StatFS(ctx context.Context, req *api.StatFSRequest) (*api.StatFSResponse, error) {
	return process(s, ctx, "StatFS", func(ctx context.Context) (*api.StatFSResponse, error) {
		st, err := s.fileSystem.StatFS(ctx)
		if err != nil {
			return nil, err
		}
		return rpc.FSStatToProto(st), nil
	})
}
