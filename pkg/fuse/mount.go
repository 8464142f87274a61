package fuse

import (
	"context"
	"fmt"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/example/ext2fs/pkg/client"
)

// MountOptions contains options for mounting the filesystem
type MountOptions struct {
	MountPoint   string
	ServerAddr   string
	ReadOnly     bool
	CacheTimeout time.Duration
	Debug        bool
}

// Mount connects to the server, mounts the filesystem at options.MountPoint
// and serves it until ctx is canceled or the mount is removed externally.
func Mount(ctx context.Context, options MountOptions, log logrus.FieldLogger) error {
	config := client.DefaultConfig()
	config.ServerAddress = options.ServerAddr
	if options.CacheTimeout > 0 {
		config.CacheTTL = options.CacheTimeout
	}

	log.WithField("server", options.ServerAddr).Info("Connecting to file server")
	c, err := client.NewClient(config)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer c.Close()

	rootHandle, err := c.GetRootFileHandle(ctx)
	if err != nil {
		return fmt.Errorf("failed to get root handle: %w", err)
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName("ext2fs"),
		fuse.Subtype("ext2fs"),
	}
	if options.ReadOnly {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}
	if options.Debug {
		fuse.Debug = func(msg interface{}) {
			log.Debugf("FUSE: %v", msg)
		}
	}

	log.WithField("mount_point", options.MountPoint).Info("Mounting filesystem")
	conn, err := fuse.Mount(options.MountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("failed to mount: %w", err)
	}
	defer conn.Close()

	fsOpts := []Option{WithLogger(log)}
	if options.CacheTimeout > 0 {
		fsOpts = append(fsOpts, WithAttrValid(options.CacheTimeout))
	}
	filesys := NewFS(c, rootHandle, fsOpts...)
	served := make(chan error, 1)
	go func() {
		served <- fs.Serve(conn, filesys)
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
		log.Info("Unmounting filesystem")
		if err := Unmount(options.MountPoint); err != nil {
			log.WithError(err).Warn("failed to unmount cleanly")
		}
		return <-served
	}
}

// Unmount unmounts the filesystem
func Unmount(mountPoint string) error {
	return fuse.Unmount(mountPoint)
}
