package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/ext2fs/pkg/fuse"
)

func main() {
	// Parse command line arguments
	mountPoint := flag.String("mount", "", "Mount point for the filesystem")
	serverAddr := flag.String("server", "localhost:7050", "File server address")
	readOnly := flag.Bool("readonly", false, "Mount filesystem as read-only")
	cacheTimeout := flag.Duration("cache-timeout", time.Second, "Attribute cache lifetime")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if *mountPoint == "" {
		fmt.Fprintln(os.Stderr, "Error: Mount point is required")
		flag.Usage()
		os.Exit(1)
	}

	// Ensure mount point exists
	if _, err := os.Stat(*mountPoint); os.IsNotExist(err) {
		log.Infof("Creating mount point: %s", *mountPoint)
		if err := os.MkdirAll(*mountPoint, 0o755); err != nil {
			log.Fatalf("Failed to create mount point: %v", err)
		}
	}

	options := fuse.MountOptions{
		MountPoint:   *mountPoint,
		ServerAddr:   *serverAddr,
		ReadOnly:     *readOnly,
		CacheTimeout: *cacheTimeout,
		Debug:        *debug,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fuse.Mount(ctx, options, log); err != nil {
		log.Fatalf("Error mounting filesystem: %v", err)
	}
}
