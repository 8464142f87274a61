package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/example/ext2fs/pkg/fs/image"
	"github.com/example/ext2fs/pkg/server"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "YAML configuration file")
	listenAddr := flag.String("listen", ":7050", "Network address to listen on")
	imagePath := flag.String("image", "disk.img", "ext2 image to serve")
	maxConcurrent := flag.Int("max-concurrent", 100, "Maximum concurrent requests")
	maxConnections := flag.Int("max-connections", 64, "Maximum open connections, 0 for no limit")
	maxReadSize := flag.Int("max-read", 1024*1024, "Maximum read size in bytes")
	maxWriteSize := flag.Int("max-write", 1024*1024, "Maximum write size in bytes")
	requestTimeout := flag.Int("timeout", 30, "Request timeout in seconds")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()

	config := server.DefaultConfig()
	if *configPath != "" {
		var err error
		if config, err = server.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Flags given explicitly override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			config.ListenAddress = *listenAddr
		case "image":
			config.Image = *imagePath
		case "max-concurrent":
			config.MaxConcurrent = *maxConcurrent
		case "max-connections":
			config.MaxConnections = *maxConnections
		case "max-read":
			config.MaxReadSize = *maxReadSize
		case "max-write":
			config.MaxWriteSize = *maxWriteSize
		case "timeout":
			config.RequestTimeout = *requestTimeout
		}
	})

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", config.LogLevel, err)
	}
	log.SetLevel(level)
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	path, err := filepath.Abs(config.Image)
	if err != nil {
		log.Fatalf("Invalid image path: %v", err)
	}
	fileSystem, err := image.Open(osfs.New(filepath.Dir(path)), filepath.Base(path),
		image.WithLogger(log.WithField("image", path)))
	if err != nil {
		log.Fatalf("Failed to open image: %v", err)
	}
	defer fileSystem.Close()

	fileServer, err := server.NewFileServer(config, fileSystem, log)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := fileServer.Start()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		fileServer.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorf("Server error: %v", err)
		fileSystem.Close()
		os.Exit(1)
	}
	log.Info("File server stopped")
}
