package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"

	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/ext2"
	"github.com/example/ext2fs/pkg/shell"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] FILE\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	path, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		log.Fatalf("Invalid path: %v", err)
	}
	dev, err := disk.Open(osfs.New(filepath.Dir(path)), filepath.Base(path))
	if err != nil {
		log.Fatalf("[openfs] Failed to open the file %s: %v", path, err)
	}
	vol, err := ext2.Open(dev, ext2.WithLogger(log.WithField("image", path)))
	if err != nil {
		dev.Close()
		log.Fatalf("[openfs] Failed to read the superblock: %v", err)
	}

	sh := shell.New(vol, os.Stdout, os.Stderr, log)
	runErr := sh.Run(os.Stdin)
	if err := vol.Close(); err != nil {
		log.Fatalf("[openfs] Failed to close the file: %v", err)
	}
	if runErr != nil {
		log.Fatalf("[openfs] Failed to read the command: %v", runErr)
	}
}
