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
)

func main() {
	defaults := ext2.DefaultParams()
	blockSize := flag.Uint("block-size", uint(defaults.BlockSize), "Block size in bytes")
	blocks := flag.Uint("blocks", uint(defaults.TotalBlocks), "Number of data blocks")
	inodes := flag.Uint("inodes", uint(defaults.TotalInodes), "Number of inodes")
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
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	params := ext2.Params{
		BlockSize:   uint32(*blockSize),
		TotalBlocks: uint32(*blocks),
		TotalInodes: uint32(*inodes),
	}
	if err := params.Validate(); err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}

	path, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		log.Fatalf("Invalid path: %v", err)
	}
	dev, err := disk.Create(osfs.New(filepath.Dir(path)), filepath.Base(path), 0)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", path, err)
	}

	vol, err := ext2.Format(dev, params, ext2.WithLogger(log.WithField("image", path)))
	if err != nil {
		dev.Close()
		log.Fatalf("Failed to format %s: %v", path, err)
	}
	sb := vol.Superblock()
	if err := vol.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", path, err)
	}

	fmt.Printf("Formatted %s: %d bytes, %d blocks of %d bytes, %d inodes, %d blocks free\n",
		path, sb.ImageSize(), sb.TotalBlocks(), sb.BlockSize(), sb.TotalInodes(), sb.FreeBlocks())
}
