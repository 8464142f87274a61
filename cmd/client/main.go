package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/ext2fs/pkg/api"
	"github.com/example/ext2fs/pkg/client"
)

// writeChunk stays below the server's default write limit.
const writeChunk = 64 * 1024

const usage = `Usage: %s [flags] COMMAND [ARGS]

Commands:
  stat PATH           show file attributes
  ls PATH             list a directory
  cat PATH            print a file
  put LOCAL REMOTE    copy a local file to the server
  mkdir PATH          create a directory
  rm PATH             remove a file or directory tree
  df                  show filesystem usage

Flags:
`

func main() {
	serverAddr := flag.String("server", "localhost:7050", "File server address")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall operation timeout")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	config := client.DefaultConfig()
	config.ServerAddress = *serverAddr
	c, err := client.NewClient(config)
	if err != nil {
		logrus.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, c, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Arg(0), err)
		c.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	need := map[string]int{"stat": 1, "ls": 1, "cat": 1, "put": 2, "mkdir": 1, "rm": 1, "df": 0}
	n, ok := need[cmd]
	if !ok {
		return fmt.Errorf("unknown command")
	}
	if len(args) != n {
		return fmt.Errorf("want %d arguments, got %d", n, len(args))
	}

	switch cmd {
	case "stat":
		handle, err := c.LookupPath(ctx, args[0])
		if err != nil {
			return err
		}
		attrs, err := c.GetAttr(ctx, handle)
		if err != nil {
			return err
		}
		fmt.Printf("Type: %s\nInode: %d\nSize: %d\nLinks: %d\nBlocks: %d\nHandle: %x\n",
			attrs.Type, attrs.FileId, attrs.Size, attrs.Nlink, attrs.Blocks, handle)

	case "ls":
		handle, err := c.LookupPath(ctx, args[0])
		if err != nil {
			return err
		}
		entries, err := c.ReadDir(ctx, handle)
		if err != nil {
			return err
		}
		fmt.Printf("Total %d\n", len(entries))
		for _, e := range entries {
			kind := "FILE"
			if e.Type == api.FileType_DIRECTORY {
				kind = "DIR"
			}
			fmt.Printf("%d\t%s\t%s\n", e.FileId, kind, e.Name)
		}

	case "cat":
		handle, err := c.LookupPath(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = c.ReadAll(ctx, handle, os.Stdout)
		return err

	case "put":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		dir, name := path.Split(path.Clean("/" + args[1]))
		dirHandle, err := c.LookupPath(ctx, dir)
		if err != nil {
			return err
		}
		handle, _, err := c.Create(ctx, dirHandle, name, false)
		if err != nil {
			return err
		}
		if _, err := c.Truncate(ctx, handle, 0); err != nil {
			return err
		}
		written := 0
		for written < len(data) {
			end := min(written+writeChunk, len(data))
			n, err := c.Write(ctx, handle, int64(written), data[written:end])
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("server accepted no bytes at offset %d", written)
			}
			written += n
		}
		fmt.Printf("Wrote %d bytes to %s\n", written, path.Join(dir, name))

	case "mkdir", "rm":
		dir, name := path.Split(path.Clean("/" + args[0]))
		dirHandle, err := c.LookupPath(ctx, dir)
		if err != nil {
			return err
		}
		if cmd == "mkdir" {
			_, _, err = c.Mkdir(ctx, dirHandle, name)
		} else {
			err = c.Remove(ctx, dirHandle, name)
		}
		return err

	case "df":
		st, err := c.StatFS(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Block size: %d\nBytes: %d total, %d free\nFiles: %d total, %d free\n",
			st.BlockSize, st.TotalBytes, st.FreeBytes, st.TotalFiles, st.FreeFiles)
	}
	return nil
}
