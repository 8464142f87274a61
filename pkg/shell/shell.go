// Package shell implements the interactive openfs command loop over an
// ext2 volume.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/example/ext2fs/pkg/ext2"
	"github.com/example/ext2fs/pkg/fs"
)

type command struct {
	usage string
	help  string
	run   func(s *Shell, args string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":     {"help", "shows this message", (*Shell).help},
		"echo":     {"echo MESSAGE", "prints out MESSAGE", (*Shell).echo},
		"ls":       {"ls [PATH]", "lists the entries of a directory", (*Shell).ls},
		"cd":       {"cd PATH", "changes the current directory", (*Shell).cd},
		"pwd":      {"pwd", "prints the current directory", (*Shell).pwd},
		"stat":     {"stat PATH", "shows the attributes of a file", (*Shell).stat},
		"touch":    {"touch PATH", "creates an empty file if it does not exist", (*Shell).touch},
		"mkdir":    {"mkdir PATH", "creates a directory", (*Shell).mkdir},
		"cat":      {"cat PATH", "prints the content of a file", (*Shell).cat},
		"write":    {"write PATH TEXT", "replaces the content of a file with TEXT", (*Shell).write},
		"append":   {"append PATH TEXT", "appends TEXT to a file", (*Shell).append},
		"truncate": {"truncate PATH SIZE", "sets the size of a file", (*Shell).truncate},
		"rm":       {"rm PATH", "removes a file or a directory tree", (*Shell).rm},
		"df":       {"df", "shows free blocks and inodes", (*Shell).df},
	}
}

// Shell holds the state of one interactive session.
type Shell struct {
	vol    *ext2.Volume
	cwd    string
	out    io.Writer
	errOut io.Writer
	log    logrus.FieldLogger
}

// New returns a shell positioned at the root of vol.
func New(vol *ext2.Volume, out, errOut io.Writer, log logrus.FieldLogger) *Shell {
	return &Shell{vol: vol, cwd: "/", out: out, errOut: errOut, log: log}
}

// Cwd returns the absolute path of the current directory.
func (s *Shell) Cwd() string {
	return s.cwd
}

// Run reads commands from in until "quit" or end of input. Command errors
// are printed and the loop continues.
func (s *Shell) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(s.out, "%s > ", s.cwd)
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if s.Exec(scanner.Text()) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(line string) bool {
	name, args, _ := strings.Cut(strings.TrimSpace(line), " ")
	name = strings.ToLower(name)
	switch name {
	case "":
		return false
	case "quit", "exit":
		return true
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(s.errOut, "[openfs] Unrecognized command %q\n", name)
		return false
	}
	if err := cmd.run(s, strings.TrimSpace(args)); err != nil {
		s.log.WithField("command", name).WithError(err).Debug("command failed")
		fmt.Fprintf(s.errOut, "[openfs] %s: %v\n", name, err)
	}
	return false
}

// dir resolves the current directory. A current directory removed by an
// earlier command falls back to the root.
func (s *Shell) dir() (*ext2.File, error) {
	f, err := s.vol.ResolvePath(nil, s.cwd)
	if err != nil {
		s.cwd = "/"
		return s.vol.Root()
	}
	return f, nil
}

func (s *Shell) resolve(p string) (*ext2.File, error) {
	if p == "" {
		return nil, fs.Errorf("resolve", fs.ErrInvalid, "missing path")
	}
	cwd, err := s.dir()
	if err != nil {
		return nil, err
	}
	return s.vol.ResolvePath(cwd, p)
}

// parent resolves the directory holding p and returns it with the final
// path component.
func (s *Shell) parent(p string) (*ext2.File, string, error) {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return nil, "", fs.Errorf("resolve", fs.ErrInvalid, "missing path")
	}
	dir, name := path.Split(p)
	if dir == "" {
		dir = "."
	}
	parent, err := s.resolve(dir)
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir() {
		return nil, "", fs.NewError("resolve", parent.Path, fs.ErrNotDir)
	}
	return parent, name, nil
}

func splitTextArg(args string) (string, string, error) {
	p, text, ok := strings.Cut(args, " ")
	if !ok || p == "" {
		return "", "", fs.Errorf("parse", fs.ErrInvalid, "want PATH TEXT")
	}
	return p, text, nil
}

func (s *Shell) help(string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "%s -- %s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintln(s.out, "quit -- exits the shell")
	return nil
}

func (s *Shell) echo(args string) error {
	fmt.Fprintln(s.out, args)
	return nil
}

func (s *Shell) ls(args string) error {
	var dir *ext2.File
	var err error
	if args == "" {
		dir, err = s.dir()
	} else {
		dir, err = s.resolve(args)
	}
	if err != nil {
		return err
	}
	entries, err := s.vol.ReadDir(dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Total %d\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(s.out, "%d\t%s\t%s\n", e.InodeID, e.Type, e.Name)
	}
	return nil
}

func (s *Shell) cd(args string) error {
	if args == "" {
		args = "/"
	}
	f, err := s.resolve(args)
	if err != nil {
		return err
	}
	if !f.IsDir() {
		return fs.NewError("cd", f.Path, fs.ErrNotDir)
	}
	s.cwd = f.Path
	return nil
}

func (s *Shell) pwd(string) error {
	fmt.Fprintln(s.out, s.cwd)
	return nil
}

func (s *Shell) stat(args string) error {
	f, err := s.resolve(args)
	if err != nil {
		return err
	}
	info := s.vol.Stat(f)
	fmt.Fprintf(s.out, "Path: %s\nType: %s\nInode: %d\nSize: %d\nLinks: %d\nBlocks: %d\n",
		f.Path, info.Type, info.Inode, info.Size, info.Nlink, info.Blocks)
	return nil
}

func (s *Shell) create(p string, ft fs.FileType) (*ext2.File, error) {
	parent, name, err := s.parent(p)
	if err != nil {
		return nil, err
	}
	return s.vol.CreateEntry(parent, name, ft)
}

// openFile resolves p to a regular file, creating it when missing.
func (s *Shell) openFile(p string) (*ext2.File, error) {
	f, err := s.resolve(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return s.create(p, ext2.FileTypeFile)
	}
	if f.IsDir() {
		return nil, fs.NewError("open", f.Path, fs.ErrIsDir)
	}
	return f, nil
}

func (s *Shell) touch(args string) error {
	_, err := s.openFile(args)
	return err
}

func (s *Shell) mkdir(args string) error {
	_, err := s.create(args, ext2.FileTypeDirectory)
	return err
}

func (s *Shell) cat(args string) error {
	f, err := s.resolve(args)
	if err != nil {
		return err
	}
	if f.IsDir() {
		return fs.NewError("cat", f.Path, fs.ErrIsDir)
	}
	data, err := s.vol.LoadContents(f)
	if err != nil {
		return err
	}
	s.out.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(s.out)
	}
	return nil
}

func (s *Shell) write(args string) error {
	p, text, err := splitTextArg(args)
	if err != nil {
		return err
	}
	f, err := s.openFile(p)
	if err != nil {
		return err
	}
	return s.vol.ReplaceContents(f, []byte(text))
}

func (s *Shell) append(args string) error {
	p, text, err := splitTextArg(args)
	if err != nil {
		return err
	}
	f, err := s.openFile(p)
	if err != nil {
		return err
	}
	data, err := s.vol.LoadContents(f)
	if err != nil {
		return err
	}
	return s.vol.ReplaceContents(f, append(data, text...))
}

func (s *Shell) truncate(args string) error {
	p, sizeArg, err := splitTextArg(args)
	if err != nil {
		return err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(sizeArg), 10, 64)
	if err != nil {
		return fs.Errorf("truncate", fs.ErrInvalid, "size %q", sizeArg)
	}
	f, err := s.resolve(p)
	if err != nil {
		return err
	}
	if f.IsDir() {
		return fs.NewError("truncate", f.Path, fs.ErrIsDir)
	}
	return s.vol.Truncate(f, size)
}

func (s *Shell) rm(args string) error {
	parent, name, err := s.parent(args)
	if err != nil {
		return err
	}
	return s.vol.RemoveEntry(parent, name)
}

func (s *Shell) df(string) error {
	st := s.vol.StatFS()
	sb := s.vol.Superblock()
	fmt.Fprintf(s.out, "Block size: %d\n", st.BlockSize)
	fmt.Fprintf(s.out, "Blocks: %d total, %d free\n", sb.TotalBlocks(), sb.FreeBlocks())
	fmt.Fprintf(s.out, "Inodes: %d total, %d free\n", sb.TotalInodes(), sb.FreeInodes())
	return nil
}
