package sdfat

import (
	"io/fs"
	"os"
	"sort"

	"github.com/aligator/sdfat/checkpoint"
)

type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile is a read only fs.File. Directories implement fs.ReadDirFile.
type GoFile struct {
	*aferoFile
}

func (g GoFile) Stat() (fs.FileInfo, error) {
	return g.aferoFile.Stat()
}

func (g GoFile) Read(bytes []byte) (int, error) {
	return g.aferoFile.Read(bytes)
}

func (g GoFile) Close() error {
	return g.aferoFile.Close()
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.aferoFile.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}

	return goEntries, err
}

// GoFs wraps Fs to be compatible with fs.FS. All names are relative to the root of the volume.
type GoFs struct {
	*Fs
}

var (
	_ fs.FS        = GoFs{}
	_ fs.ReadDirFS = GoFs{}
	_ fs.StatFS    = GoFs{}
)

// NewGoFS mounts the volume on dev as fs.FS compatible filesystem.
func NewGoFS(dev BlockDevice, opts ...Option) (GoFs, error) {
	fsys, err := New(dev, opts...)
	if err != nil {
		return GoFs{}, err
	}

	return GoFs{fsys}, nil
}

func (g GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: checkpoint.From(fs.ErrInvalid)}
	}

	file, err := g.Fs.OpenFile("/"+name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}

	return GoFile{file.(*aferoFile)}, nil
}

// ReadDir returns the entries of the directory name sorted by name.
func (g GoFs) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := g.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: checkpoint.From(ErrNotADirectory)}
	}

	entries, err := dir.ReadDir(-1)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, err
}

func (g GoFs) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: checkpoint.From(fs.ErrInvalid)}
	}
	return g.Fs.Stat("/" + name)
}
