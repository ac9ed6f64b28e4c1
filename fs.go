package sdfat

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/aligator/sdfat/checkpoint"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Fs is a mounted volume together with the working directory used to resolve relative paths.
// It implements afero.Fs. Like the Volume it must only be used by one goroutine at a time.
type Fs struct {
	vol *Volume
	log logrus.FieldLogger

	// cwd is always absolute and clean.
	cwd string
}

// New mounts the volume on dev.
func New(dev BlockDevice, opts ...Option) (*Fs, error) {
	vol, err := Mount(dev, opts...)
	if err != nil {
		return nil, err
	}

	return &Fs{
		vol: vol,
		log: vol.log,
		cwd: "/",
	}, nil
}

// NewFromImage mounts a volume image, for example an afero.File or *os.File.
func NewFromImage(image ImageReadWriter, opts ...Option) (*Fs, error) {
	return New(NewImageDevice(image), opts...)
}

// Volume returns the mounted volume.
func (fsys *Fs) Volume() *Volume {
	return fsys.vol
}

func (fsys *Fs) Label() string {
	return fsys.vol.Label()
}

func (fsys *Fs) FSType() FATType {
	return fsys.vol.FATType()
}

// Unmount flushes all pending changes. fsys can not be used afterwards.
func (fsys *Fs) Unmount() error {
	return fsys.vol.Unmount()
}

// abs resolves name against the working directory.
func (fsys *Fs) abs(name string) string {
	if !path.IsAbs(name) {
		name = path.Join(fsys.cwd, name)
	}
	return path.Clean("/" + name)
}

func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

// openAbs opens the absolute, clean path p into f.
func (fsys *Fs) openAbs(f *File, p string, flag Flag) error {
	if p == "/" {
		if flag&(OWrite|OCreate|OExcl|OTrunc|OAppend) != 0 {
			return checkpoint.New(ErrNotAFile, "the root directory is read only")
		}
		return f.OpenRoot(fsys.vol)
	}

	var root File
	if err := root.OpenRoot(fsys.vol); err != nil {
		return err
	}
	return f.Open(&root, p, flag)
}

// OpenPath opens name, relative to the working directory unless it starts with "/".
func (fsys *Fs) OpenPath(name string, flag Flag) (*File, error) {
	var f File
	if err := fsys.openAbs(&f, fsys.abs(name), flag); err != nil {
		return nil, pathError("open", name, err)
	}
	return &f, nil
}

// Chdir changes the working directory.
func (fsys *Fs) Chdir(name string) error {
	p := fsys.abs(name)

	var dir File
	if err := fsys.openAbs(&dir, p, ORead); err != nil {
		return pathError("chdir", name, err)
	}
	defer dir.Close()

	if !dir.IsDir() {
		return pathError("chdir", name, checkpoint.From(ErrNotADirectory))
	}

	fsys.cwd = p
	return nil
}

// Getwd returns the absolute working directory.
func (fsys *Fs) Getwd() string {
	return fsys.cwd
}

// Exists reports whether name can be opened.
func (fsys *Fs) Exists(name string) bool {
	var f File
	if err := fsys.openAbs(&f, fsys.abs(name), ORead); err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// ListDir returns all files and subdirectories of the directory name.
func (fsys *Fs) ListDir(name string) ([]DirEntry, error) {
	var dir File
	if err := fsys.openAbs(&dir, fsys.abs(name), ORead); err != nil {
		return nil, pathError("readdir", name, err)
	}
	defer dir.Close()

	var entries []DirEntry
	err := dir.List(false, func(_ int, entry DirEntry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, pathError("readdir", name, err)
	}
	return entries, nil
}

// isBusy reports whether the directory p is the working directory or one of its parents.
func (fsys *Fs) isBusy(p string) bool {
	return p == fsys.cwd || strings.HasPrefix(fsys.cwd, p+"/")
}

// flagFromOS converts os.OpenFile flags.
func flagFromOS(flag int) Flag {
	var result Flag
	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_RDONLY:
		result = ORead
	case os.O_WRONLY:
		result = OWrite
	default:
		result = ORdWr
	}

	if flag&os.O_APPEND != 0 {
		result |= OAppend
	}
	if flag&os.O_CREATE != 0 {
		result |= OCreate
	}
	if flag&os.O_EXCL != 0 {
		result |= OExcl
	}
	if flag&os.O_TRUNC != 0 {
		result |= OTrunc
	}
	if flag&os.O_SYNC != 0 {
		result |= OSync
	}
	return result
}

func (fsys *Fs) Create(name string) (afero.File, error) {
	return fsys.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// Mkdir creates the directory name. The permissions are ignored.
func (fsys *Fs) Mkdir(name string, _ os.FileMode) error {
	var dir File
	if err := fsys.mkdirAbs(&dir, fsys.abs(name), false); err != nil {
		return pathError("mkdir", name, err)
	}
	return pathError("mkdir", name, dir.Close())
}

// MkdirAll creates the directory p and all missing parents. The permissions are ignored.
func (fsys *Fs) MkdirAll(p string, _ os.FileMode) error {
	abs := fsys.abs(p)

	var existing File
	if err := fsys.openAbs(&existing, abs, ORead); err == nil {
		defer existing.Close()
		if existing.IsDir() {
			return nil
		}
		return pathError("mkdir", p, checkpoint.New(ErrNotADirectory, "%s exists", abs))
	}

	var dir File
	if err := fsys.mkdirAbs(&dir, abs, true); err != nil {
		return pathError("mkdir", p, err)
	}
	return pathError("mkdir", p, dir.Close())
}

func (fsys *Fs) mkdirAbs(dir *File, p string, parents bool) error {
	if p == "/" {
		return checkpoint.New(ErrAlreadyExists, "the root directory always exists")
	}

	var root File
	if err := root.OpenRoot(fsys.vol); err != nil {
		return err
	}
	return dir.Mkdir(&root, p, parents)
}

func (fsys *Fs) Open(name string) (afero.File, error) {
	return fsys.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens name with os.OpenFile flags. The permissions are ignored.
func (fsys *Fs) OpenFile(name string, flag int, _ os.FileMode) (afero.File, error) {
	p := fsys.abs(name)

	f := &aferoFile{path: name}
	if err := fsys.openAbs(&f.File, p, flagFromOS(flag)); err != nil {
		return nil, pathError("open", name, err)
	}
	return f, nil
}

// Remove removes a file or an empty directory. Read only files are removed as well.
func (fsys *Fs) Remove(name string) error {
	p := fsys.abs(name)
	if p == "/" {
		return pathError("remove", name, checkpoint.New(ErrBusy, "the root directory can not be removed"))
	}

	var f File
	if err := fsys.openAbs(&f, p, ORead); err != nil {
		return pathError("remove", name, err)
	}

	if f.IsDir() {
		if fsys.isBusy(p) {
			_ = f.Close()
			return pathError("remove", name, checkpoint.From(ErrBusy))
		}
		return pathError("remove", name, f.Rmdir())
	}

	f.flags |= OWrite
	return pathError("remove", name, f.Remove())
}

// RemoveAll removes name and everything inside of it. It returns nil if name does not exist.
// Removing "/" empties the volume.
func (fsys *Fs) RemoveAll(name string) error {
	p := fsys.abs(name)

	var f File
	if err := fsys.openAbs(&f, p, ORead); err != nil {
		if errorIsNotFound(err) {
			return nil
		}
		return pathError("removeall", name, err)
	}

	if !f.IsDir() {
		f.flags |= OWrite
		return pathError("removeall", name, f.Remove())
	}

	if !f.IsRoot() && fsys.isBusy(p) {
		_ = f.Close()
		return pathError("removeall", name, checkpoint.From(ErrBusy))
	}

	if err := f.RemoveAll(); err != nil {
		return pathError("removeall", name, err)
	}
	if f.IsRoot() {
		return pathError("removeall", name, fsys.vol.CacheFlush())
	}
	return nil
}

// Rename moves the entry oldname to newname, which must not exist yet.
// The data of the file or directory stays where it is.
func (fsys *Fs) Rename(oldname, newname string) error {
	oldPath, newPath := fsys.abs(oldname), fsys.abs(newname)
	if oldPath == "/" || newPath == "/" {
		return pathError("rename", oldname, checkpoint.New(ErrBusy, "the root directory can not be renamed"))
	}
	if oldPath == newPath {
		return nil
	}

	var src File
	if err := fsys.openAbs(&src, oldPath, ORead); err != nil {
		return pathError("rename", oldname, err)
	}
	defer func() { src.typ = typeClosed }()

	if src.IsDir() {
		if strings.HasPrefix(newPath, oldPath+"/") {
			return pathError("rename", oldname, checkpoint.New(ErrInvalidName, "can not move %s into itself", oldPath))
		}
		if fsys.isBusy(oldPath) {
			return pathError("rename", oldname, checkpoint.From(ErrBusy))
		}
	}

	entry, err := src.DirEntry()
	if err != nil {
		return pathError("rename", oldname, err)
	}

	var parent File
	if err := fsys.openAbs(&parent, path.Dir(newPath), ORead); err != nil {
		return pathError("rename", newname, err)
	}

	var dst File
	if err := dst.openName(&parent, path.Base(newPath), OCreate|OExcl|OWrite); err != nil {
		return pathError("rename", newname, err)
	}
	dst.typ = typeClosed

	vol := fsys.vol

	// Move everything except the name into the new entry.
	buf, err := vol.cacheBlock(dst.dirBlock, CacheWrite)
	if err != nil {
		return pathError("rename", newname, err)
	}
	raw := buf[uint32(dst.dirIndex)*dirEntrySize:]
	moved := entry
	moved.Name = decodeDirEntry(raw).Name
	moved.encode(raw)

	buf, err = vol.cacheBlock(src.dirBlock, CacheWrite)
	if err != nil {
		return pathError("rename", oldname, err)
	}
	buf[uint32(src.dirIndex)*dirEntrySize] = dirNameDeleted

	if src.IsDir() {
		var parentCluster uint32
		if !parent.IsRoot() {
			parentCluster = parent.firstCluster
		}

		buf, err = vol.cacheBlock(vol.ClusterStartBlock(src.firstCluster), CacheWrite)
		if err != nil {
			return pathError("rename", oldname, err)
		}
		dotDot := decodeDirEntry(buf[dirEntrySize:])
		if dotDot.Name == dotDotName {
			dotDot.setFirstCluster(parentCluster)
			dotDot.encode(buf[dirEntrySize:])
		}
	}

	fsys.log.WithFields(logrus.Fields{"from": oldPath, "to": newPath}).Debug("renamed")

	return pathError("rename", oldname, vol.cacheFlush())
}

func (fsys *Fs) Stat(name string) (os.FileInfo, error) {
	var f File
	if err := fsys.openAbs(&f, fsys.abs(name), ORead); err != nil {
		return nil, pathError("stat", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return info, nil
}

func (fsys *Fs) Name() string {
	return "sdfat"
}

// Chmod sets the read only attribute if mode has no write permission for the owner and clears it otherwise.
func (fsys *Fs) Chmod(name string, mode os.FileMode) error {
	var f File
	if err := fsys.openAbs(&f, fsys.abs(name), ORead); err != nil {
		return pathError("chmod", name, err)
	}
	defer f.Close()

	if f.IsRoot() {
		return pathError("chmod", name, checkpoint.New(ErrUnsupported, "the root directory has no attributes"))
	}

	vol := fsys.vol
	buf, err := vol.cacheBlock(f.dirBlock, CacheWrite)
	if err != nil {
		return pathError("chmod", name, err)
	}
	raw := buf[uint32(f.dirIndex)*dirEntrySize:]
	entry := decodeDirEntry(raw)
	if mode&0200 == 0 {
		entry.Attr |= AttrReadOnly
	} else {
		entry.Attr &^= AttrReadOnly
	}
	entry.encode(raw)

	return pathError("chmod", name, vol.cacheFlush())
}

// Chown is not supported by FAT.
func (fsys *Fs) Chown(name string, _, _ int) error {
	return pathError("chown", name, checkpoint.From(ErrUnsupported))
}

// Chtimes sets the access date and the write timestamp.
func (fsys *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	var f File
	if err := fsys.openAbs(&f, fsys.abs(name), ORead); err != nil {
		return pathError("chtimes", name, err)
	}
	defer f.Close()

	if err := f.Timestamp(TAccess, atime); err != nil {
		return pathError("chtimes", name, err)
	}
	return pathError("chtimes", name, f.Timestamp(TWrite, mtime))
}
