package sdfat

import (
	"io"
	"strings"

	"github.com/aligator/sdfat/checkpoint"
)

var (
	dotName    = [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotDotName = [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
)

// ListFunc is called for every entry of a listed directory.
// depth is 0 for the listed directory and grows for each level of subdirectories.
type ListFunc func(depth int, entry DirEntry) error

// Mkdir creates the directory path relative to parent and leaves f open on it.
// With parents set missing intermediate directories are created as well.
func (f *File) Mkdir(parent *File, path string, parents bool) error {
	if f.IsOpen() {
		return checkpoint.From(ErrAlreadyOpen)
	}
	if err := parent.checkDir(); err != nil {
		return err
	}

	var cur File
	dir := parent
	if strings.HasPrefix(path, "/") {
		if err := cur.OpenRoot(parent.vol); err != nil {
			return err
		}
		dir = &cur
	}

	components := splitPath(path)
	if len(components) == 0 {
		return checkpoint.New(ErrInvalidName, "empty path %q", path)
	}

	for _, component := range components[:len(components)-1] {
		var next File
		if err := next.openName(dir, component, ORead); err != nil {
			if !parents || !errorIsNotFound(err) {
				return err
			}
			if err := next.mkdir(dir, component); err != nil {
				return err
			}
		}
		cur = next
		dir = &cur
	}

	return f.mkdir(dir, components[len(components)-1])
}

func (f *File) mkdir(parent *File, component string) error {
	if err := parent.checkDir(); err != nil {
		return err
	}

	if err := f.openName(parent, component, OCreate|OExcl|ORdWr); err != nil {
		return err
	}

	// Turn the new empty file into a directory.
	f.flags = ORead
	f.typ = typeSubdir

	if _, err := f.addDirCluster(); err != nil {
		return err
	}
	if err := f.sync(); err != nil {
		return err
	}

	vol := f.vol
	buf, err := vol.cacheBlock(f.dirBlock, CacheWrite)
	if err != nil {
		return err
	}
	raw := buf[uint32(f.dirIndex)*dirEntrySize:]
	entry := decodeDirEntry(raw)
	entry.Attr = AttrDirectory
	entry.encode(raw)

	dot := entry
	dot.Name = dotName

	dotDot := entry
	dotDot.Name = dotDotName
	// The root is referenced as cluster 0.
	if parent.IsRoot() {
		dotDot.setFirstCluster(0)
	} else {
		dotDot.setFirstCluster(parent.firstCluster)
	}

	buf, err = vol.cacheBlock(vol.ClusterStartBlock(f.firstCluster), CacheWrite)
	if err != nil {
		return err
	}
	dot.encode(buf[0:])
	dotDot.encode(buf[dirEntrySize:])

	vol.log.WithField("name", component).Debug("created directory")

	return vol.cacheFlush()
}

// Remove truncates the file to 0 and deletes its directory entry. f is closed afterwards.
// The file has to be opened for writing.
func (f *File) Remove() error {
	if err := f.Truncate(0); err != nil {
		return err
	}

	vol := f.vol
	buf, err := vol.cacheBlock(f.dirBlock, CacheWrite)
	if err != nil {
		return err
	}
	buf[uint32(f.dirIndex)*dirEntrySize] = dirNameDeleted

	f.typ = typeClosed
	return vol.cacheFlush()
}

// Rmdir removes an empty subdirectory. f is closed afterwards.
func (f *File) Rmdir() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.IsRoot() {
		return checkpoint.New(ErrReadOnly, "the root directory can not be removed")
	}
	if !f.IsSubDir() {
		return checkpoint.New(ErrNotADirectory, "%s", f.name)
	}

	f.Rewind()
	for f.curPosition < f.fileSize {
		raw, _, err := f.readDirCache()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if raw[0] == dirNameFree {
			break
		}
		if raw[0] == dirNameDeleted || raw[0] == '.' {
			continue
		}
		if raw[11]&AttrVolumeID == 0 {
			return checkpoint.New(ErrNotEmpty, "%s", f.name)
		}
	}

	// Remove it like a file. The entry is deleted afterwards, so its size of 0 does not matter.
	f.typ = typeNormal
	f.flags |= OWrite
	return f.Remove()
}

// RemoveAll removes everything inside the directory and then the directory itself.
// Read only files are removed as well. The root directory is emptied but stays.
func (f *File) RemoveAll() error {
	if err := f.checkDir(); err != nil {
		return err
	}

	f.Rewind()
	for f.curPosition < f.fileSize {
		index := uint16(f.curPosition / dirEntrySize)

		raw, _, err := f.readDirCache()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if raw[0] == dirNameFree {
			break
		}
		if raw[0] == dirNameDeleted || raw[0] == '.' || raw[11]&AttrVolumeID != 0 {
			continue
		}

		var child File
		if err := child.OpenIndex(f, index, ORead); err != nil {
			return err
		}

		if child.IsSubDir() {
			if err := child.RemoveAll(); err != nil {
				return err
			}
		} else {
			child.flags |= OWrite
			if err := child.Remove(); err != nil {
				return err
			}
		}

		// Continue behind the removed entry.
		if next := dirEntrySize * (uint32(index) + 1); f.curPosition != next {
			if err := f.SeekSet(next); err != nil {
				return err
			}
		}
	}

	if f.IsRoot() {
		return nil
	}
	return f.Rmdir()
}

// OpenParent opens the parent directory of dir.
// The parent is found by its ".." entry and then searched in its own parent to locate its entry.
func (f *File) OpenParent(dir *File) error {
	if f.IsOpen() {
		return checkpoint.From(ErrAlreadyOpen)
	}
	if err := dir.checkDir(); err != nil {
		return err
	}
	if dir.IsRoot() {
		return checkpoint.New(ErrNotFound, "the root directory has no parent")
	}

	vol := dir.vol

	// ".." is the second entry.
	if err := dir.SeekSet(dirEntrySize); err != nil {
		return err
	}
	var raw [dirEntrySize]byte
	n, err := dir.read(raw[:])
	if err != nil {
		return err
	}
	dotDot := decodeDirEntry(raw[:])
	if n != dirEntrySize || dotDot.Name != dotDotName {
		return checkpoint.New(ErrIO, "%s has no .. entry", dir.name)
	}

	parentCluster := dotDot.FirstCluster()
	if vol.isRootCluster(parentCluster) {
		return f.OpenRoot(vol)
	}

	// The ".." entry of the parent points to the grandparent.
	parentBlock := vol.ClusterStartBlock(parentCluster)
	buf, err := vol.cacheBlock(parentBlock, CacheRead)
	if err != nil {
		return err
	}
	grandparentEntry := decodeDirEntry(buf[dirEntrySize:])

	var grandparent File
	if vol.isRootCluster(grandparentEntry.FirstCluster()) {
		err = grandparent.OpenRoot(vol)
	} else {
		err = grandparent.openCachedEntry(vol, parentBlock, 1, ORead)
	}
	if err != nil {
		return err
	}

	for {
		entry, err := grandparent.NextEntry()
		if err == io.EOF {
			return checkpoint.New(ErrNotFound, "parent of %s not found", dir.name)
		}
		if err != nil {
			return err
		}
		if entry.FirstCluster() == parentCluster {
			break
		}
	}

	index := uint16(grandparent.curPosition/dirEntrySize - 1)
	return f.OpenIndex(&grandparent, index, ORead)
}

// NextEntry returns the next file or subdirectory entry of the directory.
// Deleted, dot, long name and volume label entries are skipped. At the end io.EOF is returned.
func (f *File) NextEntry() (DirEntry, error) {
	if err := f.checkDir(); err != nil {
		return DirEntry{}, err
	}
	if f.curPosition&(dirEntrySize-1) != 0 {
		return DirEntry{}, checkpoint.New(ErrOutOfRange, "position %d is not at an entry", f.curPosition)
	}

	for {
		raw, _, err := f.readDirCache()
		if err != nil {
			return DirEntry{}, err
		}

		if raw[0] == dirNameFree {
			return DirEntry{}, io.EOF
		}
		if raw[0] == dirNameDeleted || raw[0] == '.' {
			continue
		}

		entry := decodeDirEntry(raw)
		if entry.isFileOrDir() {
			return entry, nil
		}
	}
}

// List calls fn for every file and subdirectory of the directory, starting at its beginning.
// If recursive is set, subdirectories are listed right after their own entry.
func (f *File) List(recursive bool, fn ListFunc) error {
	if err := f.checkDir(); err != nil {
		return err
	}
	f.Rewind()
	return f.list(0, recursive, fn)
}

func (f *File) list(depth int, recursive bool, fn ListFunc) error {
	for {
		entry, err := f.NextEntry()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if err := fn(depth, entry); err != nil {
			return err
		}

		if !recursive || !entry.IsDir() {
			continue
		}

		var sub File
		if err := sub.OpenIndex(f, uint16(f.curPosition/dirEntrySize-1), ORead); err != nil {
			return err
		}
		if err := sub.list(depth+1, recursive, fn); err != nil {
			return err
		}
	}
}
