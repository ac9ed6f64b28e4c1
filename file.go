package sdfat

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/aligator/sdfat/checkpoint"
	"github.com/spf13/afero"
)

type fileType uint8

const (
	typeClosed fileType = iota
	typeNormal
	// FAT12/16 root directory at a fixed location.
	typeRootFixed
	// FAT32 root directory, a cluster chain like every subdirectory.
	typeRoot32
	typeSubdir
)

// Flag controls how a File gets opened.
type Flag uint16

const (
	ORead Flag = 1 << iota
	OWrite
	// OAppend moves to the end of the file before every write.
	OAppend
	// OCreate creates the file if it does not exist. Requires OWrite.
	OCreate
	// OExcl fails with ErrAlreadyExists if the file exists.
	OExcl
	// OTrunc truncates the file to 0 after opening.
	OTrunc
	// OSync syncs the file after every write.
	OSync

	ORdWr = ORead | OWrite

	// The flags which are kept after opening.
	flagsKept = ORead | OWrite | OAppend | OSync
)

// TimestampFlag selects the timestamps changed by File.Timestamp.
type TimestampFlag uint8

const (
	TAccess TimestampFlag = 1 << iota
	TCreate
	TWrite
)

// File is an open file or directory of a Volume.
// A File is opened in place by one of the Open methods and may be reopened after Close.
//
// Every operation goes through the single cache of the volume. Several handles may
// refer to the same file, but nothing prevents them from overwriting each other.
type File struct {
	vol   *Volume
	typ   fileType
	flags Flag

	// dirty is set if the directory entry has to be updated by Sync.
	dirty bool
	// writeErr sticks after a failed write or sync until ClearWriteError.
	writeErr bool

	firstCluster uint32
	curCluster   uint32
	curPosition  uint32
	fileSize     uint32

	// Location of the directory entry, unused for the root.
	dirBlock uint32
	dirIndex uint8

	name string
}

// Pos is a saved read/write position, see File.Pos.
type Pos struct {
	position uint32
	cluster  uint32
}

func (f *File) IsOpen() bool {
	return f.typ != typeClosed
}

// IsFile reports whether f is an open regular file.
func (f *File) IsFile() bool {
	return f.typ == typeNormal
}

// IsDir reports whether f is an open directory including the root.
func (f *File) IsDir() bool {
	return f.typ >= typeRootFixed
}

func (f *File) IsRoot() bool {
	return f.typ == typeRootFixed || f.typ == typeRoot32
}

func (f *File) IsSubDir() bool {
	return f.typ == typeSubdir
}

// Size is the file size in bytes. Directories report the size of their cluster chain.
func (f *File) Size() uint32 {
	return f.fileSize
}

// Position is the current read/write position.
func (f *File) Position() uint32 {
	return f.curPosition
}

func (f *File) FirstCluster() uint32 {
	return f.firstCluster
}

// Volume returns the volume of an open file.
func (f *File) Volume() *Volume {
	return f.vol
}

// Name returns the 8.3 name of the file in display form, "/" for the root.
func (f *File) Name() string {
	return f.name
}

// WriteError reports whether a write or sync has failed since opening or the last ClearWriteError.
func (f *File) WriteError() bool {
	return f.writeErr
}

func (f *File) ClearWriteError() {
	f.writeErr = false
}

func (f *File) checkOpen() error {
	if !f.IsOpen() {
		return checkpoint.From(ErrClosed)
	}
	return f.vol.checkMounted()
}

func (f *File) checkDir() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if !f.IsDir() {
		return checkpoint.New(ErrNotADirectory, "%s", f.name)
	}
	return nil
}

func splitPath(path string) []string {
	components := strings.Split(path, "/")
	result := components[:0]
	for _, c := range components {
		if c != "" {
			result = append(result, c)
		}
	}
	return result
}

// Open opens path relative to the directory dir. A leading "/" starts at the root of the volume.
// Every path component has to be a valid 8.3 name.
func (f *File) Open(dir *File, path string, flag Flag) error {
	if f.IsOpen() {
		return checkpoint.From(ErrAlreadyOpen)
	}
	if err := dir.checkDir(); err != nil {
		return err
	}

	// cur holds the directory of the component which is resolved next.
	var cur File
	parent := dir
	if strings.HasPrefix(path, "/") {
		if err := cur.OpenRoot(dir.vol); err != nil {
			return err
		}
		parent = &cur
	}

	components := splitPath(path)
	if len(components) == 0 {
		return checkpoint.New(ErrInvalidName, "empty path %q", path)
	}

	for _, component := range components[:len(components)-1] {
		var next File
		if err := next.openName(parent, component, ORead); err != nil {
			return err
		}
		cur = next
		parent = &cur
	}

	return f.openName(parent, components[len(components)-1], flag)
}

// openName opens or creates the entry with the given name in dir.
func (f *File) openName(dir *File, component string, flag Flag) error {
	name, err := makeShortName(component)
	if err != nil {
		return err
	}
	if err := dir.checkDir(); err != nil {
		return err
	}

	vol := dir.vol
	dir.Rewind()

	var (
		emptyFound bool
		emptyBlock uint32
		emptyIndex uint8
	)

	for dir.curPosition < dir.fileSize {
		raw, index, err := dir.readDirCache()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if raw[0] == dirNameFree || raw[0] == dirNameDeleted {
			// Remember the first free slot for a new entry.
			if !emptyFound {
				emptyFound = true
				emptyBlock = vol.cache.block
				emptyIndex = index
			}
			if raw[0] == dirNameFree {
				break
			}
		} else if bytes.Equal(raw[:11], name[:]) && raw[11]&AttrVolumeID == 0 {
			if flag&(OCreate|OExcl) == OCreate|OExcl {
				return checkpoint.New(ErrAlreadyExists, "%s", component)
			}
			return f.openCachedEntry(vol, vol.cache.block, index, flag)
		}
	}

	if flag&OCreate == 0 {
		return checkpoint.New(ErrNotFound, "%s", component)
	}
	if flag&OWrite == 0 {
		return checkpoint.New(ErrReadOnly, "create %s without write access", component)
	}

	var dirBlock uint32
	var dirIndex uint8
	if emptyFound {
		dirBlock, dirIndex = emptyBlock, emptyIndex
	} else {
		if dir.typ == typeRootFixed {
			return checkpoint.New(ErrDeviceFull, "root directory is full")
		}
		block, err := dir.addDirCluster()
		if err != nil {
			return err
		}
		dirBlock, dirIndex = block, 0
	}

	buf, err := vol.cacheBlock(dirBlock, CacheWrite)
	if err != nil {
		return err
	}

	t, _ := vol.now()
	entry := DirEntry{
		Name:       name,
		CreateDate: EncodeDate(t),
		CreateTime: EncodeTime(t),
	}
	entry.AccessDate = entry.CreateDate
	entry.WriteDate = entry.CreateDate
	entry.WriteTime = entry.CreateTime
	entry.encode(buf[uint32(dirIndex)*dirEntrySize:])

	if err := vol.cacheFlush(); err != nil {
		return err
	}

	vol.log.WithField("name", component).Debug("created directory entry")

	return f.openCachedEntry(vol, dirBlock, dirIndex, flag)
}

// openCachedEntry opens the entry at index of the directory block.
func (f *File) openCachedEntry(vol *Volume, block uint32, index uint8, flag Flag) error {
	buf, err := vol.cacheBlock(block, CacheRead)
	if err != nil {
		return err
	}
	entry := decodeDirEntry(buf[uint32(index)*dirEntrySize:])

	// Directories and read only files can not be opened for writing.
	if entry.Attr&(AttrReadOnly|AttrDirectory) != 0 && flag&(OWrite|OTrunc) != 0 {
		if entry.IsDir() {
			return checkpoint.New(ErrNotAFile, "%s is a directory", entry.DisplayName())
		}
		return checkpoint.New(ErrReadOnly, "%s", entry.DisplayName())
	}

	firstCluster := entry.FirstCluster()
	var (
		typ  fileType
		size uint32
	)
	switch {
	case entry.IsFile():
		typ = typeNormal
		size = entry.FileSize
	case entry.IsDir():
		typ = typeSubdir
		size, err = vol.ChainSize(firstCluster)
		if err != nil {
			return err
		}
	default:
		return checkpoint.New(ErrNotAFile, "%s is a volume label", entry.DisplayName())
	}

	*f = File{
		vol:          vol,
		typ:          typ,
		flags:        flag & flagsKept,
		firstCluster: firstCluster,
		fileSize:     size,
		dirBlock:     block,
		dirIndex:     index,
		name:         entry.DisplayName(),
	}

	if flag&OTrunc != 0 {
		if err := f.Truncate(0); err != nil {
			f.typ = typeClosed
			return err
		}
	}
	return nil
}

// OpenRoot opens the root directory of vol.
func (f *File) OpenRoot(vol *Volume) error {
	if f.IsOpen() {
		return checkpoint.From(ErrAlreadyOpen)
	}
	if err := vol.checkMounted(); err != nil {
		return err
	}

	root := File{
		vol:   vol,
		flags: ORead,
		name:  "/",
	}

	switch vol.fatType {
	case FAT12, FAT16:
		root.typ = typeRootFixed
		root.fileSize = dirEntrySize * uint32(vol.rootDirEntryCount)
	default:
		root.typ = typeRoot32
		root.firstCluster = vol.rootDirStart
		size, err := vol.ChainSize(root.firstCluster)
		if err != nil {
			return err
		}
		root.fileSize = size
	}

	*f = root
	return nil
}

// OpenIndex opens the entry with the given index in dir.
// Free, deleted and dot entries can not be opened.
func (f *File) OpenIndex(dir *File, index uint16, flag Flag) error {
	if f.IsOpen() {
		return checkpoint.From(ErrAlreadyOpen)
	}
	if flag&OExcl != 0 {
		return checkpoint.New(ErrAlreadyExists, "exclusive open of entry %d", index)
	}
	if err := dir.checkDir(); err != nil {
		return err
	}

	if err := dir.SeekSet(dirEntrySize * uint32(index)); err != nil {
		if errors.Is(err, ErrOutOfRange) {
			return checkpoint.Wrapf(err, ErrNotFound, "entry %d behind the end of %s", index, dir.name)
		}
		return err
	}

	raw, i, err := dir.readDirCache()
	if err == io.EOF {
		return checkpoint.New(ErrNotFound, "entry %d", index)
	}
	if err != nil {
		return err
	}

	if raw[0] == dirNameFree || raw[0] == dirNameDeleted || raw[0] == '.' {
		return checkpoint.New(ErrNotFound, "entry %d", index)
	}

	return f.openCachedEntry(dir.vol, dir.vol.cache.block, i, flag)
}

// OpenNext opens the next file or subdirectory of dir.
// It returns io.EOF at the end of the directory.
func (f *File) OpenNext(dir *File, flag Flag) error {
	if f.IsOpen() {
		return checkpoint.From(ErrAlreadyOpen)
	}
	if err := dir.checkDir(); err != nil {
		return err
	}

	for {
		raw, index, err := dir.readDirCache()
		if err != nil {
			return err
		}

		if raw[0] == dirNameFree {
			return io.EOF
		}
		if raw[0] == dirNameDeleted || raw[0] == '.' || raw[11]&AttrVolumeID != 0 {
			continue
		}

		return f.openCachedEntry(dir.vol, dir.vol.cache.block, index, flag)
	}
}

// readDirCache loads the entry at the current position into the cache and advances to the next entry.
// The returned slice points into the cache and stays valid until the next cache operation.
func (f *File) readDirCache() ([]byte, uint8, error) {
	if !f.IsDir() {
		return nil, 0, checkpoint.New(ErrNotADirectory, "%s", f.name)
	}

	index := uint8(f.curPosition>>5) & (dirEntriesPerBlk - 1)

	// Reading a single byte pulls the block into the cache.
	var b [1]byte
	n, err := f.read(b[:])
	if err != nil {
		return nil, 0, err
	}
	if n != 1 {
		return nil, 0, io.EOF
	}
	f.curPosition += dirEntrySize - 1

	offset := uint32(index) * dirEntrySize
	return f.vol.cache.buf[offset : offset+dirEntrySize], index, nil
}

// Read reads up to len(p) bytes. At the end of the file it returns io.EOF.
func (f *File) Read(p []byte) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.flags&ORead == 0 {
		return 0, checkpoint.New(ErrWriteOnly, "%s", f.name)
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// read copies from the current position and returns 0 at the end of the file.
func (f *File) read(p []byte) (int, error) {
	vol := f.vol

	nbyte := uint32(len(p))
	if uint64(len(p)) > math.MaxUint32 {
		nbyte = math.MaxUint32
	}
	if remaining := f.fileSize - f.curPosition; nbyte > remaining {
		nbyte = remaining
	}

	dst := p
	toRead := nbyte
	for toRead > 0 {
		offset := f.curPosition & (BlockSize - 1)

		var block uint32
		if f.typ == typeRootFixed {
			block = vol.rootDirStart + f.curPosition>>9
		} else {
			blockOfCluster := vol.blockOfCluster(f.curPosition)
			if offset == 0 && blockOfCluster == 0 {
				// Start of a new cluster.
				if f.curPosition == 0 {
					f.curCluster = f.firstCluster
				} else {
					next, err := vol.FATGet(f.curCluster)
					if err != nil {
						return int(nbyte - toRead), err
					}
					if vol.IsEOC(next) {
						return int(nbyte - toRead), checkpoint.New(ErrIO, "%s: cluster chain shorter than file", f.name)
					}
					f.curCluster = next
				}
			}
			block = vol.ClusterStartBlock(f.curCluster) + uint32(blockOfCluster)
		}

		n := BlockSize - offset
		if n > toRead {
			n = toRead
		}

		if n == BlockSize && !vol.isCached(block) {
			// Full blocks bypass the cache.
			if err := vol.readBlock(block, dst[:BlockSize]); err != nil {
				return int(nbyte - toRead), err
			}
		} else {
			buf, err := vol.cacheBlock(block, CacheRead)
			if err != nil {
				return int(nbyte - toRead), err
			}
			copy(dst[:n], buf[offset:offset+n])
		}

		dst = dst[n:]
		f.curPosition += n
		toRead -= n
	}

	return int(nbyte), nil
}

// Peek returns the next byte without moving the position.
func (f *File) Peek() (byte, error) {
	pos := f.Pos()
	var b [1]byte
	_, err := f.Read(b[:])
	f.SetPos(pos)
	return b[0], err
}

// Write writes all of p or fails. A failure sets the sticky write error.
func (f *File) Write(p []byte) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if !f.IsFile() {
		return 0, checkpoint.New(ErrNotAFile, "%s", f.name)
	}
	if f.flags&OWrite == 0 {
		return 0, checkpoint.New(ErrReadOnly, "%s not opened for writing", f.name)
	}

	n, err := f.write(p)
	if err != nil {
		f.writeErr = true
		return n, err
	}
	return n, nil
}

// WriteString is like Write, but writes the contents of the string s.
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *File) write(p []byte) (int, error) {
	vol := f.vol

	if f.flags&OAppend != 0 && f.curPosition != f.fileSize {
		if err := f.SeekSet(f.fileSize); err != nil {
			return 0, err
		}
	}

	if uint64(f.curPosition)+uint64(len(p)) > math.MaxUint32 {
		return 0, checkpoint.New(ErrInvalidLength, "%s: file would exceed 4 GiB", f.name)
	}

	src := p
	for len(src) > 0 {
		blockOfCluster := vol.blockOfCluster(f.curPosition)
		blockOffset := f.curPosition & (BlockSize - 1)

		if blockOfCluster == 0 && blockOffset == 0 {
			// Start of a new cluster.
			if f.curCluster == 0 {
				if f.firstCluster == 0 {
					if err := f.addCluster(); err != nil {
						return len(p) - len(src), err
					}
				} else {
					f.curCluster = f.firstCluster
				}
			} else {
				next, err := vol.FATGet(f.curCluster)
				if err != nil {
					return len(p) - len(src), err
				}
				if vol.IsEOC(next) {
					if err := f.addCluster(); err != nil {
						return len(p) - len(src), err
					}
				} else {
					f.curCluster = next
				}
			}
		}

		n := BlockSize - blockOffset
		if uint32(len(src)) < n {
			n = uint32(len(src))
		}

		block := vol.ClusterStartBlock(f.curCluster) + uint32(blockOfCluster)
		if n == BlockSize {
			// A full block replaces whatever is cached for it.
			if vol.isCached(block) {
				vol.cacheInvalidate()
			}
			if err := vol.writeBlock(block, src[:BlockSize]); err != nil {
				return len(p) - len(src), err
			}
		} else {
			var (
				buf []byte
				err error
			)
			if blockOffset == 0 && f.curPosition >= f.fileSize {
				// The block is past the end of the file, its old content does not matter.
				buf, err = vol.cacheZeroBlock(block)
			} else {
				buf, err = vol.cacheBlock(block, CacheWrite)
			}
			if err != nil {
				return len(p) - len(src), err
			}
			copy(buf[blockOffset:], src[:n])
		}

		f.curPosition += n
		src = src[n:]
	}

	if f.curPosition > f.fileSize {
		f.fileSize = f.curPosition
		f.dirty = true
	} else if vol.clock != nil && len(p) > 0 {
		// The write date has to be updated.
		f.dirty = true
	}

	if f.flags&OSync != 0 {
		if err := f.sync(); err != nil {
			return len(p), err
		}
	}

	return len(p), nil
}

// addCluster appends one cluster to the chain and makes it the current cluster.
func (f *File) addCluster() error {
	cluster, err := f.vol.AllocContiguous(1, f.curCluster)
	if err != nil {
		return err
	}
	f.curCluster = cluster

	if f.firstCluster == 0 {
		f.firstCluster = cluster
		f.dirty = true
	}
	return nil
}

// addDirCluster grows a directory by one zeroed cluster and returns its first block,
// which is left in the cache.
func (f *File) addDirCluster() (uint32, error) {
	if f.fileSize/dirEntrySize >= maxDirEntries {
		return 0, checkpoint.New(ErrDeviceFull, "%s has too many entries", f.name)
	}

	if err := f.addCluster(); err != nil {
		return 0, err
	}

	vol := f.vol
	block := vol.ClusterStartBlock(f.curCluster)
	for i := uint32(vol.blocksPerCluster); i > 0; i-- {
		if _, err := vol.cacheZeroBlock(block + i - 1); err != nil {
			return 0, err
		}
	}

	f.fileSize += vol.ClusterBytes()
	return block, nil
}

// SeekSet moves to pos, which must not be beyond the end of the file.
// The cluster chain is only walked forward, starting at the current cluster if possible.
func (f *File) SeekSet(pos uint32) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if pos > f.fileSize {
		return checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, position: %v, size: %v", ErrOutOfRange, pos, f.fileSize))
	}

	if f.typ == typeRootFixed {
		f.curPosition = pos
		return nil
	}

	if pos == 0 {
		f.curCluster = 0
		f.curPosition = 0
		return nil
	}

	vol := f.vol
	shift := vol.clusterSizeShift + 9
	// Index of the cluster holding the byte before the position.
	nCur := (f.curPosition - 1) >> shift
	nNew := (pos - 1) >> shift

	if nNew < nCur || f.curPosition == 0 {
		f.curCluster = f.firstCluster
	} else {
		nNew -= nCur
	}

	for ; nNew > 0; nNew-- {
		next, err := vol.FATGet(f.curCluster)
		if err != nil {
			return err
		}
		f.curCluster = next
	}

	f.curPosition = pos
	return nil
}

// SeekCur moves offset bytes relative to the current position.
func (f *File) SeekCur(offset int32) error {
	return f.seekAbs(int64(f.curPosition) + int64(offset))
}

// SeekEnd moves offset bytes relative to the end of the file.
func (f *File) SeekEnd(offset int32) error {
	return f.seekAbs(int64(f.fileSize) + int64(offset))
}

func (f *File) seekAbs(pos int64) error {
	if pos < 0 || pos > math.MaxUint32 {
		return checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, position: %v", ErrOutOfRange, pos))
	}
	return f.SeekSet(uint32(pos))
}

// Rewind moves to the start of the file.
func (f *File) Rewind() {
	f.curPosition = 0
	f.curCluster = 0
}

// Seek implements io.Seeker. Seeking beyond the end of the file is not possible.
// May return a syscall.EINVAL error if the whence value is invalid.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += int64(f.curPosition)
	case io.SeekEnd:
		offset += int64(f.fileSize)
	default:
		return 0, checkpoint.From(fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if err := f.seekAbs(offset); err != nil {
		return int64(f.curPosition), err
	}
	return offset, nil
}

// Pos saves the current position for SetPos.
func (f *File) Pos() Pos {
	return Pos{position: f.curPosition, cluster: f.curCluster}
}

// SetPos restores a position saved by Pos without walking the chain.
func (f *File) SetPos(pos Pos) {
	f.curPosition = pos.position
	f.curCluster = pos.cluster
}

// Truncate shrinks the file to size bytes and frees all clusters behind the new end.
// The file has to be opened for writing and size must not be larger than the file.
func (f *File) Truncate(size int64) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if !f.IsFile() {
		return checkpoint.New(ErrNotAFile, "%s", f.name)
	}
	if f.flags&OWrite == 0 {
		return checkpoint.New(ErrReadOnly, "%s not opened for writing", f.name)
	}
	if size < 0 || size > int64(f.fileSize) {
		return checkpoint.New(ErrInvalidLength, "truncate %s of size %d to %d", f.name, f.fileSize, size)
	}

	if f.fileSize == 0 {
		return f.Sync()
	}

	length := uint32(size)
	newPos := f.curPosition
	if newPos > length {
		newPos = length
	}

	if err := f.SeekSet(length); err != nil {
		return err
	}

	vol := f.vol
	if length == 0 {
		if err := vol.FreeChain(f.firstCluster); err != nil {
			return err
		}
		f.firstCluster = 0
	} else {
		toFree, err := vol.FATGet(f.curCluster)
		if err != nil {
			return err
		}
		if !vol.IsEOC(toFree) {
			if err := vol.FreeChain(toFree); err != nil {
				return err
			}
			if err := vol.FATPutEOC(f.curCluster); err != nil {
				return err
			}
		}
	}

	f.fileSize = length
	f.dirty = true

	if err := f.Sync(); err != nil {
		return err
	}

	return f.SeekSet(newPos)
}

// Sync writes the directory entry if it changed and flushes the cache.
func (f *File) Sync() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if err := f.sync(); err != nil {
		f.writeErr = true
		return err
	}
	return nil
}

func (f *File) sync() error {
	vol := f.vol

	if f.dirty {
		buf, err := vol.cacheBlock(f.dirBlock, CacheWrite)
		if err != nil {
			return err
		}
		raw := buf[uint32(f.dirIndex)*dirEntrySize:]
		entry := decodeDirEntry(raw)

		if entry.IsDeleted() {
			return checkpoint.New(ErrNotFound, "directory entry of %s was deleted", f.name)
		}

		// The size of a directory entry is always 0.
		if !f.IsDir() {
			entry.FileSize = f.fileSize
		}
		entry.setFirstCluster(f.firstCluster)

		if t, ok := vol.now(); ok {
			entry.WriteDate = EncodeDate(t)
			entry.WriteTime = EncodeTime(t)
			entry.AccessDate = entry.WriteDate
		}

		entry.encode(raw)
		f.dirty = false
	}

	return vol.cacheFlush()
}

// Close syncs the file and closes it, even if the sync fails.
func (f *File) Close() error {
	err := f.Sync()
	f.typ = typeClosed
	return err
}

// DirEntry syncs the file and returns its directory entry.
func (f *File) DirEntry() (DirEntry, error) {
	if err := f.Sync(); err != nil {
		return DirEntry{}, err
	}
	if f.IsRoot() {
		return DirEntry{}, checkpoint.New(ErrNotAFile, "the root directory has no entry")
	}

	buf, err := f.vol.cacheBlock(f.dirBlock, CacheRead)
	if err != nil {
		return DirEntry{}, err
	}
	return decodeDirEntry(buf[uint32(f.dirIndex)*dirEntrySize:]), nil
}

// Stat returns the os.FileInfo of the file.
func (f *File) Stat() (os.FileInfo, error) {
	if f.IsRoot() {
		return rootFileInfo{}, nil
	}

	entry, err := f.DirEntry()
	if err != nil {
		return nil, err
	}
	return entry.FileInfo(), nil
}

// Timestamp sets the selected timestamps of the directory entry to t.
func (f *File) Timestamp(flags TimestampFlag, t time.Time) error {
	if !validTimestampYear(t) {
		return checkpoint.New(ErrOutOfRange, "timestamp %v not between %d and %d", t, minYear, maxYear)
	}

	if err := f.Sync(); err != nil {
		return err
	}
	if f.IsRoot() {
		return checkpoint.New(ErrNotAFile, "the root directory has no entry")
	}

	vol := f.vol
	buf, err := vol.cacheBlock(f.dirBlock, CacheWrite)
	if err != nil {
		return err
	}
	raw := buf[uint32(f.dirIndex)*dirEntrySize:]
	entry := decodeDirEntry(raw)

	date, tod := EncodeDate(t), EncodeTime(t)
	if flags&TAccess != 0 {
		entry.AccessDate = date
	}
	if flags&TCreate != 0 {
		entry.CreateDate = date
		entry.CreateTime = tod
		// Tenths hold the odd second.
		entry.CreateTimeTenth = uint8(t.Second()&1) * 100
	}
	if flags&TWrite != 0 {
		entry.WriteDate = date
		entry.WriteTime = tod
	}

	entry.encode(raw)
	return vol.cacheFlush()
}

// ContiguousRange returns the first and last block of a file whose clusters are contiguous.
func (f *File) ContiguousRange() (uint32, uint32, error) {
	if err := f.checkOpen(); err != nil {
		return 0, 0, err
	}
	if f.firstCluster == 0 {
		return 0, 0, checkpoint.New(ErrNotContiguous, "%s has no clusters", f.name)
	}

	vol := f.vol
	for c := f.firstCluster; ; c++ {
		next, err := vol.FATGet(c)
		if err != nil {
			return 0, 0, err
		}
		if next == c+1 {
			continue
		}
		if !vol.IsEOC(next) {
			return 0, 0, checkpoint.New(ErrNotContiguous, "%s", f.name)
		}
		return vol.ClusterStartBlock(f.firstCluster), vol.ClusterStartBlock(c) + uint32(vol.blocksPerCluster) - 1, nil
	}
}

// CreateContiguous creates a new file of size bytes whose clusters are contiguous.
// The content of the file is undefined.
func (f *File) CreateContiguous(dir *File, path string, size uint32) error {
	if size == 0 {
		return checkpoint.New(ErrInvalidLength, "contiguous file of size 0")
	}
	if err := f.Open(dir, path, ORdWr|OCreate|OExcl); err != nil {
		return err
	}

	vol := f.vol
	count := (size-1)>>(vol.clusterSizeShift+9) + 1
	first, err := vol.AllocContiguous(count, 0)
	if err != nil {
		if rmErr := f.Remove(); rmErr != nil {
			return checkpoint.Wrap(rmErr, err)
		}
		return err
	}

	f.firstCluster = first
	f.fileSize = size
	f.dirty = true
	return f.Sync()
}

// errorIsNotFound reports whether err means the requested entry does not exist.
func errorIsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
