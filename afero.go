package sdfat

import (
	"io"
	"os"

	"github.com/aligator/sdfat/checkpoint"
	"github.com/spf13/afero"
)

var _ afero.Fs = (*Fs)(nil)
var _ afero.File = (*aferoFile)(nil)

// aferoFile is the afero.File returned by Fs.
type aferoFile struct {
	File

	// path as passed to Fs.OpenFile.
	path string
}

func (f *aferoFile) Name() string {
	return f.path
}

// ReadAt reads at off without changing the position of the file.
func (f *aferoFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, checkpoint.New(ErrOutOfRange, "negative offset %d", off)
	}
	if off >= int64(f.fileSize) {
		return 0, io.EOF
	}

	saved := f.Pos()
	defer f.SetPos(saved)

	if err := f.SeekSet(uint32(off)); err != nil {
		return 0, err
	}

	n, err := io.ReadFull(&f.File, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// WriteAt writes at off without changing the position of the file.
// off must not be beyond the end of the file.
func (f *aferoFile) WriteAt(p []byte, off int64) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.flags&OAppend != 0 {
		return 0, checkpoint.New(ErrUnsupported, "WriteAt on %s opened for appending", f.path)
	}
	if off < 0 {
		return 0, checkpoint.New(ErrOutOfRange, "negative offset %d", off)
	}

	saved := f.Pos()
	if err := f.SeekSet(uint32(off)); err != nil {
		return 0, err
	}

	n, err := f.Write(p)
	f.SetPos(saved)
	return n, err
}

// Readdir returns the next count entries of the directory.
// If count > 0 io.EOF is returned when there are no entries left, otherwise all remaining entries are returned.
func (f *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	if err := f.checkDir(); err != nil {
		return nil, err
	}

	var infos []os.FileInfo
	for count <= 0 || len(infos) < count {
		entry, err := f.NextEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			return infos, err
		}
		infos = append(infos, entry.FileInfo())
	}

	if count > 0 && len(infos) == 0 {
		return nil, io.EOF
	}
	return infos, nil
}

func (f *aferoFile) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}
