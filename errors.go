package sdfat

import (
	"errors"
	"io/fs"
)

// kindError is a sentinel error which additionally matches one of the io/fs errors.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// These errors may occur while operating on a volume or file.
// They are always returned wrapped by a checkpoint, so use errors.Is to check for them.
var (
	ErrNotInitialized = errors.New("volume not initialized")
	ErrAlreadyOpen    = errors.New("file handle already open")
	ErrClosed         = &kindError{"file handle not open", fs.ErrClosed}
	ErrNotFound       = &kindError{"file not found", fs.ErrNotExist}
	ErrAlreadyExists  = &kindError{"file already exists", fs.ErrExist}
	ErrInvalidName    = &kindError{"invalid 8.3 name", fs.ErrInvalid}
	ErrNotADirectory  = errors.New("not a directory")
	ErrNotAFile       = errors.New("not a file")
	ErrReadOnly       = &kindError{"read only", fs.ErrPermission}
	ErrWriteOnly      = &kindError{"file not opened for reading", fs.ErrPermission}
	ErrDeviceFull     = errors.New("no space left on device")
	ErrIO             = errors.New("i/o error")
	ErrOutOfRange     = errors.New("position out of range")
	ErrInvalidLength  = errors.New("invalid length")
	ErrNotEmpty       = errors.New("directory not empty")
	ErrNotContiguous  = errors.New("file not contiguous")
	ErrBusy           = errors.New("directory in use")
	ErrUnsupported    = errors.New("operation not supported")
)
