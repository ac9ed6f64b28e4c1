package sdfat

import (
	"os"
	"time"
)

type entryFileInfo struct {
	entry DirEntry
}

func (e entryFileInfo) Name() string {
	return e.entry.DisplayName()
}

func (e entryFileInfo) Size() int64 {
	return int64(e.entry.FileSize)
}

func (e entryFileInfo) Mode() os.FileMode {
	mode := os.FileMode(0666)
	if e.entry.IsReadOnly() {
		mode = 0444
	}
	if e.IsDir() {
		return mode | 0111 | os.ModeDir
	}
	return mode
}

func (e entryFileInfo) ModTime() time.Time {
	return e.entry.ModTime()
}

func (e entryFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

// Sys returns the DirEntry.
func (e entryFileInfo) Sys() interface{} {
	return e.entry
}

// rootFileInfo describes the root directory, which has no entry.
type rootFileInfo struct{}

func (rootFileInfo) Name() string {
	return "/"
}

func (rootFileInfo) Size() int64 {
	return 0
}

func (rootFileInfo) Mode() os.FileMode {
	return os.ModeDir | 0777
}

func (rootFileInfo) ModTime() time.Time {
	return time.Time{}
}

func (rootFileInfo) IsDir() bool {
	return true
}

func (rootFileInfo) Sys() interface{} {
	return nil
}
