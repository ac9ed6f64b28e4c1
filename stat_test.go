package sdfat

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testEntry(name string, attr uint8) DirEntry {
	e := DirEntry{
		Attr:            attr,
		CreateTimeTenth: 1,
		CreateTime:      2,
		CreateDate:      3,
		AccessDate:      4,
		WriteTime:       EncodeTime(testTime),
		WriteDate:       EncodeDate(testTime),
		FileSize:        9,
	}
	copy(e.Name[:], name)
	e.setFirstCluster(0x00050008)
	return e
}

func TestDirEntry_encode(t *testing.T) {
	entry := testEntry("HELLO   TXT", AttrArchive)

	raw := make([]byte, dirEntrySize)
	entry.encode(raw)

	assert.Equal(t, []byte("HELLO   TXT"), raw[:11])
	assert.Equal(t, byte(AttrArchive), raw[11])
	assert.Equal(t, []byte{0x05, 0x00}, raw[20:22])
	assert.Equal(t, []byte{0x08, 0x00}, raw[26:28])
	assert.Equal(t, []byte{9, 0, 0, 0}, raw[28:32])
	assert.Equal(t, entry, decodeDirEntry(raw))
	assert.Equal(t, uint32(0x00050008), entry.FirstCluster())
}

func TestDirEntry_FileInfo(t *testing.T) {
	tests := []struct {
		name     string
		entry    DirEntry
		wantName string
		wantSize int64
		wantMode os.FileMode
		wantDir  bool
	}{
		{
			name:     "file",
			entry:    testEntry("HELLO   TXT", AttrArchive),
			wantName: "HELLO.TXT",
			wantSize: 9,
			wantMode: 0666,
		},
		{
			name:     "read only file",
			entry:    testEntry("HELLO   TXT", AttrReadOnly),
			wantName: "HELLO.TXT",
			wantSize: 9,
			wantMode: 0444,
		},
		{
			name:     "directory",
			entry:    testEntry("SUBDIR     ", AttrDirectory),
			wantName: "SUBDIR",
			wantSize: 9,
			wantMode: os.ModeDir | 0777,
			wantDir:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.entry.FileInfo()

			assert.Equal(t, tt.wantName, info.Name())
			assert.Equal(t, tt.wantSize, info.Size())
			assert.Equal(t, tt.wantMode, info.Mode())
			assert.Equal(t, tt.wantDir, info.IsDir())
			assert.Equal(t, testTime, info.ModTime())
			assert.Equal(t, tt.entry, info.Sys())
		})
	}
}

func TestDirEntry_kind(t *testing.T) {
	tests := []struct {
		name       string
		entry      DirEntry
		wantFile   bool
		wantDir    bool
		wantListed bool
	}{
		{name: "file", entry: testEntry("A       TXT", 0), wantFile: true, wantListed: true},
		{name: "hidden system file", entry: testEntry("A       SYS", AttrHidden|AttrSystem), wantFile: true, wantListed: true},
		{name: "directory", entry: testEntry("DIR        ", AttrDirectory), wantDir: true, wantListed: true},
		{name: "volume label", entry: testEntry("LABEL      ", AttrVolumeID)},
		{name: "long name", entry: testEntry("A       TXT", AttrLongName)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFile, tt.entry.IsFile())
			assert.Equal(t, tt.wantDir, tt.entry.IsDir())
			assert.Equal(t, tt.wantListed, tt.entry.isFileOrDir())
		})
	}
}

func Test_rootFileInfo(t *testing.T) {
	var info os.FileInfo = rootFileInfo{}

	assert.Equal(t, "/", info.Name())
	assert.True(t, info.IsDir())
	assert.True(t, info.Mode().IsDir())
	assert.Equal(t, time.Time{}, info.ModTime())
	assert.Nil(t, info.Sys())
}
