package sdfat

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_Mkdir(t *testing.T) {
	types := []struct {
		name   string
		blocks uint32
	}{
		{name: "FAT12", blocks: fat12Blocks},
		{name: "FAT16", blocks: fat16Blocks},
		{name: "FAT32", blocks: fat32Blocks},
	}
	for _, tt := range types {
		t.Run(tt.name, func(t *testing.T) {
			dev, fsys := newTestFs(t, tt.blocks, FormatConfig{})
			vol := fsys.Volume()

			var root File
			require.NoError(t, root.OpenRoot(vol))

			var dir File
			require.NoError(t, dir.Mkdir(&root, "A/B/C", true))
			assert.True(t, dir.IsSubDir())
			assert.Equal(t, vol.ClusterBytes(), dir.Size())
			require.NoError(t, dir.Close())

			var again File
			assert.ErrorIs(t, again.Mkdir(&root, "A/B/C", true), ErrAlreadyExists)
			assert.ErrorIs(t, again.Mkdir(&root, "X/Y", false), ErrNotFound)

			fsys = remount(t, fsys, dev)
			root = File{}
			require.NoError(t, root.OpenRoot(fsys.Volume()))

			var b File
			require.NoError(t, b.Open(&root, "/A/B", ORead))
			require.True(t, b.IsDir())

			// The new directory starts with "." and "..".
			var c File
			require.NoError(t, c.Open(&b, "C", ORead))
			buf := make([]byte, 2*dirEntrySize)
			_, err := io.ReadFull(&c, buf)
			require.NoError(t, err)

			dot := decodeDirEntry(buf)
			dotDot := decodeDirEntry(buf[dirEntrySize:])
			assert.Equal(t, dotName, dot.Name)
			assert.Equal(t, c.FirstCluster(), dot.FirstCluster())
			assert.True(t, dot.IsDir())
			assert.Equal(t, dotDotName, dotDot.Name)
			assert.Equal(t, b.FirstCluster(), dotDot.FirstCluster())

			// ".." of a directory in the root is 0.
			var a File
			require.NoError(t, a.Open(&root, "A", ORead))
			require.NoError(t, a.SeekSet(dirEntrySize))
			_, err = io.ReadFull(&a, buf[:dirEntrySize])
			require.NoError(t, err)
			aDotDot := decodeDirEntry(buf)
			assert.Equal(t, uint32(0), aDotDot.FirstCluster())
		})
	}
}

func TestFile_Mkdir_growsDirectory(t *testing.T) {
	_, fsys := newTestFs(t, fat16Blocks, FormatConfig{})
	require.NoError(t, fsys.Mkdir("BIG", 0))

	// One cluster holds 16 entries including "." and "..".
	for i := 0; i < 40; i++ {
		writeTestFile(t, fsys, fmt.Sprintf("BIG/F%d.TXT", i), []byte{byte(i)})
	}

	dir, err := fsys.OpenPath("BIG", ORead)
	require.NoError(t, err)
	assert.Equal(t, 3*fsys.Volume().ClusterBytes(), dir.Size())

	var names []string
	require.NoError(t, dir.List(false, func(_ int, entry DirEntry) error {
		names = append(names, entry.DisplayName())
		return nil
	}))
	assert.Len(t, names, 40)
	assert.Equal(t, "F39.TXT", names[39])

	got, err := readFileString(fsys, "BIG/F33.TXT")
	require.NoError(t, err)
	assert.Equal(t, string([]byte{33}), got)
}

func TestFile_Mkdir_fixedRootFull(t *testing.T) {
	_, fsys := newTestFs(t, fat12Blocks, FormatConfig{RootEntries: 16})

	for i := 0; i < 16; i++ {
		writeTestFile(t, fsys, fmt.Sprintf("F%d", i), nil)
	}

	_, err := fsys.OpenPath("ONEMORE", ORdWr|OCreate)
	assert.ErrorIs(t, err, ErrDeviceFull)
	assert.ErrorIs(t, fsys.Mkdir("DIR", 0), ErrDeviceFull)
}

func TestFile_Rmdir(t *testing.T) {
	_, fsys := newTestFs(t, fat16Blocks, FormatConfig{})
	vol := fsys.Volume()
	require.NoError(t, fsys.MkdirAll("A/B", 0))
	writeTestFile(t, fsys, "A/FILE.TXT", []byte("file"))

	freeBefore, err := vol.FreeClusterCount()
	require.NoError(t, err)

	var root File
	require.NoError(t, root.OpenRoot(vol))

	var a File
	require.NoError(t, a.Open(&root, "A", ORead))
	assert.ErrorIs(t, a.Rmdir(), ErrNotEmpty)

	var b File
	require.NoError(t, b.Open(&root, "A/B", ORead))
	require.NoError(t, b.Rmdir())
	assert.False(t, b.IsOpen())
	assert.False(t, fsys.Exists("A/B"))

	freeAfter, err := vol.FreeClusterCount()
	require.NoError(t, err)
	assert.Equal(t, freeBefore+1, freeAfter)

	var file File
	require.NoError(t, file.Open(&root, "A/FILE.TXT", ORead))
	assert.ErrorIs(t, file.Rmdir(), ErrNotADirectory)

	assert.ErrorIs(t, root.Rmdir(), ErrReadOnly)
}

func TestFile_RemoveAll(t *testing.T) {
	_, fsys := newTestFs(t, fat16Blocks, FormatConfig{})
	vol := fsys.Volume()

	freeBefore, err := vol.FreeClusterCount()
	require.NoError(t, err)

	require.NoError(t, fsys.MkdirAll("TREE/SUB/DEEP", 0))
	writeTestFile(t, fsys, "TREE/A.TXT", testData(2000))
	writeTestFile(t, fsys, "TREE/SUB/B.TXT", testData(10))
	writeTestFile(t, fsys, "TREE/SUB/DEEP/C.TXT", testData(600))
	writeTestFile(t, fsys, "KEEP.TXT", []byte("keep"))
	require.NoError(t, fsys.Chmod("TREE/SUB/B.TXT", 0444))

	var root File
	require.NoError(t, root.OpenRoot(vol))

	var tree File
	require.NoError(t, tree.Open(&root, "TREE", ORead))
	require.NoError(t, tree.RemoveAll())
	assert.False(t, fsys.Exists("TREE"))
	assert.True(t, fsys.Exists("KEEP.TXT"))

	freeAfter, err := vol.FreeClusterCount()
	require.NoError(t, err)
	assert.Equal(t, freeBefore-1, freeAfter)

	// The root directory is emptied, but not removed.
	var again File
	require.NoError(t, again.OpenRoot(vol))
	require.NoError(t, again.RemoveAll())
	assert.True(t, again.IsOpen())

	entries, err := fsys.ListDir("/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	freeAfter, err = vol.FreeClusterCount()
	require.NoError(t, err)
	assert.Equal(t, freeBefore, freeAfter)
}

func TestFile_OpenParent(t *testing.T) {
	types := []struct {
		name   string
		blocks uint32
	}{
		{name: "FAT16", blocks: fat16Blocks},
		{name: "FAT32", blocks: fat32Blocks},
	}
	for _, tt := range types {
		t.Run(tt.name, func(t *testing.T) {
			_, fsys := newTestFs(t, tt.blocks, FormatConfig{})
			require.NoError(t, fsys.MkdirAll("A/B/C", 0))
			writeTestFile(t, fsys, "A/OTHER.TXT", nil)

			c, err := fsys.OpenPath("A/B/C", ORead)
			require.NoError(t, err)

			var b File
			require.NoError(t, b.OpenParent(c))
			assert.Equal(t, "B", b.Name())

			var a File
			require.NoError(t, a.OpenParent(&b))
			assert.Equal(t, "A", a.Name())

			var root File
			require.NoError(t, root.OpenParent(&a))
			assert.True(t, root.IsRoot())

			var none File
			assert.ErrorIs(t, none.OpenParent(&root), ErrNotFound)
		})
	}
}

func TestFile_OpenParent_rootClusterDotDot(t *testing.T) {
	_, fsys := newTestFs(t, fat32Blocks, FormatConfig{})
	require.NoError(t, fsys.MkdirAll("A/B", 0))
	vol := fsys.vol

	a, err := fsys.OpenPath("A", ORead)
	require.NoError(t, err)

	// Some formatters store the root cluster instead of 0 in "..".
	buf, err := vol.CacheBlock(vol.ClusterStartBlock(a.FirstCluster()), CacheWrite)
	require.NoError(t, err)
	dotDot := decodeDirEntry(buf[dirEntrySize:])
	require.Equal(t, uint32(0), dotDot.FirstCluster())
	dotDot.setFirstCluster(vol.RootDirStart())
	dotDot.encode(buf[dirEntrySize:])
	require.NoError(t, vol.CacheFlush())

	b, err := fsys.OpenPath("A/B", ORead)
	require.NoError(t, err)

	var parentOfB File
	require.NoError(t, parentOfB.OpenParent(b))
	assert.Equal(t, "A", parentOfB.Name())
	assert.Equal(t, a.FirstCluster(), parentOfB.FirstCluster())

	var parentOfA File
	require.NoError(t, parentOfA.OpenParent(a))
	assert.True(t, parentOfA.IsRoot())
}

func TestFile_List(t *testing.T) {
	_, fsys := newTestFs(t, fat12Blocks, FormatConfig{Label: "LIST"})
	require.NoError(t, fsys.MkdirAll("DIR/SUB", 0))
	writeTestFile(t, fsys, "DIR/SUB/DEEP.TXT", nil)
	writeTestFile(t, fsys, "DIR/FILE.TXT", nil)
	writeTestFile(t, fsys, "TOP.TXT", nil)
	writeTestFile(t, fsys, "DELETED.TXT", nil)
	require.NoError(t, fsys.Remove("DELETED.TXT"))

	var root File
	require.NoError(t, root.OpenRoot(fsys.Volume()))

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{
			name: "flat",
			want: []string{"DIR", "TOP.TXT"},
		},
		{
			name:      "recursive",
			recursive: true,
			want:      []string{"DIR", "  SUB", "    DEEP.TXT", "  FILE.TXT", "TOP.TXT"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := root.List(tt.recursive, func(depth int, entry DirEntry) error {
				got = append(got, strings.Repeat("  ", depth)+entry.DisplayName())
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	errStop := errors.New("stop")
	err := root.List(false, func(int, DirEntry) error {
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
}

func TestFile_NextEntry(t *testing.T) {
	_, fsys := newTestFs(t, fat12Blocks, FormatConfig{})
	writeTestFile(t, fsys, "A.TXT", nil)

	var root File
	require.NoError(t, root.OpenRoot(fsys.Volume()))

	entry, err := root.NextEntry()
	require.NoError(t, err)
	assert.Equal(t, "A.TXT", entry.DisplayName())

	_, err = root.NextEntry()
	assert.Equal(t, io.EOF, err)

	require.NoError(t, root.SeekSet(3))
	_, err = root.NextEntry()
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func readFileString(fsys *Fs, name string) (string, error) {
	f, err := fsys.OpenPath(name, ORead)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	return string(data), err
}
