package sdfat

import (
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const (
	// Sizes resulting in the three FAT types with one block per cluster.
	fat12Blocks = 2048
	fat16Blocks = 32768
	fat32Blocks = 131072
)

var testTime = time.Date(2021, time.May, 6, 7, 8, 10, 0, time.UTC)

func testClock() time.Time {
	return testTime
}

func testOptions(opts ...Option) []Option {
	logger, _ := logtest.NewNullLogger()
	return append([]Option{WithLogger(logger)}, opts...)
}

// newTestDevice formats a new memory device.
func newTestDevice(t *testing.T, blocks uint32, cfg FormatConfig) *MemDevice {
	t.Helper()

	dev := NewMemDevice(blocks)
	require.NoError(t, Format(dev, blocks, cfg, testOptions()...))
	return dev
}

func newTestVolume(t *testing.T, blocks uint32, cfg FormatConfig, opts ...Option) (*MemDevice, *Volume) {
	t.Helper()

	dev := newTestDevice(t, blocks, cfg)
	vol, err := Mount(dev, testOptions(opts...)...)
	require.NoError(t, err)
	return dev, vol
}

func newTestFs(t *testing.T, blocks uint32, cfg FormatConfig, opts ...Option) (*MemDevice, *Fs) {
	t.Helper()

	dev := newTestDevice(t, blocks, cfg)
	fsys, err := New(dev, testOptions(opts...)...)
	require.NoError(t, err)
	return dev, fsys
}

// remount unmounts fsys and mounts dev again.
func remount(t *testing.T, fsys *Fs, dev BlockDevice, opts ...Option) *Fs {
	t.Helper()

	require.NoError(t, fsys.Unmount())
	fsys, err := New(dev, testOptions(opts...)...)
	require.NoError(t, err)
	return fsys
}

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7 % 251)
	}
	return data
}

// writeTestFile creates name with the given content and closes it.
func writeTestFile(t *testing.T, fsys *Fs, name string, data []byte) {
	t.Helper()

	f, err := fsys.OpenPath(name, ORdWr|OCreate|OTrunc)
	require.NoError(t, err)
	n, err := f.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, f.Close())
}
