package sdfat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolume_CacheBlock(t *testing.T) {
	dev, vol := newTestVolume(t, fat16Blocks, FormatConfig{})
	data := vol.DataStartBlock()

	require.NoError(t, vol.CacheFlush())
	dev.Reads, dev.Writes = 0, 0

	buf, err := vol.CacheBlock(data, CacheRead)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.Reads)

	// A cached block is not read again.
	_, err = vol.CacheBlock(data, CacheWrite)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.Reads)
	buf[0] = 42

	block, ok := vol.CacheBlockNumber()
	assert.True(t, ok)
	assert.Equal(t, data, block)

	// Evicting a dirty block writes it back.
	_, err = vol.CacheBlock(data+1, CacheRead)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.Reads)
	assert.Equal(t, 1, dev.Writes)

	raw := make([]byte, BlockSize)
	require.NoError(t, dev.ReadBlock(data, raw))
	assert.Equal(t, byte(42), raw[0])

	// A clean block is dropped without a write.
	zero, err := vol.CacheZeroBlock(data + 2)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.Writes)
	assert.Equal(t, make([]byte, BlockSize), zero)

	require.NoError(t, vol.CacheFlush())
	assert.Equal(t, 2, dev.Writes)

	// Flushing a clean cache does nothing.
	require.NoError(t, vol.CacheFlush())
	assert.Equal(t, 2, dev.Writes)
}

func TestVolume_CacheFlush_mirrorsFAT(t *testing.T) {
	tests := []struct {
		name       string
		fatCount   uint8
		wantWrites int
	}{
		{name: "one FAT", fatCount: 1, wantWrites: 1},
		{name: "two FATs", fatCount: 2, wantWrites: 2},
		{name: "three FATs", fatCount: 3, wantWrites: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, vol := newTestVolume(t, fat16Blocks, FormatConfig{FATCount: tt.fatCount})
			assert.Equal(t, tt.fatCount, vol.FATCount())

			require.NoError(t, vol.CacheFlush())
			dev.Writes = 0

			_, err := vol.CacheBlock(vol.FATStartBlock()+1, CacheWrite)
			require.NoError(t, err)
			require.NoError(t, vol.CacheFlush())
			assert.Equal(t, tt.wantWrites, dev.Writes)
		})
	}
}

func TestVolume_CacheBlock_readError(t *testing.T) {
	_, vol := newTestVolume(t, fat12Blocks, FormatConfig{})

	_, err := vol.CacheBlock(fat12Blocks, CacheRead)
	assert.ErrorIs(t, err, ErrIO)

	_, ok := vol.CacheBlockNumber()
	assert.False(t, ok)
}

func Test_cacheState_String(t *testing.T) {
	tests := []struct {
		name  string
		state cacheState
		want  string
	}{
		{name: "empty", state: cacheEmpty, want: "empty"},
		{name: "clean", state: cacheClean, want: "clean"},
		{name: "dirty", state: cacheDirty, want: "dirty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}
