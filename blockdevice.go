package sdfat

import (
	"errors"
	"fmt"
	"io"
)

// BlockSize is the only supported block (sector) size.
const BlockSize = 512

// BlockDevice is the raw storage the volume lives on.
// Both methods transfer exactly one block of BlockSize bytes.
// Generated mock using mockgen:
//  mockgen -source=blockdevice.go -destination=blockdevice_mock.go -package sdfat
type BlockDevice interface {
	ReadBlock(block uint32, dst []byte) error
	WriteBlock(block uint32, src []byte) error
}

// ImageReadWriter is implemented by *os.File and afero.File.
type ImageReadWriter interface {
	io.ReaderAt
	io.WriterAt
}

// ImageDevice is a BlockDevice backed by a volume image.
// Reading past the end of a short (or sparse) image yields zeros.
type ImageDevice struct {
	rw     ImageReadWriter
	offset int64
}

// NewImageDevice uses rw as block device starting at byte 0.
func NewImageDevice(rw ImageReadWriter) *ImageDevice {
	return &ImageDevice{rw: rw}
}

// NewImageDeviceAt uses rw as block device whose block 0 starts at the given byte offset.
func NewImageDeviceAt(rw ImageReadWriter, offset int64) *ImageDevice {
	return &ImageDevice{rw: rw, offset: offset}
}

func (d *ImageDevice) ReadBlock(block uint32, dst []byte) error {
	if len(dst) != BlockSize {
		return fmt.Errorf("read block %d: buffer size %d", block, len(dst))
	}

	n, err := d.rw.ReadAt(dst, d.offset+int64(block)*BlockSize)
	// afero's MemMapFs reports reads starting past the end as io.ErrUnexpectedEOF.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		for i := n; i < BlockSize; i++ {
			dst[i] = 0
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read block %d: %w", block, err)
	}
	return nil
}

func (d *ImageDevice) WriteBlock(block uint32, src []byte) error {
	if len(src) != BlockSize {
		return fmt.Errorf("write block %d: buffer size %d", block, len(src))
	}

	if _, err := d.rw.WriteAt(src, d.offset+int64(block)*BlockSize); err != nil {
		return fmt.Errorf("write block %d: %w", block, err)
	}
	return nil
}

// MemDevice is a sparse in-memory BlockDevice. Blocks never written read as zeros.
type MemDevice struct {
	blocks map[uint32]*[BlockSize]byte
	count  uint32

	// Reads and Writes count the device accesses.
	Reads  int
	Writes int
}

// NewMemDevice creates an empty device with the given number of blocks.
func NewMemDevice(blocks uint32) *MemDevice {
	return &MemDevice{
		blocks: make(map[uint32]*[BlockSize]byte),
		count:  blocks,
	}
}

// BlockCount returns the device size in blocks.
func (m *MemDevice) BlockCount() uint32 {
	return m.count
}

func (m *MemDevice) ReadBlock(block uint32, dst []byte) error {
	if block >= m.count {
		return fmt.Errorf("read block %d: beyond device end %d", block, m.count)
	}
	m.Reads++

	if b, ok := m.blocks[block]; ok {
		copy(dst, b[:])
		return nil
	}
	for i := range dst {
		dst[i] = 0
	}
	return nil
}

func (m *MemDevice) WriteBlock(block uint32, src []byte) error {
	if block >= m.count {
		return fmt.Errorf("write block %d: beyond device end %d", block, m.count)
	}
	m.Writes++

	b, ok := m.blocks[block]
	if !ok {
		b = new([BlockSize]byte)
		m.blocks[block] = b
	}
	copy(b[:], src)
	return nil
}
