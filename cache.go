package sdfat

import (
	"github.com/aligator/sdfat/checkpoint"
)

// CacheIntent tells the cache whether the caller is going to modify the block.
type CacheIntent uint8

const (
	CacheRead CacheIntent = iota
	CacheWrite
)

type cacheState uint8

const (
	cacheEmpty cacheState = iota
	cacheClean
	cacheDirty
)

func (s cacheState) String() string {
	switch s {
	case cacheClean:
		return "clean"
	case cacheDirty:
		return "dirty"
	default:
		return "empty"
	}
}

// blockCache is the one block of the volume which is held in memory.
// Every block access of the volume and of all files goes through it.
type blockCache struct {
	buf   [BlockSize]byte
	block uint32
	state cacheState
}

// CacheBlock makes block the cached block and returns the cache buffer.
// The buffer is only valid until the next cache operation.
// With CacheWrite the block is marked dirty and written back before it gets evicted.
func (v *Volume) CacheBlock(block uint32, intent CacheIntent) ([]byte, error) {
	if err := v.checkMounted(); err != nil {
		return nil, err
	}
	return v.cacheBlock(block, intent)
}

// CacheZeroBlock makes block the cached block without reading it and fills it with zeros.
func (v *Volume) CacheZeroBlock(block uint32) ([]byte, error) {
	if err := v.checkMounted(); err != nil {
		return nil, err
	}
	return v.cacheZeroBlock(block)
}

// CacheFlush writes the cached block back if it is dirty.
func (v *Volume) CacheFlush() error {
	if err := v.checkMounted(); err != nil {
		return err
	}
	return v.cacheFlush()
}

// CacheBlockNumber returns the cached block and false if the cache is empty.
func (v *Volume) CacheBlockNumber() (uint32, bool) {
	return v.cache.block, v.cache.state != cacheEmpty
}

func (v *Volume) isCached(block uint32) bool {
	return v.cache.state != cacheEmpty && v.cache.block == block
}

func (v *Volume) cacheBlock(block uint32, intent CacheIntent) ([]byte, error) {
	c := &v.cache
	if !v.isCached(block) {
		if err := v.cacheFlush(); err != nil {
			return nil, err
		}

		if err := v.readBlock(block, c.buf[:]); err != nil {
			c.state = cacheEmpty
			return nil, err
		}
		c.block = block
		c.state = cacheClean
	}

	if intent == CacheWrite {
		c.state = cacheDirty
	}
	return c.buf[:], nil
}

func (v *Volume) cacheZeroBlock(block uint32) ([]byte, error) {
	if err := v.cacheFlush(); err != nil {
		return nil, err
	}

	c := &v.cache
	c.buf = [BlockSize]byte{}
	c.block = block
	c.state = cacheDirty
	return c.buf[:], nil
}

func (v *Volume) cacheFlush() error {
	c := &v.cache
	if c.state != cacheDirty {
		return nil
	}

	if err := v.writeBlock(c.block, c.buf[:]); err != nil {
		return err
	}

	// Blocks of the first FAT are mirrored into all other copies.
	if v.blocksPerFAT != 0 && c.block >= v.fatStartBlock && c.block-v.fatStartBlock < v.blocksPerFAT {
		for i := uint32(1); i < uint32(v.fatCount); i++ {
			if err := v.writeBlock(c.block+i*v.blocksPerFAT, c.buf[:]); err != nil {
				return err
			}
		}
	}

	c.state = cacheClean
	return nil
}

// cacheInvalidate drops the cached block without writing it back.
func (v *Volume) cacheInvalidate() {
	v.cache.state = cacheEmpty
}

func (v *Volume) readBlock(block uint32, dst []byte) error {
	if err := v.dev.ReadBlock(block, dst); err != nil {
		v.log.WithError(err).WithField("block", block).Warn("block read failed")
		return checkpoint.Wrapf(err, ErrIO, "read block %d", block)
	}
	return nil
}

func (v *Volume) writeBlock(block uint32, src []byte) error {
	if err := v.dev.WriteBlock(block, src); err != nil {
		v.log.WithError(err).WithField("block", block).Warn("block write failed")
		return checkpoint.Wrapf(err, ErrIO, "write block %d", block)
	}
	return nil
}
