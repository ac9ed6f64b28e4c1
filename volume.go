package sdfat

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/aligator/sdfat/checkpoint"
	"github.com/sirupsen/logrus"
)

// FATType is the width of the FAT entries of a volume.
type FATType uint8

const (
	FAT12 FATType = 12
	FAT16 FATType = 16
	FAT32 FATType = 32
)

func (t FATType) String() string {
	switch t {
	case FAT12, FAT16, FAT32:
		return fmt.Sprintf("FAT%d", uint8(t))
	default:
		return "unknown"
	}
}

// Cluster count limits which decide the FAT type.
const (
	maxClustersFAT12 = 4084
	maxClustersFAT16 = 65524
	maxClustersFAT32 = 0x0FFFFFF5

	fat32Mask = 0x0FFFFFFF
)

type options struct {
	logger logrus.FieldLogger
	clock  Clock
	fat12  bool
}

// Option configures a Volume or Fs.
type Option func(*options)

// WithLogger sets the logger, logrus.StandardLogger() is used by default.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the source of the timestamps of created and modified entries.
// Without a clock new entries get a fixed default date and modifications leave the dates untouched.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithoutFAT12 refuses to mount FAT12 volumes.
func WithoutFAT12() Option {
	return func(o *options) {
		o.fat12 = false
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: logrus.StandardLogger(),
		fat12:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Volume is a mounted FAT volume. It owns the FAT geometry and the single block cache.
// A Volume must only be used by one goroutine at a time.
type Volume struct {
	dev   BlockDevice
	log   logrus.FieldLogger
	clock Clock

	fatType          FATType
	blocksPerCluster uint8
	clusterSizeShift uint8
	clusterCount     uint32
	fatStartBlock    uint32
	blocksPerFAT     uint32
	fatCount         uint8
	// First block of the fixed root for FAT12/16, first cluster of the root for FAT32.
	rootDirStart      uint32
	rootDirEntryCount uint16
	dataStartBlock    uint32
	allocSearchStart  uint32

	label  string
	serial uint32

	cache blockCache
}

// Mount reads the boot block of dev and initializes the volume geometry.
func Mount(dev BlockDevice, opts ...Option) (*Volume, error) {
	o := newOptions(opts)

	v := &Volume{
		dev:   dev,
		log:   o.logger,
		clock: o.clock,
	}

	if err := v.init(o.fat12); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Volume) init(allowFAT12 bool) error {
	block, err := v.cacheBlock(0, CacheRead)
	if err != nil {
		return checkpoint.Wrap(err, ErrNotInitialized)
	}

	if binary.LittleEndian.Uint16(block[bootSignatureOffset:]) != bootSignature {
		return checkpoint.New(ErrNotInitialized, "missing boot signature")
	}

	bpb, err := decodeBPB(block)
	if err != nil {
		return checkpoint.Wrap(err, ErrNotInitialized)
	}

	// Check for valid jump instructions.
	if !(bpb.JumpBoot[0] == 0xEB && bpb.JumpBoot[2] == 0x90) && bpb.JumpBoot[0] != 0xE9 {
		return checkpoint.New(ErrNotInitialized, "no valid jump instruction")
	}

	if bpb.BytesPerSector != BlockSize {
		return checkpoint.New(ErrNotInitialized, "unsupported sector size %d", bpb.BytesPerSector)
	}

	// Sectors per cluster has to be a power of two.
	spc := bpb.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 {
		return checkpoint.New(ErrNotInitialized, "invalid sectors per cluster %d", spc)
	}
	v.clusterSizeShift = uint8(bits.TrailingZeros8(spc))
	v.blocksPerCluster = spc

	if bpb.ReservedSectorCount == 0 || bpb.NumFATs == 0 {
		return checkpoint.New(ErrNotInitialized, "invalid reserved sector count %d or FAT count %d", bpb.ReservedSectorCount, bpb.NumFATs)
	}

	if bpb.Media != 0xF0 && bpb.Media < 0xF8 {
		return checkpoint.New(ErrNotInitialized, "invalid media value 0x%X", bpb.Media)
	}

	fat32Data, err := bpb.fat32()
	if err != nil {
		return checkpoint.Wrap(err, ErrNotInitialized)
	}

	v.blocksPerFAT = uint32(bpb.FATSize16)
	if v.blocksPerFAT == 0 {
		v.blocksPerFAT = fat32Data.FATSize32
	}
	if v.blocksPerFAT == 0 {
		return checkpoint.New(ErrNotInitialized, "FAT size is 0")
	}

	v.fatCount = bpb.NumFATs
	v.fatStartBlock = uint32(bpb.ReservedSectorCount)
	v.rootDirEntryCount = bpb.RootEntryCount
	v.rootDirStart = v.fatStartBlock + uint32(bpb.NumFATs)*v.blocksPerFAT
	v.dataStartBlock = v.rootDirStart + (uint32(v.rootDirEntryCount)*dirEntrySize+BlockSize-1)/BlockSize

	totalBlocks := bpb.totalSectors()
	if totalBlocks <= v.dataStartBlock {
		return checkpoint.New(ErrNotInitialized, "volume of %d blocks has no data region", totalBlocks)
	}
	v.clusterCount = (totalBlocks - v.dataStartBlock) >> v.clusterSizeShift

	switch {
	case v.clusterCount <= maxClustersFAT12:
		if !allowFAT12 {
			return checkpoint.New(ErrNotInitialized, "FAT12 support disabled")
		}
		v.fatType = FAT12
	case v.clusterCount <= maxClustersFAT16:
		v.fatType = FAT16
	default:
		if v.clusterCount > maxClustersFAT32 {
			return checkpoint.New(ErrNotInitialized, "too many clusters %d", v.clusterCount)
		}
		v.fatType = FAT32
	}

	if v.fatType == FAT32 {
		v.rootDirStart = fat32Data.RootCluster
		v.serial = fat32Data.VolumeID
		v.label = trimLabel(fat32Data.VolumeLabel)
	} else {
		fat16Data, err := bpb.fat16()
		if err != nil {
			return checkpoint.Wrap(err, ErrNotInitialized)
		}
		v.serial = fat16Data.VolumeID
		v.label = trimLabel(fat16Data.VolumeLabel)
	}

	v.allocSearchStart = 2

	v.log.WithFields(logrus.Fields{
		"type":             v.fatType,
		"clusters":         v.clusterCount,
		"blocksPerCluster": v.blocksPerCluster,
		"fatStart":         v.fatStartBlock,
		"blocksPerFAT":     v.blocksPerFAT,
		"dataStart":        v.dataStartBlock,
	}).Debug("mounted volume")

	return nil
}

func trimLabel(raw [11]byte) string {
	label := strings.TrimRight(string(raw[:]), " \x00")
	if label == "NO NAME" {
		return ""
	}
	return label
}

// Unmount flushes the cache. The volume and its files can not be used afterwards.
func (v *Volume) Unmount() error {
	if err := v.CacheFlush(); err != nil {
		return err
	}
	v.cacheInvalidate()
	v.fatType = 0
	return nil
}

func (v *Volume) checkMounted() error {
	if v == nil || v.fatType == 0 {
		return checkpoint.From(ErrNotInitialized)
	}
	return nil
}

func (v *Volume) FATType() FATType {
	return v.fatType
}

func (v *Volume) BlocksPerCluster() uint8 {
	return v.blocksPerCluster
}

// ClusterBytes is the size of a cluster in bytes.
func (v *Volume) ClusterBytes() uint32 {
	return BlockSize << v.clusterSizeShift
}

func (v *Volume) ClusterCount() uint32 {
	return v.clusterCount
}

func (v *Volume) FATStartBlock() uint32 {
	return v.fatStartBlock
}

func (v *Volume) BlocksPerFAT() uint32 {
	return v.blocksPerFAT
}

func (v *Volume) FATCount() uint8 {
	return v.fatCount
}

// RootDirStart is the first block of the root directory on FAT12/16 and its first cluster on FAT32.
func (v *Volume) RootDirStart() uint32 {
	return v.rootDirStart
}

// RootDirEntryCount is the number of entries of a fixed root directory, 0 on FAT32.
func (v *Volume) RootDirEntryCount() uint16 {
	return v.rootDirEntryCount
}

func (v *Volume) DataStartBlock() uint32 {
	return v.dataStartBlock
}

// Label returns the volume label of the boot block.
func (v *Volume) Label() string {
	return v.label
}

func (v *Volume) Serial() uint32 {
	return v.serial
}

// ClusterStartBlock returns the first block of cluster.
func (v *Volume) ClusterStartBlock(cluster uint32) uint32 {
	return v.dataStartBlock + (cluster-2)<<v.clusterSizeShift
}

// isRootCluster reports whether a ".." entry with this cluster refers to the root directory.
// It is 0 by definition, but some formatters store the FAT32 root cluster instead.
func (v *Volume) isRootCluster(cluster uint32) bool {
	return cluster == 0 || (v.fatType == FAT32 && cluster == v.rootDirStart)
}

// blockOfCluster returns the block index inside its cluster for a byte position.
func (v *Volume) blockOfCluster(position uint32) uint8 {
	return uint8(position>>9) & (v.blocksPerCluster - 1)
}

// IsEOC reports whether a FAT value marks the end of a chain.
func (v *Volume) IsEOC(value uint32) bool {
	switch v.fatType {
	case FAT12:
		return value >= 0xFF8
	case FAT16:
		return value >= 0xFFF8
	default:
		return value >= 0x0FFFFFF8
	}
}

func (v *Volume) eocValue() uint32 {
	switch v.fatType {
	case FAT12:
		return 0xFFF
	case FAT16:
		return 0xFFFF
	default:
		return fat32Mask
	}
}

func (v *Volume) checkCluster(cluster uint32) error {
	if cluster < 2 || cluster > v.clusterCount+1 {
		return checkpoint.New(ErrIO, "cluster %d out of range", cluster)
	}
	return nil
}

// FATGet returns the FAT entry of cluster.
func (v *Volume) FATGet(cluster uint32) (uint32, error) {
	if err := v.checkMounted(); err != nil {
		return 0, err
	}
	if err := v.checkCluster(cluster); err != nil {
		return 0, err
	}

	switch v.fatType {
	case FAT12:
		// Two entries share three bytes and an entry may cross a block boundary.
		index := cluster + cluster>>1
		block := v.fatStartBlock + index>>9
		buf, err := v.cacheBlock(block, CacheRead)
		if err != nil {
			return 0, err
		}
		index &= 0x1FF
		value := uint32(buf[index])
		index++
		if index == BlockSize {
			if buf, err = v.cacheBlock(block+1, CacheRead); err != nil {
				return 0, err
			}
			index = 0
		}
		value |= uint32(buf[index]) << 8
		if cluster&1 != 0 {
			return value >> 4, nil
		}
		return value & 0xFFF, nil

	case FAT16:
		buf, err := v.cacheBlock(v.fatStartBlock+cluster>>8, CacheRead)
		if err != nil {
			return 0, err
		}
		return uint32(binary.LittleEndian.Uint16(buf[(cluster&0xFF)<<1:])), nil

	default:
		buf, err := v.cacheBlock(v.fatStartBlock+cluster>>7, CacheRead)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(buf[(cluster&0x7F)<<2:]) & fat32Mask, nil
	}
}

// FATPut sets the FAT entry of cluster. The change stays in the cache until it gets flushed.
func (v *Volume) FATPut(cluster, value uint32) error {
	if err := v.checkMounted(); err != nil {
		return err
	}
	if err := v.checkCluster(cluster); err != nil {
		return err
	}

	switch v.fatType {
	case FAT12:
		index := cluster + cluster>>1
		block := v.fatStartBlock + index>>9
		buf, err := v.cacheBlock(block, CacheWrite)
		if err != nil {
			return err
		}
		index &= 0x1FF

		b := uint8(value)
		if cluster&1 != 0 {
			b = buf[index]&0x0F | uint8(value<<4)
		}
		buf[index] = b

		index++
		if index == BlockSize {
			if buf, err = v.cacheBlock(block+1, CacheWrite); err != nil {
				return err
			}
			index = 0
		}

		b = uint8(value >> 4)
		if cluster&1 == 0 {
			b = buf[index]&0xF0 | uint8(value>>8)&0x0F
		}
		buf[index] = b
		return nil

	case FAT16:
		buf, err := v.cacheBlock(v.fatStartBlock+cluster>>8, CacheWrite)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(buf[(cluster&0xFF)<<1:], uint16(value))
		return nil

	default:
		buf, err := v.cacheBlock(v.fatStartBlock+cluster>>7, CacheWrite)
		if err != nil {
			return err
		}
		offset := (cluster & 0x7F) << 2
		// The upper four bits are reserved and must be preserved.
		old := binary.LittleEndian.Uint32(buf[offset:])
		binary.LittleEndian.PutUint32(buf[offset:], old&^fat32Mask|value&fat32Mask)
		return nil
	}
}

// FATPutEOC marks cluster as the last cluster of its chain.
func (v *Volume) FATPutEOC(cluster uint32) error {
	return v.FATPut(cluster, v.eocValue())
}

// AllocContiguous allocates count consecutive free clusters, links them into a chain
// and returns the first one. If prev is not 0 the new clusters are appended to prev
// and the search starts right after it to keep the file contiguous.
//
// The search is first fit, starting where the last single cluster allocation of a new chain
// ended and wrapping around at the end of the FAT.
func (v *Volume) AllocContiguous(count, prev uint32) (uint32, error) {
	if err := v.checkMounted(); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, checkpoint.New(ErrInvalidLength, "allocate 0 clusters")
	}

	var bgnCluster uint32
	setStart := false
	if prev != 0 {
		bgnCluster = prev + 1
	} else {
		bgnCluster = v.allocSearchStart
		setStart = count == 1
	}

	endCluster := bgnCluster
	fatEnd := v.clusterCount + 1

	for n := uint32(0); ; n, endCluster = n+1, endCluster+1 {
		if n >= v.clusterCount {
			v.log.WithField("count", count).Debug("no free clusters left")
			return 0, checkpoint.New(ErrDeviceFull, "no run of %d free clusters", count)
		}

		// Past the end, continue at the beginning of the FAT.
		if endCluster > fatEnd {
			bgnCluster, endCluster = 2, 2
		}

		value, err := v.FATGet(endCluster)
		if err != nil {
			return 0, err
		}

		if value != 0 {
			// In use, the run has to start after it.
			bgnCluster = endCluster + 1
		} else if endCluster-bgnCluster+1 == count {
			break
		}
	}

	if err := v.FATPutEOC(endCluster); err != nil {
		return 0, err
	}
	for ; endCluster > bgnCluster; endCluster-- {
		if err := v.FATPut(endCluster-1, endCluster); err != nil {
			return 0, err
		}
	}

	if prev != 0 {
		if err := v.FATPut(prev, bgnCluster); err != nil {
			return 0, err
		}
	}

	if setStart {
		v.allocSearchStart = bgnCluster + 1
	}

	v.log.WithFields(logrus.Fields{
		"first": bgnCluster,
		"count": count,
		"prev":  prev,
	}).Debug("allocated clusters")

	return bgnCluster, nil
}

// FreeChain marks all clusters of the chain starting at cluster as free.
// Cluster 0 is the chain of an empty file and is ignored.
func (v *Volume) FreeChain(cluster uint32) error {
	if err := v.checkMounted(); err != nil {
		return err
	}
	if cluster == 0 {
		return nil
	}

	// Freed clusters are likely before the current search start.
	v.allocSearchStart = 2

	for {
		next, err := v.FATGet(cluster)
		if err != nil {
			return err
		}
		if err := v.FATPut(cluster, 0); err != nil {
			return err
		}
		if v.IsEOC(next) {
			return nil
		}
		cluster = next
	}
}

// ChainSize returns the number of bytes covered by the chain starting at cluster.
// A chain which loops back onto itself is not detected.
func (v *Volume) ChainSize(cluster uint32) (uint32, error) {
	var size uint32
	for {
		next, err := v.FATGet(cluster)
		if err != nil {
			return 0, err
		}
		size += v.ClusterBytes()
		if v.IsEOC(next) {
			return size, nil
		}
		cluster = next
	}
}

// FreeClusterCount counts the free clusters by scanning the whole FAT.
func (v *Volume) FreeClusterCount() (uint32, error) {
	if err := v.checkMounted(); err != nil {
		return 0, err
	}

	var free uint32
	for cluster := uint32(2); cluster <= v.clusterCount+1; cluster++ {
		value, err := v.FATGet(cluster)
		if err != nil {
			return 0, err
		}
		if value == 0 {
			free++
		}
	}
	return free, nil
}

func (v *Volume) now() (time.Time, bool) {
	if v.clock == nil {
		return defaultTimestamp, false
	}
	return v.clock(), true
}
