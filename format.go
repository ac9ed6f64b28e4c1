package sdfat

import (
	"encoding/binary"
	"strings"

	"github.com/aligator/sdfat/checkpoint"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FormatConfig describes the volume created by Format. Zero values select defaults.
type FormatConfig struct {
	// Type is chosen together with the smallest possible cluster size if 0.
	Type FATType
	// BlocksPerCluster must be a power of two up to 128.
	BlocksPerCluster uint8
	// Label has at most 11 characters.
	Label string
	// RootEntries is the size of the FAT12/16 root directory, 512 by default.
	RootEntries uint16
	// FATCount defaults to 2.
	FATCount uint8
	// VolumeID is random if 0.
	VolumeID uint32
}

const (
	defaultRootEntries = 512
	fat32ReservedCount = 32
	fat32FSInfoBlock   = 1
	fat32BackupBoot    = 6
	formatMedia        = 0xF8
)

// geometry is the layout of a volume to be formatted.
type geometry struct {
	fatType          FATType
	blocksPerCluster uint8
	reserved         uint16
	fatCount         uint8
	rootEntries      uint16
	blocksPerFAT     uint32
	clusterCount     uint32
}

func (g geometry) rootBlocks() uint32 {
	return (uint32(g.rootEntries)*dirEntrySize + BlockSize - 1) / BlockSize
}

func (g geometry) dataStart() uint32 {
	return uint32(g.reserved) + uint32(g.fatCount)*g.blocksPerFAT + g.rootBlocks()
}

func fatBlocksFor(t FATType, entries uint32) uint32 {
	var bytes uint32
	switch t {
	case FAT12:
		bytes = (entries*3 + 1) / 2
	case FAT16:
		bytes = entries * 2
	default:
		bytes = entries * 4
	}
	return (bytes + BlockSize - 1) / BlockSize
}

func clusterRange(t FATType) (uint32, uint32) {
	switch t {
	case FAT12:
		return 1, maxClustersFAT12
	case FAT16:
		return maxClustersFAT12 + 1, maxClustersFAT16
	default:
		return maxClustersFAT16 + 1, maxClustersFAT32
	}
}

// layout computes the geometry for a type and cluster size.
// It returns false if the cluster count does not fit the type.
func layout(blocks uint32, t FATType, blocksPerCluster uint8, rootEntries uint16, fatCount uint8) (geometry, bool) {
	g := geometry{
		fatType:          t,
		blocksPerCluster: blocksPerCluster,
		reserved:         1,
		fatCount:         fatCount,
		rootEntries:      rootEntries,
		blocksPerFAT:     1,
	}
	if t == FAT32 {
		g.reserved = fat32ReservedCount
		g.rootEntries = 0
	}

	// The FAT size depends on the cluster count and the other way round, so grow it until it covers all clusters.
	for {
		if g.dataStart() >= blocks {
			return g, false
		}
		g.clusterCount = (blocks - g.dataStart()) / uint32(blocksPerCluster)
		needed := fatBlocksFor(t, g.clusterCount+2)
		if needed <= g.blocksPerFAT {
			break
		}
		g.blocksPerFAT = needed
	}

	lo, hi := clusterRange(t)
	return g, g.clusterCount >= lo && g.clusterCount <= hi
}

func chooseGeometry(blocks uint32, cfg FormatConfig) (geometry, error) {
	rootEntries := cfg.RootEntries
	if rootEntries == 0 {
		rootEntries = defaultRootEntries
	}
	if rootEntries%dirEntriesPerBlk != 0 {
		return geometry{}, checkpoint.New(ErrInvalidLength, "root entries %d must fill whole blocks", rootEntries)
	}

	fatCount := cfg.FATCount
	if fatCount == 0 {
		fatCount = 2
	}

	clusterSizes := []uint8{1, 2, 4, 8, 16, 32, 64, 128}
	if cfg.BlocksPerCluster != 0 {
		spc := cfg.BlocksPerCluster
		if spc&(spc-1) != 0 {
			return geometry{}, checkpoint.New(ErrInvalidLength, "blocks per cluster %d is not a power of two", spc)
		}
		clusterSizes = []uint8{spc}
	}

	types := []FATType{FAT12, FAT16, FAT32}
	switch cfg.Type {
	case 0:
	case FAT12, FAT16, FAT32:
		types = []FATType{cfg.Type}
	default:
		return geometry{}, checkpoint.New(ErrUnsupported, "FAT type %d", cfg.Type)
	}

	for _, spc := range clusterSizes {
		for _, t := range types {
			if g, ok := layout(blocks, t, spc, rootEntries, fatCount); ok {
				return g, nil
			}
		}
	}
	return geometry{}, checkpoint.New(ErrInvalidLength, "no valid layout for %d blocks", blocks)
}

// formatLabel pads label to 11 characters. An empty label results in "NO NAME".
func formatLabel(label string) ([11]byte, error) {
	var raw [11]byte
	copy(raw[:], "NO NAME    ")
	if label == "" {
		return raw, nil
	}
	if len(label) > len(raw) {
		return raw, checkpoint.New(ErrInvalidName, "label %q is longer than 11 characters", label)
	}

	label = strings.ToUpper(label)
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c != ' ' && (c < 0x21 || c > 0x7E || strings.IndexByte(shortNameForbidden, c) >= 0 || c == '.') {
			return raw, checkpoint.New(ErrInvalidName, "label %q contains invalid character %q", label, c)
		}
	}

	copy(raw[:], label+strings.Repeat(" ", len(raw)-len(label)))
	return raw, nil
}

// Format creates an empty FAT volume of blocks blocks on dev.
func Format(dev BlockDevice, blocks uint32, cfg FormatConfig, opts ...Option) error {
	o := newOptions(opts)

	g, err := chooseGeometry(blocks, cfg)
	if err != nil {
		return err
	}

	label, err := formatLabel(cfg.Label)
	if err != nil {
		return err
	}

	serial := cfg.VolumeID
	if serial == 0 {
		id := uuid.New()
		serial = binary.LittleEndian.Uint32(id[:4])
	}

	bpb := BPB{
		JumpBoot:            [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:      BlockSize,
		SectorsPerCluster:   g.blocksPerCluster,
		ReservedSectorCount: g.reserved,
		NumFATs:             g.fatCount,
		RootEntryCount:      g.rootEntries,
		Media:               formatMedia,
		SectorsPerTrack:     63,
		NumberOfHeads:       255,
	}
	copy(bpb.OEMName[:], "SDFAT   ")

	if blocks < 0x10000 && g.fatType != FAT32 {
		bpb.TotalSectors16 = uint16(blocks)
	} else {
		bpb.TotalSectors32 = blocks
	}

	var ext interface{}
	if g.fatType == FAT32 {
		bpb.JumpBoot[1] = 0x58
		fat32Data := FAT32SpecificData{
			FATSize32:        g.blocksPerFAT,
			RootCluster:      2,
			FSInfo:           fat32FSInfoBlock,
			BackupBootSector: fat32BackupBoot,
			DriveNumber:      0x80,
			BootSignature:    0x29,
			VolumeID:         serial,
			VolumeLabel:      label,
		}
		copy(fat32Data.FileSystemType[:], "FAT32   ")
		ext = &fat32Data
	} else {
		bpb.FATSize16 = uint16(g.blocksPerFAT)
		fat16Data := FAT16SpecificData{
			DriveNumber:   0x80,
			BootSignature: 0x29,
			VolumeID:      serial,
			VolumeLabel:   label,
		}
		copy(fat16Data.FileSystemType[:], g.fatType.String()+"   ")
		ext = &fat16Data
	}

	boot, err := encodeBootBlock(bpb, ext)
	if err != nil {
		return checkpoint.Wrap(err, ErrIO)
	}

	w := formatWriter{dev: dev}

	// Clear the reserved region, all FATs and the root directory.
	clearCount := g.dataStart()
	if g.fatType == FAT32 {
		clearCount += uint32(g.blocksPerCluster)
	}
	w.zero(0, clearCount)

	w.write(0, boot)

	if g.fatType == FAT32 {
		info, err := encodeFSInfo(FSInfo{
			LeadSignature:   fsInfoLeadSignature,
			StructSignature: fsInfoStructSignature,
			// The root directory uses the first cluster.
			FreeCount:      g.clusterCount - 1,
			NextFree:       3,
			TrailSignature: fsInfoTrailSignature,
		})
		if err != nil {
			return checkpoint.Wrap(err, ErrIO)
		}
		w.write(fat32FSInfoBlock, info)
		w.write(fat32BackupBoot, boot)
		w.write(fat32BackupBoot+fat32FSInfoBlock, info)
	}

	// The first two FAT entries hold the media byte and an end of chain marker.
	fat := make([]byte, BlockSize)
	switch g.fatType {
	case FAT12:
		copy(fat, []byte{formatMedia, 0xFF, 0xFF})
	case FAT16:
		copy(fat, []byte{formatMedia, 0xFF, 0xFF, 0xFF})
	default:
		binary.LittleEndian.PutUint32(fat[0:], 0x0FFFFF00|formatMedia)
		binary.LittleEndian.PutUint32(fat[4:], fat32Mask)
		// Root directory cluster.
		binary.LittleEndian.PutUint32(fat[8:], fat32Mask)
	}
	for i := uint32(0); i < uint32(g.fatCount); i++ {
		w.write(uint32(g.reserved)+i*g.blocksPerFAT, fat)
	}

	if cfg.Label != "" {
		entry := DirEntry{
			Name:       label,
			Attr:       AttrVolumeID,
			WriteDate:  EncodeDate(defaultTimestamp),
			WriteTime:  EncodeTime(defaultTimestamp),
			CreateDate: EncodeDate(defaultTimestamp),
		}
		root := make([]byte, BlockSize)
		entry.encode(root)

		rootBlock := uint32(g.reserved) + uint32(g.fatCount)*g.blocksPerFAT
		w.write(rootBlock, root)
	}

	if w.err != nil {
		return w.err
	}

	o.logger.WithFields(logrus.Fields{
		"type":             g.fatType,
		"blocks":           blocks,
		"clusters":         g.clusterCount,
		"blocksPerCluster": g.blocksPerCluster,
		"blocksPerFAT":     g.blocksPerFAT,
	}).Info("formatted volume")

	return nil
}

// formatWriter keeps the first write error and skips all writes after it.
type formatWriter struct {
	dev   BlockDevice
	err   error
	zeros [BlockSize]byte
}

func (w *formatWriter) write(block uint32, data []byte) {
	if w.err != nil {
		return
	}
	if err := w.dev.WriteBlock(block, data); err != nil {
		w.err = checkpoint.Wrapf(err, ErrIO, "format block %d", block)
	}
}

func (w *formatWriter) zero(first, count uint32) {
	for block := first; block < first+count; block++ {
		w.write(block, w.zeros[:])
	}
}
