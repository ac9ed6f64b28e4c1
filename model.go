// File model contains the structs which match the direct structures of the FAT filesystem.
// They are decoded and encoded with restruct, field by field in little endian order.

package sdfat

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
)

const (
	bootSignatureOffset = 510
	bootSignature       = 0xAA55

	fsInfoLeadSignature   = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000
)

// BPB is the BIOS parameter block at the start of block 0 of every FAT volume.
type BPB struct {
	JumpBoot            [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	NumFATs             uint8
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               uint8
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     [54]byte
}

// FAT16SpecificData is the BPB extension of FAT12 and FAT16 volumes.
type FAT16SpecificData struct {
	DriveNumber    uint8
	Reserved1      uint8
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

// FAT32SpecificData is the BPB extension of FAT32 volumes.
type FAT32SpecificData struct {
	FATSize32        uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfo           uint16
	BackupBootSector uint16
	Reserved         [12]byte
	DriveNumber      uint8
	Reserved1        uint8
	BootSignature    uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	FileSystemType   [8]byte
}

// FSInfo is the FAT32 file system information block.
type FSInfo struct {
	LeadSignature   uint32
	Reserved1       [480]byte
	StructSignature uint32
	FreeCount       uint32
	NextFree        uint32
	Reserved2       [12]byte
	TrailSignature  uint32
}

func (b *BPB) totalSectors() uint32 {
	if b.TotalSectors16 != 0 {
		return uint32(b.TotalSectors16)
	}
	return b.TotalSectors32
}

func (b *BPB) fat16() (FAT16SpecificData, error) {
	var ext FAT16SpecificData
	err := restruct.Unpack(b.FATSpecificData[:], binary.LittleEndian, &ext)
	return ext, err
}

func (b *BPB) fat32() (FAT32SpecificData, error) {
	var ext FAT32SpecificData
	err := restruct.Unpack(b.FATSpecificData[:], binary.LittleEndian, &ext)
	return ext, err
}

func decodeBPB(block []byte) (BPB, error) {
	var bpb BPB
	err := restruct.Unpack(block, binary.LittleEndian, &bpb)
	return bpb, err
}

// encodeBootBlock packs bpb into a full boot block including its signature.
// ext is either a FAT16SpecificData or a FAT32SpecificData.
func encodeBootBlock(bpb BPB, ext interface{}) ([]byte, error) {
	extData, err := restruct.Pack(binary.LittleEndian, ext)
	if err != nil {
		return nil, err
	}
	copy(bpb.FATSpecificData[:], extData)

	data, err := restruct.Pack(binary.LittleEndian, &bpb)
	if err != nil {
		return nil, err
	}

	block := make([]byte, BlockSize)
	copy(block, data)
	binary.LittleEndian.PutUint16(block[bootSignatureOffset:], bootSignature)
	return block, nil
}

func encodeFSInfo(info FSInfo) ([]byte, error) {
	return restruct.Pack(binary.LittleEndian, &info)
}
