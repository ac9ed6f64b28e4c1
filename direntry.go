package sdfat

import (
	"encoding/binary"
	"os"
	"time"
)

const (
	dirEntrySize     = 32
	dirEntriesPerBlk = BlockSize / dirEntrySize

	// First name byte of a never used slot. All following slots are free as well.
	dirNameFree = 0x00
	// First name byte of a deleted slot.
	dirNameDeleted = 0xE5
	// Stored instead of a real 0xE5 as first name byte.
	dirNameE5 = 0x05

	// A directory may not grow beyond this many entries.
	maxDirEntries = 0xFFFF
)

// Directory entry attributes.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID

	// attrFileType are the bits which decide whether an entry is a file, a directory or a label.
	attrFileType = AttrVolumeID | AttrDirectory
)

// DirEntry is the 32 byte record describing a file or directory inside its parent.
type DirEntry struct {
	Name             [11]byte
	Attr             uint8
	NTReserved       uint8
	CreateTimeTenth  uint8
	CreateTime       uint16
	CreateDate       uint16
	AccessDate       uint16
	FirstClusterHigh uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

func decodeDirEntry(b []byte) DirEntry {
	_ = b[dirEntrySize-1]

	var e DirEntry
	copy(e.Name[:], b[0:11])
	e.Attr = b[11]
	e.NTReserved = b[12]
	e.CreateTimeTenth = b[13]
	e.CreateTime = binary.LittleEndian.Uint16(b[14:])
	e.CreateDate = binary.LittleEndian.Uint16(b[16:])
	e.AccessDate = binary.LittleEndian.Uint16(b[18:])
	e.FirstClusterHigh = binary.LittleEndian.Uint16(b[20:])
	e.WriteTime = binary.LittleEndian.Uint16(b[22:])
	e.WriteDate = binary.LittleEndian.Uint16(b[24:])
	e.FirstClusterLow = binary.LittleEndian.Uint16(b[26:])
	e.FileSize = binary.LittleEndian.Uint32(b[28:])
	return e
}

func (e *DirEntry) encode(b []byte) {
	_ = b[dirEntrySize-1]

	copy(b[0:11], e.Name[:])
	b[11] = e.Attr
	b[12] = e.NTReserved
	b[13] = e.CreateTimeTenth
	binary.LittleEndian.PutUint16(b[14:], e.CreateTime)
	binary.LittleEndian.PutUint16(b[16:], e.CreateDate)
	binary.LittleEndian.PutUint16(b[18:], e.AccessDate)
	binary.LittleEndian.PutUint16(b[20:], e.FirstClusterHigh)
	binary.LittleEndian.PutUint16(b[22:], e.WriteTime)
	binary.LittleEndian.PutUint16(b[24:], e.WriteDate)
	binary.LittleEndian.PutUint16(b[26:], e.FirstClusterLow)
	binary.LittleEndian.PutUint32(b[28:], e.FileSize)
}

// FirstCluster joins the high and low cluster halves.
func (e DirEntry) FirstCluster() uint32 {
	return uint32(e.FirstClusterHigh)<<16 | uint32(e.FirstClusterLow)
}

func (e *DirEntry) setFirstCluster(cluster uint32) {
	e.FirstClusterHigh = uint16(cluster >> 16)
	e.FirstClusterLow = uint16(cluster)
}

// IsFree reports a never used slot, which also ends the directory.
func (e *DirEntry) IsFree() bool {
	return e.Name[0] == dirNameFree
}

func (e *DirEntry) IsDeleted() bool {
	return e.Name[0] == dirNameDeleted
}

// IsDot reports the "." and ".." entries of a subdirectory.
func (e *DirEntry) IsDot() bool {
	return e.Name[0] == '.'
}

func (e *DirEntry) IsFile() bool {
	return e.Attr&attrFileType == 0
}

func (e *DirEntry) IsDir() bool {
	return e.Attr&attrFileType == AttrDirectory
}

func (e *DirEntry) isFileOrDir() bool {
	return e.Attr&AttrVolumeID == 0
}

func (e *DirEntry) IsReadOnly() bool {
	return e.Attr&AttrReadOnly != 0
}

// DisplayName is the name as it is usually printed, e.g. "FILE.TXT".
func (e *DirEntry) DisplayName() string {
	return displayName(e.Name)
}

// ModTime combines the write date and time.
func (e *DirEntry) ModTime() time.Time {
	return joinDateTime(e.WriteDate, e.WriteTime)
}

// FileInfo returns the entry as os.FileInfo.
func (e *DirEntry) FileInfo() os.FileInfo {
	return entryFileInfo{entry: *e}
}
