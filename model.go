// File model contains the structs which match the on-disk structures of the FAT filesystem.

package fat

import (
	"bytes"
	"encoding/binary"
)

// Directory entry attribute bits.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20

	attrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// Directory entry slot markers (first name byte).
const (
	entryFree    = 0x00 // no more entries in this directory
	entryDeleted = 0xE5 // slot is free for reuse
)

const entrySize = 32

// BPB is the BIOS parameter block as laid out in sector 0.
type BPB struct {
	BSJumpBoot          [3]byte
	BSOEMName           [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     [54]byte
}

// FAT32SpecificData is the layout of BPB.FATSpecificData on FAT32 volumes.
type FAT32SpecificData struct {
	FATSize          uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfo           uint16
	BkBootSector     uint16
	Reserved         [12]byte
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeID       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

// EntryHeader is the canonical 32-byte directory entry record.
type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// FirstCluster joins the split high/low halves of the entry's first cluster.
func (e *EntryHeader) FirstCluster() uint32 {
	return uint32(e.FirstClusterHI)<<16 | uint32(e.FirstClusterLO)
}

// SetFirstCluster splits cluster into the high/low halves of the entry.
func (e *EntryHeader) SetFirstCluster(cluster uint32) {
	e.FirstClusterHI = uint16(cluster >> 16)
	e.FirstClusterLO = uint16(cluster)
}

// IsFile reports whether the entry describes a regular file, which means it
// is neither a directory nor a volume label.
func (e *EntryHeader) IsFile() bool {
	return e.Attribute&AttrDirectory == 0 && e.Attribute&AttrVolumeID == 0
}

// IsReadOnly reports whether the read-only attribute bit is set.
func (e *EntryHeader) IsReadOnly() bool {
	return e.Attribute&AttrReadOnly != 0
}

// decodeEntryHeader reads one 32-byte directory entry record. Together with
// encodeEntryHeader it is the only place where raw directory entry bytes are
// interpreted.
func decodeEntryHeader(buf []byte) (EntryHeader, error) {
	var e EntryHeader
	err := binary.Read(bytes.NewReader(buf[:entrySize]), binary.LittleEndian, &e)
	return e, err
}

// encodeEntryHeader writes the 32-byte on-disk form of e into buf.
func encodeEntryHeader(e *EntryHeader, buf []byte) error {
	var w bytes.Buffer
	if err := binary.Write(&w, binary.LittleEndian, e); err != nil {
		return err
	}
	copy(buf[:entrySize], w.Bytes())
	return nil
}

// decodeFAT32Specific parses the FAT32 tail of the BPB.
func decodeFAT32Specific(bpb *BPB) (FAT32SpecificData, error) {
	var s FAT32SpecificData
	err := binary.Read(bytes.NewReader(bpb.FATSpecificData[:]), binary.LittleEndian, &s)
	return s, err
}
