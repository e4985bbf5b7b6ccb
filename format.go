package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tinydisk/fat/checkpoint"
)

const (
	// mediaHardDisk is the media descriptor for a hard disk (as opposed to
	// floppy).
	mediaHardDisk = 0xF8

	// extBootSignature marks the extended BPB fields as present.
	extBootSignature = 0x29

	fsinfoLeadSignature   = 0x41615252
	fsinfoStructSignature = 0x61417272
	fsinfoTrailSignature  = 0xAA550000
)

// FormatConfig selects the parameters of a fresh filesystem. The zero value
// picks sensible defaults for everything.
type FormatConfig struct {
	// Type is FAT16 or FAT32. Zero picks one based on the volume size.
	Type uint8

	// SectorsPerCluster must be a power of two. Defaults to 4.
	SectorsPerCluster uint8

	// NumFATs is the number of FAT copies. Defaults to 2.
	NumFATs uint8

	// RootEntryCount is the fixed root directory capacity of a FAT16
	// volume. Defaults to 512 and is ignored for FAT32.
	RootEntryCount uint16

	// Label is the volume label, at most 11 characters.
	Label string

	// VolumeID is the volume serial number.
	VolumeID uint32
}

// Format writes a fresh, empty filesystem spanning totalSectors sectors of
// the device. All data on the volume is lost. The resulting geometry must
// yield a cluster count in the valid range of the chosen type, otherwise
// ErrFormat is returned; adjust SectorsPerCluster or the volume size to fix
// that.
func Format(dev BlockDevice, totalSectors uint32, cfg FormatConfig) error {
	if cfg.SectorsPerCluster == 0 {
		cfg.SectorsPerCluster = 4
	}
	if cfg.NumFATs == 0 {
		cfg.NumFATs = 2
	}
	if cfg.RootEntryCount == 0 {
		cfg.RootEntryCount = 512
	}
	if cfg.Type == 0 {
		// 512 MiB at 512-byte sectors is the usual switchover point.
		if totalSectors < 1<<20 {
			cfg.Type = FAT16
		} else {
			cfg.Type = FAT32
		}
	}
	if cfg.Type != FAT16 && cfg.Type != FAT32 {
		return checkpoint.Wrap(fmt.Errorf("type %d", cfg.Type), ErrFormat)
	}
	if !isPowerOfTwo(uint32(cfg.SectorsPerCluster)) {
		return checkpoint.Wrap(fmt.Errorf("sectors per cluster %d is not a power of two", cfg.SectorsPerCluster), ErrFormat)
	}
	if len(cfg.Label) > 11 {
		return checkpoint.Wrap(fmt.Errorf("label %q is longer than 11 characters", cfg.Label), ErrFormat)
	}

	reserved := uint32(1)
	rootEntCnt := cfg.RootEntryCount
	spc := uint32(cfg.SectorsPerCluster)
	numFATs := uint32(cfg.NumFATs)
	if cfg.Type == FAT32 {
		reserved = 32
		rootEntCnt = 0
	}
	rootDirSecs := (uint32(rootEntCnt)*entrySize + SectorSize - 1) / SectorSize

	// FAT size estimation from the FAT specification. Slightly
	// overestimates, which only wastes a few sectors.
	tmp1 := totalSectors - (reserved + rootDirSecs)
	tmp2 := 256*spc + numFATs
	if cfg.Type == FAT32 {
		tmp2 /= 2
	}
	fatSize := (tmp1 + tmp2 - 1) / tmp2

	dataSectors := totalSectors - reserved - rootDirSecs - numFATs*fatSize
	clusters := dataSectors / spc
	switch cfg.Type {
	case FAT16:
		if clusters < 4085 || clusters >= 65525 {
			return checkpoint.Wrap(fmt.Errorf("%d clusters is outside the FAT16 range", clusters), ErrFormat)
		}
	case FAT32:
		if clusters < 65525 {
			return checkpoint.Wrap(fmt.Errorf("%d clusters is too few for FAT32", clusters), ErrFormat)
		}
	}

	boot, err := encodeBootSector(cfg, totalSectors, fatSize, rootEntCnt, reserved)
	if err != nil {
		return err
	}
	if err := dev.WriteBlock(0, boot); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	if cfg.Type == FAT32 {
		// FSInfo at sector 1 and a backup boot sector at sector 6.
		if err := dev.WriteBlock(1, encodeFSInfo(clusters)); err != nil {
			return checkpoint.Wrap(err, ErrDevice)
		}
		if err := dev.WriteBlock(6, boot); err != nil {
			return checkpoint.Wrap(err, ErrDevice)
		}
	}

	// Zero both FATs and the root directory region, then seed the reserved
	// FAT entries.
	zero := make([]byte, SectorSize)
	for s := reserved; s < reserved+numFATs*fatSize+rootDirSecs; s++ {
		if err := dev.WriteBlock(s, zero); err != nil {
			return checkpoint.Wrap(err, ErrDevice)
		}
	}
	if cfg.Type == FAT32 {
		// The root directory lives in cluster 2.
		first := reserved + numFATs*fatSize
		for s := first; s < first+spc; s++ {
			if err := dev.WriteBlock(s, zero); err != nil {
				return checkpoint.Wrap(err, ErrDevice)
			}
		}
	}

	fat0 := make([]byte, SectorSize)
	if cfg.Type == FAT16 {
		binary.LittleEndian.PutUint16(fat0[0:], 0xFF00|mediaHardDisk)
		binary.LittleEndian.PutUint16(fat0[2:], eocFAT16)
	} else {
		binary.LittleEndian.PutUint32(fat0[0:], 0x0FFFFF00|mediaHardDisk)
		binary.LittleEndian.PutUint32(fat0[4:], eocFAT32)
		// Cluster 2 holds the root directory.
		binary.LittleEndian.PutUint32(fat0[8:], eocFAT32)
	}
	for i := uint32(0); i < numFATs; i++ {
		if err := dev.WriteBlock(reserved+i*fatSize, fat0); err != nil {
			return checkpoint.Wrap(err, ErrDevice)
		}
	}

	if cfg.Label != "" {
		if err := writeLabelEntry(dev, cfg, reserved+numFATs*fatSize); err != nil {
			return err
		}
	}
	return nil
}

// encodeBootSector builds sector 0.
func encodeBootSector(cfg FormatConfig, totalSectors, fatSize uint32, rootEntCnt uint16, reserved uint32) ([]byte, error) {
	bpb := BPB{
		BSJumpBoot:          [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:      SectorSize,
		SectorsPerCluster:   cfg.SectorsPerCluster,
		ReservedSectorCount: uint16(reserved),
		NumFATs:             cfg.NumFATs,
		RootEntryCount:      rootEntCnt,
		Media:               mediaHardDisk,
		SectorsPerTrack:     32,
		NumberOfHeads:       4,
	}
	copy(bpb.BSOEMName[:], "TINYDISK")

	if totalSectors < 1<<16 && cfg.Type == FAT16 {
		bpb.TotalSectors16 = uint16(totalSectors)
	} else {
		bpb.TotalSectors32 = totalSectors
	}

	var label [11]byte
	copy(label[:], "           ")
	copy(label[:], cfg.Label)

	var tail bytes.Buffer
	if cfg.Type == FAT16 {
		bpb.FATSize16 = uint16(fatSize)
		var fsType [8]byte
		copy(fsType[:], "FAT16   ")
		for _, v := range []interface{}{
			uint8(0x80),           // drive number
			uint8(0),              // reserved
			uint8(extBootSignature),
			cfg.VolumeID,
			label,
			fsType,
		} {
			if err := binary.Write(&tail, binary.LittleEndian, v); err != nil {
				return nil, checkpoint.From(err)
			}
		}
	} else {
		data := FAT32SpecificData{
			FATSize:         fatSize,
			RootCluster:     2,
			FSInfo:          1,
			BkBootSector:    6,
			BSDriveNumber:   0x80,
			BSBootSignature: extBootSignature,
			BSVolumeID:      cfg.VolumeID,
			BSVolumeLabel:   label,
		}
		copy(data.BSFileSystemType[:], "FAT32   ")
		if err := binary.Write(&tail, binary.LittleEndian, &data); err != nil {
			return nil, checkpoint.From(err)
		}
	}
	copy(bpb.FATSpecificData[:], tail.Bytes())

	var w bytes.Buffer
	if err := binary.Write(&w, binary.LittleEndian, &bpb); err != nil {
		return nil, checkpoint.From(err)
	}
	buf := make([]byte, SectorSize)
	copy(buf, w.Bytes())
	buf[510] = 0x55
	buf[511] = 0xAA
	return buf, nil
}

// encodeFSInfo builds the FAT32 FS information sector. All clusters except
// the root directory start out free.
func encodeFSInfo(clusters uint32) []byte {
	buf := make([]byte, SectorSize)
	binary.LittleEndian.PutUint32(buf[0:], fsinfoLeadSignature)
	binary.LittleEndian.PutUint32(buf[484:], fsinfoStructSignature)
	binary.LittleEndian.PutUint32(buf[488:], clusters-1)
	binary.LittleEndian.PutUint32(buf[492:], 3) // next free cluster hint
	binary.LittleEndian.PutUint32(buf[508:], fsinfoTrailSignature)
	return buf
}

// writeLabelEntry puts a volume label entry into the first root directory
// slot.
func writeLabelEntry(dev BlockDevice, cfg FormatConfig, rootSector uint32) error {
	e := EntryHeader{Attribute: AttrVolumeID}
	copy(e.Name[:], "           ")
	copy(e.Name[:], cfg.Label)

	buf := make([]byte, SectorSize)
	if err := dev.ReadBlock(rootSector, buf); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	if err := encodeEntryHeader(&e, buf); err != nil {
		return checkpoint.From(err)
	}
	if err := dev.WriteBlock(rootSector, buf); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	return nil
}
