package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/tinydisk/fat/checkpoint"
)

// fatEntry is one decoded File Allocation Table entry: the number of the
// next cluster in a chain, a free marker (0) or an end-of-chain marker.
// FAT32 entries are already masked to their 28 significant bits.
type fatEntry uint32

// End-of-chain thresholds and write values per format. The reserved high
// nibble of FAT32 entries never takes part in comparisons.
const (
	eocThresholdFAT16 = 0xFFF8
	eocThresholdFAT32 = 0x0FFFFFF8
	eocFAT16          = 0xFFFF
	eocFAT32          = 0x0FFFFFFF

	fat32Mask = 0x0FFFFFFF
)

// isEOC reports whether entry terminates a cluster chain on the mounted
// volume.
func (fs *Fs) isEOC(entry fatEntry) bool {
	if fs.info.Type == FAT16 {
		return entry >= eocThresholdFAT16
	}
	return entry&fat32Mask >= eocThresholdFAT32
}

// eocValue returns the end-of-chain marker written for the mounted format.
func (fs *Fs) eocValue() fatEntry {
	if fs.info.Type == FAT16 {
		return eocFAT16
	}
	return eocFAT32
}

// fatEntryWidth is the on-disk entry size in bytes.
func (fs *Fs) fatEntryWidth() uint32 {
	if fs.info.Type == FAT16 {
		return 2
	}
	return 4
}

// calcFATBlock maps a cluster number to the FAT sector holding its entry and
// the byte offset of the entry within that sector.
func (fs *Fs) calcFATBlock(cluster uint32) (sector uint32, offset uint32) {
	entOffset := cluster * fs.fatEntryWidth()
	sector = uint32(fs.info.ReservedSectors) + entOffset/uint32(fs.info.BytesPerSector)
	offset = entOffset % uint32(fs.info.BytesPerSector)
	return sector, offset
}

// readFATEntry decodes the FAT link of the given cluster through the sector
// cache.
func (fs *Fs) readFATEntry(cluster uint32) (fatEntry, error) {
	sector, offset := fs.calcFATBlock(cluster)
	if err := fs.fetch(sector); err != nil {
		return 0, err
	}
	if fs.info.Type == FAT16 {
		return fatEntry(binary.LittleEndian.Uint16(fs.sector.buffer[offset:])), nil
	}
	return fatEntry(binary.LittleEndian.Uint32(fs.sector.buffer[offset:]) & fat32Mask), nil
}

// writeFATEntry encodes value as the FAT link of the given cluster. FAT32
// writes preserve the reserved high four bits of the existing entry.
func (fs *Fs) writeFATEntry(cluster uint32, value fatEntry) error {
	sector, offset := fs.calcFATBlock(cluster)
	if err := fs.fetch(sector); err != nil {
		return err
	}
	if fs.info.Type == FAT16 {
		binary.LittleEndian.PutUint16(fs.sector.buffer[offset:], uint16(value))
	} else {
		old := binary.LittleEndian.Uint32(fs.sector.buffer[offset:])
		binary.LittleEndian.PutUint32(fs.sector.buffer[offset:], old&^uint32(fat32Mask)|uint32(value)&fat32Mask)
	}
	fs.sector.dirty = true
	return nil
}

// findFreeCluster scans the FAT sector by sector, starting at the sector
// holding the entry of hint, and returns the first cluster with a zero
// entry in ascending sector/offset order.
func (fs *Fs) findFreeCluster(hint uint32) (uint32, error) {
	width := fs.fatEntryWidth()
	bps := uint32(fs.info.BytesPerSector)
	sector, _ := fs.calcFATBlock(hint)
	fatEnd := uint32(fs.info.ReservedSectors) + fs.info.FATSize

	// Data clusters are numbered 2 through clusterCount()+1. The last FAT
	// sector usually holds slack entries past that; they back no storage
	// and must never be handed out.
	maxCluster := fs.clusterCount() + 1

	for ; sector < fatEnd; sector++ {
		if err := fs.fetch(sector); err != nil {
			return 0, err
		}
		for off := uint32(0); off+width <= bps; off += width {
			cluster := ((sector-uint32(fs.info.ReservedSectors))*bps + off) / width
			if cluster > maxCluster {
				return 0, checkpoint.Wrap(fmt.Errorf("no free cluster in FAT"), ErrVolumeFull)
			}
			var v uint32
			if width == 2 {
				v = uint32(binary.LittleEndian.Uint16(fs.sector.buffer[off:]))
			} else {
				v = binary.LittleEndian.Uint32(fs.sector.buffer[off:]) & fat32Mask
			}
			if v == 0 {
				return cluster, nil
			}
		}
	}
	return 0, checkpoint.Wrap(fmt.Errorf("no free cluster in FAT"), ErrVolumeFull)
}

// findNthCluster follows n links from start. It is the slow path used when a
// file object's cluster cache is stale. Once the chain terminates the end
// marker is returned unchanged; the walk never dereferences it as a cluster
// number.
func (fs *Fs) findNthCluster(start, n uint32) (uint32, error) {
	cluster := start
	for i := uint32(0); i < n; i++ {
		if cluster == 0 || fs.isEOC(fatEntry(cluster)) {
			return cluster, nil
		}
		entry, err := fs.readFATEntry(cluster)
		if err != nil {
			return 0, err
		}
		cluster = uint32(entry)
	}
	return cluster, nil
}

// resetChain walks the chain starting at the entry's first cluster and
// zeroes every link including the terminal marker, deallocating the whole
// chain. There is no rollback if a write fails mid-walk; an interrupted
// reset can leave an orphaned partial chain.
func (fs *Fs) resetChain(entry *EntryHeader) error {
	cluster := entry.FirstCluster()
	// The walk is bounded by the volume's cluster count so that a corrupt
	// cyclic chain terminates.
	limit := fs.clusterCount()
	for steps := uint32(0); cluster >= 2 && !fs.isEOC(fatEntry(cluster)); steps++ {
		if steps > limit {
			return checkpoint.Wrap(fmt.Errorf("cluster chain longer than the volume"), ErrFormat)
		}
		next, err := fs.readFATEntry(cluster)
		if err != nil {
			return err
		}
		if err := fs.writeFATEntry(cluster, 0); err != nil {
			return err
		}
		cluster = uint32(next)
	}
	return nil
}

// appendCluster allocates one free cluster and links it to the end of the
// file's chain. For a previously empty file the cluster becomes the
// entry's first cluster and the directory entry is rewritten. The file's
// cached last-visited cluster is updated to the new tail.
func (fs *Fs) appendCluster(f *fileObject) error {
	free, err := fs.findFreeCluster(0)
	if err != nil {
		return err
	}

	if f.firstCluster == 0 {
		if err := fs.writeFATEntry(free, fs.eocValue()); err != nil {
			return err
		}
		f.entry.SetFirstCluster(free)
		if err := fs.updateEntry(f); err != nil {
			return err
		}
		f.firstCluster = free
		f.n = 0
		f.nthCluster = free
		return nil
	}

	// Walk from the cached cluster to the current chain tail, keeping the
	// cache index in sync.
	tail := f.nthCluster
	next := fatEntry(tail)
	for !fs.isEOC(next) {
		tail = uint32(next)
		next, err = fs.readFATEntry(tail)
		if err != nil {
			return err
		}
		f.n++
	}

	if err := fs.writeFATEntry(tail, fatEntry(free)); err != nil {
		return err
	}
	if err := fs.writeFATEntry(free, fs.eocValue()); err != nil {
		return err
	}
	f.nthCluster = free
	return nil
}
