package fat

import (
	"log/slog"

	"github.com/tinydisk/fat/checkpoint"
)

// sectorNone marks the sector cache as empty.
const sectorNone = 0xFFFFFFFF

// Sector is the single-slot write-back cache for the one in-memory sector
// image. Every read and write of the volume goes through it; at most one
// sector is resident at any time.
type Sector struct {
	current uint32
	dirty   bool
	buffer  []byte
}

// readDevice performs one raw block read, yielding to the cooperative
// scheduler first if one is installed.
func (fs *Fs) readDevice(sector uint32, buf []byte) error {
	if fs.yield != nil {
		fs.yield.Yield()
	}
	return fs.device.ReadBlock(sector, buf)
}

// writeDevice performs one raw block write, yielding to the cooperative
// scheduler first if one is installed.
func (fs *Fs) writeDevice(sector uint32, buf []byte) error {
	if fs.yield != nil {
		fs.yield.Yield()
	}
	return fs.device.WriteBlock(sector, buf)
}

// fetch loads the given sector into the cache. It is a no-op if the sector
// is already resident and non-zero; a dirty resident sector is flushed
// first. After a failed device read the buffer contents are undefined and
// the cache is marked empty.
func (fs *Fs) fetch(sector uint32) error {
	if sector == fs.sector.current && sector != 0 {
		return nil
	}

	if err := fs.store(); err != nil {
		// Best effort: the flush failure is reported through the log but
		// must not wedge the cache.
		fs.warn("flush before fetch failed", slog.Any("err", err))
	}

	if err := fs.readDevice(sector, fs.sector.buffer); err != nil {
		fs.sector.current = sectorNone
		return checkpoint.Wrap(err, ErrDevice)
	}
	fs.sector.current = sector
	return nil
}

// store writes the resident sector back if it is dirty and clears the dirty
// flag. The flag is cleared even when the device write fails so that a
// broken device cannot make every later fetch retry the same write.
func (fs *Fs) store() error {
	if !fs.sector.dirty {
		return nil
	}
	fs.sector.dirty = false

	if err := fs.writeDevice(fs.sector.current, fs.sector.buffer); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	return nil
}

// zeroCluster writes zeroed sectors over the whole cluster, bypassing the
// cache. The cache keeps its resident sector; callers fetch afterwards.
func (fs *Fs) zeroCluster(cluster uint32) error {
	zero := make([]byte, SectorSize)
	first := fs.clusterToSector(cluster)
	for i := uint32(0); i < uint32(fs.info.SectorsPerCluster); i++ {
		if err := fs.writeDevice(first+i, zero); err != nil {
			return checkpoint.Wrap(err, ErrDevice)
		}
	}
	return nil
}

// nextSector flushes and advances the cache to the sector following the
// resident one, crossing into the next cluster of the chain when the
// resident sector is the last of its cluster. Inside the FAT16 root
// directory region it advances linearly until the region ends. Returns
// errEndOfChain when the chain terminates.
func (fs *Fs) nextSector() error {
	cur := fs.sector.current

	if cur < fs.info.FirstDataSector {
		// Root directory region (FAT16) or other non-cluster area.
		if cur+1 >= fs.info.FirstDataSector {
			return checkpoint.From(errEndOfChain)
		}
		return fs.fetch(cur + 1)
	}

	spc := uint32(fs.info.SectorsPerCluster)
	if (cur+1-fs.info.FirstDataSector)%spc != 0 {
		// Still inside the cluster.
		return fs.fetch(cur + 1)
	}

	entry, err := fs.readFATEntry(fs.sectorToCluster(cur))
	if err != nil {
		return err
	}
	if fs.isEOC(entry) {
		return checkpoint.From(errEndOfChain)
	}
	return fs.fetch(fs.clusterToSector(uint32(entry)))
}
