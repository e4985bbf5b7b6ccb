package fat

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/tinydisk/fat/checkpoint"
)

// rootStartSector returns the first sector of the root directory: the fixed
// region after the FATs on FAT16, the root cluster on FAT32.
func (fs *Fs) rootStartSector() uint32 {
	if fs.info.Type == FAT32 {
		return fs.clusterToSector(fs.info.RootCluster)
	}
	return uint32(fs.info.ReservedSectors) + uint32(fs.info.NumFATs)*fs.info.FATSize
}

// lookup scans the directory the sector cache currently points into for a
// byte-exact 11-byte name match, advancing sector by sector until a match,
// an end-of-directory marker or the end of the directory chain.
// On success it returns the decoded entry and its (sector, offset) location.
func (fs *Fs) lookup(name [11]byte) (EntryHeader, uint32, uint16, error) {
	bps := int(fs.info.BytesPerSector)
	for {
		for off := 0; off+entrySize <= bps; off += entrySize {
			slot := fs.sector.buffer[off:]
			if slot[0] == entryFree {
				// No more entries in this directory.
				return EntryHeader{}, 0, 0, checkpoint.From(ErrNotFound)
			}
			if bytes.Equal(slot[:11], name[:]) {
				entry, err := decodeEntryHeader(slot)
				if err != nil {
					return EntryHeader{}, 0, 0, checkpoint.From(err)
				}
				return entry, fs.sector.current, uint16(off), nil
			}
		}
		if err := fs.nextSector(); err != nil {
			if errors.Is(err, errEndOfChain) {
				return EntryHeader{}, 0, 0, checkpoint.Wrap(err, ErrNotFound)
			}
			return EntryHeader{}, 0, 0, err
		}
	}
}

// resolveEntry walks the path component by component starting at the root
// directory. A missing final component is created as a zeroed entry when
// create is true; a missing intermediate component always fails with
// ErrNotFound. Resolving the bare root yields a synthetic directory entry
// with no on-disk location.
func (fs *Fs) resolveEntry(path string, create bool) (EntryHeader, uint32, uint16, error) {
	if fs.device == nil {
		return EntryHeader{}, 0, 0, checkpoint.From(ErrNotMounted)
	}

	var pr pathResolver
	pr.reset(path)

	dirSector := fs.rootStartSector()
	var (
		entry EntryHeader
		sec   uint32
		off   uint16
		found bool
	)
	for {
		ok, err := pr.nextPart()
		if err != nil {
			return EntryHeader{}, 0, 0, err
		}
		if !ok {
			break
		}

		if err := fs.fetch(dirSector); err != nil {
			return EntryHeader{}, 0, 0, err
		}
		entry, sec, off, err = fs.lookup(pr.name)
		if err != nil {
			if errors.Is(err, ErrNotFound) && create && pr.isFilePart() {
				e := EntryHeader{Name: pr.name}
				e.CreateDate, e.CreateTime = encodeDatetime(time.Now())
				e.WriteDate, e.WriteTime = e.CreateDate, e.CreateTime
				sec, off, err = fs.insertEntry(&e)
				if err != nil {
					return EntryHeader{}, 0, 0, err
				}
				return e, sec, off, nil
			}
			return EntryHeader{}, 0, 0, err
		}
		found = true
		if !pr.isFilePart() {
			dirSector = fs.clusterToSector(entry.FirstCluster())
		}
	}

	if !found {
		// The path named the root directory itself. It has no entry of
		// its own; synthesize one so directory iteration can start there.
		root := EntryHeader{Attribute: AttrDirectory}
		if fs.info.Type == FAT32 {
			root.SetFirstCluster(fs.info.RootCluster)
		}
		return root, 0, 0, nil
	}
	return entry, sec, off, nil
}

// insertEntry writes a fresh directory entry into the first free or deleted
// slot of the directory the cache currently points into. If the chain has no
// free slot it is extended by one cluster and the entry is written at its
// start.
func (fs *Fs) insertEntry(e *EntryHeader) (uint32, uint16, error) {
	bps := int(fs.info.BytesPerSector)
	for {
		for off := 0; off+entrySize <= bps; off += entrySize {
			marker := fs.sector.buffer[off]
			if marker == entryFree || marker == entryDeleted {
				if err := encodeEntryHeader(e, fs.sector.buffer[off:]); err != nil {
					return 0, 0, checkpoint.From(err)
				}
				fs.sector.dirty = true
				return fs.sector.current, uint16(off), nil
			}
		}

		err := fs.nextSector()
		if err == nil {
			continue
		}
		if !errors.Is(err, errEndOfChain) {
			return 0, 0, err
		}

		// Directory chain exhausted: extend it by one cluster.
		if fs.sector.current < fs.info.FirstDataSector {
			// The FAT16 root region has a fixed size and cannot grow.
			return 0, 0, checkpoint.Wrap(fmt.Errorf("root directory is full"), ErrVolumeFull)
		}
		last := fs.sectorToCluster(fs.sector.current)
		free, err := fs.findFreeCluster(last)
		if err != nil {
			return 0, 0, err
		}
		if err := fs.writeFATEntry(last, fatEntry(free)); err != nil {
			return 0, 0, err
		}
		if err := fs.writeFATEntry(free, fs.eocValue()); err != nil {
			return 0, 0, err
		}

		// The fresh cluster still holds stale data; clear it so the end
		// marker after the new entry is well defined.
		if err := fs.zeroCluster(free); err != nil {
			return 0, 0, err
		}
		if err := fs.fetch(fs.clusterToSector(free)); err != nil {
			return 0, 0, err
		}
		if err := encodeEntryHeader(e, fs.sector.buffer); err != nil {
			return 0, 0, checkpoint.From(err)
		}
		fs.sector.dirty = true
		return fs.sector.current, 0, nil
	}
}

// updateEntry rewrites the file object's directory entry at its recorded
// location.
func (fs *Fs) updateEntry(f *fileObject) error {
	if err := fs.fetch(f.entrySector); err != nil {
		return err
	}
	if err := encodeEntryHeader(&f.entry, fs.sector.buffer[f.entryOffset:]); err != nil {
		return checkpoint.From(err)
	}
	fs.sector.dirty = true
	return nil
}

// removeEntry tombstones the entry at the given location: the first byte is
// set to the deleted marker and the rest of the record is zeroed.
func (fs *Fs) removeEntry(sector uint32, offset uint16) error {
	if err := fs.fetch(sector); err != nil {
		return err
	}
	for i := 0; i < entrySize; i++ {
		fs.sector.buffer[int(offset)+i] = 0
	}
	fs.sector.buffer[offset] = entryDeleted
	fs.sector.dirty = true
	return nil
}
