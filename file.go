package fat

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/tinydisk/fat/checkpoint"
)

// Open mode flags. Write and append imply that a missing file is created.
const (
	FlagRead = 1 << iota
	FlagWrite
	FlagAppend
)

// fileObject is one slot of the fixed open-file pool. It carries a copy of
// the on-disk directory entry, the entry's location for the rewrite on
// close, and a cache of the last visited cluster so sequential access does
// not re-walk the chain from the start.
type fileObject struct {
	entry       EntryHeader
	entrySector uint32
	entryOffset uint16

	firstCluster uint32
	nthCluster   uint32 // cluster most recently visited
	n            uint32 // chain index of nthCluster
}

// fileDescriptor is the per-open cursor state. A nil file pointer marks the
// slot as free; every pool scan skips such slots.
type fileDescriptor struct {
	offset uint32
	flags  int
	file   *fileObject
}

// descriptor validates fd and returns its descriptor slot.
func (fs *Fs) descriptor(fd int) (*fileDescriptor, error) {
	if fd < 0 || fd >= FdPoolSize {
		return nil, checkpoint.From(ErrBadDescriptor)
	}
	d := &fs.fds[fd]
	if d.file == nil {
		return nil, checkpoint.From(ErrBadDescriptor)
	}
	return d, nil
}

// Open opens the file at path and returns its descriptor. With FlagWrite or
// FlagAppend a missing file is created; FlagAppend additionally seeks to the
// end of the file. Directories and volume labels cannot be opened.
func (fs *Fs) Open(path string, flags int) (int, error) {
	if fs.device == nil {
		return -1, checkpoint.From(ErrNotMounted)
	}

	fd := -1
	for i := range fs.fds {
		if fs.fds[i].file == nil {
			fd = i
			break
		}
	}
	if fd == -1 {
		return -1, checkpoint.From(ErrPoolExhausted)
	}

	create := flags&(FlagWrite|FlagAppend) != 0
	entry, sec, off, err := fs.resolveEntry(path, create)
	if err != nil {
		return -1, err
	}
	if !entry.IsFile() {
		return -1, checkpoint.Wrap(fmt.Errorf("open %q", path), ErrNotAFile)
	}
	fs.dumpEntry(&entry)
	if create && entry.IsReadOnly() {
		return -1, checkpoint.Wrap(fmt.Errorf("open %q for writing", path), ErrPermission)
	}

	f := &fs.files[fd]
	f.entry = entry
	f.entrySector = sec
	f.entryOffset = off
	f.firstCluster = entry.FirstCluster()
	f.nthCluster = f.firstCluster
	f.n = 0

	d := &fs.fds[fd]
	d.file = f
	d.flags = flags
	d.offset = 0

	if flags&FlagAppend != 0 {
		if _, err := fs.Seek(fd, 0, io.SeekEnd); err != nil {
			d.file = nil
			return -1, err
		}
	}
	return fd, nil
}

// loadFileSector brings the sector holding the byte at cluster index
// clusterIdx, sector clusterOff within that cluster, into the cache. The
// file's cluster cache provides three paths: exact reuse, single link
// follow, and the full re-walk from the first cluster. With write set the
// chain is extended once it runs out.
func (fs *Fs) loadFileSector(f *fileObject, clusterIdx, clusterOff uint32, write bool) error {
	var cluster uint32
	switch {
	case clusterIdx == f.n:
		cluster = f.nthCluster
	case clusterIdx == f.n+1:
		e, err := fs.readFATEntry(f.nthCluster)
		if err != nil {
			return err
		}
		cluster = uint32(e)
	default:
		c, err := fs.findNthCluster(f.firstCluster, clusterIdx)
		if err != nil {
			return err
		}
		cluster = c
	}

	if cluster == 0 || fs.isEOC(fatEntry(cluster)) {
		if !write {
			return checkpoint.From(errEndOfChain)
		}
		if err := fs.appendCluster(f); err != nil {
			return err
		}
		cluster = f.nthCluster
	} else {
		f.nthCluster = cluster
		f.n = clusterIdx
	}

	return fs.fetch(fs.clusterToSector(cluster) + clusterOff)
}

// Read copies up to len(buf) bytes from the file into buf, starting at the
// descriptor's cursor, and advances the cursor. Reading an empty file (no
// cluster allocated) returns 0 immediately; reading at end of file returns
// 0 as well.
func (fs *Fs) Read(fd int, buf []byte) (int, error) {
	d, err := fs.descriptor(fd)
	if err != nil {
		return -1, err
	}
	if d.flags&FlagRead == 0 {
		return -1, checkpoint.From(ErrPermission)
	}
	f := d.file
	if f.firstCluster == 0 {
		return 0, nil
	}

	bps := uint32(fs.info.BytesPerSector)
	spc := uint32(fs.info.SectorsPerCluster)
	size := f.entry.FileSize

	read := 0
	offset := d.offset % bps
	clusterIdx := (d.offset / bps) / spc
	clusterOff := (d.offset / bps) % spc

	for read < len(buf) && d.offset < size {
		if err := fs.loadFileSector(f, clusterIdx, clusterOff, false); err != nil {
			if errors.Is(err, errEndOfChain) {
				break
			}
			return read, err
		}
		for i := offset; i < bps && read < len(buf) && d.offset < size; i++ {
			buf[read] = fs.sector.buffer[i]
			read++
			d.offset++
		}
		offset = 0
		clusterOff++
		if clusterOff == spc {
			clusterOff = 0
			clusterIdx++
		}
	}
	return read, nil
}

// Write copies len(buf) bytes from buf into the file at the descriptor's
// cursor, extending the cluster chain as needed. The size field grows by
// exactly the number of bytes written beyond the previous end of file.
func (fs *Fs) Write(fd int, buf []byte) (int, error) {
	d, err := fs.descriptor(fd)
	if err != nil {
		return -1, err
	}
	if d.flags&(FlagWrite|FlagAppend) == 0 {
		return -1, checkpoint.From(ErrPermission)
	}
	f := d.file

	bps := uint32(fs.info.BytesPerSector)
	spc := uint32(fs.info.SectorsPerCluster)

	written := 0
	offset := d.offset % bps
	clusterIdx := (d.offset / bps) / spc
	clusterOff := (d.offset / bps) % spc

	for written < len(buf) {
		if err := fs.loadFileSector(f, clusterIdx, clusterOff, true); err != nil {
			return written, err
		}
		for i := offset; i < bps && written < len(buf); i++ {
			fs.sector.buffer[i] = buf[written]
			written++
			if d.offset == f.entry.FileSize {
				f.entry.FileSize++
			} else if d.offset > f.entry.FileSize {
				f.entry.FileSize = d.offset
			}
			d.offset++
		}
		fs.sector.dirty = true
		offset = 0
		clusterOff++
		if clusterOff == spc {
			clusterOff = 0
			clusterIdx++
		}
	}
	return written, nil
}

// Seek moves the descriptor's cursor. The resulting offset is clamped to
// [0, size-1]: a seek to exactly the file size is not representable and
// callers appending at end of file must compensate. io.SeekEnd is therefore
// relative to the last byte, not one past it.
func (fs *Fs) Seek(fd int, offset int64, whence int) (int64, error) {
	d, err := fs.descriptor(fd)
	if err != nil {
		return -1, err
	}
	size := int64(d.file.entry.FileSize)

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(d.offset) + offset
	case io.SeekEnd:
		abs = size - 1 + offset
	default:
		return -1, checkpoint.Wrap(syscall.EINVAL, fmt.Errorf("seek whence %v", whence))
	}

	if abs >= size {
		abs = size - 1
	}
	if abs < 0 {
		abs = 0
	}
	d.offset = uint32(abs)
	return abs, nil
}

// seekTo positions the cursor without the clamp Seek applies, so callers
// that track their own offsets can address the byte one past the end of the
// file for an appending write.
func (fs *Fs) seekTo(fd int, offset uint32) error {
	d, err := fs.descriptor(fd)
	if err != nil {
		return err
	}
	d.offset = offset
	return nil
}

// Truncate cuts the file down to size bytes, freeing the clusters past the
// new end. Growing a file this way is not supported.
func (fs *Fs) Truncate(fd int, size uint32) error {
	d, err := fs.descriptor(fd)
	if err != nil {
		return err
	}
	if d.flags&(FlagWrite|FlagAppend) == 0 {
		return checkpoint.From(ErrPermission)
	}
	f := d.file
	if size > f.entry.FileSize {
		return checkpoint.From(fmt.Errorf("truncate cannot grow a file from %d to %d bytes", f.entry.FileSize, size))
	}
	if size == f.entry.FileSize {
		return nil
	}

	if size == 0 {
		if err := fs.resetChain(&f.entry); err != nil {
			return err
		}
		f.entry.SetFirstCluster(0)
		f.firstCluster = 0
		f.nthCluster = 0
		f.n = 0
	} else {
		bpc := uint32(fs.info.BytesPerSector) * uint32(fs.info.SectorsPerCluster)
		last, err := fs.findNthCluster(f.firstCluster, (size-1)/bpc)
		if err != nil {
			return err
		}
		next, err := fs.readFATEntry(last)
		if err != nil {
			return err
		}
		if err := fs.writeFATEntry(last, fs.eocValue()); err != nil {
			return err
		}
		if !fs.isEOC(next) {
			var tail EntryHeader
			tail.SetFirstCluster(uint32(next))
			if err := fs.resetChain(&tail); err != nil {
				return err
			}
		}
		f.nthCluster = f.firstCluster
		f.n = 0
	}
	f.entry.FileSize = size
	if d.offset > size {
		d.offset = size
	}
	if err := fs.updateEntry(f); err != nil {
		return err
	}
	return fs.store()
}

// Close writes the directory entry back to storage, flushes the sector
// buffer and releases the descriptor slot. Closing an already closed
// descriptor is a no-op.
func (fs *Fs) Close(fd int) error {
	if fd < 0 || fd >= FdPoolSize {
		return checkpoint.From(ErrBadDescriptor)
	}
	d := &fs.fds[fd]
	if d.file == nil {
		return nil
	}

	if d.flags&(FlagWrite|FlagAppend) != 0 {
		d.file.entry.WriteDate, d.file.entry.WriteTime = encodeDatetime(time.Now())
	}
	err := fs.updateEntry(d.file)
	if ferr := fs.store(); err == nil {
		err = ferr
	}
	d.file = nil
	return err
}

// Fstat returns the file information of the open descriptor. Unlike Stat it
// reflects writes that have not been flushed to the directory entry yet.
func (fs *Fs) Fstat(fd int) (os.FileInfo, error) {
	d, err := fs.descriptor(fd)
	if err != nil {
		return nil, err
	}
	return d.file.entry.FileInfo(), nil
}

// FileSize returns the size recorded in the open file's directory entry.
func (fs *Fs) FileSize(fd int) (uint32, error) {
	d, err := fs.descriptor(fd)
	if err != nil {
		return 0, err
	}
	return d.file.entry.FileSize, nil
}

// Remove deallocates the file's whole cluster chain and tombstones its
// directory slot. A power loss mid-delete can leave an orphaned partial
// chain; this is not corrected.
func (fs *Fs) Remove(path string) error {
	entry, sec, off, err := fs.resolveEntry(path, false)
	if err != nil {
		return err
	}
	if !entry.IsFile() {
		return checkpoint.Wrap(fmt.Errorf("remove %q", path), ErrNotAFile)
	}
	if err := fs.resetChain(&entry); err != nil {
		return err
	}
	if err := fs.removeEntry(sec, off); err != nil {
		return err
	}
	return fs.store()
}

// Rename gives the entry at oldpath the name of newpath's final component.
// Both paths must resolve into the same directory; moving an entry between
// directories is not supported.
func (fs *Fs) Rename(oldpath, newpath string) error {
	oldDir, _ := splitLastComponent(oldpath)
	newDir, newBase := splitLastComponent(newpath)
	if oldDir != newDir {
		return checkpoint.From(fmt.Errorf("rename %q to %q crosses directories", oldpath, newpath))
	}
	name, err := makeValidName(newBase)
	if err != nil {
		return err
	}

	if _, _, _, err := fs.resolveEntry(newpath, false); err == nil {
		return checkpoint.From(fmt.Errorf("rename target %q already exists", newpath))
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	entry, sec, off, err := fs.resolveEntry(oldpath, false)
	if err != nil {
		return err
	}
	if sec == 0 {
		// The root directory has no entry of its own.
		return checkpoint.From(fmt.Errorf("cannot rename %q", oldpath))
	}
	entry.Name = name
	fo := fileObject{entry: entry, entrySector: sec, entryOffset: off}
	if err := fs.updateEntry(&fo); err != nil {
		return err
	}
	return fs.store()
}

// splitLastComponent splits path into its directory part and final
// component, ignoring trailing slashes.
func splitLastComponent(path string) (dir, base string) {
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return "", path
}

// Stat resolves path and returns the file information of its entry.
func (fs *Fs) Stat(path string) (os.FileInfo, error) {
	entry, _, _, err := fs.resolveEntry(path, false)
	if err != nil {
		return nil, err
	}
	return entry.FileInfo(), nil
}

// Sync flushes the sector buffer to the device.
func (fs *Fs) Sync() error {
	if fs.device == nil {
		return checkpoint.From(ErrNotMounted)
	}
	return fs.store()
}

// Dir is an open directory handle. Iteration state is NOT per handle: the
// driver keeps a single process-wide read cursor, so only one directory
// traversal may be active at a time across the whole filesystem.
type Dir struct {
	entry EntryHeader
}

// OpenDir opens the directory at path for iteration and rewinds the shared
// directory cursor.
func (fs *Fs) OpenDir(path string) (*Dir, error) {
	entry, _, _, err := fs.resolveEntry(path, false)
	if err != nil {
		return nil, err
	}
	if entry.Attribute&AttrDirectory == 0 {
		return nil, checkpoint.Wrap(fmt.Errorf("opendir %q", path), ErrNotADirectory)
	}
	fs.readdirOffset = 0
	return &Dir{entry: entry}, nil
}

// ReadDir returns the next entry of the directory, skipping deleted slots
// and volume labels. It returns io.EOF once the directory is exhausted.
func (fs *Fs) ReadDir(d *Dir) (os.FileInfo, error) {
	if fs.device == nil {
		return nil, checkpoint.From(ErrNotMounted)
	}
	for {
		entry, err := fs.dirEntryAt(d, uint32(fs.readdirOffset))
		if err != nil {
			return nil, err
		}
		if entry.Name[0] == entryFree {
			return nil, io.EOF
		}
		fs.readdirOffset++
		if entry.Name[0] == entryDeleted || entry.Attribute&AttrVolumeID != 0 {
			continue
		}
		return entry.FileInfo(), nil
	}
}

// CloseDir ends the iteration and rewinds the shared directory cursor.
func (fs *Fs) CloseDir(d *Dir) {
	fs.readdirOffset = 0
}

// dirEntryAt reads the idx-th 32-byte entry of the directory. The FAT16
// root region is addressed directly by sector; everything else walks the
// directory's cluster chain.
func (fs *Fs) dirEntryAt(d *Dir, idx uint32) (EntryHeader, error) {
	bps := uint32(fs.info.BytesPerSector)
	byteOff := idx * entrySize

	var sector uint32
	first := d.entry.FirstCluster()
	if first == 0 {
		// FAT16 root directory, a flat region with a fixed entry count.
		if idx >= uint32(fs.info.RootEntryCount) {
			return EntryHeader{}, io.EOF
		}
		sector = fs.rootStartSector() + byteOff/bps
	} else {
		bpc := bps * uint32(fs.info.SectorsPerCluster)
		cluster, err := fs.findNthCluster(first, byteOff/bpc)
		if err != nil {
			return EntryHeader{}, err
		}
		if cluster == 0 || fs.isEOC(fatEntry(cluster)) {
			return EntryHeader{}, io.EOF
		}
		sector = fs.clusterToSector(cluster) + byteOff%bpc/bps
	}

	if err := fs.fetch(sector); err != nil {
		return EntryHeader{}, err
	}
	return decodeEntryHeader(fs.sector.buffer[byteOff%bps:])
}
