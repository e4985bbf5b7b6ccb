package fat

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/tinydisk/fat/checkpoint"
)

// These errors may occur while working through the afero adapter.
var (
	ErrReadFile = errors.New("could not read file completely")
	ErrSeekFile = errors.New("could not seek inside of the file")
	ErrReadDir  = errors.New("could not read the directory")
)

// AferoFs exposes a mounted volume as an afero.Fs. Paths use the 8.3 naming
// rules of the underlying volume; the adapter tracks per-file offsets itself
// so several afero files can be open at once, bounded by the driver's
// descriptor pool.
type AferoFs struct {
	fs *Fs
}

// NewAferoFs wraps a mounted filesystem in the afero.Fs interface.
func NewAferoFs(fs *Fs) *AferoFs {
	return &AferoFs{fs: fs}
}

func (a *AferoFs) Name() string { return "FAT" }

func (a *AferoFs) Create(name string) (afero.File, error) {
	return a.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (a *AferoFs) Open(name string) (afero.File, error) {
	return a.OpenFile(name, os.O_RDONLY, 0)
}

func (a *AferoFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	info, err := a.fs.Stat(name)
	switch {
	case err == nil && info.IsDir():
		if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_TRUNC) != 0 {
			return nil, checkpoint.Wrap(syscall.EISDIR, fmt.Errorf("open %q", name))
		}
		return &aferoFile{fs: a.fs, fd: -1, path: name, stat: info}, nil
	case err == nil:
		// Existing file.
	case errors.Is(err, ErrNotFound) && flag&os.O_CREATE != 0:
		// Created below by opening with a write flag.
	default:
		return nil, err
	}

	var flags int
	switch {
	case flag&os.O_RDWR != 0:
		flags = FlagRead | FlagWrite
	case flag&os.O_WRONLY != 0:
		flags = FlagWrite
	default:
		flags = FlagRead
	}
	if flag&os.O_APPEND != 0 {
		flags |= FlagAppend
	}
	if info == nil && flags&(FlagWrite|FlagAppend) == 0 {
		// O_CREATE without a write flag would still create the file.
		return nil, checkpoint.Wrap(ErrNotFound, fmt.Errorf("open %q", name))
	}

	fd, err := a.fs.Open(name, flags)
	if err != nil {
		return nil, err
	}
	if flag&os.O_TRUNC != 0 {
		if err := a.fs.Truncate(fd, 0); err != nil {
			a.fs.Close(fd)
			return nil, err
		}
	}

	f := &aferoFile{fs: a.fs, fd: fd, path: name}
	if flag&os.O_APPEND != 0 {
		size, err := a.fs.FileSize(fd)
		if err != nil {
			a.fs.Close(fd)
			return nil, err
		}
		f.offset = int64(size)
	}
	return f, nil
}

func (a *AferoFs) Remove(name string) error {
	return a.fs.Remove(name)
}

func (a *AferoFs) RemoveAll(path string) error {
	info, err := a.fs.Stat(path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return checkpoint.Wrap(syscall.EPERM, fmt.Errorf("removing directories is not supported"))
	}
	return a.fs.Remove(path)
}

func (a *AferoFs) Rename(oldname, newname string) error {
	return a.fs.Rename(oldname, newname)
}

func (a *AferoFs) Stat(name string) (os.FileInfo, error) {
	return a.fs.Stat(name)
}

func (a *AferoFs) Mkdir(name string, perm os.FileMode) error {
	return checkpoint.Wrap(syscall.EPERM, fmt.Errorf("creating directories is not supported"))
}

func (a *AferoFs) MkdirAll(path string, perm os.FileMode) error {
	return checkpoint.Wrap(syscall.EPERM, fmt.Errorf("creating directories is not supported"))
}

// Chmod maps the write permission bit onto the entry's read-only attribute.
// All other mode bits are ignored.
func (a *AferoFs) Chmod(name string, mode os.FileMode) error {
	return a.patchEntry(name, func(e *EntryHeader) {
		if mode&0200 == 0 {
			e.Attribute |= AttrReadOnly
		} else {
			e.Attribute &^= AttrReadOnly
		}
	})
}

func (a *AferoFs) Chown(name string, uid, gid int) error {
	return checkpoint.Wrap(syscall.EPERM, fmt.Errorf("ownership is not supported"))
}

// Chtimes stores mtime as the entry's write stamp. FAT keeps no access time
// of useful resolution, so atime is ignored.
func (a *AferoFs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return a.patchEntry(name, func(e *EntryHeader) {
		e.WriteDate, e.WriteTime = encodeDatetime(mtime)
	})
}

// patchEntry rewrites the directory entry of name in place after applying fn.
func (a *AferoFs) patchEntry(name string, fn func(*EntryHeader)) error {
	entry, sec, off, err := a.fs.resolveEntry(name, false)
	if err != nil {
		return err
	}
	if sec == 0 {
		return checkpoint.Wrap(syscall.EPERM, fmt.Errorf("cannot modify %q", name))
	}
	fn(&entry)
	fo := fileObject{entry: entry, entrySector: sec, entryOffset: off}
	if err := a.fs.updateEntry(&fo); err != nil {
		return err
	}
	return a.fs.store()
}

// aferoFile adapts one open descriptor to afero.File. A directory handle has
// fd == -1 and serves Readdir from a snapshot of the directory contents.
type aferoFile struct {
	fs   *Fs
	fd   int
	path string

	offset int64

	// Directory state.
	stat      os.FileInfo
	entries   []os.FileInfo
	dirOffset int
}

func (f *aferoFile) isDir() bool { return f.fd == -1 }

func (f *aferoFile) Close() error {
	if f.isDir() {
		f.entries = nil
		return nil
	}
	err := f.fs.Close(f.fd)
	f.fd = -1
	return err
}

func (f *aferoFile) Read(p []byte) (int, error) {
	n, err := f.readAt(p, f.offset)
	f.offset += int64(n)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (f *aferoFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.readAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (f *aferoFile) readAt(p []byte, off int64) (int, error) {
	if f.isDir() {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}
	if err := f.fs.seekTo(f.fd, uint32(off)); err != nil {
		return 0, checkpoint.Wrap(err, ErrReadFile)
	}
	return f.fs.Read(f.fd, p)
}

func (f *aferoFile) Write(p []byte) (int, error) {
	n, err := f.writeAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *aferoFile) WriteAt(p []byte, off int64) (int, error) {
	return f.writeAt(p, off)
}

func (f *aferoFile) writeAt(p []byte, off int64) (int, error) {
	if f.isDir() {
		return 0, checkpoint.From(syscall.EISDIR)
	}
	// Writing past the end would leave a gap with no allocated clusters
	// behind it. The offset may reach the size exactly, which appends.
	size, err := f.fs.FileSize(f.fd)
	if err != nil {
		return 0, err
	}
	if off < 0 || off > int64(size) {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("write at offset %v in a file of %v bytes", off, size))
	}
	if err := f.fs.seekTo(f.fd, uint32(off)); err != nil {
		return 0, err
	}
	return f.fs.Write(f.fd, p)
}

func (f *aferoFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Seek moves the offset used by Read and Write. May return syscall.EINVAL
// for an invalid whence and afero.ErrOutOfRange for an offset outside the
// file.
func (f *aferoFile) Seek(offset int64, whence int) (int64, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = stat.Size() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > stat.Size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

func (f *aferoFile) Name() string {
	_, base := splitLastComponent(f.path)
	if base == "" {
		return "/"
	}
	return base
}

func (f *aferoFile) Stat() (os.FileInfo, error) {
	if f.isDir() {
		return f.stat, nil
	}
	return f.fs.Fstat(f.fd)
}

func (f *aferoFile) Sync() error {
	if f.isDir() {
		return nil
	}
	return f.fs.Sync()
}

func (f *aferoFile) Truncate(size int64) error {
	if f.isDir() {
		return checkpoint.From(syscall.EISDIR)
	}
	return f.fs.Truncate(f.fd, uint32(size))
}

// Readdir reads the contents of the directory. The whole directory is read
// on the first call; count then slices the snapshot the usual way.
// May return syscall.ENOTDIR if the file is no directory.
func (f *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	if !f.isDir() {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	if f.entries == nil {
		dir, err := f.fs.OpenDir(f.path)
		if err != nil {
			return nil, checkpoint.Wrap(err, ErrReadDir)
		}
		entries := []os.FileInfo{}
		for {
			info, err := f.fs.ReadDir(dir)
			if err == io.EOF {
				break
			}
			if err != nil {
				f.fs.CloseDir(dir)
				return nil, checkpoint.Wrap(err, ErrReadDir)
			}
			entries = append(entries, info)
		}
		f.fs.CloseDir(dir)
		f.entries = entries
		f.dirOffset = 0
	}

	var err error
	end := len(f.entries)
	if count > 0 {
		if f.dirOffset >= end {
			return nil, io.EOF
		}
		if f.dirOffset+count < end {
			end = f.dirOffset + count
		} else {
			err = io.EOF
		}
	}
	result := f.entries[f.dirOffset:end]
	f.dirOffset = end
	return result, err
}

func (f *aferoFile) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil && err != io.EOF {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}
	return names, err
}
