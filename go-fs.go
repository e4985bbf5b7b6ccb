package fat

import (
	"io/fs"
)

type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

type GoFile struct {
	*aferoFile
}

func (g GoFile) Stat() (fs.FileInfo, error) {
	return g.aferoFile.Stat()
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.aferoFile.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}
	return goEntries, err
}

// GoFs wraps the afero adapter so a mounted volume satisfies fs.FS.
type GoFs struct {
	*AferoFs
}

// NewGoFS mounts the volume on device and exposes it as an fs.FS.
func NewGoFS(device BlockDevice, opts ...Option) (*GoFs, error) {
	fatfs, err := New(device, opts...)
	if err != nil {
		return nil, err
	}
	return &GoFs{NewAferoFs(fatfs)}, nil
}

func (g GoFs) Open(name string) (fs.File, error) {
	file, err := g.AferoFs.Open(name)
	if err != nil {
		return nil, err
	}
	return GoFile{file.(*aferoFile)}, nil
}
