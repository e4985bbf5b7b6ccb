package fat

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sort"
	"testing"

	"github.com/spf13/afero"
)

func newTestAferoFs(t *testing.T) afero.Fs {
	t.Helper()
	fs, _ := newTestVolume(t)
	return NewAferoFs(fs)
}

func TestAferoCreateWriteRead(t *testing.T) {
	afs := newTestAferoFs(t)

	f, err := afs.Create("/GREET.TXT")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.WriteString("hello afero"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err = afs.Open("/GREET.TXT")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "hello afero" {
		t.Errorf("content = %q, want %q", got, "hello afero")
	}
}

func TestAferoReadAtWriteAt(t *testing.T) {
	afs := newTestAferoFs(t)

	f, err := afs.Create("/AT.BIN")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	if _, err := f.Write(bytes.Repeat([]byte{'x'}, 16)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := f.WriteAt([]byte("AB"), 4); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	buf := make([]byte, 4)
	if _, err := f.ReadAt(buf, 3); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf) != "xABx" {
		t.Errorf("ReadAt() = %q, want %q", buf, "xABx")
	}
}

func TestAferoWriteAtBeyondEnd(t *testing.T) {
	fs, _ := newTestVolume(t)
	afs := NewAferoFs(fs)

	f, err := afs.Create("/GAP.BIN")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.Write([]byte{'x'}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// A write past the end would leave a hole with no clusters behind it.
	if _, err := f.WriteAt([]byte{'y'}, 6144); !errors.Is(err, afero.ErrOutOfRange) {
		t.Fatalf("WriteAt() past end error = %v, want afero.ErrOutOfRange", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 1 {
		t.Errorf("Size() after rejected WriteAt() = %d, want 1", info.Size())
	}

	// Writing exactly at the end appends.
	if _, err := f.WriteAt([]byte{'y'}, 1); err != nil {
		t.Fatalf("WriteAt() at end error = %v", err)
	}
	buf := make([]byte, 2)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf) != "xy" {
		t.Errorf("content = %q, want %q", buf, "xy")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Two bytes on 2KiB clusters still occupy exactly one cluster.
	if got := chainLength(t, fs, "/GAP.BIN"); got != 1 {
		t.Errorf("chain length = %d, want 1", got)
	}
}

func TestAferoSeekOutOfRange(t *testing.T) {
	afs := newTestAferoFs(t)

	f, err := afs.Create("/SEEK.BIN")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()
	if _, err := f.Write(make([]byte, 10)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := f.Seek(11, io.SeekStart); !errors.Is(err, afero.ErrOutOfRange) {
		t.Errorf("Seek() past end error = %v, want afero.ErrOutOfRange", err)
	}
	if _, err := f.Seek(-1, io.SeekStart); !errors.Is(err, afero.ErrOutOfRange) {
		t.Errorf("Seek() before start error = %v, want afero.ErrOutOfRange", err)
	}
	// Seeking exactly to the end is allowed: the next write appends.
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		t.Errorf("Seek(0, SeekEnd) error = %v", err)
	}
	if _, err := f.Write([]byte("!")); err != nil {
		t.Fatalf("Write() at end error = %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 11 {
		t.Errorf("Size() = %d, want 11", info.Size())
	}
}

func TestAferoOpenFileFlags(t *testing.T) {
	afs := newTestAferoFs(t)

	if _, err := afs.Open("/MISSING.TXT"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() of missing file error = %v, want ErrNotFound", err)
	}

	f, err := afs.OpenFile("/NEW.TXT", os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile(O_CREATE) error = %v", err)
	}
	if _, err := f.WriteString("0123456789"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// O_TRUNC drops the old content.
	f, err = afs.OpenFile("/NEW.TXT", os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("OpenFile(O_TRUNC) error = %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Size() after O_TRUNC = %d, want 0", info.Size())
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// O_APPEND starts writing at the end.
	f, err = afs.OpenFile("/NEW.TXT", os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("OpenFile(O_APPEND) error = %v", err)
	}
	if _, err := f.WriteString("abc"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	if _, err := f.WriteString("def"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := afero.ReadFile(afs, "/NEW.TXT")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "abcdef" {
		t.Errorf("content = %q, want %q", got, "abcdef")
	}
}

func TestAferoReaddir(t *testing.T) {
	afs := newTestAferoFs(t)

	for _, name := range []string{"/AAA.TXT", "/BBB.TXT", "/CCC.TXT"} {
		if err := afero.WriteFile(afs, name, []byte(name), 0644); err != nil {
			t.Fatalf("WriteFile(%q) error = %v", name, err)
		}
	}

	dir, err := afs.Open("/")
	if err != nil {
		t.Fatalf("Open(/) error = %v", err)
	}
	defer dir.Close()

	names, err := dir.Readdirnames(-1)
	if err != nil && err != io.EOF {
		t.Fatalf("Readdirnames() error = %v", err)
	}
	sort.Strings(names)

	want := []string{"AAA.TXT", "BBB.TXT", "CCC.TXT"}
	if len(names) != len(want) {
		t.Fatalf("Readdirnames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("name %d = %q, want %q", i, names[i], want[i])
		}
	}

	if _, err := dir.Write([]byte("nope")); err == nil {
		t.Error("Write() on a directory should fail")
	}
}

func TestAferoReaddirCount(t *testing.T) {
	afs := newTestAferoFs(t)

	for _, name := range []string{"/AAA.TXT", "/BBB.TXT", "/CCC.TXT"} {
		if err := afero.WriteFile(afs, name, nil, 0644); err != nil {
			t.Fatalf("WriteFile(%q) error = %v", name, err)
		}
	}

	dir, err := afs.Open("/")
	if err != nil {
		t.Fatalf("Open(/) error = %v", err)
	}
	defer dir.Close()

	first, err := dir.Readdir(2)
	if err != nil {
		t.Fatalf("Readdir(2) error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("Readdir(2) returned %d entries", len(first))
	}
	rest, err := dir.Readdir(2)
	if err != io.EOF {
		t.Fatalf("Readdir(2) error = %v, want io.EOF", err)
	}
	if len(rest) != 1 {
		t.Errorf("Readdir(2) returned %d entries, want 1", len(rest))
	}
}

func TestAferoRemoveAndRename(t *testing.T) {
	afs := newTestAferoFs(t)

	if err := afero.WriteFile(afs, "/GONE.TXT", []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := afs.Remove("/GONE.TXT"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := afs.Stat("/GONE.TXT"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat() after Remove() error = %v, want ErrNotFound", err)
	}

	if err := afero.WriteFile(afs, "/FROM.TXT", []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := afs.Rename("/FROM.TXT", "/TO.TXT"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if _, err := afs.Stat("/TO.TXT"); err != nil {
		t.Errorf("Stat() of renamed file error = %v", err)
	}
}

func TestAferoChmodReadOnly(t *testing.T) {
	afs := newTestAferoFs(t)

	if err := afero.WriteFile(afs, "/RO.TXT", []byte("locked"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := afs.Chmod("/RO.TXT", 0444); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}

	if _, err := afs.OpenFile("/RO.TXT", os.O_WRONLY, 0); !errors.Is(err, ErrPermission) {
		t.Errorf("OpenFile() of read-only file error = %v, want ErrPermission", err)
	}

	info, err := afs.Stat("/RO.TXT")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode()&0200 != 0 {
		t.Errorf("Mode() = %v, want no write bit", info.Mode())
	}

	if err := afs.Chmod("/RO.TXT", 0644); err != nil {
		t.Fatalf("Chmod() back error = %v", err)
	}
	if _, err := afs.OpenFile("/RO.TXT", os.O_WRONLY, 0); err != nil {
		t.Errorf("OpenFile() after clearing read-only error = %v", err)
	}
}

func TestAferoMkdirUnsupported(t *testing.T) {
	afs := newTestAferoFs(t)

	if err := afs.Mkdir("/SUB", 0755); err == nil {
		t.Error("Mkdir() should fail, directory creation is unsupported")
	}
}

func TestGoFS(t *testing.T) {
	dev := NewMemDevice(20480)
	if err := Format(dev, 20480, FormatConfig{Type: FAT16}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	gofs, err := NewGoFS(dev)
	if err != nil {
		t.Fatalf("NewGoFS() error = %v", err)
	}

	if err := afero.WriteFile(gofs.AferoFs, "/STD.TXT", []byte("io/fs works"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := gofs.Open("/STD.TXT")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "io/fs works" {
		t.Errorf("content = %q, want %q", got, "io/fs works")
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Name() != "STD.TXT" {
		t.Errorf("Name() = %q, want %q", info.Name(), "STD.TXT")
	}
}
