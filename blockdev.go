package fat

import (
	"io"

	"github.com/tinydisk/fat/checkpoint"
)

// SectorSize is the only sector size supported by the driver. Almost all
// SD/flash media use 512 and some drivers do not understand anything else.
const SectorSize = 512

// BlockDevice is the storage contract consumed by the driver: a block
// addressed device with 512-byte sectors, typically an SD card. Buffers
// passed to both methods are exactly SectorSize bytes long.
// Generated mock using mockgen:
//  mockgen -source=blockdev.go -destination=blockdevice_mock.go -package fat
type BlockDevice interface {
	ReadBlock(sector uint32, buf []byte) error
	WriteBlock(sector uint32, buf []byte) error
}

// Yielder is an optional hook handing control to a cooperative scheduler
// right before every device read or write. Yield must return once the
// driver may continue; no other filesystem operation may run while one is
// suspended in Yield.
type Yielder interface {
	Yield()
}

// MemDevice is a BlockDevice backed by a byte slice. It is mainly useful
// for tests and for building images in memory.
type MemDevice struct {
	buf []byte
}

// NewMemDevice returns a zeroed in-memory device with the given number of
// 512-byte sectors.
func NewMemDevice(sectors int) *MemDevice {
	return &MemDevice{buf: make([]byte, sectors*SectorSize)}
}

func (d *MemDevice) ReadBlock(sector uint32, buf []byte) error {
	off := int(sector) * SectorSize
	if off+SectorSize > len(d.buf) {
		return checkpoint.Wrap(io.ErrUnexpectedEOF, ErrDevice)
	}
	copy(buf, d.buf[off:off+SectorSize])
	return nil
}

func (d *MemDevice) WriteBlock(sector uint32, buf []byte) error {
	off := int(sector) * SectorSize
	if off+SectorSize > len(d.buf) {
		return checkpoint.Wrap(io.ErrShortWrite, ErrDevice)
	}
	copy(d.buf[off:off+SectorSize], buf)
	return nil
}

// Bytes exposes the raw image, for example to write it to a file.
func (d *MemDevice) Bytes() []byte { return d.buf }

// ImageDevice adapts a seekable image, such as an *os.File containing a raw
// volume dump, to the BlockDevice interface. Writes fail unless the
// underlying stream also implements io.Writer.
type ImageDevice struct {
	rs io.ReadSeeker
}

// NewImageDevice wraps rs into a block device.
func NewImageDevice(rs io.ReadSeeker) *ImageDevice {
	return &ImageDevice{rs: rs}
}

func (d *ImageDevice) ReadBlock(sector uint32, buf []byte) error {
	if _, err := d.rs.Seek(int64(sector)*SectorSize, io.SeekStart); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	if _, err := io.ReadFull(d.rs, buf[:SectorSize]); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	return nil
}

func (d *ImageDevice) WriteBlock(sector uint32, buf []byte) error {
	w, ok := d.rs.(io.Writer)
	if !ok {
		return checkpoint.From(ErrReadOnlyDevice)
	}
	if _, err := d.rs.Seek(int64(sector)*SectorSize, io.SeekStart); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	if _, err := w.Write(buf[:SectorSize]); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	return nil
}
