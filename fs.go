// Package fat implements a FAT16/FAT32 filesystem driver on top of a block
// addressed storage device with 512-byte sectors. The driver keeps a single
// shared sector buffer with write-back semantics and a fixed pool of open
// file descriptors, which makes it suitable for memory-constrained targets.
// FAT12 volumes are detected but refused, long file names are not supported.
package fat

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/tinydisk/fat/checkpoint"
)

// Filesystem types reported in Info.Type.
const (
	FAT12 = iota
	FAT16
	FAT32
)

// FdPoolSize is the number of file objects and descriptors available at the
// same time. Open fails with ErrPoolExhausted once all slots are taken.
const FdPoolSize = 8

// Info describes the mounted volume: the geometry read from the boot sector
// plus the derived first data sector.
type Info struct {
	Type              uint8
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	FATSize           uint32
	RootCluster       uint32 // FAT32 only
	FirstDataSector   uint32 // first sector of cluster 2
}

// Fs is the filesystem context. It owns the mounted volume state, the single
// sector buffer cache and the fixed file object and descriptor pools. All
// operations are methods on it; a nil device means nothing is mounted.
//
// The driver is single threaded. Two goroutines using the same Fs without
// external arbitration is undefined behavior, as is starting a second
// directory iteration while one is active.
type Fs struct {
	device BlockDevice
	info   Info
	sector Sector

	files [FdPoolSize]fileObject
	fds   [FdPoolSize]fileDescriptor

	// Process-wide directory read cursor, shared by all Dir handles.
	readdirOffset uint16

	yield Yielder
	log   *slog.Logger
}

// Option configures a filesystem context created by New.
type Option func(*Fs)

// WithYielder installs the cooperative scheduler hook called before every
// device access.
func WithYielder(y Yielder) Option {
	return func(fs *Fs) { fs.yield = y }
}

// WithLogger routes driver diagnostics to l instead of discarding them.
func WithLogger(l *slog.Logger) Option {
	return func(fs *Fs) { fs.log = l }
}

// New creates a filesystem context and mounts the given device.
func New(device BlockDevice, opts ...Option) (*Fs, error) {
	fs := &Fs{}
	for _, opt := range opts {
		opt(fs)
	}
	if err := fs.Mount(device); err != nil {
		return nil, err
	}
	return fs, nil
}

// Mount reads and validates the boot sector of device and, on success, makes
// it the mounted volume. A previously mounted volume is unmounted first.
// FAT12 volumes are rejected with ErrFormat.
func (fs *Fs) Mount(device BlockDevice) error {
	if fs.device != nil {
		if err := fs.Unmount(); err != nil {
			return err
		}
	}

	fs.sector.buffer = make([]byte, SectorSize)
	// Set to a sector unequal 0 to avoid treating the empty buffer as a
	// cached copy of sector 0.
	fs.sector.current = sectorNone
	fs.sector.dirty = false

	if err := device.ReadBlock(0, fs.sector.buffer); err != nil {
		return checkpoint.Wrap(err, ErrDevice)
	}
	fs.sector.current = 0

	info, err := parseBootSector(fs.sector.buffer)
	if err != nil {
		return err
	}
	if info.Type == FAT12 {
		return checkpoint.Wrap(fmt.Errorf("FAT12 volumes are not supported"), ErrFormat)
	}

	fs.info = info
	fs.device = device
	fs.readdirOffset = 0
	fs.debug("mounted volume",
		slog.Int("type", int(info.Type)),
		slog.Int("firstDataSector", int(info.FirstDataSector)))
	fs.dumpInfo()
	return nil
}

// Unmount flushes the sector buffer, propagates the primary FAT to every
// secondary copy and invalidates all open descriptors. The FAT sync is a
// full linear scan and rewrite, which is expensive on purpose: it happens
// only here.
func (fs *Fs) Unmount() error {
	if fs.device == nil {
		return checkpoint.From(ErrNotMounted)
	}

	err := fs.store()
	if syncErr := fs.syncFATs(); err == nil {
		err = syncErr
	}

	for i := range fs.fds {
		fs.fds[i].file = nil
	}
	fs.device = nil
	return err
}

// Info returns a copy of the mounted volume information.
func (fs *Fs) Info() Info {
	return fs.info
}

// Mounted reports whether a volume is currently mounted.
func (fs *Fs) Mounted() bool {
	return fs.device != nil
}

// syncFATs copies every sector of the first FAT over all secondary FATs.
// It bypasses the sector cache and uses a scratch buffer so the cached
// sector stays valid.
func (fs *Fs) syncFATs() error {
	if fs.info.NumFATs < 2 {
		return nil
	}
	buf := make([]byte, SectorSize)
	fatStart := uint32(fs.info.ReservedSectors)
	for i := uint32(0); i < fs.info.FATSize; i++ {
		if err := fs.readDevice(fatStart+i, buf); err != nil {
			return checkpoint.Wrap(err, ErrDevice)
		}
		for n := uint32(1); n < uint32(fs.info.NumFATs); n++ {
			if err := fs.writeDevice(fatStart+i+n*fs.info.FATSize, buf); err != nil {
				return checkpoint.Wrap(err, ErrDevice)
			}
		}
	}
	return nil
}

// parseBootSector validates the boot parameter block and classifies the
// volume format by its cluster count. It collects every failed validation
// into the returned error.
func parseBootSector(buf []byte) (Info, error) {
	var bpb BPB
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &bpb); err != nil {
		return Info{}, checkpoint.Wrap(err, ErrFormat)
	}

	var problems []string
	if !isPowerOfTwo(uint32(bpb.BytesPerSector)) {
		problems = append(problems, "bytes per sector is not a power of two")
	}
	if !isPowerOfTwo(uint32(bpb.SectorsPerCluster)) {
		problems = append(problems, "sectors per cluster is not a power of two")
	}
	if uint32(bpb.BytesPerSector)*uint32(bpb.SectorsPerCluster) > 32*1024 {
		problems = append(problems, "cluster size exceeds 32KiB")
	}
	if bpb.NumFATs > 2 {
		problems = append(problems, "more than two FATs")
	}

	info := Info{
		BytesPerSector:    bpb.BytesPerSector,
		SectorsPerCluster: bpb.SectorsPerCluster,
		ReservedSectors:   bpb.ReservedSectorCount,
		NumFATs:           bpb.NumFATs,
		RootEntryCount:    bpb.RootEntryCount,
	}

	info.TotalSectors = uint32(bpb.TotalSectors16)
	if info.TotalSectors == 0 {
		info.TotalSectors = bpb.TotalSectors32
	}
	if info.TotalSectors == 0 {
		problems = append(problems, "total sector count is zero")
	}

	info.FATSize = uint32(bpb.FATSize16)
	fat32, fat32Err := decodeFAT32Specific(&bpb)
	if info.FATSize == 0 && fat32Err == nil {
		// Only FAT32 stores its FAT size and root cluster in the extended
		// part of the BPB.
		info.FATSize = fat32.FATSize
		info.RootCluster = fat32.RootCluster
	}
	if info.FATSize == 0 {
		problems = append(problems, "FAT size is zero")
	}

	if buf[510] != 0x55 || buf[511] != 0xAA {
		problems = append(problems, "missing 0x55AA boot signature")
	}

	if len(problems) > 0 {
		return Info{}, checkpoint.Wrap(fmt.Errorf("boot sector invalid: %v", problems), ErrFormat)
	}

	// Classify by cluster count, the only method the FAT specification
	// allows.
	rootDirSectors := (uint32(info.RootEntryCount)*entrySize + uint32(info.BytesPerSector) - 1) / uint32(info.BytesPerSector)
	dataSectors := info.TotalSectors - (uint32(info.ReservedSectors) + uint32(info.NumFATs)*info.FATSize + rootDirSectors)
	countClusters := dataSectors / uint32(info.SectorsPerCluster)
	switch {
	case countClusters < 4085:
		info.Type = FAT12
	case countClusters < 65525:
		info.Type = FAT16
	default:
		info.Type = FAT32
	}

	info.FirstDataSector = uint32(info.ReservedSectors) + uint32(info.NumFATs)*info.FATSize + rootDirSectors
	return info, nil
}

// clusterToSector returns the first sector of the given cluster.
func (fs *Fs) clusterToSector(cluster uint32) uint32 {
	return (cluster-2)*uint32(fs.info.SectorsPerCluster) + fs.info.FirstDataSector
}

// sectorToCluster returns the cluster the given data sector belongs to.
func (fs *Fs) sectorToCluster(sector uint32) uint32 {
	return (sector-fs.info.FirstDataSector)/uint32(fs.info.SectorsPerCluster) + 2
}

// clusterCount returns the number of data clusters on the mounted volume.
func (fs *Fs) clusterCount() uint32 {
	return (fs.info.TotalSectors - fs.info.FirstDataSector) / uint32(fs.info.SectorsPerCluster)
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func (fs *Fs) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if fs.log == nil {
		return
	}
	fs.log.LogAttrs(context.Background(), level, msg, attrs...)
}

func (fs *Fs) debug(msg string, attrs ...slog.Attr) {
	fs.logattrs(slog.LevelDebug, msg, attrs...)
}

func (fs *Fs) warn(msg string, attrs ...slog.Attr) {
	fs.logattrs(slog.LevelWarn, msg, attrs...)
}
