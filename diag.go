//go:build fatdebug

package fat

import "log/slog"

// dumpInfo logs the mounted volume geometry.
func (fs *Fs) dumpInfo() {
	fs.debug("volume geometry",
		slog.Int("type", int(fs.info.Type)),
		slog.Int("bytesPerSector", int(fs.info.BytesPerSector)),
		slog.Int("sectorsPerCluster", int(fs.info.SectorsPerCluster)),
		slog.Int("reservedSectors", int(fs.info.ReservedSectors)),
		slog.Int("numFATs", int(fs.info.NumFATs)),
		slog.Int("rootEntryCount", int(fs.info.RootEntryCount)),
		slog.Uint64("totalSectors", uint64(fs.info.TotalSectors)),
		slog.Uint64("fatSize", uint64(fs.info.FATSize)),
		slog.Uint64("rootCluster", uint64(fs.info.RootCluster)),
		slog.Uint64("firstDataSector", uint64(fs.info.FirstDataSector)))
}

// dumpEntry logs one directory entry.
func (fs *Fs) dumpEntry(e *EntryHeader) {
	fs.debug("directory entry",
		slog.String("name", decode83Name(e.Name)),
		slog.Int("attr", int(e.Attribute)),
		slog.Uint64("firstCluster", uint64(e.FirstCluster())),
		slog.Uint64("size", uint64(e.FileSize)))
}
