package fat

import (
	"os"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// FileInfo returns an os.FileInfo view of the directory entry.
func (e *EntryHeader) FileInfo() os.FileInfo {
	return entryHeaderFileInfo{*e}
}

type entryHeaderFileInfo struct {
	entry EntryHeader
}

// decode83Name converts the fixed 11-byte entry name into a display name.
// Short names are stored in code page 437; decode them to UTF-8 instead of
// passing the raw bytes through.
func decode83Name(raw [11]byte) string {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		if raw[i] == ' ' {
			break
		}
		b.WriteRune(charmap.CodePage437.DecodeByte(raw[i]))
	}
	var ext strings.Builder
	for i := 8; i < 11; i++ {
		if raw[i] == ' ' {
			break
		}
		ext.WriteRune(charmap.CodePage437.DecodeByte(raw[i]))
	}
	if ext.Len() > 0 {
		return b.String() + "." + ext.String()
	}
	return b.String()
}

func (e entryHeaderFileInfo) Name() string {
	return decode83Name(e.entry.Name)
}

func (e entryHeaderFileInfo) Size() int64 {
	return int64(e.entry.FileSize)
}

func (e entryHeaderFileInfo) Mode() os.FileMode {
	var mode os.FileMode
	if e.IsDir() {
		mode |= os.ModeDir
	}
	if e.entry.IsReadOnly() {
		mode |= 0444
	} else {
		mode |= 0644
	}
	return mode
}

func (e entryHeaderFileInfo) ModTime() time.Time {
	writeDate := ParseDate(e.entry.WriteDate)
	writeTime := ParseTime(e.entry.WriteTime)

	// A zero date means the field held an invalid value. The time cannot
	// be checked the same way: midnight is a perfectly valid stamp.
	if writeDate.IsZero() {
		return time.Time{}
	}
	return time.Date(writeDate.Year(), writeDate.Month(), writeDate.Day(),
		writeTime.Hour(), writeTime.Minute(), writeTime.Second(), 0, time.UTC)
}

func (e entryHeaderFileInfo) IsDir() bool {
	return e.entry.Attribute&AttrDirectory != 0
}

func (e entryHeaderFileInfo) Sys() interface{} {
	return e.entry
}
