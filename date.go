package fat

import (
	"time"
)

// ParseDate reads a 16-bit FAT directory entry date stamp: bits 0-4 day of
// month (1-31), bits 5-8 month (1-12), bits 9-15 years since 1980. The
// returned time always has a clock of 00:00:00 UTC.
//
// Day or month 0 is invalid per the FAT specification; in that case the
// zero time.Time is returned so callers can use time.Time.IsZero.
func ParseDate(input uint16) time.Time {
	day := input & 0x1F
	month := input & 0x1E0 >> 5
	year := input & 0xFE00 >> 9

	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(1980+int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
}

// ParseTime reads a 16-bit FAT directory entry time stamp with 2-second
// granularity: bits 0-4 two-second count (0-29), bits 5-10 minutes,
// bits 11-15 hours. The returned time always has the date January 1, year 1,
// so a midnight stamp satisfies time.Time.IsZero.
//
// Out-of-range values are added onto the time but capped at 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)
	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}
	return result
}

// encodeDatetime packs t into the on-disk date and time stamp fields.
func encodeDatetime(t time.Time) (date uint16, timeOfDay uint16) {
	date = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	timeOfDay = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, timeOfDay
}
