package sdfat

import (
	"time"
)

// Clock supplies the timestamps written into directory entries.
type Clock func() time.Time

// defaultTimestamp is used for new entries when no Clock is set.
var defaultTimestamp = time.Date(2000, time.January, 1, 1, 0, 0, 0, time.UTC)

const (
	minYear = 1980
	maxYear = 2107
)

// ParseDate decodes a packed FAT date stamp relative to the MS-DOS epoch of 1980-01-01:
//  Bits 0–4: Day of month, 1–31.
//  Bits 5–8: Month of year, 1–12.
//  Bits 9–15: Count of years from 1980, 0–127 (1980–2107).
// The result always has a time of 00:00:00 UTC.
// A day or month of 0 is invalid and results in time.Time{}, so IsZero() can be used to detect it.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x1F
	monthOfYear := input & 0x1E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(minYear+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a packed FAT time stamp with a granularity of 2 seconds:
//  Bits 0–4: 2-second count, 0–29.
//  Bits 5–10: Minutes, 0–59.
//  Bits 11–15: Hours, 0–23.
// The result always has the date January 1, year 1. Out of range values are clamped to 23:59:59.
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

// EncodeDate packs the date part of t. Years outside 1980..2107 are clamped.
func EncodeDate(t time.Time) uint16 {
	year := t.Year()
	if year < minYear {
		return 1<<5 | 1
	}
	if year > maxYear {
		year = maxYear
	}
	return uint16(year-minYear)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// EncodeTime packs the time of day of t, dropping odd seconds.
func EncodeTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// joinDateTime returns time.Time{} if the date is invalid.
func joinDateTime(date, tod uint16) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	t := ParseTime(tod)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func validTimestampYear(t time.Time) bool {
	return t.Year() >= minYear && t.Year() <= maxYear
}
