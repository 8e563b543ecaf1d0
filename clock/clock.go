// Package clock resolves wall-clock instants to guild-local calendar dates.
//
// Guild timezones are whole-hour UTC offsets in [-12, +14]. Fractional-hour
// zones are not supported.
package clock

import (
	"fmt"
	"time"
)

// MinOffset and MaxOffset bound the accepted whole-hour UTC offsets.
const (
	MinOffset = -12
	MaxOffset = 14
)

// Date is a calendar date in some guild's local time.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String formats the date as YYYY-MM-DD, the form stored on birthday marks.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Before reports whether d precedes other in the calendar.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// ValidOffset reports whether the given whole-hour UTC offset is supported.
func ValidOffset(offsetHours int) bool {
	return offsetHours >= MinOffset && offsetHours <= MaxOffset
}

// LocalDate returns the guild-local calendar date for the given instant.
func LocalDate(instant time.Time, offsetHours int) Date {
	local := instant.UTC().Add(time.Duration(offsetHours) * time.Hour)
	year, month, day := local.Date()
	return Date{Year: year, Month: month, Day: day}
}

// IsDayStart reports whether the given instant falls in the first hour of
// the guild-local day. With hourly ticks this is true for exactly one tick
// per local day: the one just past local midnight.
func IsDayStart(instant time.Time, offsetHours int) bool {
	local := instant.UTC().Add(time.Duration(offsetHours) * time.Hour)
	return local.Hour() == 0
}

// EndOfLocalDay returns the UTC instant at which the given guild-local date
// ends (local midnight following it).
func EndOfLocalDay(d Date, offsetHours int) time.Time {
	next := time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, time.UTC)
	return next.Add(-time.Duration(offsetHours) * time.Hour)
}

// IsLeapYear reports whether the given year is a leap year.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
