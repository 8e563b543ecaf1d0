package clock

import (
	"testing"
	"time"
)

func TestLocalDate(t *testing.T) {
	tests := []struct {
		name    string
		instant time.Time
		offset  int
		want    Date
	}{
		{
			"utc midnight stays put",
			time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			0,
			Date{2024, time.June, 15},
		},
		{
			"positive offset crosses into next day",
			time.Date(2024, 6, 14, 22, 30, 0, 0, time.UTC),
			2,
			Date{2024, time.June, 15},
		},
		{
			"negative offset crosses into previous day",
			time.Date(2024, 6, 15, 2, 0, 0, 0, time.UTC),
			-5,
			Date{2024, time.June, 14},
		},
		{
			"offset crosses year boundary",
			time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC),
			14,
			Date{2024, time.January, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocalDate(tt.instant, tt.offset)
			if got != tt.want {
				t.Errorf("LocalDate(%v, %d) = %v, want %v", tt.instant, tt.offset, got, tt.want)
			}
		})
	}
}

func TestIsDayStart(t *testing.T) {
	// Guild at UTC+2: local midnight is 22:00 UTC the previous day.
	offset := 2

	tick := time.Date(2024, 6, 14, 22, 0, 0, 0, time.UTC)
	if !IsDayStart(tick, offset) {
		t.Errorf("expected %v to be day start at UTC+%d", tick, offset)
	}

	// Exactly one hourly tick per local day qualifies.
	starts := 0
	for hour := 0; hour < 24; hour++ {
		if IsDayStart(time.Date(2024, 6, 14, hour, 0, 0, 0, time.UTC), offset) {
			starts++
		}
	}
	if starts != 1 {
		t.Errorf("got %d day-start ticks in 24 hours, want 1", starts)
	}
}

func TestEndOfLocalDay(t *testing.T) {
	// June 15 at UTC+2 ends at 22:00 UTC on June 15.
	got := EndOfLocalDay(Date{2024, time.June, 15}, 2)
	want := time.Date(2024, 6, 15, 22, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("EndOfLocalDay = %v, want %v", got, want)
	}

	// Negative offsets end after UTC midnight.
	got = EndOfLocalDay(Date{2024, time.June, 15}, -5)
	want = time.Date(2024, 6, 16, 5, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("EndOfLocalDay = %v, want %v", got, want)
	}
}

func TestDateString(t *testing.T) {
	got := Date{2024, time.March, 1}.String()
	if got != "2024-03-01" {
		t.Errorf("Date.String() = %q, want %q", got, "2024-03-01")
	}
}

func TestIsLeapYear(t *testing.T) {
	tests := []struct {
		year int
		want bool
	}{
		{2024, true},
		{2023, false},
		{2000, true},
		{1900, false},
	}

	for _, tt := range tests {
		if got := IsLeapYear(tt.year); got != tt.want {
			t.Errorf("IsLeapYear(%d) = %v, want %v", tt.year, got, tt.want)
		}
	}
}

func TestValidOffset(t *testing.T) {
	for _, offset := range []int{-12, 0, 14} {
		if !ValidOffset(offset) {
			t.Errorf("ValidOffset(%d) = false, want true", offset)
		}
	}
	for _, offset := range []int{-13, 15} {
		if ValidOffset(offset) {
			t.Errorf("ValidOffset(%d) = true, want false", offset)
		}
	}
}
