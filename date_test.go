package fat

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{
			name:  "epoch",
			input: 1<<5 | 1, // 1980-01-01
			want:  time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "ordinary date",
			input: 43<<9 | 8<<5 | 25, // 2023-08-25
			want:  time.Date(2023, 8, 25, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "zero day is invalid",
			input: 43<<9 | 8<<5 | 0,
			want:  time.Time{},
		},
		{
			name:  "zero month is invalid",
			input: 43<<9 | 0<<5 | 25,
			want:  time.Time{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDate(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseDate(%#x) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{
			name:  "midnight",
			input: 0,
			want:  time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "two second granularity",
			input: 13<<11 | 37<<5 | 21, // 13:37:42
			want:  time.Date(1, 1, 1, 13, 37, 42, 0, time.UTC),
		},
		{
			name:  "overflow caps at end of day",
			input: 31<<11 | 63<<5 | 31,
			want:  time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTime(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseTime(%#x) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func Test_encodeDatetime_roundTrip(t *testing.T) {
	in := time.Date(2023, 8, 25, 13, 37, 42, 0, time.UTC)
	date, timeOfDay := encodeDatetime(in)

	gotDate := ParseDate(date)
	gotTime := ParseTime(timeOfDay)

	if !gotDate.Equal(time.Date(2023, 8, 25, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date round trip = %v", gotDate)
	}
	if gotTime.Hour() != 13 || gotTime.Minute() != 37 || gotTime.Second() != 42 {
		t.Errorf("time round trip = %v", gotTime)
	}
}
