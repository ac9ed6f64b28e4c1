package sdfat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{
			name:  "epoch",
			input: 1<<5 | 1,
			want:  time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "some date",
			input: 41<<9 | 5<<5 | 6,
			want:  time.Date(2021, time.May, 6, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "last year",
			input: 127<<9 | 12<<5 | 31,
			want:  time.Date(2107, time.December, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "day 0",
			input: 1 << 5,
		},
		{
			name:  "month 0",
			input: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDate(tt.input))
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
			name:  "some time",
			input: 7<<11 | 8<<5 | 5,
			want:  time.Date(1, 1, 1, 7, 8, 10, 0, time.UTC),
		},
		{
			name:  "out of range is clamped",
			input: 31<<11 | 63<<5 | 31,
			want:  time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTime(tt.input))
		})
	}
}

func TestEncodeDate(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want uint16
	}{
		{name: "some date", t: testTime, want: 41<<9 | 5<<5 | 6},
		{name: "before 1980", t: time.Date(1970, time.March, 3, 0, 0, 0, 0, time.UTC), want: 1<<5 | 1},
		{name: "after 2107", t: time.Date(2200, time.March, 3, 0, 0, 0, 0, time.UTC), want: 127<<9 | 3<<5 | 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeDate(tt.t))
		})
	}
}

func TestEncodeTime(t *testing.T) {
	assert.Equal(t, uint16(7<<11|8<<5|5), EncodeTime(testTime))
	// Odd seconds are dropped.
	assert.Equal(t, uint16(7<<11|8<<5|5), EncodeTime(testTime.Add(time.Second)))
}

func Test_joinDateTime(t *testing.T) {
	assert.Equal(t, testTime, joinDateTime(EncodeDate(testTime), EncodeTime(testTime)))
	assert.True(t, joinDateTime(0, EncodeTime(testTime)).IsZero())
}
