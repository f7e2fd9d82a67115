package models

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	ref := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  time.Time
	}{
		{"nil", nil, time.Time{}},
		{"time.Time", ref, ref},
		{"rfc3339", "2026-03-14T15:09:26Z", ref},
		{"rfc3339 with millis", "2026-03-14T15:09:26.500Z", ref.Add(500 * time.Millisecond)},
		{"sql datetime", "2026-03-14 15:09:26", ref},
		{"bare date", "2026-03-14", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"unix seconds", ref.Unix(), ref},
		{"unix millis", ref.UnixMilli(), ref},
		{"unix seconds as float", float64(ref.Unix()), ref},
		{"bytes", []byte("2026-03-14T15:09:26Z"), ref},
		{"empty string", "", time.Time{}},
		{"zero int", int64(0), time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			if err != nil {
				t.Fatalf("ParseTime(%v) failed: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTime(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTime_Invalid(t *testing.T) {
	for _, input := range []any{"not a date", struct{}{}, []int{1}} {
		if _, err := ParseTime(input); err == nil {
			t.Errorf("ParseTime(%v): expected error, got nil", input)
		}
	}
}

func TestParseTime_Comparable(t *testing.T) {
	// The same instant in different shapes must compare equal.
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	fromString, err := ParseTime("2026-01-02T03:04:05Z")
	if err != nil {
		t.Fatalf("ParseTime string failed: %v", err)
	}
	fromMillis, err := ParseTime(base.UnixMilli())
	if err != nil {
		t.Fatalf("ParseTime millis failed: %v", err)
	}

	if !fromString.Equal(fromMillis) {
		t.Errorf("string and millis forms differ: %v vs %v", fromString, fromMillis)
	}
	if !fromString.Equal(base) {
		t.Errorf("parsed time %v differs from reference %v", fromString, base)
	}
}
