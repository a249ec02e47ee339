package timecode

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := map[string]float64{
		"2:05":    125,
		"1:02:05": 3725,
		"00:00":   0,
		" 10:30 ": 630,
	}
	for input, want := range cases {
		got, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %v want %v", input, got, want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, input := range []string{"abc", "5", "1:2:3:4", "1:xx", ":30", "-1:00", "1.5:00", ""} {
		if _, err := Parse(input); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q) expected ErrMalformed got %v", input, err)
		}
	}
}

func TestParseRejectsOverflow(t *testing.T) {
	for _, input := range []string{"9999999999999999:00:00", "99999999999999999999:00", "153722867280912931:00"} {
		got, err := Parse(input)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q) = %v, %v; expected ErrMalformed", input, got, err)
		}
	}

	got, err := Parse("1000000:00:00")
	if err != nil || got != 3.6e9 {
		t.Fatalf("Parse large hour value = %v, %v", got, err)
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{125, "02:05"},
		{125.9, "02:05"},
		{3725, "1:02:05"},
		{-3, "00:00"},
	}
	for _, tc := range cases {
		if got := Format(tc.seconds); got != tc.want {
			t.Fatalf("Format(%v) = %q want %q", tc.seconds, got, tc.want)
		}
	}
	if got := FormatClock(125); got != "0:02:05" {
		t.Fatalf("FormatClock(125) = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, seconds := range []float64{1, 59, 60, 599, 3599, 3600, 7265} {
		got, err := Parse(Format(seconds))
		if err != nil {
			t.Fatalf("parse formatted %v: %v", seconds, err)
		}
		if got != seconds {
			t.Fatalf("round trip %v got %v", seconds, got)
		}
	}
}
