// Package timecode converts between seconds and clock-style literals.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformed indicates the literal is not MM:SS or H:MM:SS.
var ErrMalformed = errors.New("malformed time literal")

// Format renders seconds as H:MM:SS, or MM:SS when under an hour.
// Fractions are truncated and negative input renders as 00:00.
func Format(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatClock always renders H:MM:SS, the form used in tables.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// Parse accepts MM:SS or H:MM:SS and returns the number of seconds.
// Only the shape is checked; range checks are the caller's concern.
func Parse(text string) (float64, error) {
	text = strings.TrimSpace(text)
	parts := strings.Split(text, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
	}

	values := make([]int, len(parts))
	for i, part := range parts {
		if part == "" {
			return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
			}
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
		}
		values[i] = v
	}

	var total int
	for _, v := range values {
		if total > (math.MaxInt-v)/60 {
			return 0, fmt.Errorf("%w: %q out of range", ErrMalformed, text)
		}
		total = total*60 + v
	}
	return float64(total), nil
}
