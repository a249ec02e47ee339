// Package splitconfig keeps a split configuration well-formed as it is edited
// and decides whether it may be submitted.
//
// Every function takes the configuration by value and returns an updated copy;
// on error the returned copy is the unmodified input.
package splitconfig

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/vidsplit/client/internal/models"
	"github.com/vidsplit/client/internal/timecode"
)

const (
	MinKeyframeInterval = 1
	MaxKeyframeInterval = 10
)

// ParseTimeLiteral parses MM:SS or H:MM:SS into seconds without range checks.
func ParseTimeLiteral(text string) (float64, error) {
	seconds, err := timecode.Parse(text)
	if err != nil {
		if errors.Is(err, timecode.ErrMalformed) {
			return 0, &InvalidTimeError{Input: text, Reason: "expected MM:SS or H:MM:SS"}
		}
		return 0, &InvalidTimeError{Input: text, Reason: err.Error()}
	}
	return seconds, nil
}

// AddTimePoint inserts seconds into the split points, keeping them sorted and unique.
// The point must lie strictly inside the video.
func AddTimePoint(cfg models.SplitConfig, info models.VideoInfo, seconds float64) (models.SplitConfig, error) {
	if math.IsNaN(seconds) || seconds <= 0 || seconds >= info.DurationSeconds {
		return cfg, &InvalidTimeError{
			Input:  timecode.Format(seconds),
			Reason: "must be after 00:00 and before " + timecode.Format(info.DurationSeconds),
		}
	}

	out := cfg.Clone()
	out.TimePoints = normalize(append(out.TimePoints, seconds))
	return out, nil
}

// RemoveTimePoint drops the split point at index.
func RemoveTimePoint(cfg models.SplitConfig, index int) (models.SplitConfig, error) {
	if index < 0 || index >= len(cfg.TimePoints) {
		return cfg, &IndexOutOfRangeError{Index: index, Len: len(cfg.TimePoints)}
	}
	out := cfg.Clone()
	out.TimePoints = append(out.TimePoints[:index], out.TimePoints[index+1:]...)
	return out, nil
}

// CanSubmit reports whether the method-specific requirements are met.
func CanSubmit(cfg models.SplitConfig, info models.VideoInfo) bool {
	return methodRule(cfg, info) == nil
}

// Validate checks every rule and returns the first violation.
func Validate(cfg models.SplitConfig, info models.VideoInfo) error {
	if err := methodRule(cfg, info); err != nil {
		return err
	}
	if !validFormat(cfg.OutputFormat) {
		return &ValidationError{Field: "output_format", Message: "must be mp4, mkv or avi"}
	}
	if cfg.ForceKeyframes && !validKeyframeInterval(cfg.KeyframeIntervalSeconds) {
		return &ValidationError{Field: "keyframe_interval", Message: "must be between 1 and 10 seconds"}
	}
	for i, p := range cfg.TimePoints {
		if p <= 0 || p >= info.DurationSeconds {
			return &ValidationError{Field: "time_points", Message: "split point " + timecode.Format(p) + " is outside the video"}
		}
		if i > 0 && p <= cfg.TimePoints[i-1] {
			return &ValidationError{Field: "time_points", Message: "split points must be strictly increasing"}
		}
	}
	return nil
}

func methodRule(cfg models.SplitConfig, info models.VideoInfo) error {
	switch cfg.Method {
	case models.MethodTimeBased:
		if len(cfg.TimePoints) == 0 {
			return &ValidationError{Field: "time_points", Message: "add at least one split point"}
		}
	case models.MethodIntervals:
		if !(cfg.IntervalDurationSeconds > 0) {
			return &ValidationError{Field: "interval_duration", Message: "must be greater than zero"}
		}
	case models.MethodChapters:
		if len(info.Chapters) == 0 {
			return &ValidationError{Field: "method", Message: "video has no chapters"}
		}
	default:
		return &ValidationError{Field: "method", Message: "unknown split method " + strconv.Quote(string(cfg.Method))}
	}
	return nil
}

// SetMethod switches the split method. Existing time points are kept.
func SetMethod(cfg models.SplitConfig, method models.SplitMethod) (models.SplitConfig, error) {
	switch method {
	case models.MethodTimeBased, models.MethodIntervals, models.MethodChapters:
	default:
		return cfg, &ValidationError{Field: "method", Message: "unknown split method " + strconv.Quote(string(method))}
	}
	out := cfg.Clone()
	out.Method = method
	return out, nil
}

// SetIntervalDuration sets the fixed segment length for the intervals method.
func SetIntervalDuration(cfg models.SplitConfig, seconds float64) (models.SplitConfig, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return cfg, &ValidationError{Field: "interval_duration", Message: "must be greater than zero"}
	}
	out := cfg.Clone()
	out.IntervalDurationSeconds = seconds
	return out, nil
}

// SetOutputFormat selects the output container.
func SetOutputFormat(cfg models.SplitConfig, format models.OutputFormat) (models.SplitConfig, error) {
	if !validFormat(format) {
		return cfg, &ValidationError{Field: "output_format", Message: "must be mp4, mkv or avi"}
	}
	out := cfg.Clone()
	out.OutputFormat = format
	return out, nil
}

// SetKeyframeInterval sets the forced keyframe spacing.
func SetKeyframeInterval(cfg models.SplitConfig, seconds float64) (models.SplitConfig, error) {
	if !validKeyframeInterval(seconds) {
		return cfg, &ValidationError{Field: "keyframe_interval", Message: "must be between 1 and 10 seconds"}
	}
	out := cfg.Clone()
	out.KeyframeIntervalSeconds = seconds
	return out, nil
}

// SetSubtitleOffset shifts subtitle timing in the produced segments.
func SetSubtitleOffset(cfg models.SplitConfig, seconds float64) (models.SplitConfig, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return cfg, &ValidationError{Field: "subtitle_sync_offset", Message: "must be a finite number"}
	}
	out := cfg.Clone()
	out.SubtitleSyncOffsetSeconds = seconds
	return out, nil
}

func validFormat(format models.OutputFormat) bool {
	switch format {
	case models.FormatMP4, models.FormatMKV, models.FormatAVI:
		return true
	}
	return false
}

func validKeyframeInterval(seconds float64) bool {
	return seconds >= MinKeyframeInterval && seconds <= MaxKeyframeInterval
}

func normalize(points []float64) []float64 {
	sort.Float64s(points)
	out := points[:0]
	for _, p := range points {
		if len(out) > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}
