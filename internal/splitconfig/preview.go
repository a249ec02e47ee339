package splitconfig

import (
	"fmt"
	"math"

	"github.com/vidsplit/client/internal/models"
)

// Segment is a predicted output range.
type Segment struct {
	Index int
	Start float64
	End   float64
	Title string
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// PreviewSegments predicts the ranges the backend will cut for cfg.
// It returns nil when the configuration cannot be submitted.
func PreviewSegments(cfg models.SplitConfig, info models.VideoInfo) []Segment {
	if !CanSubmit(cfg, info) || info.DurationSeconds <= 0 {
		return nil
	}

	var bounds []float64
	var titles []string
	switch cfg.Method {
	case models.MethodTimeBased:
		bounds = append([]float64{0}, cfg.TimePoints...)
	case models.MethodIntervals:
		n := int(math.Ceil(info.DurationSeconds / cfg.IntervalDurationSeconds))
		for i := 0; i < n; i++ {
			bounds = append(bounds, float64(i)*cfg.IntervalDurationSeconds)
		}
	case models.MethodChapters:
		for _, ch := range info.Chapters {
			bounds = append(bounds, ch.StartSeconds)
			titles = append(titles, ch.Title)
		}
	}

	segments := make([]Segment, 0, len(bounds))
	for i, start := range bounds {
		end := info.DurationSeconds
		if i+1 < len(bounds) {
			end = bounds[i+1]
		}
		if end <= start {
			continue
		}
		title := fmt.Sprintf("part%d", len(segments)+1)
		if i < len(titles) && titles[i] != "" {
			title = titles[i]
		}
		segments = append(segments, Segment{Index: len(segments), Start: start, End: end, Title: title})
	}
	return segments
}
