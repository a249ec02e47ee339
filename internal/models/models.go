package models

import (
	"encoding/json"
	"time"
)

// Role identifies the privilege level of an account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// UserProfile is the account snapshot returned by the "who am I" endpoint.
// It is replaced wholesale on login or refresh and never patched.
type UserProfile struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	IsVerified   bool   `json:"is_verified"`
	Is2FAEnabled bool   `json:"is_2fa_enabled"`
}

// TokenPair groups the bearer credentials persisted between runs.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether the pair carries no access token.
func (p TokenPair) Empty() bool {
	return p.AccessToken == ""
}

// Session is the client's view of the signed-in user.
type Session struct {
	AccessToken     string
	RefreshToken    string
	User            *UserProfile
	Authenticated   bool
	AccessExpiresAt time.Time
}

// Tokens returns the credential pair held by the session.
func (s Session) Tokens() TokenPair {
	return TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// SplitMethod selects how split points are derived.
type SplitMethod string

const (
	MethodTimeBased SplitMethod = "time_based"
	MethodIntervals SplitMethod = "intervals"
	MethodChapters  SplitMethod = "chapters"
)

// OutputFormat is the container requested for produced segments.
type OutputFormat string

const (
	FormatMP4 OutputFormat = "mp4"
	FormatMKV OutputFormat = "mkv"
	FormatAVI OutputFormat = "avi"
)

// SplitConfig describes how the backend should cut the uploaded video.
type SplitConfig struct {
	Method                    SplitMethod  `json:"method"`
	TimePoints                []float64    `json:"time_points"`
	IntervalDurationSeconds   float64      `json:"interval_duration"`
	PreserveQuality           bool         `json:"preserve_quality"`
	OutputFormat              OutputFormat `json:"output_format"`
	SubtitleSyncOffsetSeconds float64      `json:"subtitle_sync_offset"`
	ForceKeyframes            bool         `json:"force_keyframes"`
	KeyframeIntervalSeconds   float64      `json:"keyframe_interval"`
}

// DefaultSplitConfig returns the configuration a freshly selected file starts with.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		Method:                  MethodTimeBased,
		TimePoints:              []float64{},
		IntervalDurationSeconds: 300,
		PreserveQuality:         true,
		OutputFormat:            FormatMP4,
		ForceKeyframes:          true,
		KeyframeIntervalSeconds: 2,
	}
}

// Clone returns a copy that shares no slice storage with c.
func (c SplitConfig) Clone() SplitConfig {
	out := c
	out.TimePoints = append([]float64{}, c.TimePoints...)
	return out
}

// Chapter is a chapter marker reported by the backend probe.
type Chapter struct {
	StartSeconds float64 `json:"start"`
	Title        string  `json:"title"`
}

// VideoInfo is the read-only metadata returned after upload.
type VideoInfo struct {
	DurationSeconds     float64   `json:"duration"`
	Format              string    `json:"format"`
	SizeBytes           int64     `json:"size"`
	VideoStreamCount    int       `json:"video_streams"`
	AudioStreamCount    int       `json:"audio_streams"`
	SubtitleStreamCount int       `json:"subtitle_streams"`
	Chapters            []Chapter `json:"chapters"`
}

// UnmarshalJSON accepts both the short and the long duration/size field names.
func (v *VideoInfo) UnmarshalJSON(data []byte) error {
	type plain VideoInfo
	var payload struct {
		plain
		LongDuration *float64 `json:"duration_seconds"`
		LongSize     *int64   `json:"size_bytes"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*v = VideoInfo(payload.plain)
	if payload.LongDuration != nil {
		v.DurationSeconds = *payload.LongDuration
	}
	if payload.LongSize != nil {
		v.SizeBytes = *payload.LongSize
	}
	return nil
}

// JobStatus is the backend-reported lifecycle phase of a job.
type JobStatus string

const (
	JobUploading  JobStatus = "uploading"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Split is one produced output segment.
type Split struct {
	File string `json:"file"`
}

// Job is a backend-tracked processing request.
type Job struct {
	ID              string    `json:"job_id"`
	Status          JobStatus `json:"status"`
	ProgressPercent float64   `json:"progress"`
	Splits          []Split   `json:"splits"`
	ErrorMessage    string    `json:"error,omitempty"`
}

// Clone returns a copy that shares no slice storage with j.
func (j Job) Clone() Job {
	out := j
	out.Splits = append([]Split(nil), j.Splits...)
	return out
}

// HistoryEntry is a locally recorded job, kept across runs.
type HistoryEntry struct {
	JobID       string
	FileName    string
	Method      SplitMethod
	Status      JobStatus
	SplitCount  int
	Error       string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}
