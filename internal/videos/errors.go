package videos

import (
	"errors"
	"fmt"

	"github.com/vidsplit/client/internal/api"
)

var (
	// ErrNoFile is returned by Upload before a file has been selected.
	ErrNoFile = errors.New("no file selected")
	// ErrNoJob is returned by operations that need an uploaded job.
	ErrNoJob = errors.New("no job: upload a file first")
	// ErrNoVideoInfo is returned when a time point is added before the video was probed.
	ErrNoVideoInfo = errors.New("video info not available yet")
	// ErrInvalidState is returned when an operation does not fit the current job state.
	ErrInvalidState = errors.New("operation not allowed in the current state")
	// ErrSuperseded is returned when a new file was selected while an operation ran.
	ErrSuperseded = errors.New("job replaced by a newly selected file")
	// ErrPollingStopped is returned by Wait when polling was cancelled before a terminal state.
	ErrPollingStopped = errors.New("polling stopped before the job finished")
)

// UploadError reports a failed upload. Re-invoking Upload retries it.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return describe("upload", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Retryable reports whether calling Upload again may succeed.
func (e *UploadError) Retryable() bool { return true }

// SubmitError reports a rejected or failed job submission.
type SubmitError struct {
	JobID string
	Err   error
}

func (e *SubmitError) Error() string {
	return describe("submit", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Retryable reports whether calling Submit again may succeed.
func (e *SubmitError) Retryable() bool { return true }

// DownloadError reports a segment that could not be fetched or stored.
type DownloadError struct {
	File string
	Err  error
}

func (e *DownloadError) Error() string {
	return describe("download "+e.File, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Retryable reports whether downloading the file again may succeed.
func (e *DownloadError) Retryable() bool { return true }

// TransientPollError is a status poll that failed without ending the job.
// The poll loop logs it and tries again on the next tick.
type TransientPollError struct {
	JobID string
	Err   error
}

func (e *TransientPollError) Error() string {
	return fmt.Sprintf("poll job %s: %v", e.JobID, e.Err)
}

func (e *TransientPollError) Unwrap() error { return e.Err }

// JobFailedError is reported by Wait when the backend marked the job failed.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// describe prefers the server's detail message over the wrapped error text.
func describe(op string, err error) string {
	if detail := api.DetailOf(err); detail != "" {
		return fmt.Sprintf("%s failed: %s", op, detail)
	}
	if err == nil {
		return op + " failed"
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}
