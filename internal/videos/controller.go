// Package videos drives one split job at a time: upload, configure, submit,
// poll until the backend finishes, then download the produced segments.
package videos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vidsplit/client/internal/api"
	"github.com/vidsplit/client/internal/auth"
	"github.com/vidsplit/client/internal/logging"
	"github.com/vidsplit/client/internal/models"
	"github.com/vidsplit/client/internal/splitconfig"
	"github.com/vidsplit/client/internal/storage"
)

// State is the phase of the controller's current job.
type State int

const (
	StateIdle State = iota
	StateUploading
	StateConfiguring
	StateProcessing
	StateCompleted
	StateFailed
	StateAuthExpired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateConfiguring:
		return "configuring"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAuthExpired:
		return "auth_expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the job can make no further progress.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAuthExpired
}

// HistoryRecorder keeps a local record of submitted jobs.
// *repositories.SQLiteHistory satisfies it.
type HistoryRecorder interface {
	Record(ctx context.Context, entry models.HistoryEntry) error
	UpdateStatus(ctx context.Context, job models.Job) error
}

// Options tune a Controller. Zero values pick the defaults.
type Options struct {
	// PollInterval is the delay between job-status requests. Default 2s.
	PollInterval time.Duration
	// TickTimeout bounds one status request. Default 30s.
	TickTimeout time.Duration
	// DownloadWorkers is the DownloadAll concurrency. Default 4.
	DownloadWorkers int
	// Uploader defaults to multipart.
	Uploader Uploader
	History  HistoryRecorder
	Logger   *slog.Logger
}

// Controller owns the state of a single split job.
type Controller struct {
	backend  Backend
	session  Authorizer
	uploader Uploader
	history  HistoryRecorder
	logger   *slog.Logger

	pollInterval time.Duration
	tickTimeout  time.Duration
	workers      int

	// tickMu serialises status polls so ticks never overlap.
	tickMu sync.Mutex

	mu             sync.Mutex
	state          State
	file           *FileSource
	job            *models.Job
	info           *models.VideoInfo
	cfg            models.SplitConfig
	uploadProgress float64
	submitting     bool
	lastErr        error
	closed         bool
	// generation changes whenever job-scoped state is discarded, so results of
	// requests started for an older job are dropped.
	generation uint64
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewController constructs a controller that sends authorized calls through session.
func NewController(backend Backend, session Authorizer, opts Options) *Controller {
	if backend == nil {
		panic("videos: backend must not be nil")
	}
	if session == nil {
		panic("videos: session must not be nil")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = 30 * time.Second
	}
	if opts.DownloadWorkers <= 0 {
		opts.DownloadWorkers = 4
	}
	if opts.Uploader == nil {
		opts.Uploader = &MultipartUploader{backend: backend, session: session}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		backend:      backend,
		session:      session,
		uploader:     opts.Uploader,
		history:      opts.History,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		tickTimeout:  opts.TickTimeout,
		workers:      opts.DownloadWorkers,
		state:        StateIdle,
		cfg:          models.DefaultSplitConfig(),
	}
}

// SelectFile discards all job-scoped state, stops polling and stages file.
// The backend job, if any, keeps running; it is simply no longer observed.
func (c *Controller) SelectFile(file FileSource) {
	c.mu.Lock()
	done := c.stopPollingLocked()
	c.generation++
	c.state = StateIdle
	c.file = &file
	c.job = nil
	c.info = nil
	c.cfg = models.DefaultSplitConfig()
	c.uploadProgress = 0
	c.submitting = false
	c.lastErr = nil
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	c.logger.Debug("file selected", slog.String("file", file.Name), slog.Int64("size", file.Size))
}

// Attach discards the current job and starts tracking jobID, a job submitted
// earlier (typically in a previous run). The controller moves straight to
// Processing and polls until the backend reports a terminal state.
func (c *Controller) Attach(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return ErrNoJob
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrInvalidState
	}
	done := c.stopPollingLocked()
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.file = nil
	c.info = nil
	c.cfg = models.DefaultSplitConfig()
	c.uploadProgress = 0
	c.submitting = false
	c.lastErr = nil
	c.job = &models.Job{ID: jobID, Status: models.JobProcessing}
	c.state = StateProcessing
	c.startPollingLocked(c.generation, jobID)
	return nil
}

// Upload sends the staged file. progress, when non-nil, receives a
// non-decreasing percentage. On failure the previous state is restored and
// an *UploadError is returned.
func (c *Controller) Upload(ctx context.Context, progress func(percent float64)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.file == nil {
		c.mu.Unlock()
		return ErrNoFile
	}
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("upload: %w (%s)", ErrInvalidState, state)
	}
	previous := c.state
	c.state = StateUploading
	c.uploadProgress = 0
	gen := c.generation
	file := *c.file
	c.mu.Unlock()

	ctx = logging.EnsureLogger(ctx, c.logger)
	ctx, span := logging.StartSpan(ctx, "videos.upload")
	defer span.End()

	report := func(pct float64) {
		c.mu.Lock()
		if gen != c.generation || pct <= c.uploadProgress {
			c.mu.Unlock()
			return
		}
		c.uploadProgress = pct
		c.mu.Unlock()
		if progress != nil {
			progress(pct)
		}
	}

	resp, err := c.uploader.Upload(ctx, file, report)
	if err != nil {
		c.mu.Lock()
		if gen == c.generation {
			c.state = previous
			c.uploadProgress = 0
		}
		c.mu.Unlock()
		span.Fail(err)
		return &UploadError{Err: err}
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return ErrSuperseded
	}
	info := resp.VideoInfo
	c.job = &models.Job{ID: resp.JobID, Status: models.JobUploading}
	c.info = &info
	c.state = StateConfiguring
	c.mu.Unlock()

	report(100)
	logging.FromContext(ctx).Info("video uploaded",
		slog.String("job_id", resp.JobID),
		slog.Float64("duration_seconds", info.DurationSeconds),
		slog.Int("chapters", len(info.Chapters)),
	)
	return nil
}

// AddTimePoint adds a split point in seconds.
func (c *Controller) AddTimePoint(seconds float64) error {
	return c.mutate(func(cfg models.SplitConfig, info *models.VideoInfo) (models.SplitConfig, error) {
		if info == nil {
			return cfg, ErrNoVideoInfo
		}
		return splitconfig.AddTimePoint(cfg, *info, seconds)
	})
}

// AddTimeLiteral parses "MM:SS" or "H:MM:SS" and adds it as a split point.
func (c *Controller) AddTimeLiteral(text string) error {
	seconds, err := splitconfig.ParseTimeLiteral(text)
	if err != nil {
		return err
	}
	return c.AddTimePoint(seconds)
}

// RemoveTimePoint removes the split point at index.
func (c *Controller) RemoveTimePoint(index int) error {
	return c.mutate(func(cfg models.SplitConfig, _ *models.VideoInfo) (models.SplitConfig, error) {
		return splitconfig.RemoveTimePoint(cfg, index)
	})
}

// SetMethod selects how split points are derived.
func (c *Controller) SetMethod(method models.SplitMethod) error {
	return c.mutate(func(cfg models.SplitConfig, _ *models.VideoInfo) (models.SplitConfig, error) {
		return splitconfig.SetMethod(cfg, method)
	})
}

// SetInterval sets the segment length used by the intervals method.
func (c *Controller) SetInterval(seconds float64) error {
	return c.mutate(func(cfg models.SplitConfig, _ *models.VideoInfo) (models.SplitConfig, error) {
		return splitconfig.SetIntervalDuration(cfg, seconds)
	})
}

// SetOutputFormat selects the output container.
func (c *Controller) SetOutputFormat(format models.OutputFormat) error {
	return c.mutate(func(cfg models.SplitConfig, _ *models.VideoInfo) (models.SplitConfig, error) {
		return splitconfig.SetOutputFormat(cfg, format)
	})
}

// SetKeyframeInterval sets the forced keyframe spacing in seconds.
func (c *Controller) SetKeyframeInterval(seconds float64) error {
	return c.mutate(func(cfg models.SplitConfig, _ *models.VideoInfo) (models.SplitConfig, error) {
		return splitconfig.SetKeyframeInterval(cfg, seconds)
	})
}

// SetSubtitleOffset shifts subtitles by seconds in every segment.
func (c *Controller) SetSubtitleOffset(seconds float64) error {
	return c.mutate(func(cfg models.SplitConfig, _ *models.VideoInfo) (models.SplitConfig, error) {
		return splitconfig.SetSubtitleOffset(cfg, seconds)
	})
}

// SetPreserveQuality toggles stream copy versus re-encoding.
func (c *Controller) SetPreserveQuality(preserve bool) error {
	return c.mutate(func(cfg models.SplitConfig, _ *models.VideoInfo) (models.SplitConfig, error) {
		cfg.PreserveQuality = preserve
		return cfg, nil
	})
}

// SetForceKeyframes toggles keyframe insertion at split boundaries.
func (c *Controller) SetForceKeyframes(force bool) error {
	return c.mutate(func(cfg models.SplitConfig, _ *models.VideoInfo) (models.SplitConfig, error) {
		cfg.ForceKeyframes = force
		return cfg, nil
	})
}

// mutate applies fn to a copy of the config and stores the result on success.
// The config is frozen once the job has been submitted.
func (c *Controller) mutate(fn func(models.SplitConfig, *models.VideoInfo) (models.SplitConfig, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting || c.state == StateUploading || c.state == StateProcessing || c.state.Terminal() {
		return fmt.Errorf("edit config: %w (%s)", ErrInvalidState, c.state)
	}
	var info *models.VideoInfo
	if c.info != nil {
		copied := *c.info
		info = &copied
	}
	next, err := fn(c.cfg.Clone(), info)
	if err != nil {
		return err
	}
	c.cfg = next
	return nil
}

// Submit posts the split configuration and starts polling. It needs an
// uploaded job and a submittable config; a rejected request leaves the
// controller in Configuring and returns a *SubmitError.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.job == nil {
		c.mu.Unlock()
		return ErrNoJob
	}
	if c.state != StateConfiguring || c.submitting {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("submit: %w (%s)", ErrInvalidState, state)
	}
	if err := splitconfig.Validate(c.cfg, *c.info); err != nil {
		c.mu.Unlock()
		return err
	}
	c.submitting = true
	jobID := c.job.ID
	cfg := c.cfg.Clone()
	gen := c.generation
	fileName := ""
	if c.file != nil {
		fileName = c.file.Name
	}
	c.mu.Unlock()

	ctx = logging.WithJobID(logging.EnsureLogger(ctx, c.logger), jobID)
	ctx, span := logging.StartSpan(ctx, "videos.submit")
	defer span.End()

	resp, err := c.session.AuthorizedRequest(ctx, func(ctx context.Context, header http.Header) (*http.Response, error) {
		return c.backend.SubmitSplit(ctx, header, jobID, cfg)
	})
	if err == nil {
		err = api.DecodeJSON(resp, nil)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.submitting = false
	if err != nil {
		c.mu.Unlock()
		span.Fail(err)
		return &SubmitError{JobID: jobID, Err: err}
	}
	c.job.Status = models.JobProcessing
	c.job.ProgressPercent = 0
	c.state = StateProcessing
	c.lastErr = nil
	c.startPollingLocked(gen, jobID)
	c.mu.Unlock()

	logging.FromContext(ctx).Info("split job submitted",
		slog.String("method", string(cfg.Method)),
		slog.Int("time_points", len(cfg.TimePoints)),
	)
	c.recordHistory(ctx, models.HistoryEntry{
		JobID:    jobID,
		FileName: fileName,
		Method:   cfg.Method,
		Status:   models.JobProcessing,
	})
	return nil
}

// Tick performs one status poll for the current job and reports whether
// polling is finished. It is what the poll loop runs on every interval and
// can be called directly. Ticks never overlap.
func (c *Controller) Tick(ctx context.Context) bool {
	c.mu.Lock()
	gen := c.generation
	jobID := ""
	if c.job != nil {
		jobID = c.job.ID
	}
	c.mu.Unlock()
	return c.tick(logging.EnsureLogger(ctx, c.logger), gen, jobID)
}

func (c *Controller) tick(ctx context.Context, gen uint64, jobID string) bool {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.mu.Lock()
	if gen != c.generation || c.state != StateProcessing || c.job == nil || c.job.ID != jobID {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	ctx = logging.WithJobID(ctx, jobID)
	logger := logging.FromContext(ctx)

	tickCtx, cancel := context.WithTimeout(ctx, c.tickTimeout)
	resp, err := c.session.AuthorizedRequest(tickCtx, func(ctx context.Context, header http.Header) (*http.Response, error) {
		return c.backend.JobStatus(ctx, header, jobID)
	})
	var status models.Job
	if err == nil {
		err = api.DecodeJSON(resp, &status)
	}
	cancel()

	if err != nil {
		if auth.IsAuthExpired(err) {
			c.mu.Lock()
			if gen == c.generation {
				c.state = StateAuthExpired
				c.lastErr = err
				c.endPollingLocked()
			}
			c.mu.Unlock()
			logger.Warn("polling stopped: session expired", slog.Any("error", err))
			return true
		}
		if ctx.Err() != nil {
			return true
		}
		logger.Warn("job status poll failed", slog.Any("error", &TransientPollError{JobID: jobID, Err: err}))
		return false
	}

	c.mu.Lock()
	if gen != c.generation || c.state != StateProcessing {
		c.mu.Unlock()
		return true
	}
	job := c.job
	job.ProgressPercent = clampPercent(status.ProgressPercent)
	done := false
	switch status.Status {
	case models.JobCompleted:
		job.Status = models.JobCompleted
		job.ProgressPercent = 100
		job.Splits = append([]models.Split(nil), status.Splits...)
		c.state = StateCompleted
		done = true
	case models.JobFailed:
		job.Status = models.JobFailed
		job.ErrorMessage = status.ErrorMessage
		c.state = StateFailed
		done = true
	default:
		job.Status = models.JobProcessing
	}
	if done {
		c.endPollingLocked()
	}
	snapshot := job.Clone()
	c.mu.Unlock()

	logger.Debug("job status", slog.String("status", string(snapshot.Status)), slog.Float64("progress", snapshot.ProgressPercent))
	if done {
		logger.Info("job finished",
			slog.String("status", string(snapshot.Status)),
			slog.Int("splits", len(snapshot.Splits)),
			slog.String("error_message", snapshot.ErrorMessage),
		)
		c.updateHistory(ctx, snapshot)
	}
	return done
}

// startPollingLocked launches the poll loop. The timer is re-armed only after
// a tick returns, so at most one status request is outstanding.
func (c *Controller) startPollingLocked(gen uint64, jobID string) {
	ctx, cancel := context.WithCancel(logging.WithJobID(logging.EnsureLogger(context.Background(), c.logger), jobID))
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done

	go func() {
		defer close(done)
		defer cancel()

		timer := time.NewTimer(c.pollInterval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if c.tick(ctx, gen, jobID) {
				return
			}
			timer.Reset(c.pollInterval)
		}
	}()
}

// endPollingLocked lets the poll loop exit while keeping pollDone for Wait.
func (c *Controller) endPollingLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
	}
}

// stopPollingLocked cancels the poll loop and returns a channel closed once it exits.
func (c *Controller) stopPollingLocked() chan struct{} {
	if c.pollCancel == nil {
		return nil
	}
	c.pollCancel()
	done := c.pollDone
	c.pollCancel = nil
	c.pollDone = nil
	return done
}

// Wait blocks until polling stops and returns the final job. The error is a
// *JobFailedError for failed jobs, the *auth.AuthExpiredError that stopped
// polling, or ErrPollingStopped when polling was cancelled.
func (c *Controller) Wait(ctx context.Context) (models.Job, error) {
	c.mu.Lock()
	done := c.pollDone
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return c.jobSnapshot(), ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var job models.Job
	if c.job != nil {
		job = c.job.Clone()
	}
	switch c.state {
	case StateCompleted:
		return job, nil
	case StateFailed:
		return job, &JobFailedError{JobID: job.ID, Message: job.ErrorMessage}
	case StateAuthExpired:
		return job, c.lastErr
	default:
		if c.job == nil {
			return job, ErrNoJob
		}
		return job, ErrPollingStopped
	}
}

// Close stops polling. The controller rejects further uploads.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	done := c.stopPollingLocked()
	c.generation++
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Download fetches one produced segment into sink under its own name.
// The request carries the session's credentials when there are any and is
// sent without them otherwise.
func (c *Controller) Download(ctx context.Context, filename string, sink storage.Sink) (string, error) {
	c.mu.Lock()
	if c.job == nil {
		c.mu.Unlock()
		return "", ErrNoJob
	}
	jobID := c.job.ID
	c.mu.Unlock()

	return c.DownloadJobFile(ctx, jobID, filename, sink)
}

// DownloadJobFile fetches one segment of any job, not just the current one.
func (c *Controller) DownloadJobFile(ctx context.Context, jobID, filename string, sink storage.Sink) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", ErrNoJob
	}
	ctx = logging.WithJobID(logging.EnsureLogger(ctx, c.logger), jobID)
	return c.download(ctx, jobID, filename, sink)
}

func (c *Controller) download(ctx context.Context, jobID, filename string, sink storage.Sink) (string, error) {
	var (
		resp *http.Response
		err  error
	)
	if c.session.Authenticated() {
		resp, err = c.session.AuthorizedRequest(ctx, func(ctx context.Context, header http.Header) (*http.Response, error) {
			return c.backend.Download(ctx, header, jobID, filename)
		})
	} else {
		resp, err = c.backend.Download(ctx, nil, jobID, filename)
	}
	if err == nil {
		err = api.CheckResponse(resp)
	}
	if err != nil {
		return "", &DownloadError{File: filename, Err: err}
	}
	defer resp.Body.Close()

	location, err := sink.Save(ctx, filename, resp.Body)
	if err != nil {
		return "", &DownloadError{File: filename, Err: err}
	}
	return location, nil
}

// DownloadAll fetches every split of the completed job into sink below a
// "<job id>/" prefix, using a bounded worker pool. Results follow split order;
// the error joins every per-file failure.
func (c *Controller) DownloadAll(ctx context.Context, sink storage.Sink) ([]DownloadResult, error) {
	c.mu.Lock()
	if c.job == nil {
		c.mu.Unlock()
		return nil, ErrNoJob
	}
	if c.state != StateCompleted {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("download all: %w (%s)", ErrInvalidState, state)
	}
	jobID := c.job.ID
	splits := append([]models.Split(nil), c.job.Splits...)
	c.mu.Unlock()

	ctx = logging.WithJobID(logging.EnsureLogger(ctx, c.logger), jobID)
	prefixed := &prefixedSink{prefix: jobID, base: sink}

	fetcher := NewFetcher(func(fetchCtx context.Context, file string) (string, error) {
		return c.download(logging.WithLogger(fetchCtx, logging.FromContext(ctx)), jobID, file, prefixed)
	}, FetcherConfig{QueueSize: len(splits), Workers: c.workers}, logging.FromContext(ctx))

	for _, split := range splits {
		if err := fetcher.Enqueue(ctx, split.File); err != nil {
			break
		}
	}
	results, err := fetcher.Shutdown(ctx)
	if err != nil {
		return results, err
	}

	var errs []error
	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, result.Err)
		}
	}
	return results, errors.Join(errs...)
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Job returns a copy of the current job, if one exists.
func (c *Controller) Job() (models.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return models.Job{}, false
	}
	return c.job.Clone(), true
}

func (c *Controller) jobSnapshot() models.Job {
	job, _ := c.Job()
	return job
}

// VideoInfo returns the probed metadata of the uploaded file, if any.
func (c *Controller) VideoInfo() (models.VideoInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return models.VideoInfo{}, false
	}
	info := *c.info
	info.Chapters = append([]models.Chapter(nil), c.info.Chapters...)
	return info, true
}

// Config returns a copy of the split configuration.
func (c *Controller) Config() models.SplitConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

// Preview returns the segments the current configuration would produce.
func (c *Controller) Preview() []splitconfig.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return nil
	}
	return splitconfig.PreviewSegments(c.cfg, *c.info)
}

// Progress returns the backend-reported job progress.
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return 0
	}
	return c.job.ProgressPercent
}

// UploadProgress returns the share of the file sent so far.
func (c *Controller) UploadProgress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploadProgress
}

// LastError returns the error that ended polling early, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) recordHistory(ctx context.Context, entry models.HistoryEntry) {
	if c.history == nil {
		return
	}
	if err := c.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.FromContext(ctx).Warn("record job history", slog.Any("error", err))
	}
}

func (c *Controller) updateHistory(ctx context.Context, job models.Job) {
	if c.history == nil {
		return
	}
	if err := c.history.UpdateStatus(context.WithoutCancel(ctx), job); err != nil {
		logging.FromContext(ctx).Warn("update job history", slog.Any("error", err))
	}
}

func clampPercent(p float64) float64 {
	switch {
	case p != p || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
