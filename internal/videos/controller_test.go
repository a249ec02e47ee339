package videos

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidsplit/client/internal/api"
	"github.com/vidsplit/client/internal/auth"
	"github.com/vidsplit/client/internal/logging"
	"github.com/vidsplit/client/internal/models"
	"github.com/vidsplit/client/internal/splitconfig"
	"github.com/vidsplit/client/internal/storage"
	"github.com/vidsplit/client/internal/testsupport"
)

type historyStub struct {
	mu       sync.Mutex
	recorded []models.HistoryEntry
	updated  []models.Job
}

func (h *historyStub) Record(_ context.Context, entry models.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, entry)
	return nil
}

func (h *historyStub) UpdateStatus(_ context.Context, job models.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updated = append(h.updated, job)
	return nil
}

type controllerFixture struct {
	ctrl    *Controller
	backend *testsupport.Backend
	session *auth.Manager
	client  *api.Client
}

func newTestController(t *testing.T, opts Options) controllerFixture {
	t.Helper()
	backend := testsupport.NewBackend()
	t.Cleanup(backend.Close)
	backend.AddUser("alice", "password123", "")

	client := api.New(backend.URL(), nil, logging.Discard())
	session := auth.NewManager(client, auth.NewInMemoryTokenStore(), logging.Discard())
	ctx := context.Background()
	if err := session.Initialize(ctx); err != nil {
		t.Fatalf("initialize session: %v", err)
	}
	if result := session.Login(ctx, "alice", "password123", ""); !result.Success {
		t.Fatalf("login: %v", result.Err)
	}

	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	ctrl := NewController(client, session, opts)
	t.Cleanup(ctrl.Close)
	return controllerFixture{ctrl: ctrl, backend: backend, session: session, client: client}
}

// uploadAndSubmit drives the controller to Processing with split points at 2:00 and 5:00.
func (f controllerFixture) uploadAndSubmit(t *testing.T, jobID string) {
	t.Helper()
	ctx := context.Background()
	f.backend.NextJobID = jobID
	f.ctrl.SelectFile(FileFromBytes("movie.mp4", bytes.Repeat([]byte{1}, 2048)))
	if err := f.ctrl.Upload(ctx, nil); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := f.ctrl.AddTimePoint(120); err != nil {
		t.Fatalf("add time point: %v", err)
	}
	if err := f.ctrl.AddTimeLiteral("05:00"); err != nil {
		t.Fatalf("add time literal: %v", err)
	}
	if err := f.ctrl.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func processing(progress float64) testsupport.StatusStep {
	return testsupport.StatusStep{Job: models.Job{Status: models.JobProcessing, ProgressPercent: progress}}
}

func completed(files ...string) testsupport.StatusStep {
	splits := make([]models.Split, 0, len(files))
	for _, f := range files {
		splits = append(splits, models.Split{File: f})
	}
	return testsupport.StatusStep{Job: models.Job{Status: models.JobCompleted, ProgressPercent: 100, Splits: splits}}
}

func TestControllerSplitJobLifecycle(t *testing.T) {
	history := &historyStub{}
	f := newTestController(t, Options{History: history})
	ctx := context.Background()

	f.backend.NextJobID = "abc123"
	f.ctrl.SelectFile(FileFromBytes("movie.mp4", bytes.Repeat([]byte{7}, 256<<10)))
	if f.ctrl.State() != StateIdle {
		t.Fatalf("expected idle got %s", f.ctrl.State())
	}

	var (
		progressMu sync.Mutex
		progress   []float64
	)
	err := f.ctrl.Upload(ctx, func(pct float64) {
		progressMu.Lock()
		progress = append(progress, pct)
		progressMu.Unlock()
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	progressMu.Lock()
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("expected upload progress to end at 100 got %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("upload progress went backwards: %v", progress)
		}
	}
	progressMu.Unlock()

	if f.ctrl.State() != StateConfiguring {
		t.Fatalf("expected configuring got %s", f.ctrl.State())
	}
	job, ok := f.ctrl.Job()
	if !ok || job.ID != "abc123" || job.Status != models.JobUploading {
		t.Fatalf("unexpected job after upload: %+v", job)
	}
	if info, ok := f.ctrl.VideoInfo(); !ok || info.DurationSeconds != 600 {
		t.Fatalf("unexpected video info: %+v", info)
	}
	if got := f.backend.UploadedSize("abc123"); got != 256<<10 {
		t.Fatalf("expected full upload got %d bytes", got)
	}

	if err := f.ctrl.AddTimePoint(120); err != nil {
		t.Fatalf("add 120: %v", err)
	}
	if err := f.ctrl.AddTimePoint(300); err != nil {
		t.Fatalf("add 300: %v", err)
	}
	if err := f.ctrl.AddTimePoint(120); err != nil {
		t.Fatalf("add duplicate: %v", err)
	}
	if segments := f.ctrl.Preview(); len(segments) != 3 {
		t.Fatalf("expected 3 preview segments got %d", len(segments))
	}

	f.backend.ScriptStatus("abc123", processing(30), processing(70), completed("part1.mp4", "part2.mp4"))
	if err := f.ctrl.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.ctrl.State() != StateProcessing {
		t.Fatalf("expected processing got %s", f.ctrl.State())
	}
	submitted, ok := f.backend.SubmittedConfig("abc123")
	if !ok {
		t.Fatal("expected config to reach the backend")
	}
	if len(submitted.TimePoints) != 2 || submitted.TimePoints[0] != 120 || submitted.TimePoints[1] != 300 {
		t.Fatalf("unexpected submitted time points: %v", submitted.TimePoints)
	}
	if submitted.Method != models.MethodTimeBased {
		t.Fatalf("unexpected method %q", submitted.Method)
	}

	for i, want := range []float64{30, 70} {
		if done := f.ctrl.Tick(ctx); done {
			t.Fatalf("tick %d: expected polling to continue", i)
		}
		if got := f.ctrl.Progress(); got != want {
			t.Fatalf("tick %d: expected progress %v got %v", i, want, got)
		}
	}
	if done := f.ctrl.Tick(ctx); !done {
		t.Fatal("expected final tick to end polling")
	}
	if f.ctrl.State() != StateCompleted {
		t.Fatalf("expected completed got %s", f.ctrl.State())
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	final, err := f.ctrl.Wait(waitCtx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.ProgressPercent != 100 || len(final.Splits) != 2 || final.Splits[0].File != "part1.mp4" || final.Splits[1].File != "part2.mp4" {
		t.Fatalf("unexpected final job: %+v", final)
	}

	history.mu.Lock()
	if len(history.recorded) != 1 || history.recorded[0].JobID != "abc123" || history.recorded[0].FileName != "movie.mp4" {
		t.Fatalf("unexpected history records: %+v", history.recorded)
	}
	if len(history.updated) != 1 || history.updated[0].Status != models.JobCompleted {
		t.Fatalf("unexpected history updates: %+v", history.updated)
	}
	history.mu.Unlock()

	f.backend.AddFile("abc123", "part1.mp4", []byte("first"))
	f.backend.AddFile("abc123", "part2.mp4", []byte("second"))
	dir := t.TempDir()
	sink, err := storage.NewLocalSink(dir)
	if err != nil {
		t.Fatalf("local sink: %v", err)
	}
	results, err := f.ctrl.DownloadAll(ctx, sink)
	if err != nil {
		t.Fatalf("download all: %v", err)
	}
	if len(results) != 2 || results[0].File != "part1.mp4" || results[1].File != "part2.mp4" {
		t.Fatalf("unexpected results: %+v", results)
	}
	data, err := os.ReadFile(filepath.Join(dir, "abc123", "part2.mp4"))
	if err != nil {
		t.Fatalf("read downloaded segment: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("unexpected segment contents %q", data)
	}
}

func TestControllerPollAuthExpired(t *testing.T) {
	f := newTestController(t, Options{})
	f.uploadAndSubmit(t, "job-expired")

	f.backend.ExpireAccessTokens()
	f.backend.FailRefresh = true

	if done := f.ctrl.Tick(context.Background()); !done {
		t.Fatal("expected polling to stop")
	}
	if f.ctrl.State() != StateAuthExpired {
		t.Fatalf("expected auth expired got %s", f.ctrl.State())
	}
	if !auth.IsAuthExpired(f.ctrl.LastError()) {
		t.Fatalf("expected auth expired error got %v", f.ctrl.LastError())
	}
	if f.session.Authenticated() {
		t.Fatal("expected session to be logged out")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := f.ctrl.Wait(ctx); !auth.IsAuthExpired(err) {
		t.Fatalf("expected wait to report auth expiry got %v", err)
	}

	calls := f.backend.StatusCalls.Load()
	if done := f.ctrl.Tick(context.Background()); !done {
		t.Fatal("expected tick after expiry to be a no-op")
	}
	if f.backend.StatusCalls.Load() != calls {
		t.Fatal("expected no status request after expiry")
	}
}

func TestControllerPollLoopDoesNotOverlap(t *testing.T) {
	f := newTestController(t, Options{PollInterval: 5 * time.Millisecond})
	f.backend.StatusDelay = 20 * time.Millisecond
	f.backend.ScriptStatus("job-serial", processing(10), processing(20), processing(40), processing(60), completed("a.mp4"))
	f.uploadAndSubmit(t, "job-serial")

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.ctrl.Tick(context.Background())
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := f.ctrl.Wait(ctx)
	wg.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if job.Status != models.JobCompleted {
		t.Fatalf("expected completed job got %+v", job)
	}
	if got := f.backend.MaxConcurrentStatus(); got != 1 {
		t.Fatalf("expected status requests to be sequential, saw %d in flight", got)
	}
}

func TestControllerTransientPollError(t *testing.T) {
	f := newTestController(t, Options{})
	f.backend.ScriptStatus("job-flaky",
		testsupport.StatusStep{Code: http.StatusBadGateway},
		testsupport.StatusStep{Code: http.StatusNotFound},
		completed("only.mp4"),
	)
	f.uploadAndSubmit(t, "job-flaky")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if done := f.ctrl.Tick(ctx); done {
			t.Fatalf("tick %d: expected transient error to keep polling", i)
		}
		if f.ctrl.State() != StateProcessing {
			t.Fatalf("tick %d: expected processing got %s", i, f.ctrl.State())
		}
	}
	if done := f.ctrl.Tick(ctx); !done {
		t.Fatal("expected completion")
	}
	if f.ctrl.State() != StateCompleted {
		t.Fatalf("expected completed got %s", f.ctrl.State())
	}
}

func TestControllerJobFailed(t *testing.T) {
	history := &historyStub{}
	f := newTestController(t, Options{History: history})
	f.backend.ScriptStatus("job-bad", testsupport.StatusStep{Job: models.Job{Status: models.JobFailed, ErrorMessage: "ffmpeg exited with status 1"}})
	f.uploadAndSubmit(t, "job-bad")

	if done := f.ctrl.Tick(context.Background()); !done {
		t.Fatal("expected failure to end polling")
	}
	if f.ctrl.State() != StateFailed {
		t.Fatalf("expected failed got %s", f.ctrl.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.ctrl.Wait(ctx)
	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected job failed error got %v", err)
	}
	if failed.Message != "ffmpeg exited with status 1" {
		t.Fatalf("unexpected failure message %q", failed.Message)
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.updated) != 1 || history.updated[0].ErrorMessage != "ffmpeg exited with status 1" {
		t.Fatalf("unexpected history updates: %+v", history.updated)
	}
}

func TestControllerUploadFailureRestoresState(t *testing.T) {
	f := newTestController(t, Options{})
	ctx := context.Background()

	if err := f.ctrl.Upload(ctx, nil); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected no file error got %v", err)
	}

	f.ctrl.SelectFile(FileFromBytes("clip.mkv", []byte("not really a video")))
	f.backend.FailUpload = http.StatusInternalServerError
	err := f.ctrl.Upload(ctx, nil)
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected upload error got %v", err)
	}
	if !uploadErr.Retryable() {
		t.Fatal("expected upload errors to be retryable")
	}
	if !strings.Contains(err.Error(), "upload rejected") {
		t.Fatalf("expected server detail in error got %q", err.Error())
	}
	if f.ctrl.State() != StateIdle {
		t.Fatalf("expected idle after failed upload got %s", f.ctrl.State())
	}
	if _, ok := f.ctrl.Job(); ok {
		t.Fatal("expected no job after failed upload")
	}

	f.backend.FailUpload = 0
	if err := f.ctrl.Upload(ctx, nil); err != nil {
		t.Fatalf("retry upload: %v", err)
	}
	if f.ctrl.State() != StateConfiguring {
		t.Fatalf("expected configuring got %s", f.ctrl.State())
	}
	if err := f.ctrl.Upload(ctx, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected second upload to be rejected got %v", err)
	}
}

func TestControllerUploadRefreshesExpiredToken(t *testing.T) {
	f := newTestController(t, Options{})
	f.backend.NextJobID = "job-refresh"
	f.ctrl.SelectFile(FileFromBytes("movie.mp4", bytes.Repeat([]byte{3}, 64<<10)))
	f.backend.ExpireAccessTokens()

	if err := f.ctrl.Upload(context.Background(), nil); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if f.backend.RefreshCalls.Load() != 1 {
		t.Fatalf("expected one refresh got %d", f.backend.RefreshCalls.Load())
	}
	if got := f.backend.UploadedSize("job-refresh"); got != 64<<10 {
		t.Fatalf("expected retried upload to resend the whole file got %d bytes", got)
	}
}

func TestControllerSubmitValidation(t *testing.T) {
	f := newTestController(t, Options{})
	ctx := context.Background()

	if err := f.ctrl.Submit(ctx); !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected no job error got %v", err)
	}

	f.ctrl.SelectFile(FileFromBytes("movie.mp4", []byte("bytes")))
	if err := f.ctrl.AddTimePoint(10); !errors.Is(err, ErrNoVideoInfo) {
		t.Fatalf("expected missing video info got %v", err)
	}
	if err := f.ctrl.Upload(ctx, nil); err != nil {
		t.Fatalf("upload: %v", err)
	}

	var validation *splitconfig.ValidationError
	if err := f.ctrl.Submit(ctx); !errors.As(err, &validation) {
		t.Fatalf("expected validation error got %v", err)
	}
	if f.ctrl.State() != StateConfiguring {
		t.Fatalf("expected configuring got %s", f.ctrl.State())
	}

	var invalid *splitconfig.InvalidTimeError
	if err := f.ctrl.AddTimePoint(600); !errors.As(err, &invalid) {
		t.Fatalf("expected point at duration to be rejected got %v", err)
	}
	if err := f.ctrl.AddTimeLiteral("1:2:3:4"); !errors.As(err, &invalid) {
		t.Fatalf("expected malformed literal to be rejected got %v", err)
	}
	if err := f.ctrl.SetKeyframeInterval(11); !errors.As(err, &validation) {
		t.Fatalf("expected keyframe interval to be rejected got %v", err)
	}

	if err := f.ctrl.SetMethod(models.MethodIntervals); err != nil {
		t.Fatalf("set method: %v", err)
	}
	if err := f.ctrl.SetInterval(90); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	if err := f.ctrl.SetOutputFormat(models.FormatMKV); err != nil {
		t.Fatalf("set format: %v", err)
	}
	if err := f.ctrl.SetPreserveQuality(false); err != nil {
		t.Fatalf("set preserve quality: %v", err)
	}
	if err := f.ctrl.SetSubtitleOffset(-1.5); err != nil {
		t.Fatalf("set subtitle offset: %v", err)
	}
	if err := f.ctrl.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	job, _ := f.ctrl.Job()
	submitted, _ := f.backend.SubmittedConfig(job.ID)
	if submitted.Method != models.MethodIntervals || submitted.IntervalDurationSeconds != 90 || submitted.OutputFormat != models.FormatMKV {
		t.Fatalf("unexpected submitted config: %+v", submitted)
	}
	if submitted.PreserveQuality || submitted.SubtitleSyncOffsetSeconds != -1.5 {
		t.Fatalf("unexpected submitted flags: %+v", submitted)
	}

	if err := f.ctrl.AddTimePoint(30); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected config to be frozen while processing got %v", err)
	}
	if err := f.ctrl.Submit(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected duplicate submit to be rejected got %v", err)
	}
}

func TestControllerSubmitRejected(t *testing.T) {
	f := newTestController(t, Options{})
	ctx := context.Background()
	f.ctrl.SelectFile(FileFromBytes("movie.mp4", []byte("bytes")))
	if err := f.ctrl.Upload(ctx, nil); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := f.ctrl.AddTimePoint(42); err != nil {
		t.Fatalf("add time point: %v", err)
	}

	f.backend.FailSplit = http.StatusUnprocessableEntity
	err := f.ctrl.Submit(ctx)
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("expected submit error got %v", err)
	}
	if !strings.Contains(err.Error(), "split rejected") {
		t.Fatalf("expected server detail got %q", err.Error())
	}
	if f.ctrl.State() != StateConfiguring {
		t.Fatalf("expected configuring got %s", f.ctrl.State())
	}

	f.backend.FailSplit = 0
	if err := f.ctrl.Submit(ctx); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestControllerSelectFileCancelsPolling(t *testing.T) {
	f := newTestController(t, Options{PollInterval: 5 * time.Millisecond})
	f.uploadAndSubmit(t, "job-abandoned")

	testsupport.WaitFor(t, time.Second, func() bool { return f.backend.StatusCalls.Load() >= 2 })

	f.ctrl.SelectFile(FileFromBytes("other.mp4", []byte("other")))
	calls := f.backend.StatusCalls.Load()

	if f.ctrl.State() != StateIdle {
		t.Fatalf("expected idle got %s", f.ctrl.State())
	}
	if _, ok := f.ctrl.Job(); ok {
		t.Fatal("expected job to be discarded")
	}
	if cfg := f.ctrl.Config(); len(cfg.TimePoints) != 0 || cfg.Method != models.MethodTimeBased {
		t.Fatalf("expected default config got %+v", cfg)
	}
	if f.ctrl.UploadProgress() != 0 {
		t.Fatalf("expected upload progress reset got %v", f.ctrl.UploadProgress())
	}

	time.Sleep(50 * time.Millisecond)
	if got := f.backend.StatusCalls.Load(); got != calls {
		t.Fatalf("expected polling to stop, status calls went from %d to %d", calls, got)
	}
}

func TestControllerDownload(t *testing.T) {
	f := newTestController(t, Options{})
	f.backend.ScriptStatus("job-dl", completed("part1.mp4"))
	f.uploadAndSubmit(t, "job-dl")
	f.backend.AddFile("job-dl", "part1.mp4", []byte("segment"))
	ctx := context.Background()
	f.ctrl.Tick(ctx)

	dir := t.TempDir()
	sink, err := storage.NewLocalSink(dir)
	if err != nil {
		t.Fatalf("local sink: %v", err)
	}

	location, err := f.ctrl.Download(ctx, "part1.mp4", sink)
	if err != nil {
		t.Fatalf("authorized download: %v", err)
	}
	if location != filepath.Join(dir, "part1.mp4") {
		t.Fatalf("unexpected location %q", location)
	}

	f.session.Logout(ctx)
	_, err = f.ctrl.Download(ctx, "part1.mp4", sink)
	var downloadErr *DownloadError
	if !errors.As(err, &downloadErr) || !api.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized download error got %v", err)
	}
	if downloadErr.File != "part1.mp4" {
		t.Fatalf("unexpected file in error %q", downloadErr.File)
	}

	f.backend.PublicDownloads = true
	if _, err := f.ctrl.Download(ctx, "part1.mp4", sink); err != nil {
		t.Fatalf("public download: %v", err)
	}

	_, err = f.ctrl.Download(ctx, "missing.mp4", sink)
	if !errors.As(err, &downloadErr) || downloadErr.File != "missing.mp4" {
		t.Fatalf("expected download error for missing file got %v", err)
	}
}

func TestControllerDownloadAllReportsEachFailure(t *testing.T) {
	f := newTestController(t, Options{DownloadWorkers: 2})
	f.backend.ScriptStatus("job-partial", completed("a.mp4", "b.mp4", "c.mp4"))
	f.uploadAndSubmit(t, "job-partial")
	f.backend.AddFile("job-partial", "a.mp4", []byte("a"))
	f.backend.AddFile("job-partial", "c.mp4", []byte("c"))
	ctx := context.Background()

	sink, err := storage.NewLocalSink(t.TempDir())
	if err != nil {
		t.Fatalf("local sink: %v", err)
	}
	if _, err := f.ctrl.DownloadAll(ctx, sink); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected download before completion to be rejected got %v", err)
	}

	f.ctrl.Tick(ctx)
	results, err := f.ctrl.DownloadAll(ctx, sink)
	if err == nil {
		t.Fatal("expected joined error for the missing segment")
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("expected a.mp4 and c.mp4 to succeed: %+v", results)
	}
	var downloadErr *DownloadError
	if !errors.As(results[1].Err, &downloadErr) || downloadErr.File != "b.mp4" {
		t.Fatalf("expected b.mp4 to fail got %v", results[1].Err)
	}
}

func TestControllerCloseStopsPolling(t *testing.T) {
	f := newTestController(t, Options{PollInterval: 5 * time.Millisecond})
	f.uploadAndSubmit(t, "job-closed")
	testsupport.WaitFor(t, time.Second, func() bool { return f.backend.StatusCalls.Load() >= 1 })

	f.ctrl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := f.ctrl.Wait(ctx); !errors.Is(err, ErrPollingStopped) {
		t.Fatalf("expected polling stopped got %v", err)
	}
	if err := f.ctrl.Upload(ctx, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected closed controller to reject uploads got %v", err)
	}
}

func TestControllerAttachTracksEarlierJob(t *testing.T) {
	f := newTestController(t, Options{})
	f.uploadAndSubmit(t, "job-earlier")
	f.backend.ScriptStatus("job-earlier", completed("x.mp4", "y.mp4"))

	other := NewController(f.client, f.session, Options{PollInterval: time.Hour, Logger: logging.Discard()})
	t.Cleanup(other.Close)

	if err := other.Attach(""); !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected empty id to be rejected got %v", err)
	}
	if err := other.Attach("job-earlier"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if other.State() != StateProcessing {
		t.Fatalf("expected processing got %s", other.State())
	}
	if done := other.Tick(context.Background()); !done {
		t.Fatal("expected completed job to end polling")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job, err := other.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if job.ID != "job-earlier" || len(job.Splits) != 2 {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, ok := other.VideoInfo(); ok {
		t.Fatal("expected no video info for an attached job")
	}
}

func TestControllerDownloadJobFileWithoutCurrentJob(t *testing.T) {
	f := newTestController(t, Options{})
	f.backend.PublicDownloads = true
	f.backend.AddFile("job-old", "clip.mp4", []byte("clip"))
	f.session.Logout(context.Background())

	sink := &sinkStub{}
	location, err := f.ctrl.DownloadJobFile(context.Background(), "job-old", "clip.mp4", sink)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if location != "https://cdn.example.com/clip.mp4" || string(sink.saved["clip.mp4"]) != "clip" {
		t.Fatalf("unexpected download %q %v", location, sink.saved)
	}
	if _, err := f.ctrl.DownloadJobFile(context.Background(), " ", "clip.mp4", sink); !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected missing job id to be rejected got %v", err)
	}
	if _, err := f.ctrl.Download(context.Background(), "clip.mp4", sink); !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected download without a current job to fail got %v", err)
	}
}
