package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/vidsplit/client/internal/storage"
)

// FetchFunc downloads one produced segment and returns where it was stored.
type FetchFunc func(ctx context.Context, file string) (string, error)

// FetcherConfig controls the concurrency characteristics of the fetcher.
type FetcherConfig struct {
	QueueSize int
	Workers   int
	// Timeout bounds each individual download. Zero means no limit.
	Timeout time.Duration
}

// DownloadResult is the outcome of fetching one segment.
type DownloadResult struct {
	File     string
	Location string
	Err      error
}

// Fetcher downloads segments on a bounded pool of workers.
type Fetcher struct {
	fetch   FetchFunc
	timeout time.Duration
	logger  *slog.Logger

	tasks  chan fetchTask
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// closeMu keeps Enqueue from sending on tasks after Shutdown closed it.
	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	results []DownloadResult
	next    int
}

type fetchTask struct {
	index int
	file  string
}

var errFetcherClosed = errors.New("fetcher closed")

// NewFetcher starts cfg.Workers goroutines that run fetch for every enqueued file.
func NewFetcher(fetch FetchFunc, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	f := &Fetcher{
		fetch:   fetch,
		timeout: cfg.Timeout,
		logger:  logger,
		tasks:   make(chan fetchTask, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	f.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go f.worker()
	}

	return f
}

// Enqueue schedules a download. Results keep the order files were enqueued in.
func (f *Fetcher) Enqueue(ctx context.Context, file string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ctx.Done():
		return errFetcherClosed
	default:
	}

	f.closeMu.RLock()
	defer f.closeMu.RUnlock()
	if f.closed {
		return errFetcherClosed
	}

	f.mu.Lock()
	task := fetchTask{index: f.next, file: file}
	f.next++
	f.results = append(f.results, DownloadResult{File: file, Err: errFetcherClosed})
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		f.record(task.index, DownloadResult{File: file, Err: ctx.Err()})
		return ctx.Err()
	case <-f.ctx.Done():
		return errFetcherClosed
	case f.tasks <- task:
		return nil
	}
}

// Shutdown stops accepting work and waits for queued downloads to finish.
// If ctx expires first the remaining downloads are cancelled.
func (f *Fetcher) Shutdown(ctx context.Context) ([]DownloadResult, error) {
	f.once.Do(func() {
		f.closeMu.Lock()
		f.closed = true
		close(f.tasks)
		f.closeMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		f.cancel()
		<-done
		err = ctx.Err()
	}
	f.cancel()

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DownloadResult(nil), f.results...), err
}

func (f *Fetcher) worker() {
	defer f.wg.Done()

	for task := range f.tasks {
		if f.ctx.Err() != nil {
			f.record(task.index, DownloadResult{File: task.file, Err: f.ctx.Err()})
			continue
		}
		f.handle(task)
	}
}

func (f *Fetcher) handle(task fetchTask) {
	ctx := f.ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	location, err := f.fetch(ctx, task.file)
	if err != nil {
		f.logger.Error("segment download failed", slog.String("file", task.file), slog.Any("error", err))
	} else {
		f.logger.Info("segment downloaded", slog.String("file", task.file), slog.String("location", location))
	}
	f.record(task.index, DownloadResult{File: task.file, Location: location, Err: err})
}

func (f *Fetcher) record(index int, result DownloadResult) {
	f.mu.Lock()
	f.results[index] = result
	f.mu.Unlock()
}

// prefixedSink stores every object below a fixed key prefix.
type prefixedSink struct {
	prefix string
	base   storage.Sink
}

func (p *prefixedSink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if p.base == nil {
		return "", errors.New("prefixed sink: no destination configured")
	}
	key := path.Join(p.prefix, name)
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("prefixed sink: %w", storage.ErrInvalidName)
	}
	return p.base.Save(ctx, key, r)
}
