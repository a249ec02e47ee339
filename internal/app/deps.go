package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vidsplit/client/internal/api"
	"github.com/vidsplit/client/internal/auth"
	"github.com/vidsplit/client/internal/config"
	"github.com/vidsplit/client/internal/db"
	"github.com/vidsplit/client/internal/logging"
	"github.com/vidsplit/client/internal/middleware"
	"github.com/vidsplit/client/internal/repositories"
	"github.com/vidsplit/client/internal/storage"
	"github.com/vidsplit/client/internal/videos"
)

// limiterTTL is how long an idle host keeps its token bucket.
const limiterTTL = 5 * time.Minute

// Dependencies are the long-lived collaborators shared by every command.
type Dependencies struct {
	Config   config.Config
	Logger   *slog.Logger
	Client   *api.Client
	Tokens   auth.TokenStore
	Session  *auth.Manager
	Uploader videos.Uploader
	History  *repositories.SQLiteHistory
}

// connectDatabase is swapped out in tests.
var connectDatabase = func(ctx context.Context, databaseURL string) (db.Pool, error) {
	return db.Connect(ctx, databaseURL)
}

// newLogger builds the process logger writing JSON to w.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return logging.New(w, cfg.LogLevel)
}

// newHTTPClient wraps the default transport with request logging and, when
// configured, per-host rate limiting. It sets no overall timeout because
// uploads can legitimately take longer than any single status call.
func newHTTPClient(cfg config.Config, logger *slog.Logger) *http.Client {
	mws := []middleware.Middleware{middleware.RequestLogger(logger)}
	if cfg.RateLimitRPS > 0 {
		mws = append(mws, middleware.RateLimit(middleware.NewHostRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, limiterTTL)))
	}
	return &http.Client{Transport: middleware.Chain(http.DefaultTransport, mws...)}
}

// buildDependencies wires together the concrete implementations used by the commands.
// The returned cleanup releases the database pool and the history database.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (Dependencies, func(context.Context) error, error) {
	var closers []func() error
	cleanup := func(context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	client := api.New(cfg.APIBaseURL, newHTTPClient(cfg, logger), logger)

	tokens, closeTokens, err := buildTokenStore(ctx, cfg, logger)
	if closeTokens != nil {
		closers = append(closers, closeTokens)
	}
	if err != nil {
		_ = cleanup(ctx)
		return Dependencies{}, nil, err
	}

	session := auth.NewManager(client, tokens, logger)

	uploader, err := videos.NewUploader(cfg.UploadMode, client, session)
	if err != nil {
		_ = cleanup(ctx)
		return Dependencies{}, nil, err
	}

	history, err := repositories.OpenHistory(cfg.HistoryPath)
	if err != nil {
		_ = cleanup(ctx)
		return Dependencies{}, nil, fmt.Errorf("open job history: %w", err)
	}
	closers = append(closers, history.Close)

	return Dependencies{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		Tokens:   tokens,
		Session:  session,
		Uploader: uploader,
		History:  history,
	}, cleanup, nil
}

func buildTokenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.TokenStore, func() error, error) {
	switch cfg.TokenStore {
	case config.StoreMemory:
		return auth.NewInMemoryTokenStore(), nil, nil
	case config.StoreFile:
		return repositories.NewFileTokenStore(cfg.TokenFile, cfg.TokenPassphrase), nil, nil
	case config.StorePostgres:
		pool, err := connectDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closePool := func() error {
			pool.Close()
			return nil
		}
		store := repositories.NewPostgresTokenStore(pool, cfg.TokenProfile)
		if err := ensureTokenSchema(ctx, store, logger); err != nil {
			return nil, closePool, err
		}
		return store, closePool, nil
	default:
		return nil, nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

// newController builds a split-job controller over deps.
func newController(deps Dependencies) *videos.Controller {
	return videos.NewController(deps.Client, deps.Session, videos.Options{
		PollInterval:    deps.Config.PollInterval,
		TickTimeout:     deps.Config.RequestTimeout,
		DownloadWorkers: deps.Config.DownloadWorkers,
		Uploader:        deps.Uploader,
		History:         deps.History,
		Logger:          deps.Logger,
	})
}

// newSink picks where downloaded segments go: dir when given, else the
// configured bucket, else the configured download directory.
func newSink(ctx context.Context, cfg config.Config, dir string) (storage.Sink, error) {
	if dir == "" && cfg.ObjectStore.Enabled() {
		return storage.NewS3Sink(ctx, cfg.ObjectStore)
	}
	if dir == "" {
		dir = cfg.DownloadDir
	}
	return storage.NewLocalSink(dir)
}
