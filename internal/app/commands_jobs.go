package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidsplit/client/internal/api"
	"github.com/vidsplit/client/internal/config"
	"github.com/vidsplit/client/internal/models"
	"github.com/vidsplit/client/internal/repositories"
	"github.com/vidsplit/client/internal/videos"
)

func newStatusCommand(cc *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show the state of a split job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := cc.dependencies(ctx)
			if err != nil {
				return err
			}
			if err := requireSession(ctx, deps); err != nil {
				return err
			}
			jobID := strings.TrimSpace(args[0])

			if wait {
				ctrl := newController(deps)
				defer ctrl.Close()
				if err := ctrl.Attach(jobID); err != nil {
					return err
				}
				job, err := ctrl.Wait(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), renderJob(job))
				return err
			}

			job, err := fetchJob(ctx, deps, jobID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJob(job))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job completes or fails")
	return cmd
}

// fetchJob performs a single authorized status request.
func fetchJob(ctx context.Context, deps Dependencies, jobID string) (models.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, deps.Config.RequestTimeout)
	defer cancel()

	resp, err := deps.Session.AuthorizedRequest(ctx, func(ctx context.Context, header http.Header) (*http.Response, error) {
		return deps.Client.JobStatus(ctx, header, jobID)
	})
	if err != nil {
		return models.Job{}, err
	}
	var job models.Job
	if err := api.DecodeJSON(resp, &job); err != nil {
		return models.Job{}, fmt.Errorf("job %s: %w", jobID, err)
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return job, nil
}

func newDownloadCommand(cc *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download JOB_ID [FILE...]",
		Short: "Download the segments of a completed job",
		Long: `Download the named segments of a job, or every segment when none is named.
Named segments can be fetched without logging in when the backend serves them publicly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			deps, err := cc.dependencies(ctx)
			if err != nil {
				return err
			}
			jobID, files := strings.TrimSpace(args[0]), args[1:]

			if len(files) == 0 {
				if err := requireSession(ctx, deps); err != nil {
					return err
				}
			} else if err := restoreSession(ctx, deps); err != nil {
				return err
			}

			sink, err := newSink(ctx, deps.Config, output)
			if err != nil {
				return err
			}

			ctrl := newController(deps)
			defer ctrl.Close()

			if len(files) > 0 {
				results := make([]videos.DownloadResult, 0, len(files))
				var errs []error
				for _, file := range files {
					location, err := ctrl.DownloadJobFile(ctx, jobID, file, sink)
					results = append(results, videos.DownloadResult{File: file, Location: location, Err: err})
					if err != nil {
						errs = append(errs, err)
					}
				}
				printDownloads(out, results)
				return errors.Join(errs...)
			}

			if err := ctrl.Attach(jobID); err != nil {
				return err
			}
			ctrl.Tick(ctx)
			if state := ctrl.State(); state != videos.StateCompleted {
				if err := ctrl.LastError(); err != nil {
					return err
				}
				return fmt.Errorf("job %s is %s; segments can be downloaded once it completes", jobID, state)
			}
			results, err := ctrl.DownloadAll(ctx, sink)
			printDownloads(out, results)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Download directory (defaults to the bucket or download_dir)")
	return cmd
}

func newHistoryCommand(cc *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List jobs submitted from this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cc.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := deps.History.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(entries, time.Now()))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list")
	return cmd
}

func newDBCommand(cc *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the shared token database",
	}

	dbCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the token table used by token_store = \"postgres\"",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.DatabaseURL) == "" {
				return errors.New("database_url is not configured")
			}
			ctx := cmd.Context()
			pool, err := connectDatabase(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := repositories.NewPostgresTokenStore(pool, cfg.TokenProfile)
			if err := ensureTokenSchema(ctx, store, newLogger(cmd.ErrOrStderr(), cfg)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token table is up to date")
			if cfg.TokenStore != config.StorePostgres {
				fmt.Fprintf(cmd.OutOrStdout(), "note: token_store is %q; set it to %q to use the database\n", cfg.TokenStore, config.StorePostgres)
			}
			return nil
		},
	})
	return dbCmd
}
