// Package app implements the vidsplit command line: it loads configuration,
// wires the session manager and split-job controller, and renders results.
package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vidsplit/client/internal/config"
)

// Run executes the vidsplit command line with args (without the program name).
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cc := &commandContext{stdin: stdin, stderr: stderr}
	defer cc.close()

	root := newRootCommand(cc)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// commandContext lazily loads configuration and dependencies once per process.
type commandContext struct {
	configFlag string
	stdin      io.Reader
	stderr     io.Writer

	configOnce sync.Once
	config     config.Config
	configErr  error

	depsOnce sync.Once
	deps     Dependencies
	cleanup  func(context.Context) error
	depsErr  error
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(strings.TrimSpace(c.configFlag))
	})
	return c.config, c.configErr
}

func (c *commandContext) dependencies(ctx context.Context) (Dependencies, error) {
	c.depsOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.depsErr = err
			return
		}
		logger := newLogger(c.stderr, cfg)
		slog.SetDefault(logger)
		c.deps, c.cleanup, c.depsErr = buildDependencies(ctx, cfg, logger)
	})
	return c.deps, c.depsErr
}

func (c *commandContext) close() {
	if c.cleanup == nil {
		return
	}
	if err := c.cleanup(context.Background()); err != nil && c.deps.Logger != nil {
		c.deps.Logger.Warn("release resources", slog.Any("error", err))
	}
	c.cleanup = nil
}

func newRootCommand(cc *commandContext) *cobra.Command {
	root := &cobra.Command{
		Use:           "vidsplit",
		Short:         "Upload videos and split them into segments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := cc.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&cc.configFlag, "config", "c", "", "Configuration file path")

	root.AddCommand(newLoginCommand(cc))
	root.AddCommand(newLogoutCommand(cc))
	root.AddCommand(newWhoamiCommand(cc))
	root.AddCommand(newSplitCommand(cc))
	root.AddCommand(newStatusCommand(cc))
	root.AddCommand(newDownloadCommand(cc))
	root.AddCommand(newHistoryCommand(cc))
	root.AddCommand(newDBCommand(cc))
	return root
}
