package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/rollforge/internal/app"
	"github.com/roach88/rollforge/internal/config"
	"github.com/roach88/rollforge/internal/logging"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// loadConfig resolves configuration and applies the global flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	path := opts.ConfigPath
	if path == "" && opts.DataDir != "" {
		candidate := filepath.Join(opts.DataDir, config.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	return cfg, cfg.Validate()
}

// withManager opens the data directory, runs fn, and closes the manager.
// Errors from fn are expected to be reported already.
func withManager(opts *RootOptions, cmd *cobra.Command, f *OutputFormatter, fn func(ctx context.Context, m *app.Manager) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return failWith(f, ErrCodeConfig, ExitCommandError, err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, opts.Verbose)
	if err != nil {
		return failWith(f, ErrCodeConfig, ExitCommandError, err)
	}
	defer func() { _ = logger.Sync() }()

	f.VerboseLog("Data directory: %s (%s backend)", cfg.DataDir, cfg.Backend)
	m, err := app.Open(ctx, cfg, logger, opts.AppOptions...)
	if err != nil {
		return fail(f, err)
	}
	if moved := m.MovedAside(); moved != "" {
		logger.Warn("started with an empty roster", zap.String("moved_to", moved))
		f.VerboseLog("Unreadable data file moved to %s", moved)
	}
	if n := m.Quarantined(); n > 0 {
		f.VerboseLog("%d stored entries could not be loaded and are kept aside", n)
	}

	runErr := fn(ctx, m)
	if closeErr := m.Close(ctx); closeErr != nil {
		if runErr != nil {
			return errors.Join(runErr, closeErr)
		}
		return fail(f, closeErr)
	}
	return runErr
}
