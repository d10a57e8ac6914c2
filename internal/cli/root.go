// Package cli provides the command-line interface for pybot.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jeefy/pybot/internal/chat"
	"github.com/jeefy/pybot/internal/codecheck"
	"github.com/jeefy/pybot/internal/config"
	"github.com/jeefy/pybot/internal/metrics"
	"github.com/jeefy/pybot/internal/models"
	"github.com/jeefy/pybot/internal/store"
)

// Version is set at build time.
var Version = "0.1.0"

// memoryDB selects the in-memory store instead of a SQLite file.
const memoryDB = ":memory:"

// skipStore marks commands that run without opening the database.
const skipStore = "pybot/skip-store"

// app carries flags and the resources opened in PersistentPreRunE.
type app struct {
	cfgFile string
	dbPath  string
	corpus  string
	verbose bool

	cfg     config.Config
	logger  *slog.Logger
	store   store.Store
	metrics *metrics.Collector
	theme   Theme
	closers []func() error
}

// Execute builds the command tree and runs it.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd returns the pybot command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	a := &app{theme: defaultTheme}
	root := &cobra.Command{
		Use:   "pybot",
		Short: "Local Python programming help chat service",
		Long: `PyBot answers Python programming questions from a curated pattern corpus,
checks and safely runs Python snippets pasted into a message, and keeps a
local history of every conversation.

Run "pybot serve" to start the HTTP API, or use the other commands to talk to
the same database from the terminal.`,
		Version:            Version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "YAML config file (default $PYBOT_CONFIG)")
	pf.StringVar(&a.dbPath, "db", "", `SQLite database path, or ":memory:" (default $PYBOT_DB_PATH)`)
	pf.StringVar(&a.corpus, "corpus", "", "pattern corpus YAML file (default built-in corpus)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		a.serveCmd(),
		a.askCmd(),
		a.checkCmd(),
		a.trainCmd(),
		a.statsCmd(),
		a.seedCmd(),
		a.historyCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	var err error
	if a.cfgFile != "" {
		a.cfg, err = config.LoadFile(a.cfgFile)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.dbPath != "" {
		a.cfg.DBPath = a.dbPath
	}
	if a.verbose {
		a.cfg.LogLevel = slog.LevelDebug
	}

	logger, closeLog := config.SetupLogger(a.cfg.LogFile, a.cfg.LogLevel)
	a.logger = logger
	a.closers = append(a.closers, closeLog)
	a.metrics = metrics.NewCollector()

	if cmd.Annotations[skipStore] != "" {
		return nil
	}
	st, err := openStore(cmd.Context(), a.cfg.DBPath, logger)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, path string, logger *slog.Logger) (store.Store, error) {
	if path == memoryDB {
		return store.NewMemory(), nil
	}
	st, err := store.OpenSQLite(ctx, path, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// loadCorpus returns the --corpus file, or the built-in corpus.
func (a *app) loadCorpus() ([]models.PatternEntry, error) {
	if a.corpus != "" {
		return store.LoadCorpus(a.corpus)
	}
	return store.BuiltinCorpus()
}

// seed makes the built-in rows match the selected corpus.
func (a *app) seed(ctx context.Context) (store.SeedResult, error) {
	entries, err := a.loadCorpus()
	if err != nil {
		return store.SeedResult{}, err
	}
	res, err := a.store.SeedPatterns(ctx, entries)
	if err != nil {
		return res, fmt.Errorf("seed patterns: %w", err)
	}
	a.logger.Debug("seeded corpus", "upserted", res.Upserted, "removed", res.Removed)
	return res, nil
}

func (a *app) executorConfig() codecheck.ExecutorConfig {
	return codecheck.ExecutorConfig{
		Python:         a.cfg.Python,
		Timeout:        a.cfg.ExecTimeout,
		MaxOutputBytes: a.cfg.ExecMaxOutput,
		MaxMemoryBytes: a.cfg.ExecMaxMemory,
		Disabled:       a.cfg.ExecDisabled,
	}
}

func (a *app) checker() *codecheck.Checker {
	return codecheck.NewChecker(codecheck.NewExecutor(a.executorConfig(), a.logger), a.logger)
}

func (a *app) service() *chat.Service {
	return chat.NewService(a.store, a.checker(), a.metrics, a.logger)
}
