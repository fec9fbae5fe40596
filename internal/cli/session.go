package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/macrome/internal/config"
	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/generators"
	"github.com/roach88/macrome/internal/store"
)

// session is everything one command invocation needs: the resolved config,
// a logger and an engine with its generators loaded.
type session struct {
	cfg      *config.Config
	rootDir  string
	logger   *slog.Logger
	engine   *engine.Engine
	journal  *store.Store
	registry *prometheus.Registry
}

// newLogger configures a slog text handler: --verbose logs at Debug,
// --quiet at Warn, otherwise Info.
func newLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file and overlays environment and flags.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.Config != "" {
		cfg, err = config.LoadFile(opts.Config)
	} else {
		cfg, err = config.Load(opts.Dir)
	}
	if err != nil {
		return nil, err
	}
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Overlay(v); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *RootOptions) loader() engine.Loader {
	if o.Loader != nil {
		return o.Loader
	}
	return generators.NewRegistry()
}

// openSession builds the engine for cmd and loads its generators.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to load config", err)
	}
	s := &session{
		cfg:      cfg,
		rootDir:  cfg.RootDir(opts.Dir),
		logger:   newLogger(cmd.ErrOrStderr(), opts.Verbose, opts.Quiet || cfg.Quiet),
		registry: prometheus.NewRegistry(),
	}

	engOpts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithLoader(opts.loader()),
		engine.WithGenerators(cfg.Generators...),
		engine.WithExclude(cfg.Exclude...),
		engine.WithConcurrency(cfg.Concurrency),
		engine.WithMaxChainLength(cfg.MaxChainLength),
		engine.WithMetrics(engine.NewMetrics(s.registry)),
	}
	if cfg.RevisitGuard {
		engOpts = append(engOpts, engine.WithRevisitGuard())
	}
	if opts.Tokens != nil {
		engOpts = append(engOpts, engine.WithTokenGenerator(opts.Tokens))
	}
	if cfg.Journal != "" {
		p := cfg.Journal
		if !filepath.IsAbs(p) {
			p = filepath.Join(cfg.Dir(opts.Dir), p)
		}
		st, err := store.Open(p)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "failed to open journal", err)
		}
		last, err := st.LastSeq(cmd.Context())
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitFailure, "failed to read journal", err)
		}
		s.journal = st
		engOpts = append(engOpts, engine.WithJournal(st), engine.WithClock(engine.NewClockAt(last)))
	}
	if rel, ok := s.reloadPath(); ok {
		engOpts = append(engOpts, engine.WithReloader(rel, s.reloadRefs))
	}

	s.engine = engine.New(osfs.New(s.rootDir), "", engOpts...)
	s.logger.Debug("session ready", "root", s.rootDir, "config", cfg.Path, "generators", len(cfg.Generators))

	if err := s.engine.LoadGenerators(cmd.Context()); err != nil {
		s.Close()
		return nil, WrapExitError(ExitFailure, "failed to load generators", err)
	}
	return s, nil
}

// reloadPath returns the config file relative to the generator root, when
// it lies inside it.
func (s *session) reloadPath() (string, bool) {
	if s.cfg.Path == "" {
		return "", false
	}
	abs, err := filepath.Abs(s.cfg.Path)
	if err != nil {
		return "", false
	}
	root, err := filepath.Abs(s.rootDir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (s *session) reloadRefs(ctx context.Context) ([]engine.GeneratorRef, error) {
	cfg, err := config.LoadFile(s.cfg.Path)
	if err != nil {
		return nil, err
	}
	return cfg.Generators, nil
}

// Close releases the engine and the journal.
func (s *session) Close() error {
	var errs []error
	if s.engine != nil {
		errs = append(errs, s.engine.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
