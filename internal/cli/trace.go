package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/store"
)

// TraceChangeset is one journaled Changeset that touched the traced path.
type TraceChangeset struct {
	Token    string             `json:"token"`
	Seq      int64              `json:"seq"`
	Root     string             `json:"root"`
	Op       string             `json:"op"`
	Status   string             `json:"status"`
	Steps    int                `json:"steps"`
	Paths    []string           `json:"paths"`
	Failures []ir.FailureRecord `json:"failures,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Path       string           `json:"path"`
	Changesets []TraceChangeset `json:"changesets"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <path>",
		Short: "Show the changesets that touched a path",
		Long: `Query the changeset journal for every changeset whose path list
contains <path>, oldest first.

Each changeset shows its root change, every path it reached in discovery
order, and any generator failures recorded under it. Requires a journal
(--journal or journal: in the config file).

Examples:
  macrome trace lib/generated-foo.js --journal .macrome.db
  macrome trace lib/foo.js --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runTrace(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to load config", err)
	}
	if cfg.Journal == "" {
		_ = formatter.Error(ErrCodeJournal, "no journal configured", nil)
		return NewExitError(ExitFailure, "trace requires --journal")
	}
	db := cfg.Journal
	if !filepath.IsAbs(db) {
		db = filepath.Join(cfg.Dir(opts.Dir), db)
	}

	// Open database
	st, err := store.Open(db)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to open journal", err)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, filepath.ToSlash(path))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to query journal", err)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd.OutOrStdout(), result)
	}
	outputTraceText(cmd.OutOrStdout(), result)
	return nil
}

func buildTrace(ctx context.Context, st *store.Store, path string) (TraceResult, error) {
	recs, err := st.Trace(ctx, path)
	if err != nil {
		return TraceResult{}, err
	}
	result := TraceResult{Path: path, Changesets: make([]TraceChangeset, 0, len(recs))}
	for _, rec := range recs {
		failures, err := st.Failures(ctx, rec.Token)
		if err != nil {
			return TraceResult{}, err
		}
		result.Changesets = append(result.Changesets, TraceChangeset{
			Token:    rec.Token,
			Seq:      rec.Seq,
			Root:     rec.Root,
			Op:       rec.Op.String(),
			Status:   rec.Status,
			Steps:    rec.Steps,
			Paths:    rec.Paths,
			Failures: failures,
		})
	}
	return result, nil
}

func outputTraceJSON(w io.Writer, result TraceResult) error {
	return json.NewEncoder(w).Encode(CLIResponse{
		Status: "ok",
		Data:   result,
	})
}

func outputTraceText(w io.Writer, result TraceResult) {
	if len(result.Changesets) == 0 {
		fmt.Fprintf(w, "No changesets found for path: %s\n", result.Path)
		return
	}

	fmt.Fprintf(w, "Trace for %s (%d changesets)\n", result.Path, len(result.Changesets))
	for _, cs := range result.Changesets {
		fmt.Fprintf(w, "\n[seq=%d] %s %s (%s, %d steps) %s\n", cs.Seq, cs.Op, cs.Root, cs.Status, cs.Steps, cs.Token)
		for i, p := range cs.Paths {
			marker := " "
			if p == result.Path {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %2d. %s\n", marker, i, p)
		}
		for _, f := range cs.Failures {
			fmt.Fprintf(w, "  ! %s failed on %s: %s\n", f.Generator, f.Path, strings.TrimSpace(f.Message))
		}
	}
}
