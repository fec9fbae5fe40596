package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/vcs"
)

// CheckResult is the output of the check command.
type CheckResult struct {
	Clean bool `json:"clean"`
}

func (r CheckResult) String() string {
	if r.Clean {
		return "check: generated files are up to date"
	}
	return "check: generated files are out of date"
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify generated files are up to date",
		Long: `Clean and rebuild, then report whether the working tree changed.

Requires a git working tree with no uncommitted changes under the root.
Exits with code 3 when the rebuild changed anything.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	v := opts.VCS
	if v == nil {
		g, err := vcs.New(cmd.Context(), s.rootDir)
		if err != nil {
			return WrapExitError(ExitFailure, "check requires a git working tree", err)
		}
		v = g
	}

	dirty, err := s.engine.Check(cmd.Context(), v)
	if engine.IsDirtyTreeError(err) {
		_ = formatter.Error(ErrCodeDirtyTree, "working tree has uncommitted changes", nil)
		return WrapExitError(ExitFailure, "check aborted", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "check failed", err)
	}
	if dirty {
		_ = formatter.Error(ErrCodeOutOfDate, CheckResult{}.String(), nil)
		return NewExitError(ExitDirty, "generated files are out of date")
	}
	return formatter.Success(CheckResult{Clean: true})
}
