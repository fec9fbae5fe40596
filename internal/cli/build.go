package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/macrome/internal/engine"
)

// reportOutput is the result of build and clean.
type reportOutput struct {
	Command string `json:"command"`
	engine.Report
}

func (r reportOutput) String() string {
	return fmt.Sprintf("%s: %d roots, %d written, %d removed, %d failures",
		r.Command, r.Roots, r.Written, r.Removed, r.Failures)
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Generate output for the whole tree",
		Long: `Run every generator over every matching file, then delete generated
files that no source produces any more.

Generator failures do not stop the build: an error artifact is written in
place of the output and the failure is counted.

Examples:
  macrome build
  macrome build --dir ./web --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(rootOpts, cmd)
		},
	}
}

func runBuild(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.Build(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeProcessing, err.Error(), failureDetails(err))
		return WrapExitError(ExitFailure, "build failed", err)
	}
	return formatter.Success(reportOutput{Command: "build", Report: *report})
}

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete every generated file",
		Long: `Delete every file under the root whose header marks it as generated.
Hand-written files are never touched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(rootOpts, cmd)
		},
	}
}

func runClean(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.Clean(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeProcessing, err.Error(), failureDetails(err))
		return WrapExitError(ExitFailure, "clean failed", err)
	}
	return formatter.Success(reportOutput{Command: "clean", Report: *report})
}

// failureDetails names the engine failure class, or nil when err has none.
func failureDetails(err error) map[string]string {
	var reason string
	switch {
	case engine.IsQuotaError(err):
		reason = "max_chain_length"
	case engine.IsOwnershipError(err):
		reason = "ownership"
	case engine.IsNoAccessorError(err):
		reason = "no_accessor"
	default:
		return nil
	}
	return map[string]string{"reason": reason}
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
