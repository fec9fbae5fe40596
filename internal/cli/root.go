package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/macrome/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Quiet   bool
	Format  string // "json" | "text"

	// Dir is the project directory searched for a config file.
	Dir     string
	Config  string
	Root    string
	Journal string
	Exclude []string

	Concurrency    int
	MaxChainLength int
	RevisitGuard   bool

	// Loader overrides generator resolution (for testing).
	// If nil, defaults to the built-in generator registry.
	Loader engine.Loader

	// Tokens overrides the changeset token generator (for testing).
	Tokens engine.TokenGenerator

	// Source overrides the watch change source (for testing).
	Source engine.ChangeSource

	// VCS overrides the dirty-tree check (for testing).
	VCS engine.VCS
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the macrome CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "macrome",
		Short: "macrome - in-tree code generation",
		Long: `Run generators over a project tree and keep their output in sync.

Generated files carry a header naming the generator and source that produced
them. macrome only ever modifies or deletes files with that header.

Without a subcommand, macrome runs build.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown command %q for %q", args[0], cmd.CommandPath()))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Verbose && opts.Quiet {
				return NewExitError(ExitCommandError, "--verbose and --quiet are mutually exclusive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, cmd)
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&opts.Quiet, "quiet", "q", false, "only log warnings and errors")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Dir, "dir", ".", "project directory")
	flags.StringVar(&opts.Config, "config", "", "config file (default macrome.{yaml,yml,toml,cue} in --dir)")
	flags.StringVar(&opts.Root, "root", ".", "generator root, relative to the config file")
	flags.StringVar(&opts.Journal, "journal", "", "path to SQLite changeset journal")
	flags.StringSliceVar(&opts.Exclude, "exclude", nil, "additional exclude patterns")
	flags.IntVar(&opts.Concurrency, "concurrency", engine.DefaultConcurrency, "independent changesets processed at once")
	flags.IntVar(&opts.MaxChainLength, "max-chain-length", 0, "max changes per changeset (0 = unlimited)")
	flags.BoolVar(&opts.RevisitGuard, "revisit-guard", false, "map each path at most once per changeset and generator")

	// Add subcommands
	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewCleanCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
