package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/macrome/internal/config"
	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/match"
)

// ValidationError is one problem found by validate.
type ValidationError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Generator string `json:"generator,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Config     string            `json:"config,omitempty"`
	Generators []string          `json:"generators"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config without touching the tree",
		Long: `Load the config file, resolve every configured generator and compile
every include/exclude pattern. Nothing is read or written under the root.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		var loadErr *config.LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, ErrCodeConfig, loadErr.Error())
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}
	if cfg.Path != "" {
		formatter.VerboseLog("Using config %s", cfg.Path)
	} else {
		formatter.VerboseLog("No config file found; using defaults")
	}

	result := ValidationResult{Config: cfg.Path, Generators: []string{}}
	loader := opts.loader()
	for _, ref := range cfg.Generators {
		result.Generators = append(result.Generators, ref.Path)
		result.Errors = append(result.Errors, validateGenerator(loader, ref)...)
	}
	result.Valid = len(result.Errors) == 0

	if opts.Format == "json" {
		if err := outputValidateJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		outputValidateText(cmd.OutOrStdout(), result)
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

func validateGenerator(loader engine.Loader, ref engine.GeneratorRef) []ValidationError {
	g, err := loader.Load(ref)
	if err != nil {
		return []ValidationError{{Code: ErrCodeGenerator, Message: err.Error(), Generator: ref.Path}}
	}
	if closer, ok := g.(engine.Closer); ok {
		defer closer.Close()
	}
	if _, err := match.Compile(g.Matchable()); err != nil {
		return []ValidationError{{Code: ErrCodeMatchable, Message: err.Error(), Generator: ref.Path}}
	}
	return nil
}

func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitFailure, message)
}

func outputValidateJSON(w io.Writer, result ValidationResult) error {
	status := "ok"
	if !result.Valid {
		status = "error"
	}
	return json.NewEncoder(w).Encode(CLIResponse{Status: status, Data: result})
}

func outputValidateText(w io.Writer, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(w, "✓ config valid (%d generators)\n", len(result.Generators))
		return
	}
	fmt.Fprintf(w, "✗ config has %d error(s):\n", len(result.Errors))
	for _, e := range result.Errors {
		if e.Generator != "" {
			fmt.Fprintf(w, "  [%s] %s: %s\n", e.Code, e.Generator, e.Message)
			continue
		}
		fmt.Fprintf(w, "  [%s] %s\n", e.Code, e.Message)
	}
}
