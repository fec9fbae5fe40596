package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/roach88/macrome/internal/engine"
)

// Scenario is one conformance test: an initial tree, a generator
// configuration, the steps to drive and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Generators are resolved through the built-in generator registry.
	Generators []engine.GeneratorRef `yaml:"generators"`

	// Exclude patterns are added to the default excludes.
	Exclude []string `yaml:"exclude,omitempty"`

	// MaxChainLength and RevisitGuard mirror the config file settings.
	MaxChainLength int  `yaml:"max_chain_length,omitempty"`
	RevisitGuard   bool `yaml:"revisit_guard,omitempty"`

	// Files seeds the tree, keyed by slash-separated path.
	Files map[string]string `yaml:"files,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the state after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action against the engine or the tree.
type Step struct {
	// Op is one of build, clean, write or remove.
	Op string `yaml:"op"`

	// Path is the file a write or remove step touches.
	Path string `yaml:"path,omitempty"`

	// Content is what a write step stores.
	Content string `yaml:"content,omitempty"`
}

// Step operations.
const (
	OpBuild  = "build"
	OpClean  = "clean"
	OpWrite  = "write"
	OpRemove = "remove"
)

// Assertion checks the final tree, the failures or the journal.
type Assertion struct {
	// Type selects the check:
	// - "exists": Path is present
	// - "absent": Path is not present
	// - "contains": Path's contents include Contains
	// - "annotation": Path's header carries Key (equal to Value, when set)
	// - "failures": exactly Count generator failures were recorded
	// - "changesets": exactly Count journaled Changesets reached Path
	Type string `yaml:"type"`

	Path     string `yaml:"path,omitempty"`
	Contains string `yaml:"contains,omitempty"`
	Key      string `yaml:"key,omitempty"`
	Value    string `yaml:"value,omitempty"`
	Count    *int   `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertExists     = "exists"
	AssertAbsent     = "absent"
	AssertContains   = "contains"
	AssertAnnotation = "annotation"
	AssertFailures   = "failures"
	AssertChangesets = "changesets"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarioDir loads every .yaml and .yml file under dir, sorted by path.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	names := make(map[string]string, len(matches))
	for _, m := range matches {
		s, err := LoadScenario(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		if prev, ok := names[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", m, s.Name, prev)
		}
		names[s.Name] = m
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, g := range s.Generators {
		if g.Path == "" {
			return fmt.Errorf("generators[%d]: path is required", i)
		}
	}

	for i, step := range s.Steps {
		switch step.Op {
		case OpBuild, OpClean:
			if step.Path != "" {
				return fmt.Errorf("steps[%d]: %s takes no path", i, step.Op)
			}
		case OpWrite, OpRemove:
			if step.Path == "" {
				return fmt.Errorf("steps[%d]: path is required for %s", i, step.Op)
			}
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertExists, AssertAbsent:
	case AssertContains:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for contains", index)
		}
	case AssertAnnotation:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for annotation", index)
		}
	case AssertFailures:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for failures", index)
		}
		return nil
	case AssertChangesets:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for changesets", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Path == "" {
		return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
	}
	return nil
}
