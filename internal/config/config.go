// Package config loads the project configuration file and overlays
// environment variables and command-line flags onto it.
//
// The file is the first of FileNames found in the project directory.
// Precedence, highest first: flag, MACROME_* environment variable, file,
// built-in default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/match"
)

// FileNames are the recognised config file names, in lookup order.
var FileNames = []string{"macrome.yaml", "macrome.yml", "macrome.toml", "macrome.cue"}

// Config is the project configuration.
type Config struct {
	// Root is the directory generators operate on, relative to the config
	// file's directory.
	Root       string                `yaml:"root" toml:"root" json:"root,omitempty"`
	Exclude    []string              `yaml:"exclude" toml:"exclude" json:"exclude,omitempty"`
	Generators []engine.GeneratorRef `yaml:"generators" toml:"generators" json:"generators,omitempty"`
	Quiet      bool                  `yaml:"quiet" toml:"quiet" json:"quiet,omitempty"`

	MaxChainLength int  `yaml:"max_chain_length" toml:"max_chain_length" json:"max_chain_length,omitempty"`
	RevisitGuard   bool `yaml:"revisit_guard" toml:"revisit_guard" json:"revisit_guard,omitempty"`
	Concurrency    int  `yaml:"concurrency" toml:"concurrency" json:"concurrency,omitempty"`

	Journal     string `yaml:"journal" toml:"journal" json:"journal,omitempty"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr" json:"metrics_addr,omitempty"`

	// Path is the file this config was read from, empty for defaults.
	Path string `yaml:"-" toml:"-" json:"-"`
}

// LoadError reports a config file that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Root:        ".",
		Concurrency: engine.DefaultConcurrency,
	}
}

// Find returns the path of the config file in dir, or "" if there is none.
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}

// Load reads the config file in dir, falling back to Default.
func Load(dir string) (*Config, error) {
	p, err := Find(dir)
	if err != nil {
		return nil, err
	}
	if p == "" {
		return Default(), nil
	}
	return LoadFile(p)
}

// LoadFile reads one config file; the format follows its extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cfg := Default()
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	case ".toml":
		err = decodeTOML(data, cfg)
	case ".cue":
		err = decodeCUE(path, data, cfg)
	default:
		err = fmt.Errorf("unsupported format %q", ext)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

var cueFields = map[string]bool{
	"root": true, "exclude": true, "generators": true, "quiet": true,
	"max_chain_length": true, "revisit_guard": true, "concurrency": true,
	"journal": true, "metrics_addr": true,
}

func decodeCUE(path string, data []byte, cfg *Config) error {
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return err
	}
	iter, err := v.Fields()
	if err != nil {
		return err
	}
	var unknown []string
	for iter.Next() {
		if !cueFields[iter.Label()] {
			unknown = append(unknown, iter.Label())
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown fields %v", unknown)
	}
	return v.Decode(cfg)
}

// Validate checks values that no decoder can.
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative"))
	}
	if c.MaxChainLength < 0 {
		errs = append(errs, fmt.Errorf("max_chain_length must not be negative"))
	}
	if _, err := match.Compile(&match.Matchable{Exclude: c.Exclude}); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Generators))
	for i, g := range c.Generators {
		switch {
		case g.Path == "":
			errs = append(errs, fmt.Errorf("generators[%d]: path is required", i))
		case seen[g.Path]:
			errs = append(errs, fmt.Errorf("generators[%d]: duplicate path %q", i, g.Path))
		}
		seen[g.Path] = true
	}
	return errors.Join(errs...)
}

// Dir returns the directory relative paths in c are resolved against.
func (c *Config) Dir(fallback string) string {
	if c.Path == "" {
		return fallback
	}
	return filepath.Dir(c.Path)
}

// RootDir returns the absolute-or-relative generator root.
func (c *Config) RootDir(fallback string) string {
	if filepath.IsAbs(c.Root) {
		return c.Root
	}
	return filepath.Join(c.Dir(fallback), c.Root)
}
