package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MACROME_CONCURRENCY.
const EnvPrefix = "MACROME"

// overlayKeys maps viper keys to the flag names that may set them.
var overlayKeys = map[string]string{
	"root":             "root",
	"exclude":          "exclude",
	"quiet":            "quiet",
	"max_chain_length": "max-chain-length",
	"revisit_guard":    "revisit-guard",
	"concurrency":      "concurrency",
	"journal":          "journal",
	"metrics_addr":     "metrics-addr",
}

// NewViper returns a viper instance reading MACROME_* variables and bound
// to whichever overlay flags exist in flags. flags may be nil.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if flags == nil {
		return v, nil
	}
	for key, name := range overlayKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Overlay applies every value v has from a changed flag or the
// environment. An unchanged flag's default leaves c untouched.
func (c *Config) Overlay(v *viper.Viper) error {
	if v.IsSet("root") {
		c.Root = v.GetString("root")
	}
	if v.IsSet("exclude") {
		c.Exclude = append(c.Exclude, v.GetStringSlice("exclude")...)
	}
	if v.IsSet("quiet") {
		c.Quiet = v.GetBool("quiet")
	}
	if v.IsSet("max_chain_length") {
		c.MaxChainLength = v.GetInt("max_chain_length")
	}
	if v.IsSet("revisit_guard") {
		c.RevisitGuard = v.GetBool("revisit_guard")
	}
	if v.IsSet("concurrency") {
		c.Concurrency = v.GetInt("concurrency")
	}
	if v.IsSet("journal") {
		c.Journal = v.GetString("journal")
	}
	if v.IsSet("metrics_addr") {
		c.MetricsAddr = v.GetString("metrics_addr")
	}
	return c.Validate()
}
