// Package config loads and merges the YAML configuration described in
// spec.md §6: a baked-in default document, optionally overlaid by a
// user-supplied YAML file (`-c`), optionally overlaid again by CLI flag
// overrides. Precedence is defaults → file → CLI flags, highest wins,
// the same layered-merge idiom as calvinalkan-agent-task's
// LoadConfig/mergeConfig, adapted from JSON+hujson to YAML since that is
// the wire format spec.md §6 specifies.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the effective running configuration for one backup run.
// Field names follow spec.md §6's configuration schema table exactly;
// yaml tags match the schema's key names.
type Config struct {
	Log            string   `yaml:"log"`
	DB             string   `yaml:"db"`
	MinAge         int64    `yaml:"min_age"`
	MaxTargetSize  string   `yaml:"max_target_size"`
	Target         string   `yaml:"target"`
	Key            string   `yaml:"key"`
	ExcludeFlag    string   `yaml:"exclude_flag"`
	Backup         []string `yaml:"backup"`
	Exclude        []string `yaml:"exclude"`

	// Email, ResultT and ResultH are consumed only by the external
	// report/delivery collaborator (spec.md §6); this package parses them
	// but never interprets their contents.
	Email   map[string]any `yaml:"email"`
	ResultT string         `yaml:"resultT"`
	ResultH string         `yaml:"resultH"`
}

// defaultDocument mirrors original_source/pybackup2.py's defaultCfg, trimmed
// to the keys spec.md §6 recognizes.
const defaultDocument = `
log: cyclicbackup.log
db: /tmp/cyclicbackup.db
min_age: 300
max_target_size: 500M
exclude_flag: ".bkexclude"
target: "backup-%h-%t.tar.xz.gpg"
key: ""
backup: []
exclude: []
`

// Default returns the baked-in default configuration.
func Default() (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultDocument), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse default document: %w", err)
	}
	return cfg, nil
}

// LoadFile reads path as YAML and merges it onto base, field by field: a
// zero-value field in the overlay document leaves base's value in place.
// This is a struct-level merge, not a blind overwrite, exactly
// calvinalkan-agent-task's mergeConfig discipline.
func LoadFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return merge(base, overlay), nil
}

func merge(base, overlay Config) Config {
	if overlay.Log != "" {
		base.Log = overlay.Log
	}
	if overlay.DB != "" {
		base.DB = overlay.DB
	}
	if overlay.MinAge != 0 {
		base.MinAge = overlay.MinAge
	}
	if overlay.MaxTargetSize != "" {
		base.MaxTargetSize = overlay.MaxTargetSize
	}
	if overlay.Target != "" {
		base.Target = overlay.Target
	}
	if overlay.Key != "" {
		base.Key = overlay.Key
	}
	if overlay.ExcludeFlag != "" {
		base.ExcludeFlag = overlay.ExcludeFlag
	}
	if len(overlay.Backup) > 0 {
		base.Backup = overlay.Backup
	}
	if len(overlay.Exclude) > 0 {
		base.Exclude = overlay.Exclude
	}
	if overlay.Email != nil {
		base.Email = overlay.Email
	}
	if overlay.ResultT != "" {
		base.ResultT = overlay.ResultT
	}
	if overlay.ResultH != "" {
		base.ResultH = overlay.ResultH
	}
	return base
}

// Overrides holds the subset of Config that the CLI's single-letter flags
// (spec.md §6) may override; a zero value for any field means "not set on
// the command line" and leaves the merged file/default config untouched.
type Overrides struct {
	Key           string
	Log           string
	MaxTargetSize string
	Target        string
}

// ApplyOverrides merges CLI overrides onto cfg with the same
// zero-value-means-unset rule as LoadFile, the last and highest-precedence
// layer in the defaults → file → CLI chain.
func ApplyOverrides(cfg Config, o Overrides) Config {
	if o.Key != "" {
		cfg.Key = o.Key
	}
	if o.Log != "" {
		cfg.Log = o.Log
	}
	if o.MaxTargetSize != "" {
		cfg.MaxTargetSize = o.MaxTargetSize
	}
	if o.Target != "" {
		cfg.Target = o.Target
	}
	return cfg
}

// Dump renders cfg as YAML, for the `-d` flag's "dump effective config to
// standard error" behavior.
func Dump(cfg Config) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("config: marshal for dump: %w", err)
	}
	return string(out), nil
}
