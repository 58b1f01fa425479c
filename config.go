package graft

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jward/graft/internal/resolve"
)

// Config is the user-facing engine configuration, loadable from YAML.
// The zero value is usable.
type Config struct {
	// Languages restricts processing to the named languages. Empty means
	// all supported languages.
	Languages []string `yaml:"languages"`

	// StorePath is the SQLite database location. Empty means an
	// in-memory graph that lives as long as the Engine.
	StorePath string `yaml:"store_path"`

	// ImportOverrides maps an import source string to the file path it
	// resolves to, bypassing module-name matching. Used for bundler
	// aliases and path mappings the engine cannot see.
	ImportOverrides map[string]string `yaml:"import_overrides"`

	// HopLimit bounds transitive re-export chain following during
	// resolution; 0 means the default.
	HopLimit int `yaml:"hop_limit"`

	// TieBreak selects among equally-ranked declarations of one name in
	// one scope: "decl-order" (default) or "last-decl".
	TieBreak string `yaml:"tie_break"`

	// Parallel enables the parallel extraction pipeline. Defaults to
	// true; set explicitly false for serial indexing.
	Parallel *bool `yaml:"parallel"`

	// MoveReexports leaves a compatibility re-export behind when a
	// symbol moves to another file, in languages that have a form for
	// it. Off by default.
	MoveReexports bool `yaml:"move_reexports"`
}

// LoadConfig reads a YAML config file. A missing file is not an error;
// it yields the zero Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolverConfig maps the user-facing config to the resolver's.
func (c Config) resolverConfig() resolve.Config {
	return resolve.Config{
		ImportOverrides: c.ImportOverrides,
		HopLimit:        c.HopLimit,
		TieBreak:        resolve.Policy(c.TieBreak),
	}
}

func (c Config) parallel() bool {
	if c.Parallel == nil {
		return true
	}
	return *c.Parallel
}
