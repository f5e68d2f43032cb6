// Package config loads pip-compile defaults from the [tool.pip-tools]
// table of pyproject.toml. Command-line flags take precedence; pointer
// fields distinguish "unset" from an explicit false/empty.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/jammie19/pip-tools/internal/req"
)

// DefaultFile is the project manifest the configuration is read from.
const DefaultFile = "pyproject.toml"

// Config mirrors the recognized [tool.pip-tools] keys.
type Config struct {
	DryRun          *bool `toml:"dry-run"`
	Header          *bool `toml:"header"`
	EmitIndexURL    *bool `toml:"emit-index-url"`
	EmitTrustedHost *bool `toml:"emit-trusted-host"`
	EmitFindLinks   *bool `toml:"emit-find-links"`
	EmitOptions     *bool `toml:"emit-options"`
	Annotate        *bool `toml:"annotate"`
	StripExtras     *bool `toml:"strip-extras"`
	GenerateHashes  *bool `toml:"generate-hashes"`
	AllowUnsafe     *bool `toml:"allow-unsafe"`

	IndexURL       *string  `toml:"index-url"`
	OutputFile     *string  `toml:"output-file"`
	ExtraIndexURLs []string `toml:"extra-index-url"`
	FindLinks      []string `toml:"find-links"`
	TrustedHosts   []string `toml:"trusted-host"`
	NoBinary       []string `toml:"no-binary"`
	OnlyBinary     []string `toml:"only-binary"`
	// UnsafePackage replaces the built-in unsafe-package set when given.
	UnsafePackage []string `toml:"unsafe-package"`
}

type pyproject struct {
	Tool struct {
		PipTools Config `toml:"pip-tools"`
	} `toml:"tool"`
}

// Load reads the configuration from path. A missing file yields an empty
// configuration, not an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var project pyproject
	if err := toml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &project.Tool.PipTools, nil
}

// LoadDir reads the configuration from dir's pyproject.toml.
func LoadDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, DefaultFile))
}

// UnsafeSet converts the configured unsafe-package list into the set shape
// the writer consumes, keys normalized, or nil when the list is absent.
func (c *Config) UnsafeSet() map[string]bool {
	if c.UnsafePackage == nil {
		return nil
	}
	set := make(map[string]bool, len(c.UnsafePackage))
	for _, name := range c.UnsafePackage {
		set[req.NormalizeName(name)] = true
	}
	return set
}
