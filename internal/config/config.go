package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"merkle-diff/internal/hash"
)

// FileName is the config file looked up in the scanned directory when no
// explicit path is given.
const FileName = "merkle-diff.yaml"

// DefaultSnapshot is the snapshot location used when neither the config file
// nor the command line names one. Relative paths resolve against the scanned
// directory.
const DefaultSnapshot = ".merkle-diff.json"

type Config struct {
	Exclude   []string `yaml:"exclude"`
	Algorithm string   `yaml:"algorithm"`
	Workers   int      `yaml:"workers"`
	Snapshot  string   `yaml:"snapshot"`
	Gitignore bool     `yaml:"gitignore"`
	Certify   bool     `yaml:"certify"`
}

func DefaultConfig() *Config {
	return &Config{
		Exclude: []string{
			"node_modules/",
			"vendor/",
			"__pycache__/",
			"*.o",
			"*.so",
			"*.exe",
			"*.tmp",
			"*.swp",
			".DS_Store",
			"Thumbs.db",
		},
		Algorithm: string(hash.Default),
		Snapshot:  DefaultSnapshot,
	}
}

// LoadConfig reads a YAML config file. A missing file yields the defaults;
// fields absent from an existing file keep their default values, except
// Exclude, which is replaced as a whole when present.
func LoadConfig(path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	// Initialize Exclude slice if nil (for an explicit empty list)
	if cfg.Exclude == nil {
		cfg.Exclude = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the algorithm name and worker count.
func (c *Config) Validate() error {
	if _, err := hash.ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// HashAlgorithm returns the validated algorithm.
func (c *Config) HashAlgorithm() (hash.Algorithm, error) {
	return hash.ParseAlgorithm(c.Algorithm)
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", path, err)
	}
	return expanded, nil
}
