// Package config loads the program-wide configuration file, which
// supplies defaults that CLI flags can still override.
package config

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/banksean/toast/internal/toasterr"
)

const (
	// RepoDefault is the image repository prefix used when none is
	// configured.
	RepoDefault = "toast"

	engineDefault = "docker"

	// EmptyConfig is valid input to Parse representing no overrides.
	EmptyConfig = "{}"
)

// Config is the program's persistent configuration, normally loaded from
// a YAML file such as ~/.toastrc.yml. Its keys match the toast CLI's own
// flag names (see cmd/toast) so the same file can double as a source of
// CLI flag defaults.
type Config struct {
	Engine           string `yaml:"engine"`
	Repo             string `yaml:"repo"`
	ReadLocalCache   bool   `yaml:"read-local-cache"`
	WriteLocalCache  bool   `yaml:"write-local-cache"`
	ReadRemoteCache  bool   `yaml:"read-remote-cache"`
	WriteRemoteCache bool   `yaml:"write-remote-cache"`
}

// Default returns the configuration applied when no config file exists.
func Default() Config {
	return Config{
		Engine:          engineDefault,
		Repo:            RepoDefault,
		ReadLocalCache:  true,
		WriteLocalCache: true,
	}
}

// Parse parses a YAML configuration document, rejecting unknown fields
// the same way the recipe parser does, and filling in defaults for any
// field the document doesn't mention.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, toasterr.User("Syntax error.", err)
	}

	return cfg, nil
}
