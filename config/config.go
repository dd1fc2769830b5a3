// Package config loads the configuration of the world command: a YAML file
// overlaid with WORLDS_* environment variables.
package config

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/worlds/errors"
	"github.com/wippyai/worlds/linker"
	"github.com/wippyai/worlds/world"
)

// EnvPrefix is the prefix of environment overrides, e.g. WORLDS_ENTRY.
const EnvPrefix = "WORLDS"

// Config describes one world to load.
type Config struct {
	// Entry is the relative specifier of the entry module.
	Entry string `yaml:"entry" envconfig:"ENTRY"`

	// Dir is the directory Entry is resolved against.
	Dir string `yaml:"dir" envconfig:"DIR"`

	// Globals seed the global namespace.
	Globals map[string]any `yaml:"globals" ignored:"true"`

	// Mocks serve bare specifiers with static values. Each mock becomes an
	// import hook, so it shadows any host package of the same name.
	Mocks map[string]any `yaml:"mocks" ignored:"true"`

	// GlobalName names the global self-reference.
	GlobalName string `yaml:"global_name" envconfig:"GLOBAL_NAME"`

	Concurrency int    `yaml:"concurrency" envconfig:"CONCURRENCY"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	opts := world.DefaultOptions()
	return &Config{
		Entry:       "./index.js",
		Dir:         ".",
		GlobalName:  opts.GlobalName,
		Concurrency: opts.Concurrency,
		LogLevel:    "warn",
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "read config "+path)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults without looking at the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "decode config")
	}
	return nil
}

// Validate checks the entry and the mocked specifiers.
func (c *Config) Validate() error {
	if kind := linker.Classify(c.Entry); kind != linker.SpecifierRelative {
		return errors.Configuration(errors.PhaseConfig, c.Entry, "entry must be a relative path")
	}
	for spec := range c.Mocks {
		if linker.Classify(spec) != linker.SpecifierBare {
			return errors.Configuration(errors.PhaseConfig, spec, "mocks must be bare specifiers")
		}
	}
	if c.Concurrency < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "concurrency must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "log level")
	}
	return lvl, nil
}

// Hooks returns an import hook per mock.
func (c *Config) Hooks() map[string]linker.Hook {
	if len(c.Mocks) == 0 {
		return nil
	}
	hooks := make(map[string]linker.Hook, len(c.Mocks))
	for spec, value := range c.Mocks {
		v := value
		hooks[spec] = func(context.Context, string) (any, error) {
			return v, nil
		}
	}
	return hooks
}

// WorldOptions returns the world options described by c.
func (c *Config) WorldOptions() world.Options {
	opts := world.DefaultOptions()
	opts.Dir = c.Dir
	opts.Globals = c.Globals
	opts.ImportHooks = c.Hooks()
	if c.GlobalName != "" {
		opts.GlobalName = c.GlobalName
	}
	opts.Concurrency = c.Concurrency
	return opts
}
