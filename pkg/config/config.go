package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"onesh/pkg/engine"
	"onesh/pkg/log"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// AppFs is the filesystem configuration files are read from. Tests swap it
// for an in-memory filesystem.
var AppFs = afero.NewOsFs()

type Config struct {
	Engine   string            `yaml:"engine"`
	Prompt   string            `yaml:"prompt"`
	Pause    bool              `yaml:"pause"`
	Timeout  time.Duration     `yaml:"timeout,omitempty"`
	Dir      string            `yaml:"dir,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	LogLevel string            `yaml:"log-level,omitempty"`
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, e := range es {
		sb.WriteString(fmt.Sprintf("  - %s\n", e.Error()))
	}
	return sb.String()
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine:   engine.VirtualName,
		Prompt:   "onesh",
		Pause:    true,
		LogLevel: "warn",
	}
}

// Load reads filename on top of the defaults and validates the result.
// Unknown keys are rejected.
func Load(filename string, logger log.Logger) (*Config, error) {
	data, err := afero.ReadFile(AppFs, filename)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing %s: %w", filename, err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}

	logger.Debug("Loaded configuration", "path", filename, "engine", cfg.Engine)
	return cfg, nil
}

// LoadOptional behaves like Load but returns the defaults when filename does
// not exist.
func LoadOptional(filename string, logger log.Logger) (*Config, error) {
	cfg, err := Load(filename, logger)
	if os.IsNotExist(err) {
		logger.Debug("No configuration file, using defaults", "path", filename)
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if _, err := engine.New(c.Engine, engine.Options{}); err != nil {
		errs = append(errs, ValidationError{
			Field:   "engine",
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(engine.Names(), ", "), c.Engine),
		})
	}

	if strings.TrimSpace(c.Prompt) == "" {
		errs = append(errs, ValidationError{Field: "prompt", Message: "must not be empty"})
	}

	if c.Timeout < 0 {
		errs = append(errs, ValidationError{Field: "timeout", Message: "must not be negative"})
	}

	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, ValidationError{Field: "log-level", Message: err.Error()})
		}
	}

	for key := range c.Env {
		if key == "" || strings.ContainsAny(key, "= \t\n") {
			errs = append(errs, ValidationError{Field: "env", Message: fmt.Sprintf("invalid variable name %q", key)})
		}
	}

	return errs
}

// EngineOptions converts the configuration into options for engine.New.
func (c *Config) EngineOptions(stderr io.Writer, logger log.Logger) engine.Options {
	return engine.Options{
		Dir:     c.Dir,
		Env:     c.Env,
		Timeout: c.Timeout,
		Stderr:  stderr,
		Logger:  logger,
	}
}
