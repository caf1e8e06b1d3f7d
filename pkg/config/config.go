// Package config loads migcert configuration from an optional YAML file and
// MIGCERT_* environment variables, and validates it with struct tags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvLogLevel   = "MIGCERT_LOG_LEVEL"
	EnvLogFormat  = "MIGCERT_LOG_FORMAT"
	EnvArchiveDSN = "MIGCERT_ARCHIVE_DSN"
	EnvTracing    = "MIGCERT_TRACING"
	EnvOTLP       = "MIGCERT_OTLP_ENDPOINT"
)

// Config holds CLI configuration.
type Config struct {
	LogLevel          string            `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat         string            `yaml:"log_format" validate:"oneof=text json"`
	Documents         Documents         `yaml:"documents"`
	ParserConstraints map[string]string `yaml:"parser_constraints" validate:"dive,keys,required,endkeys,semver_constraint"`
	ArchiveDSN        string            `yaml:"archive_dsn"`
	Tracing           bool              `yaml:"tracing"`
	OTLPEndpoint      string            `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`
}

// Documents are optional paths that replace the embedded documents.
type Documents struct {
	Contract   string `yaml:"contract"`
	Policy     string `yaml:"policy"`
	Manifest   string `yaml:"manifest"`
	Model      string `yaml:"model"`
	Provenance string `yaml:"provenance"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("semver_constraint", func(fl validator.FieldLevel) bool {
		_, err := semver.NewConstraint(fl.Field().String())
		return err == nil
	})
	return v
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %q: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok && v != "" {
		c.LogFormat = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv(EnvArchiveDSN); ok && v != "" {
		c.ArchiveDSN = v
	}
	if v, ok := os.LookupEnv(EnvOTLP); ok && v != "" {
		c.OTLPEndpoint = v
	}
	if v, ok := os.LookupEnv(EnvTracing); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTracing, v, err)
		}
		c.Tracing = b
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
