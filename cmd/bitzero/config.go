package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tetratelabs/bitzero"
	"github.com/tetratelabs/bitzero/internal/logging"
)

// fileConfig is the YAML configuration file read by --config.
//
// Ex.
//
//	memory_limit: 16777216
//	call_stack_ceiling: 500
//	trace: true
//	log_scopes: [memory, control]
type fileConfig struct {
	MemoryLimit      uint64   `yaml:"memory_limit,omitempty"`
	CallStackCeiling int      `yaml:"call_stack_ceiling,omitempty"`
	Trace            bool     `yaml:"trace,omitempty"`
	LogScopes        []string `yaml:"log_scopes,omitempty"`
}

// loadConfig reads the configuration at path. An empty path returns the
// zero configuration.
func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return cfg, parseConfig(data, path, cfg)
}

// parseConfig decodes data into cfg, rejecting unknown keys. The path is
// only used in error messages.
func parseConfig(data []byte, path string, cfg *fileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.CallStackCeiling < 0 {
		return fmt.Errorf("parsing %s: call_stack_ceiling must not be negative", path)
	}
	if _, err := cfg.logScopes(); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// logScopes returns the scopes to trace. No scopes means all of them.
func (c *fileConfig) logScopes() (logging.LogScopes, error) {
	if len(c.LogScopes) == 0 {
		return logging.LogScopeAll, nil
	}
	return logging.ParseLogScopes(c.LogScopes...)
}

// runtimeConfig applies c over the defaults. Zero values keep the default.
func (c *fileConfig) runtimeConfig() *bitzero.RuntimeConfig {
	rc := bitzero.NewRuntimeConfig()
	if c.MemoryLimit != 0 {
		rc = rc.WithMemoryLimit(c.MemoryLimit)
	}
	if c.CallStackCeiling != 0 {
		rc = rc.WithCallStackCeiling(c.CallStackCeiling)
	}
	return rc
}
