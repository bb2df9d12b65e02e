// Package cliconfig loads the management CLI configuration file.
//
// The file is optional: a missing file yields the defaults. Command-line
// flags override whatever the file sets.
package cliconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
)

// DefaultController is the gRPC address of a local controller.
const DefaultController = "127.0.0.1:9999"

// Config is the CLI configuration.
type Config struct {
	// Controller is the host:port of the management controller.
	Controller string `yaml:"controller"`

	// ConnectTimeout bounds the first request to the controller.
	// Default: 5s
	ConnectTimeout string `yaml:"connect-timeout"`

	// HistoryFile keeps the shell history; empty disables it.
	HistoryFile string `yaml:"history-file"`
	HistoryMax  int    `yaml:"history-max"`

	// ValidateOperationRequests rejects malformed names before a request
	// is sent. When false, requests are built from a best-effort parse.
	ValidateOperationRequests bool `yaml:"validate-operation-requests"`

	// ResolveParameterValues lets $name fall back to the environment
	// when no shell variable of that name is set.
	ResolveParameterValues bool `yaml:"resolve-parameter-values"`

	// EchoCommand prints each command before it runs in non-interactive
	// mode.
	EchoCommand bool `yaml:"echo-command"`

	// Silent suppresses the banner and informational messages.
	Silent bool `yaml:"silent"`

	// Variables are defined in every session.
	Variables map[string]string `yaml:"variables"`
}

// Default returns the default configuration.
func Default() *Config {
	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".mgmtcli_history")
	}
	return &Config{
		Controller:                DefaultController,
		ConnectTimeout:            "5s",
		HistoryFile:               history,
		HistoryMax:                500,
		ValidateOperationRequests: true,
	}
}

// DefaultPath returns the per-user configuration file path.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mgmtcli", "config.yaml")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values of c.
func (c *Config) Validate() error {
	if c.Controller == "" {
		return errors.New("controller must not be empty")
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.HistoryMax < 0 {
		return fmt.Errorf("history-max must not be negative, got %d", c.HistoryMax)
	}
	for name := range c.Variables {
		if !operation.IsVariableName(name) {
			return fmt.Errorf("invalid variable name %q", name)
		}
	}
	return nil
}

// Timeout returns the parsed connect timeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 0, fmt.Errorf("connect-timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("connect-timeout must be positive, got %s", d)
	}
	return d, nil
}
