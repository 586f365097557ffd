package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

const (
	// TestRootDirEnvKey is the environment variable key used to set the file system root when testing.
	TestRootDirEnvKey = "BUILDCTL_TEST_ROOT_DIR"
)

// Config holds the information needed to connect to a build server
type Config struct {
	Service Service `json:"service"`

	// baseDir is used to resolve relative paths
	// If baseDir is empty, the current working directory is used.
	baseDir string `json:"-"`
	// TestRootDir is the root directory for test files.
	testRootDir string `json:"-"`
}

// Service contains information how to connect to the build server.
type Service struct {
	// Server is the URL of the build server (the part before /api/v1/...).
	Server string `json:"server"`
}

func (c *Config) SetBaseDir(baseDir string) {
	c.baseDir = baseDir
}

func NewDefault() *Config {
	c := &Config{}

	if value := os.Getenv(TestRootDirEnvKey); value != "" {
		c.testRootDir = filepath.Clean(value)
	}

	return c
}

// NewFromConfig returns a new build server client from the given config.
func NewFromConfig(config *Config) (*BuildServerClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return NewBuildServerClient(config.Service.Server, 0), nil
}

// DefaultConfigPath returns the default path to the buildctl config file.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".buildctl", "client.yaml")
}

func ParseConfigFile(filename string) (*Config, error) {
	contents, err := os.ReadFile(filepath.Join(NewDefault().testRootDir, filename))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config := NewDefault()
	if err := yaml.Unmarshal(contents, config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	config.SetBaseDir(filepath.Dir(filename))
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// NewFromConfigFile returns a new build server client using the config read from the given file.
func NewFromConfigFile(filename string) (*BuildServerClient, error) {
	config, err := ParseConfigFile(filename)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(config)
}

// WriteConfig writes a client config file using the given parameters.
func WriteConfig(filename string, server string) error {
	config := NewDefault()
	config.Service = Service{
		Server: server,
	}

	return config.Persist(filename)
}

func (c *Config) Persist(filename string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	filename = filepath.Join(c.testRootDir, filename)
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.WriteFile(filename, contents, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	validationErrors := make([]error, 0)
	validationErrors = append(validationErrors, validateService(c.Service)...)
	if len(validationErrors) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(validationErrors...))
	}
	return nil
}

func validateService(service Service) []error {
	validationErrors := make([]error, 0)
	// Make sure the server is specified and well-formed
	if len(service.Server) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("no server found"))
	} else {
		u, err := url.Parse(service.Server)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Errorf("invalid server format %q: %w", service.Server, err))
		}
		if err == nil && len(u.Hostname()) == 0 {
			validationErrors = append(validationErrors, fmt.Errorf("invalid server format %q: no hostname", service.Server))
		}
	}
	return validationErrors
}
