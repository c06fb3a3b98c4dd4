package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "ragsearch"
	defaultConfig = ".config"
)

// Protocol variants of the answer service.
const (
	ModeStream = "stream"
	ModeMulti  = "multi"
)

var configFiles = []string{
	"config.yaml",
	"config.yml",
}

// Config represents the structure of the configuration file used by the application.
type Config struct {
	Endpoint           string        `yaml:"endpoint" default:"http://localhost:8081"`
	Mode               string        `yaml:"mode" default:"stream"`
	// Timeout bounds a whole search session. Zero waits as long as the
	// service keeps streaming.
	Timeout            time.Duration `yaml:"timeout"`
	Related            bool          `yaml:"related" default:"true"`
	FullWidthCitations bool          `yaml:"fullwidth_citations"`
	APIKey             string        `yaml:"api_key"`
	LogLevel           string        `yaml:"log_level" default:"warn"`
	Render             Render        `yaml:"render"`
}

// Render controls how answers are printed.
type Render struct {
	Format string `yaml:"format" default:"markdown"`
	Wrap   int    `yaml:"wrap" default:"120"`
	Theme  string `yaml:"theme" default:"auto"`
}

// configResult is a struct used to return the configuration and any error that occurs during loading.
type configResult struct {
	config *Config
	err    error
}

// New returns a configuration with every default applied.
func New() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Only malformed default tags can fail here.
		panic(err)
	}
	return cfg
}

// Validate reports settings the clients cannot work with.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint must not be empty")
	}
	switch c.Mode {
	case ModeStream, ModeMulti:
	default:
		return errors.Errorf("unknown mode %q (want %q or %q)", c.Mode, ModeStream, ModeMulti)
	}
	if c.Timeout < 0 {
		return errors.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// applyEnv lets the environment override file settings.
func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		"RAGSEARCH_ENDPOINT":  &c.Endpoint,
		"RAGSEARCH_MODE":      &c.Mode,
		"RAGSEARCH_API_KEY":   &c.APIKey,
		"RAGSEARCH_LOG_LEVEL": &c.LogLevel,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// getConfigPath retrieves the path to the configuration directory based on the XDG_CONFIG_HOME environment variable.
func getConfigPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to get user home directory")
		}
		configHome = filepath.Join(home, defaultConfig)
	}

	return filepath.Join(configHome, configDirName), nil
}

// tryLoadConfig attempts to load a configuration file from the specified path.
func tryLoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return cfg, nil
}

// LoadConfig loads the configuration from the user's config directory, with a timeout.
// Environment overrides are applied on top and the result is validated.
func LoadConfig(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result := make(chan configResult, 1)

	go func() {
		cfg, err := loadConfigFiles(ctx)
		result <- configResult{config: cfg, err: err}
	}()

	done := ctx.Done()
	select {
	case <-done:
		return nil, ctx.Err()
	case r := <-result:
		if r.err != nil {
			return nil, r.err
		}
		r.config.applyEnv()
		if err := r.config.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid configuration")
		}
		return r.config, nil
	}
}

// loadConfigFiles loads configuration files from the user's config directory.
func loadConfigFiles(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "context error before loading config")
	}

	configDir, err := getConfigPath()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get config path")
	}

	// Return default config early if directory doesn't exist
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return New(), nil
	}

	for _, filename := range configFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg, err := tryLoadConfig(filepath.Join(configDir, filename))
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to load config from %s", filename)
		}
	}

	return New(), nil
}
