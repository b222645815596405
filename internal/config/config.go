// Package config loads the docmake configuration file and applies defaults.
// The file is optional; a zero-config checkout with conf.py and requirements.txt
// in the repository root builds with the defaults below.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultLivePort is the fixed high port the live server binds when the
// configuration does not override it.
const DefaultLivePort = 55969

// Config represents the application configuration
type Config struct {
	Source    string          `yaml:"source"`
	Build     BuildConfig     `yaml:"build"`
	Venv      VenvConfig      `yaml:"venv"`
	Live      LiveConfig      `yaml:"live"`
	LinkCheck LinkCheckConfig `yaml:"linkcheck"`
	State     StateConfig     `yaml:"state"`
}

// BuildConfig controls how sphinx-build is invoked.
type BuildConfig struct {
	Directory     string `yaml:"directory"`
	Jobs          string `yaml:"jobs"`
	Nitpicky      bool   `yaml:"nitpicky"`
	FailOnWarning *bool  `yaml:"fail_on_warning,omitempty"`
}

// VenvConfig controls virtual environment provisioning.
type VenvConfig struct {
	Directory    string `yaml:"directory"`
	Python       string `yaml:"python"`
	Requirements string `yaml:"requirements"`
}

// LiveConfig controls the htmllive preview server.
type LiveConfig struct {
	Port            int    `yaml:"port"`
	OpenBrowser     bool   `yaml:"open_browser"`
	RebuildInterval string `yaml:"rebuild_interval"`
}

// LinkCheckConfig controls native link verification of the rendered output.
type LinkCheckConfig struct {
	External       *bool    `yaml:"external,omitempty"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
	RequestTimeout string   `yaml:"request_timeout"`
	Ignore         []string `yaml:"ignore,omitempty"`
	NATSURL        string   `yaml:"nats_url,omitempty"`
}

// StateConfig controls the build-run history store.
type StateConfig struct {
	Database *string `yaml:"database,omitempty"`
}

// FailOnWarningEnabled reports whether sphinx warnings abort the build (default true).
func (b *BuildConfig) FailOnWarningEnabled() bool {
	return b.FailOnWarning == nil || *b.FailOnWarning
}

// ExternalEnabled reports whether outbound HTTP links are verified (default true).
func (l *LinkCheckConfig) ExternalEnabled() bool {
	return l.External == nil || *l.External
}

// Timeout parses the request timeout, falling back to 10s on bad input.
func (l *LinkCheckConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(l.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Interval parses the periodic rebuild interval; zero disables the schedule.
func (l *LiveConfig) Interval() time.Duration {
	if l.RebuildInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(l.RebuildInterval)
	if err != nil || d < time.Minute {
		return 0
	}
	return d
}

// DatabasePath returns the sqlite path for run history, or "" when disabled.
func (s *StateConfig) DatabasePath() string {
	if s.Database == nil {
		return ".docmake/state.db"
	}
	return *s.Database
}

// Load loads configuration from the specified file. A missing file yields the
// defaults; a present but malformed file is an error.
func Load(configPath string) (*Config, error) {
	// Load .env/.env.local if present; process env always wins.
	if err := godotenv.Load(".env", ".env.local"); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment variables from .env")
	}

	config := &Config{}

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Zero-config mode.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyDefaults(config)
	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyDefaults(c *Config) {
	if c.Source == "" {
		c.Source = "."
	}
	if c.Build.Directory == "" {
		c.Build.Directory = "build"
	}
	if c.Build.Jobs == "" {
		c.Build.Jobs = "auto"
	}
	if c.Venv.Directory == "" {
		c.Venv.Directory = ".venv"
	}
	if c.Venv.Python == "" {
		c.Venv.Python = "python3"
	}
	if c.Venv.Requirements == "" {
		c.Venv.Requirements = "requirements.txt"
	}
	if c.Live.Port == 0 {
		c.Live.Port = DefaultLivePort
	}
	if c.Live.RebuildInterval == "" {
		c.Live.RebuildInterval = "15m"
	}
	if c.LinkCheck.MaxConcurrent <= 0 {
		c.LinkCheck.MaxConcurrent = 10
	}
	if c.LinkCheck.RequestTimeout == "" {
		c.LinkCheck.RequestTimeout = "10s"
	}
}

func validate(c *Config) error {
	if c.Live.Port < 1 || c.Live.Port > 65535 {
		return fmt.Errorf("live.port out of range: %d", c.Live.Port)
	}
	if _, err := time.ParseDuration(c.LinkCheck.RequestTimeout); err != nil {
		return fmt.Errorf("linkcheck.request_timeout invalid: %w", err)
	}
	return nil
}
