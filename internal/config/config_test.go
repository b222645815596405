package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docmake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Source)
	assert.Equal(t, "build", cfg.Build.Directory)
	assert.Equal(t, "auto", cfg.Build.Jobs)
	assert.False(t, cfg.Build.Nitpicky)
	assert.True(t, cfg.Build.FailOnWarningEnabled())
	assert.Equal(t, ".venv", cfg.Venv.Directory)
	assert.Equal(t, "python3", cfg.Venv.Python)
	assert.Equal(t, "requirements.txt", cfg.Venv.Requirements)
	assert.Equal(t, DefaultLivePort, cfg.Live.Port)
	assert.Equal(t, 10, cfg.LinkCheck.MaxConcurrent)
	assert.True(t, cfg.LinkCheck.ExternalEnabled())
	assert.Equal(t, ".docmake/state.db", cfg.State.DatabasePath())
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := writeConfig(t, `
source: docs
build:
  directory: out
  jobs: "4"
  nitpicky: true
  fail_on_warning: false
venv:
  directory: .venv-docs
  requirements: requirements-docs.txt
live:
  port: 8080
  open_browser: true
linkcheck:
  external: false
  max_concurrent: 3
  request_timeout: 5s
  ignore:
    - example.invalid
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "docs", cfg.Source)
	assert.Equal(t, "out", cfg.Build.Directory)
	assert.Equal(t, "4", cfg.Build.Jobs)
	assert.True(t, cfg.Build.Nitpicky)
	assert.False(t, cfg.Build.FailOnWarningEnabled())
	assert.Equal(t, ".venv-docs", cfg.Venv.Directory)
	assert.Equal(t, "requirements-docs.txt", cfg.Venv.Requirements)
	assert.Equal(t, 8080, cfg.Live.Port)
	assert.True(t, cfg.Live.OpenBrowser)
	assert.False(t, cfg.LinkCheck.ExternalEnabled())
	assert.Equal(t, 3, cfg.LinkCheck.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.LinkCheck.Timeout())
	assert.Equal(t, []string{"example.invalid"}, cfg.LinkCheck.Ignore)
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("DOCMAKE_TEST_SOURCE", "peps")
	path := writeConfig(t, "source: ${DOCMAKE_TEST_SOURCE}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "peps", cfg.Source)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "source: [unclosed\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestLoad_RejectsBadPort(t *testing.T) {
	path := writeConfig(t, "live:\n  port: 99999\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live.port")
}

func TestLoad_RejectsBadTimeout(t *testing.T) {
	path := writeConfig(t, "linkcheck:\n  request_timeout: soon\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout")
}

func TestLinkCheckConfig_Timeout(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"valid duration", "30s", 30 * time.Second},
		{"empty falls back", "", 10 * time.Second},
		{"negative falls back", "-5s", 10 * time.Second},
		{"garbage falls back", "whenever", 10 * time.Second},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			lc := LinkCheckConfig{RequestTimeout: test.value}
			assert.Equal(t, test.want, lc.Timeout())
		})
	}
}

func TestLiveConfig_Interval(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"default quarter hour", "15m", 15 * time.Minute},
		{"empty disables", "", 0},
		{"sub-minute disables", "10s", 0},
		{"garbage disables", "often", 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			lv := LiveConfig{RebuildInterval: test.value}
			assert.Equal(t, test.want, lv.Interval())
		})
	}
}

func TestStateConfig_DatabasePath(t *testing.T) {
	var s StateConfig
	assert.Equal(t, ".docmake/state.db", s.DatabasePath())

	custom := "/tmp/runs.db"
	s.Database = &custom
	assert.Equal(t, custom, s.DatabasePath())

	disabled := ""
	s.Database = &disabled
	assert.Equal(t, "", s.DatabasePath())
}
