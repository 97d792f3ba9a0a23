package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("", nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "toolshim-mcp", cfg.Server.Name)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, ":3000", cfg.HTTP.Addr)
	assert.Equal(t, 60*time.Second, cfg.HTTP.RequestTimeout)
	assert.True(t, cfg.HTTP.WebSocket)
	assert.Equal(t, time.Duration(0), cfg.Dispatch.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.CacheTTL)
	assert.Equal(t, "none", cfg.Automation.Backend)
	assert.Equal(t, 50*time.Millisecond, cfg.Automation.Pause)
	assert.Equal(t, 1280, cfg.Automation.Rod.Width)
	assert.True(t, cfg.Automation.Rod.Headless)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolshim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  transport: http
http:
  addr: 127.0.0.1:9000
  token: from-file
dispatch:
  timeout: 2s
automation:
  rod:
    width: 640
`), 0o600))

	t.Setenv("TOOLSHIM_HTTP_TOKEN", "from-env")
	t.Setenv("TOOLSHIM_LOGGING_LEVEL", "debug")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", "127.0.0.1:9100"}))

	cfg, err := NewLoader(path, flags).Load()
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Server.Transport)
	assert.Equal(t, "127.0.0.1:9100", cfg.HTTP.Addr, "changed flag wins")
	assert.Equal(t, "from-env", cfg.HTTP.Token, "env beats file")
	assert.Equal(t, "debug", cfg.Logging.Level, "unchanged flag does not override env")
	assert.Equal(t, 2*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, 640, cfg.Automation.Rod.Width)
	assert.Equal(t, 800, cfg.Automation.Rod.Height)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"TOOLSHIM_SERVER_TRANSPORT":   "carrier-pigeon",
		"TOOLSHIM_AUTOMATION_BACKEND": "pyautogui",
		"TOOLSHIM_LOGGING_LEVEL":      "loud",
		"TOOLSHIM_HTTP_TLS_CERT_FILE": "cert.pem",
	}
	for env, val := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, val)
			_, err := NewLoader("", nil).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
