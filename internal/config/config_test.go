package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/button-monitor/internal/errors"
)

func TestDefaultsPreserveDeviceConstants(t *testing.T) {
	c := Default()

	assert.Equal(t, "0.0.0.0", c.Server.Host)
	assert.Equal(t, 5000, c.Server.Port)
	assert.Equal(t, "0.0.0.0:5000", c.Server.Addr())
	assert.Equal(t, "/dev/ttyACM0", c.Serial.Port)
	assert.Equal(t, 9600, c.Serial.BaudRate)
	assert.Equal(t, time.Second, c.Serial.ReadTimeout)
	assert.Equal(t, "BUTTON_PRESSED", c.Button.Sentinel)
	assert.Equal(t, 30*time.Second, c.Button.WaitTimeout)
	assert.Equal(t, 100*time.Millisecond, c.Serial.PollInterval)
	assert.Equal(t, time.Duration(0), c.Server.WriteTimeout)
	require.NoError(t, c.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 5050
serial:
  port: /dev/ttyUSB3
  baud_rate: 115200
button:
  wait_timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	c, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 5050, c.Server.Port)
	assert.Equal(t, "/dev/ttyUSB3", c.Serial.Port)
	assert.Equal(t, 115200, c.Serial.BaudRate)
	assert.Equal(t, 5*time.Second, c.Button.WaitTimeout)
	// 未覆盖的字段保持默认
	assert.Equal(t, "BUTTON_PRESSED", c.Button.Sentinel)
	assert.Equal(t, path, ConfigFile())
}

func TestLoadBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCritical(err))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BUTTON_MONITOR_SERIAL_PORT", "/dev/ttyACM9")
	t.Setenv("BUTTON_MONITOR_BUTTON_SENTINEL", "PRESS")

	c, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM9", c.Serial.Port)
	assert.Equal(t, "PRESS", c.Button.Sentinel)
}

func TestLoadFlagsOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 5000, "")
	flags.String("device", "/dev/ttyACM0", "")
	require.NoError(t, flags.Parse([]string{"--port=6000", "--device=auto"}))

	c, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 6000, c.Server.Port)
	assert.Equal(t, "auto", c.Serial.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad mode", func(c *Config) { c.Server.Mode = "prod" }},
		{"bad baud", func(c *Config) { c.Serial.BaudRate = -1 }},
		{"bad line buffer", func(c *Config) { c.Serial.LineBuffer = 0 }},
		{"empty sentinel", func(c *Config) { c.Button.Sentinel = "" }},
		{"bad wait timeout", func(c *Config) { c.Button.WaitTimeout = 0 }},
		{"bad poll interval", func(c *Config) { c.Serial.PollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
		})
	}
}
