package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wgserver.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDaemonConfig(t *testing.T) {
	t.Setenv(DeviceEnvVar, "wg7")
	path := writeTOML(t, `
bind_address = "127.0.0.1:8080"
config_path = "/var/lib/wgserver/server.json"
driver = "systemd"
log_level = "debug"
command_timeout = 5

[telegram]
token = "123:abc"
admin_id = 42
`)

	cfg, err := LoadDaemonConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.BindAddress)
	assert.Equal(t, "wg7", cfg.Device)
	assert.Equal(t, "/var/lib/wgserver/server.json", cfg.ConfigPath)
	assert.Equal(t, DefaultWireGuardDir, cfg.WireGuardDir)
	assert.Equal(t, "systemd", cfg.Driver)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, TelegramConfig{Token: "123:abc", AdminID: 42}, cfg.Telegram)
}

func TestLoadDaemonConfigWithoutFile(t *testing.T) {
	cfg, err := LoadDaemonConfig("")
	require.NoError(t, err)
	assert.Equal(t, "exec", cfg.Driver)
	assert.Equal(t, time.Duration(DefaultCommandTimeout)*time.Second, cfg.Timeout())
}

func TestLoadDaemonConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":   `devise = "wg0"`,
		"bad driver":    `driver = "netlink"`,
		"bad log level": `log_level = "loud"`,
		"not toml":      `driver = `,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadDaemonConfig(writeTOML(t, content))
			assert.Error(t, err)
		})
	}

	_, err := LoadDaemonConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
