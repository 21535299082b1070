package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TelegramConfig holds the bot settings of the daemon
type TelegramConfig struct {
	Token   string `toml:"token"`
	AdminID int64  `toml:"admin_id"`
}

// DaemonConfig is the configuration of the wgserver daemon
type DaemonConfig struct {
	BindAddress    string         `toml:"bind_address"`
	Device         string         `toml:"device"`
	ConfigPath     string         `toml:"config_path"`
	WireGuardDir   string         `toml:"wireguard_dir"`
	Driver         string         `toml:"driver"`
	LogLevel       string         `toml:"log_level"`
	APIKey         string         `toml:"api_key"`
	CommandTimeout int            `toml:"command_timeout"`
	Telegram       TelegramConfig `toml:"telegram"`
}

// DefaultConfigPath returns $HOME/.wg, or .wg when the home directory is unknown
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(home, DefaultConfigFileName)
}

// DefaultDaemonConfig returns the built-in settings overridden by the environment
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		BindAddress:    LookupEnvOrString(BindAddressEnvVar, DefaultBindAddress),
		Device:         LookupEnvOrString(DeviceEnvVar, DefaultDevice),
		ConfigPath:     LookupEnvOrString(ConfigPathEnvVar, DefaultConfigPath()),
		WireGuardDir:   LookupEnvOrString(WireGuardDirEnvVar, DefaultWireGuardDir),
		Driver:         LookupEnvOrString(DriverEnvVar, "exec"),
		LogLevel:       LookupEnvOrString(LogLevelEnvVar, "info"),
		APIKey:         LookupEnvOrString(APIKeyEnvVar, ""),
		CommandTimeout: LookupEnvOrInt(CommandTimeoutEnvVar, DefaultCommandTimeout),
		Telegram: TelegramConfig{
			Token:   LookupEnvOrString(TelegramTokenEnvVar, ""),
			AdminID: LookupEnvOrInt64(TelegramAdminEnvVar, 0),
		},
	}
}

// LoadDaemonConfig decodes the TOML file at path on top of the defaults.
// Keys missing from the file keep their default value.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("cannot read daemon config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown keys in daemon config %s: %v", path, undecoded)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that have a closed set of choices
func (c DaemonConfig) Validate() error {
	if c.Driver != "exec" && c.Driver != "systemd" {
		return fmt.Errorf("driver must be exec or systemd, got %q", c.Driver)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Device == "" {
		return fmt.Errorf("device must not be empty")
	}
	if c.ConfigPath == "" {
		return fmt.Errorf("config_path must not be empty")
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must not be negative")
	}
	return nil
}

// Timeout is the per-request budget of the reconcile pipeline, zero meaning none
func (c DaemonConfig) Timeout() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}
