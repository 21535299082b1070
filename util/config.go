package util

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults used when a value is not given on the command line or in the environment
const (
	DefaultDevice              = "wg0"
	DefaultSubnet              = "10.0.0.0/24"
	DefaultServerPort          = 51820
	DefaultDNS                 = "8.8.8.8"
	DefaultClientAllowedIPs    = "0.0.0.0/0"
	DefaultPersistentKeepalive = 25
	DefaultWireGuardDir        = "/etc/wireguard"
	DefaultConfigFileName      = ".wg"
	DefaultBindAddress         = "0.0.0.0:3000"
	DefaultCommandTimeout      = 30
)

// Environment variables understood by the binaries
const (
	DaemonConfigEnvVar   = "WGSERVER_CONFIG"
	ConfigPathEnvVar     = "WG_CONFIG_PATH"
	DeviceEnvVar         = "WG_DEVICE"
	WireGuardDirEnvVar   = "WG_DIR"
	DriverEnvVar         = "WG_DRIVER"
	BindAddressEnvVar    = "BIND_ADDRESS"
	LogLevelEnvVar       = "WGSERVER_LOG_LEVEL"
	APIKeyEnvVar         = "WGSERVER_API_KEY"
	TelegramTokenEnvVar  = "TELEGRAM_TOKEN"
	TelegramAdminEnvVar  = "TELEGRAM_ADMIN_ID"
	CommandTimeoutEnvVar = "WG_COMMAND_TIMEOUT"
)

func LookupEnvOrString(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func LookupEnvOrInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		v, err := strconv.Atoi(val)
		if err != nil {
			fmt.Fprintf(os.Stderr, "LookupEnvOrInt[%s]: %v\n", key, err)
			return defaultVal
		}
		return v
	}
	return defaultVal
}

func LookupEnvOrInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		v, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "LookupEnvOrInt64[%s]: %v\n", key, err)
			return defaultVal
		}
		return v
	}
	return defaultVal
}
