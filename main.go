package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/ngoduykhanh/wgserver/driver"
	"github.com/ngoduykhanh/wgserver/handler"
	"github.com/ngoduykhanh/wgserver/manager"
	"github.com/ngoduykhanh/wgserver/reconciler"
	"github.com/ngoduykhanh/wgserver/router"
	"github.com/ngoduykhanh/wgserver/store/jsondb"
	"github.com/ngoduykhanh/wgserver/telegram"
	"github.com/ngoduykhanh/wgserver/util"
)

var (
	// command-line banner information
	appVersion = "development"
	gitCommit  = "N/A"
	gitRef     = "N/A"
	buildTime  = time.Now().UTC().Format("01-02-2006 15:04:05")
	// configuration variables
	flagConfigFile     string
	flagBindAddress    string
	flagDevice         string
	flagConfigPath     string
	flagWireGuardDir   string
	flagDriver         string
	flagLogLevel       string
	flagAPIKey         string
	flagCommandTimeout int
	flagTelegramToken  string
	flagTelegramAdmin  int64
)

func main() {
	defaults := util.DefaultDaemonConfig()

	// command-line flags and env variables
	flag.StringVar(&flagConfigFile, "config", util.LookupEnvOrString(util.DaemonConfigEnvVar, ""), "Path to a TOML config file.")
	flag.StringVar(&flagBindAddress, "bind-address", defaults.BindAddress, "Address:Port to which the app will be bound.")
	flag.StringVar(&flagDevice, "device", defaults.Device, "WireGuard interface name.")
	flag.StringVar(&flagConfigPath, "config-path", defaults.ConfigPath, "Path to the server config JSON document.")
	flag.StringVar(&flagWireGuardDir, "wireguard-dir", defaults.WireGuardDir, "Directory wg-quick reads <device>.conf from.")
	flag.StringVar(&flagDriver, "driver", defaults.Driver, "How the interface is brought up and down: exec or systemd.")
	flag.StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR or OFF.")
	flag.StringVar(&flagAPIKey, "api-key", defaults.APIKey, "Bearer key required on every API request. Empty disables authentication.")
	flag.IntVar(&flagCommandTimeout, "command-timeout", defaults.CommandTimeout, "Seconds an API request may spend on WireGuard commands.")
	flag.StringVar(&flagTelegramToken, "telegram-token", defaults.Telegram.Token, "Telegram bot token. Empty disables the bot.")
	flag.Int64Var(&flagTelegramAdmin, "telegram-admin-id", defaults.Telegram.AdminID, "Telegram chat id of the administrator.")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	lvl, _ := util.ParseLogLevel(cfg.LogLevel)
	log.SetLevel(lvl)

	// print app information
	if lvl <= log.INFO {
		fmt.Println("WireGuard server")
		fmt.Println("App Version\t:", appVersion)
		fmt.Println("Git Commit\t:", gitCommit)
		fmt.Println("Git Ref\t\t:", gitRef)
		fmt.Println("Build Time\t:", buildTime)
		fmt.Println("Device\t\t:", cfg.Device)
		fmt.Println("Config path\t:", cfg.ConfigPath)
		fmt.Println("Driver\t\t:", cfg.Driver)
		fmt.Println("Authentication\t:", cfg.APIKey != "")
		fmt.Println("Bind address\t:", cfg.BindAddress)
	}

	var d driver.Driver = driver.NewExec()
	if cfg.Driver == "systemd" {
		d = driver.NewSystemd(driver.NewExec())
	}
	m := manager.New(jsondb.New(), reconciler.New(d, cfg.WireGuardDir), driver.Wgctrl{})
	target := handler.Target{Device: cfg.Device, ConfigPath: cfg.ConfigPath, Timeout: cfg.Timeout()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		bot := &telegram.Bot{
			Manager:    m,
			Device:     cfg.Device,
			ConfigPath: cfg.ConfigPath,
			AdminID:    cfg.Telegram.AdminID,
			Timeout:    cfg.Timeout(),
		}
		if err := telegram.Start(ctx, cfg.Telegram.Token, bot); err != nil {
			log.Errorf("Telegram bot stopped: %v", err)
		}
	}()

	// register routes
	app := router.New(lvl, cfg.APIKey)
	handler.Register(app, m, target)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Cannot shut down HTTP server: %v", err)
		}
	}()

	if err := app.Start(cfg.BindAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.Logger.Fatal(err)
	}
}

// loadConfig reads the TOML file, then applies the flags given on the command line
func loadConfig() (util.DaemonConfig, error) {
	cfg, err := util.LoadDaemonConfig(flagConfigFile)
	if err != nil {
		return cfg, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bind-address":
			cfg.BindAddress = flagBindAddress
		case "device":
			cfg.Device = flagDevice
		case "config-path":
			cfg.ConfigPath = flagConfigPath
		case "wireguard-dir":
			cfg.WireGuardDir = flagWireGuardDir
		case "driver":
			cfg.Driver = flagDriver
		case "log-level":
			cfg.LogLevel = flagLogLevel
		case "api-key":
			cfg.APIKey = flagAPIKey
		case "command-timeout":
			cfg.CommandTimeout = flagCommandTimeout
		case "telegram-token":
			cfg.Telegram.Token = flagTelegramToken
		case "telegram-admin-id":
			cfg.Telegram.AdminID = flagTelegramAdmin
		}
	})
	return cfg, cfg.Validate()
}
