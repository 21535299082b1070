package main

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/ngoduykhanh/wgserver/driver"
	"github.com/ngoduykhanh/wgserver/manager"
	"github.com/ngoduykhanh/wgserver/reconciler"
	"github.com/ngoduykhanh/wgserver/store/jsondb"
	"github.com/ngoduykhanh/wgserver/util"
)

// options are the persistent flags shared by every command
type options struct {
	configPath   string
	device       string
	wireguardDir string
	driver       string
	logLevel     string
	timeout      time.Duration
}

type managerFactory func(opts *options) *manager.Manager

func newManager(opts *options) *manager.Manager {
	var d driver.Driver = driver.NewExec()
	if opts.driver == "systemd" {
		d = driver.NewSystemd(driver.NewExec())
	}
	return manager.New(jsondb.New(), reconciler.New(d, opts.wireguardDir), driver.Wgctrl{})
}

func (o *options) context() (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), o.timeout)
}

func newRootCmd(factory managerFactory) *cobra.Command {
	opts := &options{}
	var m *manager.Manager

	rootCmd := &cobra.Command{
		Use:          "wgtool",
		Short:        "Manage a WireGuard server and its clients",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := util.ParseLogLevel(opts.logLevel)
			if err != nil {
				return err
			}
			if opts.driver != "exec" && opts.driver != "systemd" {
				return fmt.Errorf("driver must be exec or systemd, got %q", opts.driver)
			}
			log.SetLevel(lvl)
			m = factory(opts)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config-path", "c", util.LookupEnvOrString(util.ConfigPathEnvVar, util.DefaultConfigPath()), "Path to the server config JSON document")
	flags.StringVarP(&opts.device, "device", "d", util.LookupEnvOrString(util.DeviceEnvVar, util.DefaultDevice), "WireGuard interface name")
	flags.StringVar(&opts.wireguardDir, "wireguard-dir", util.LookupEnvOrString(util.WireGuardDirEnvVar, util.DefaultWireGuardDir), "Directory wg-quick reads <device>.conf from")
	flags.StringVar(&opts.driver, "driver", util.LookupEnvOrString(util.DriverEnvVar, "exec"), "How the interface is brought up and down: exec or systemd")
	flags.StringVar(&opts.logLevel, "log-level", util.LookupEnvOrString(util.LogLevelEnvVar, "warn"), "Log level: DEBUG, INFO, WARN, ERROR or OFF")
	flags.DurationVar(&opts.timeout, "timeout", time.Duration(util.LookupEnvOrInt(util.CommandTimeoutEnvVar, util.DefaultCommandTimeout))*time.Second, "Time budget for WireGuard commands")

	mgr := func() *manager.Manager { return m }
	rootCmd.AddCommand(
		newInitCmd(opts, mgr),
		newAddClientCmd(opts, mgr),
		newRemoveClientCmd(opts, mgr),
		newListClientsCmd(opts, mgr),
		newServerConfCmd(opts, mgr),
		newClientConfCmd(opts, mgr),
		newUpCmd(opts, mgr),
		newDownCmd(opts, mgr),
		newRebootCmd(opts, mgr),
		newStatsCmd(opts, mgr),
	)
	return rootCmd
}
