package driver

import (
	"context"
	"errors"
	"net/netip"
	"os/exec"
	"strings"

	"github.com/labstack/gommon/log"
)

const (
	ipForwardSysctl = "net.ipv4.ip_forward=1"
	noSuchDevice    = "No such device"
)

// Exec drives the interface through the wg, wg-quick and sysctl utilities
type Exec struct {
	WgBinary      string
	WgQuickBinary string
	SysctlBinary  string
}

// NewExec returns an Exec driver using the binaries found in $PATH
func NewExec() *Exec {
	return &Exec{
		WgBinary:      "wg",
		WgQuickBinary: "wg-quick",
		SysctlBinary:  "sysctl",
	}
}

func (d *Exec) Up(ctx context.Context, device string) error {
	_, err := d.run(ctx, d.WgQuickBinary, "up", device)
	return err
}

func (d *Exec) Down(ctx context.Context, device string) error {
	_, err := d.run(ctx, d.WgQuickBinary, "down", device)
	return err
}

// IsUp runs `wg show <device>`. Only a missing device counts as down,
// any other failure is returned.
func (d *Exec) IsUp(ctx context.Context, device string) (bool, error) {
	_, err := d.run(ctx, d.WgBinary, "show", device)
	if err == nil {
		return true, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 && strings.Contains(cmdErr.Output, noSuchDevice) {
		return false, nil
	}
	return false, err
}

func (d *Exec) SetPeer(ctx context.Context, device string, publicKey string, allowedIP netip.Prefix) error {
	_, err := d.run(ctx, d.WgBinary, "set", device, "peer", publicKey, "allowed-ips", allowedIP.String())
	return err
}

func (d *Exec) RemovePeer(ctx context.Context, device string, publicKey string) error {
	_, err := d.run(ctx, d.WgBinary, "set", device, "peer", publicKey, "remove")
	return err
}

func (d *Exec) EnableIPForwarding(ctx context.Context) error {
	_, err := d.run(ctx, d.SysctlBinary, "-w", ipForwardSysctl)
	return err
}

func (d *Exec) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	log.Debugf("Running %s %s", name, strings.Join(args, " "))

	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return output, &CommandError{
			Command:  name,
			Args:     args,
			ExitCode: exitCode,
			Output:   strings.TrimSpace(string(output)),
			Err:      err,
		}
	}
	return output, nil
}
