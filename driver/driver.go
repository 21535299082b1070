package driver

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// Driver controls a live wireguard interface on the host
type Driver interface {
	// Up brings the interface up from /etc/wireguard/<device>.conf
	Up(ctx context.Context, device string) error
	// Down tears the interface down
	Down(ctx context.Context, device string) error
	// IsUp reports whether the interface is currently running
	IsUp(ctx context.Context, device string) (bool, error)
	// SetPeer adds a peer to the running interface or replaces its allowed ips
	SetPeer(ctx context.Context, device string, publicKey string, allowedIP netip.Prefix) error
	// RemovePeer drops a peer from the running interface
	RemovePeer(ctx context.Context, device string, publicKey string) error
	// EnableIPForwarding turns on IPv4 forwarding for the whole host
	EnableIPForwarding(ctx context.Context) error
}

// CommandError is returned when an external command exits unsuccessfully
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	cmdline := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	if e.ExitCode < 0 {
		return fmt.Sprintf("command %q failed: %v", cmdline, e.Err)
	}
	if e.Output != "" {
		return fmt.Sprintf("command %q exited with status %d: %s", cmdline, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("command %q exited with status %d", cmdline, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
