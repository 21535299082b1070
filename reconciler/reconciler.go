package reconciler

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/labstack/gommon/log"

	"github.com/ngoduykhanh/wgserver/driver"
	"github.com/ngoduykhanh/wgserver/model"
	"github.com/ngoduykhanh/wgserver/util"
)

const configFilePerm = 0o600

// Reconciler applies server changes to a live interface with the least disruption:
// roster changes on a running interface become live peer updates, everything else
// goes through a full bring-up.
type Reconciler struct {
	Driver    driver.Driver
	ConfigDir string
}

// New returns a Reconciler writing interface configs into configDir
func New(d driver.Driver, configDir string) *Reconciler {
	return &Reconciler{
		Driver:    d,
		ConfigDir: configDir,
	}
}

// request carries what the steps of a plan may need
type request struct {
	device string
	server *model.Server
	client *model.Client
}

// ConfigPath is where the interface config of device is written
func (r *Reconciler) ConfigPath(device string) string {
	return filepath.Join(r.ConfigDir, device+".conf")
}

// Status queries whether device is running
func (r *Reconciler) Status(ctx context.Context, device string) (State, error) {
	up, err := r.Driver.IsUp(ctx, device)
	if err != nil {
		return StateDown, fmt.Errorf("cannot query status of %s: %w", device, err)
	}
	if up {
		return StateUp, nil
	}
	return StateDown, nil
}

// Start brings device up from the rendered server config
func (r *Reconciler) Start(ctx context.Context, device string, server *model.Server) (State, error) {
	return r.apply(ctx, EventStart, request{device: device, server: server})
}

// Stop tears device down
func (r *Reconciler) Stop(ctx context.Context, device string) (State, error) {
	return r.apply(ctx, EventStop, request{device: device})
}

// Reboot tears device down when it runs and brings it up again
func (r *Reconciler) Reboot(ctx context.Context, device string, server *model.Server) (State, error) {
	return r.apply(ctx, EventReboot, request{device: device, server: server})
}

// AddPeer makes a new client reachable without restarting a running interface
func (r *Reconciler) AddPeer(ctx context.Context, device string, server *model.Server, client *model.Client) (State, error) {
	return r.apply(ctx, EventPeerAdded, request{device: device, server: server, client: client})
}

// RemovePeer drops a client from a running interface.
// server must no longer contain client.
func (r *Reconciler) RemovePeer(ctx context.Context, device string, server *model.Server, client *model.Client) (State, error) {
	return r.apply(ctx, EventPeerRemoved, request{device: device, server: server, client: client})
}

func (r *Reconciler) apply(ctx context.Context, event Event, req request) (State, error) {
	current, err := r.Status(ctx, req.device)
	if err != nil {
		return current, err
	}

	steps := Plan(current, event)
	if len(steps) == 0 {
		log.Debugf("Interface %s is %s, nothing to do for %s", req.device, current, event)
		return current, nil
	}

	for _, step := range steps {
		if err := r.run(ctx, step, req); err != nil {
			log.Errorf("Cannot %s interface %s at step %s: %v", event, req.device, step, err)
			return current, fmt.Errorf("%s %s: %s: %w", event, req.device, step, err)
		}
	}

	next := Next(current, event)
	log.Infof("Interface %s: %s -> %s (%s)", req.device, current, next, event)
	return next, nil
}

func (r *Reconciler) run(ctx context.Context, step Step, req request) error {
	switch step {
	case StepWriteConfig:
		return r.writeConfig(req.device, req.server)
	case StepEnableForwarding:
		return r.Driver.EnableIPForwarding(ctx)
	case StepUp:
		return r.Driver.Up(ctx, req.device)
	case StepDown:
		return r.Driver.Down(ctx, req.device)
	case StepSetPeer:
		allowedIP := netip.PrefixFrom(req.server.ClientAddress(req.client), 32)
		return r.Driver.SetPeer(ctx, req.device, req.client.Keys.Public, allowedIP)
	case StepRemovePeer:
		return r.Driver.RemovePeer(ctx, req.device, req.client.Keys.Public)
	default:
		return fmt.Errorf("unknown step %d", step)
	}
}

func (r *Reconciler) writeConfig(device string, server *model.Server) error {
	path := r.ConfigPath(device)
	if err := os.MkdirAll(r.ConfigDir, 0o700); err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	if err := os.WriteFile(path, []byte(util.BuildServerConfig(server)), configFilePerm); err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	log.Debugf("Wrote interface config %s", path)
	return nil
}
