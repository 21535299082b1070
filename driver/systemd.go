package driver

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/labstack/gommon/log"
)

// refer: https://www.freedesktop.org/software/systemd/man/latest/org.freedesktop.systemd1.html
const (
	systemdDest      = "org.freedesktop.systemd1"
	systemdPath      = dbus.ObjectPath("/org/freedesktop/systemd1")
	managerInterface = "org.freedesktop.systemd1.Manager"
	jobRemoved       = managerInterface + ".JobRemoved"
	modeReplace      = "replace"
	jobDone          = "done"

	DefaultUnitFormat = "wg-quick@%s.service"
)

// UnitError is returned when a systemd job finishes with a result other than "done"
type UnitError struct {
	Unit   string
	Method string
	Result string
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("systemd %s of %s finished with result %q", e.Method, e.Unit, e.Result)
}

// Systemd starts and stops the wg-quick@<device> unit over dbus.
// Status and live peer updates go through the embedded Exec driver.
type Systemd struct {
	*Exec
	UnitFormat string
}

// NewSystemd returns a Systemd driver for wg-quick@<device>.service units
func NewSystemd(exec *Exec) *Systemd {
	return &Systemd{
		Exec:       exec,
		UnitFormat: DefaultUnitFormat,
	}
}

// Unit returns the systemd unit name managing device
func (d *Systemd) Unit(device string) string {
	return fmt.Sprintf(d.UnitFormat, device)
}

func (d *Systemd) Up(ctx context.Context, device string) error {
	return d.runJob(ctx, "StartUnit", d.Unit(device))
}

func (d *Systemd) Down(ctx context.Context, device string) error {
	return d.runJob(ctx, "StopUnit", d.Unit(device))
}

// runJob dispatches a unit job and blocks until systemd reports it removed
func (d *Systemd) runJob(ctx context.Context, method string, unit string) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("cannot connect to system bus: %w", err)
	}
	defer conn.Close()

	// listen before dispatching so a fast job cannot finish unnoticed
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(managerInterface),
		dbus.WithMatchMember("JobRemoved"),
	); err != nil {
		return fmt.Errorf("cannot subscribe to systemd jobs: %w", err)
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	obj := conn.Object(systemdDest, systemdPath)
	if call := obj.CallWithContext(ctx, managerInterface+".Subscribe", 0); call.Err != nil {
		return fmt.Errorf("cannot subscribe to systemd jobs: %w", call.Err)
	}

	var job dbus.ObjectPath
	if err := obj.CallWithContext(ctx, managerInterface+"."+method, 0, unit, modeReplace).Store(&job); err != nil {
		return fmt.Errorf("systemd %s %s: %w", method, unit, err)
	}
	log.Debugf("Dispatched systemd %s job %s for %s", method, job, unit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("system bus closed while waiting for %s", unit)
			}
			if sig.Name != jobRemoved || len(sig.Body) < 4 {
				continue
			}
			if path, _ := sig.Body[1].(dbus.ObjectPath); path != job {
				continue
			}
			if result, _ := sig.Body[3].(string); result != jobDone {
				return &UnitError{Unit: unit, Method: method, Result: result}
			}
			return nil
		}
	}
}
