package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoduykhanh/wgserver/driver"
	"github.com/ngoduykhanh/wgserver/driver/drivertest"
	"github.com/ngoduykhanh/wgserver/model"
	"github.com/ngoduykhanh/wgserver/util"
)

const device = "wg0"

func setup(t *testing.T) (*Reconciler, *drivertest.Fake, *model.Server) {
	t.Helper()
	fake := drivertest.New()
	server := model.NewServer(netip.MustParsePrefix("10.0.0.0/24"), "vpn.example.com", 51820, "eth0")
	return New(fake, t.TempDir()), fake, server
}

func TestPlan(t *testing.T) {
	tests := []struct {
		state State
		event Event
		want  []Step
	}{
		{StateDown, EventStart, []Step{StepWriteConfig, StepEnableForwarding, StepUp}},
		{StateUp, EventStart, []Step{StepWriteConfig}},
		{StateDown, EventStop, nil},
		{StateUp, EventStop, []Step{StepDown}},
		{StateDown, EventReboot, []Step{StepWriteConfig, StepEnableForwarding, StepUp}},
		{StateUp, EventReboot, []Step{StepDown, StepWriteConfig, StepEnableForwarding, StepUp}},
		{StateDown, EventPeerAdded, nil},
		{StateUp, EventPeerAdded, []Step{StepSetPeer, StepWriteConfig}},
		{StateDown, EventPeerRemoved, nil},
		{StateUp, EventPeerRemoved, []Step{StepRemovePeer, StepWriteConfig}},
	}
	for _, tt := range tests {
		t.Run(tt.state.String()+"/"+tt.event.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Plan(tt.state, tt.event))
		})
	}
}

func TestNext(t *testing.T) {
	assert.Equal(t, StateUp, Next(StateDown, EventStart))
	assert.Equal(t, StateUp, Next(StateUp, EventReboot))
	assert.Equal(t, StateDown, Next(StateUp, EventStop))
	assert.Equal(t, StateDown, Next(StateDown, EventPeerAdded))
	assert.Equal(t, StateUp, Next(StateUp, EventPeerRemoved))
}

func TestStartFromDown(t *testing.T) {
	r, fake, server := setup(t)

	state, err := r.Start(context.Background(), device, server)
	require.NoError(t, err)
	assert.Equal(t, StateUp, state)
	assert.Equal(t, []string{"is-up", "enable-forwarding", "up"}, fake.CallLog())
	assert.True(t, fake.Forwarding)

	written, err := os.ReadFile(r.ConfigPath(device))
	require.NoError(t, err)
	assert.Equal(t, util.BuildServerConfig(server), string(written))
}

func TestStartTwiceRendersSameConfig(t *testing.T) {
	r, fake, server := setup(t)

	_, err := r.Start(context.Background(), device, server)
	require.NoError(t, err)
	first, err := os.ReadFile(r.ConfigPath(device))
	require.NoError(t, err)

	state, err := r.Start(context.Background(), device, server)
	require.NoError(t, err)
	assert.Equal(t, StateUp, state)
	second, err := os.ReadFile(r.ConfigPath(device))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"is-up", "enable-forwarding", "up", "is-up"}, fake.CallLog())
}

func TestStartAbortsOnFailingStep(t *testing.T) {
	r, fake, server := setup(t)
	cmdErr := &driver.CommandError{Command: "sysctl", Args: []string{"-w", "net.ipv4.ip_forward=1"}, ExitCode: 255}
	fake.Fail["enable-forwarding"] = cmdErr

	state, err := r.Start(context.Background(), device, server)
	var got *driver.CommandError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, 255, got.ExitCode)
	assert.Equal(t, StateDown, state)
	assert.Equal(t, []string{"is-up", "enable-forwarding"}, fake.CallLog())
	assert.False(t, fake.Running[device])
}

func TestStop(t *testing.T) {
	r, fake, server := setup(t)

	state, err := r.Stop(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(t, StateDown, state)
	assert.Equal(t, []string{"is-up"}, fake.CallLog())

	_, err = r.Start(context.Background(), device, server)
	require.NoError(t, err)
	state, err = r.Stop(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(t, StateDown, state)
	assert.False(t, fake.Running[device])
}

func TestReboot(t *testing.T) {
	r, fake, server := setup(t)

	state, err := r.Reboot(context.Background(), device, server)
	require.NoError(t, err)
	assert.Equal(t, StateUp, state)

	state, err = r.Reboot(context.Background(), device, server)
	require.NoError(t, err)
	assert.Equal(t, StateUp, state)
	assert.Equal(t, []string{
		"is-up", "enable-forwarding", "up",
		"is-up", "down", "enable-forwarding", "up",
	}, fake.CallLog())
}

func TestPeerUpdatesOnRunningInterface(t *testing.T) {
	r, fake, server := setup(t)
	_, err := r.Start(context.Background(), device, server)
	require.NoError(t, err)

	id, err := server.AddClient("alice")
	require.NoError(t, err)
	alice := server.Clients[id]

	state, err := r.AddPeer(context.Background(), device, server, alice)
	require.NoError(t, err)
	assert.Equal(t, StateUp, state)
	assert.Equal(t, netip.MustParsePrefix("10.0.0.2/32"), fake.Peers[device][alice.Keys.Public])
	assertWrittenConfig(t, r, server)
	assert.Contains(t, readConfig(t, r), alice.Keys.Public)

	_, err = server.RemoveClient(id)
	require.NoError(t, err)
	state, err = r.RemovePeer(context.Background(), device, server, alice)
	require.NoError(t, err)
	assert.Equal(t, StateUp, state)
	assert.NotContains(t, fake.Peers[device], alice.Keys.Public)
	assertWrittenConfig(t, r, server)
	assert.NotContains(t, readConfig(t, r), alice.Keys.Public)

	assert.NotContains(t, fake.CallLog(), "down")
}

func readConfig(t *testing.T, r *Reconciler) string {
	t.Helper()
	written, err := os.ReadFile(r.ConfigPath(device))
	require.NoError(t, err)
	return string(written)
}

func assertWrittenConfig(t *testing.T, r *Reconciler, server *model.Server) {
	t.Helper()
	assert.Equal(t, util.BuildServerConfig(server), readConfig(t, r))
}

func TestPeerUpdatesOnStoppedInterface(t *testing.T) {
	r, fake, server := setup(t)
	id, err := server.AddClient("alice")
	require.NoError(t, err)

	state, err := r.AddPeer(context.Background(), device, server, server.Clients[id])
	require.NoError(t, err)
	assert.Equal(t, StateDown, state)

	client, err := server.RemoveClient(id)
	require.NoError(t, err)
	state, err = r.RemovePeer(context.Background(), device, server, client)
	require.NoError(t, err)
	assert.Equal(t, StateDown, state)
	assert.Equal(t, []string{"is-up", "is-up"}, fake.CallLog())
	assert.NoFileExists(t, r.ConfigPath(device))
}

func TestStatusError(t *testing.T) {
	r, fake, server := setup(t)
	fake.Fail["is-up"] = &driver.CommandError{Command: "wg", ExitCode: -1, Err: errors.New("executable file not found")}

	_, err := r.Start(context.Background(), device, server)
	require.Error(t, err)
	assert.Equal(t, []string{"is-up"}, fake.CallLog())
}

// stubBinaries installs wg, wg-quick and sysctl scripts in a temp dir. Every invocation is
// appended to the returned log file; wg show exits with showCode and prints showOutput.
func stubBinaries(t *testing.T, showCode int, showOutput string) (*driver.Exec, string) {
	t.Helper()
	dir := t.TempDir()
	logFile := filepath.Join(dir, "calls")
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		script := fmt.Sprintf("#!/bin/sh\necho \"%s $@\" >> %q\n%s", name, logFile, body)
		require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
		return path
	}

	d := driver.NewExec()
	d.WgBinary = write("wg", fmt.Sprintf("if [ \"$1\" = show ]; then printf '%%s' %q; exit %d; fi\nexit 0\n", showOutput, showCode))
	d.WgQuickBinary = write("wg-quick", "exit 0\n")
	d.SysctlBinary = write("sysctl", "exit 0\n")
	return d, logFile
}

func calls(t *testing.T, logFile string) []string {
	t.Helper()
	raw, err := os.ReadFile(logFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestStatusFailureIsNotDown(t *testing.T) {
	d, logFile := stubBinaries(t, 1, "Unable to access interface: Operation not permitted")
	r := New(d, t.TempDir())
	server := model.NewServer(netip.MustParsePrefix("10.0.0.0/24"), "vpn.example.com", 51820, "eth0")
	id, err := server.AddClient("alice")
	require.NoError(t, err)

	_, err = r.Stop(context.Background(), device)
	var cmdErr *driver.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Contains(t, err.Error(), "Operation not permitted")

	_, err = r.AddPeer(context.Background(), device, server, server.Clients[id])
	require.Error(t, err)

	_, err = r.Start(context.Background(), device, server)
	require.Error(t, err)

	assert.Equal(t, []string{"wg show wg0", "wg show wg0", "wg show wg0"}, calls(t, logFile))
	assert.NoFileExists(t, r.ConfigPath(device))
}

func TestMissingDeviceIsDown(t *testing.T) {
	d, logFile := stubBinaries(t, 1, "Unable to access interface: No such device")
	r := New(d, t.TempDir())
	server := model.NewServer(netip.MustParsePrefix("10.0.0.0/24"), "vpn.example.com", 51820, "eth0")

	state, err := r.Stop(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(t, StateDown, state)

	state, err = r.Start(context.Background(), device, server)
	require.NoError(t, err)
	assert.Equal(t, StateUp, state)
	assert.Equal(t, []string{
		"wg show wg0",
		"wg show wg0", "sysctl -w net.ipv4.ip_forward=1", "wg-quick up wg0",
	}, calls(t, logFile))
}
