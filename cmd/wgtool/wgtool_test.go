package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoduykhanh/wgserver/driver/drivertest"
	"github.com/ngoduykhanh/wgserver/manager"
	"github.com/ngoduykhanh/wgserver/model"
	"github.com/ngoduykhanh/wgserver/reconciler"
	"github.com/ngoduykhanh/wgserver/store/jsondb"
)

type harness struct {
	dir        string
	configPath string
	fake       *drivertest.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{dir: dir, configPath: filepath.Join(dir, "server.json"), fake: drivertest.New()}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	factory := func(opts *options) *manager.Manager {
		return manager.New(jsondb.New(), reconciler.New(h.fake, opts.wireguardDir), h.fake)
	}
	cmd := newRootCmd(factory)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config-path", h.configPath, "--wireguard-dir", h.dir, "--driver", "exec"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) init(t *testing.T, subnet string) {
	t.Helper()
	_, err := h.run(t, "init", "--subnet", subnet, "--endpoint", "vpn.example.com", "--interface", "eth0")
	require.NoError(t, err)
}

func TestInit(t *testing.T) {
	h := newHarness(t)
	h.init(t, "10.8.0.0/24")

	info, err := os.Stat(h.configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = h.run(t, "init", "--endpoint", "vpn.example.com", "--interface", "eth0")
	assert.ErrorIs(t, err, model.ErrExists)

	_, err = h.run(t, "init", "--subnet", "fd00::/64", "--endpoint", "x", "--interface", "eth0")
	assert.Error(t, err)
}

func TestClientCommands(t *testing.T) {
	h := newHarness(t)
	h.init(t, "10.0.0.0/24")

	out, err := h.run(t, "add-client", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Created client with id: 0\n", out)
	_, err = h.run(t, "add-client", "bob")
	require.NoError(t, err)

	out, err = h.run(t, "list-clients")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "alice")
	assert.Contains(t, lines[1], "10.0.0.2")
	assert.Contains(t, lines[2], "bob")

	out, err = h.run(t, "list-clients", "--name", "bob")
	require.NoError(t, err)
	assert.NotContains(t, out, "alice")

	out, err = h.run(t, "client-conf", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Address = 10.0.0.3\n")

	qr := filepath.Join(h.dir, "bob.png")
	_, err = h.run(t, "client-conf", "1", "--qr", qr)
	require.NoError(t, err)
	png, err := os.ReadFile(qr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	out, err = h.run(t, "server-conf")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "[Peer]"))

	out, err = h.run(t, "remove-client", "0")
	require.NoError(t, err)
	assert.Equal(t, "Deleted client with id: 0\n", out)

	_, err = h.run(t, "remove-client", "0")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = h.run(t, "remove-client", "-1")
	assert.Error(t, err)
}

func TestLifecycleCommands(t *testing.T) {
	h := newHarness(t)
	h.init(t, "10.0.0.0/24")

	out, err := h.run(t, "--device", "wg3", "up")
	require.NoError(t, err)
	assert.Equal(t, "wg server started\n", out)
	assert.True(t, h.fake.Running["wg3"])
	assert.FileExists(t, filepath.Join(h.dir, "wg3.conf"))

	_, err = h.run(t, "--device", "wg3", "add-client", "alice")
	require.NoError(t, err)
	assert.Len(t, h.fake.Peers["wg3"], 1)

	_, err = h.run(t, "--device", "wg3", "reboot")
	require.NoError(t, err)

	out, err = h.run(t, "--device", "wg3", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "never")

	_, err = h.run(t, "--device", "wg3", "down")
	require.NoError(t, err)
	assert.False(t, h.fake.Running["wg3"])
}

func TestRejectsUnknownDriver(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--driver", "netlink", "list-clients")
	assert.Error(t, err)
}
