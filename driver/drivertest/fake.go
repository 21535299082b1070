// Package drivertest provides an in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/ngoduykhanh/wgserver/driver"
)

// Fake records every call and keeps the running state of devices and their peers.
// Setting Fail[method] makes that method return the given error.
type Fake struct {
	mu sync.Mutex

	Running    map[string]bool
	Peers      map[string]map[string]netip.Prefix
	Forwarding bool
	Calls      []string
	Fail       map[string]error
	Stats      []driver.PeerStats
}

// New returns a Fake with every device down
func New() *Fake {
	return &Fake{
		Running: make(map[string]bool),
		Peers:   make(map[string]map[string]netip.Prefix),
		Fail:    make(map[string]error),
	}
}

func (f *Fake) record(call string) error {
	f.Calls = append(f.Calls, call)
	if err, ok := f.Fail[call]; ok {
		return err
	}
	return nil
}

// CallLog returns a copy of the recorded calls
func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *Fake) Up(_ context.Context, device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("up"); err != nil {
		return err
	}
	if f.Running[device] {
		return &driver.CommandError{Command: "wg-quick", Args: []string{"up", device}, ExitCode: 1, Output: fmt.Sprintf("`%s' already exists", device)}
	}
	f.Running[device] = true
	return nil
}

func (f *Fake) Down(_ context.Context, device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("down"); err != nil {
		return err
	}
	if !f.Running[device] {
		return &driver.CommandError{Command: "wg-quick", Args: []string{"down", device}, ExitCode: 1, Output: fmt.Sprintf("`%s' is not a WireGuard interface", device)}
	}
	f.Running[device] = false
	delete(f.Peers, device)
	return nil
}

func (f *Fake) IsUp(_ context.Context, device string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("is-up"); err != nil {
		return false, err
	}
	return f.Running[device], nil
}

func (f *Fake) SetPeer(_ context.Context, device string, publicKey string, allowedIP netip.Prefix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("set-peer"); err != nil {
		return err
	}
	if f.Peers[device] == nil {
		f.Peers[device] = make(map[string]netip.Prefix)
	}
	f.Peers[device][publicKey] = allowedIP
	return nil
}

func (f *Fake) RemovePeer(_ context.Context, device string, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("remove-peer"); err != nil {
		return err
	}
	delete(f.Peers[device], publicKey)
	return nil
}

func (f *Fake) EnableIPForwarding(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("enable-forwarding"); err != nil {
		return err
	}
	f.Forwarding = true
	return nil
}

// PeerStats returns Stats, or the "peer-stats" failure
func (f *Fake) PeerStats(_ context.Context, _ string) ([]driver.PeerStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("peer-stats"); err != nil {
		return nil, err
	}
	return append([]driver.PeerStats(nil), f.Stats...), nil
}
