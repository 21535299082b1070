package driver

import (
	"context"
	"fmt"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
)

// PeerStats holds the live counters the kernel keeps for one peer
type PeerStats struct {
	PublicKey       string
	Endpoint        string
	LatestHandshake time.Time
	ReceivedBytes   int64
	SentBytes       int64
}

// StatsSource reads live peer statistics of an interface
type StatsSource interface {
	PeerStats(ctx context.Context, device string) ([]PeerStats, error)
}

// Wgctrl reads peer statistics over the wireguard netlink / userspace API
type Wgctrl struct{}

func (Wgctrl) PeerStats(_ context.Context, device string) ([]PeerStats, error) {
	client, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open wireguard control client: %w", err)
	}
	defer client.Close()

	dev, err := client.Device(device)
	if err != nil {
		return nil, fmt.Errorf("cannot read device %s: %w", device, err)
	}

	stats := make([]PeerStats, 0, len(dev.Peers))
	for _, peer := range dev.Peers {
		s := PeerStats{
			PublicKey:       peer.PublicKey.String(),
			LatestHandshake: peer.LastHandshakeTime,
			ReceivedBytes:   peer.ReceiveBytes,
			SentBytes:       peer.TransmitBytes,
		}
		if peer.Endpoint != nil {
			s.Endpoint = peer.Endpoint.String()
		}
		stats = append(stats, s)
	}
	return stats, nil
}
