package manager

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/ngoduykhanh/wgserver/driver"
	"github.com/ngoduykhanh/wgserver/model"
	"github.com/ngoduykhanh/wgserver/reconciler"
	"github.com/ngoduykhanh/wgserver/store"
	"github.com/ngoduykhanh/wgserver/util"
)

// Manager runs every operation as load -> mutate -> render -> reconcile -> persist.
// The device name and config path are always passed in by the caller.
type Manager struct {
	Store      store.IStore
	Reconciler *reconciler.Reconciler
	Stats      driver.StatsSource
}

// New returns a Manager
func New(s store.IStore, r *reconciler.Reconciler, stats driver.StatsSource) *Manager {
	return &Manager{
		Store:      s,
		Reconciler: r,
		Stats:      stats,
	}
}

// ClientStat joins a client with the live statistics of its peer
type ClientStat struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	IP              string    `json:"ip"`
	Connected       bool      `json:"connected"`
	Endpoint        string    `json:"endpoint,omitempty"`
	LatestHandshake time.Time `json:"latest_handshake"`
	Uploaded        int64     `json:"uploaded"`
	Downloaded      int64     `json:"downloaded"`
}

// ClientSummary describes a client without its private key
type ClientSummary struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IP        string `json:"ip"`
	PublicKey string `json:"public_key"`
}

// CreateServer builds a new server model with a fresh key pair
func (m *Manager) CreateServer(subnet netip.Prefix, endpoint string, port uint16, networkInterface string) *model.Server {
	return model.NewServer(subnet, endpoint, port, networkInterface)
}

// Init persists a newly created server, refusing to replace an existing config
func (m *Manager) Init(configPath string, server *model.Server) error {
	if err := m.Store.Create(server, configPath); err != nil {
		return err
	}
	log.Infof("Created server config %s for subnet %s", configPath, server.Subnet)
	return nil
}

// AddClient registers a client, makes it live when the interface runs and returns its id
func (m *Manager) AddClient(ctx context.Context, device string, configPath string, name string) (int, error) {
	var id int
	err := m.Store.Update(configPath, func(server *model.Server) error {
		var err error
		id, err = server.AddClient(name)
		if err != nil {
			return err
		}
		_, err = m.Reconciler.AddPeer(ctx, device, server, server.Clients[id])
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Infof("Created wireguard client %d (%s)", id, name)
	return id, nil
}

// RemoveClient deletes a client and drops its peer from a running interface
func (m *Manager) RemoveClient(ctx context.Context, device string, configPath string, id int) error {
	err := m.Store.Update(configPath, func(server *model.Server) error {
		client, err := server.RemoveClient(id)
		if err != nil {
			return err
		}
		_, err = m.Reconciler.RemovePeer(ctx, device, server, client)
		return err
	})
	if err != nil {
		return err
	}
	log.Infof("Removed wireguard client %d", id)
	return nil
}

// ListClients returns every client ordered by id
func (m *Manager) ListClients(configPath string) ([]*model.Client, error) {
	var clients []*model.Client
	err := m.Store.View(configPath, func(server *model.Server) error {
		clients = server.SortedClients()
		return nil
	})
	return clients, err
}

// Summaries lists the clients with their tunnel address, optionally filtered by name
func (m *Manager) Summaries(configPath string, name string) ([]ClientSummary, error) {
	var summaries []ClientSummary
	err := m.Store.View(configPath, func(server *model.Server) error {
		clients := server.SortedClients()
		if name != "" {
			clients = server.ClientsByName(name)
		}
		summaries = make([]ClientSummary, 0, len(clients))
		for _, client := range clients {
			summaries = append(summaries, ClientSummary{
				ID:        client.ID,
				Name:      client.Name,
				IP:        server.ClientAddress(client).String(),
				PublicKey: client.Keys.Public,
			})
		}
		return nil
	})
	return summaries, err
}

// GetClientConfigText renders the wireguard config a client imports
func (m *Manager) GetClientConfigText(configPath string, id int) (string, error) {
	var text string
	err := m.Store.View(configPath, func(server *model.Server) error {
		client, err := server.Client(id)
		if err != nil {
			return err
		}
		text = util.BuildClientConfig(server, client)
		return nil
	})
	return text, err
}

// GetClientConfigQR renders the client config as a PNG QR code
func (m *Manager) GetClientConfigQR(configPath string, id int) ([]byte, error) {
	text, err := m.GetClientConfigText(configPath, id)
	if err != nil {
		return nil, err
	}
	return util.BuildClientQRCode(text)
}

// GetServerConfigText renders the interface config of the server
func (m *Manager) GetServerConfigText(configPath string) (string, error) {
	var text string
	err := m.Store.View(configPath, func(server *model.Server) error {
		text = util.BuildServerConfig(server)
		return nil
	})
	return text, err
}

// BringUp writes the interface config and starts device
func (m *Manager) BringUp(ctx context.Context, device string, configPath string) error {
	return m.Store.View(configPath, func(server *model.Server) error {
		_, err := m.Reconciler.Start(ctx, device, server)
		return err
	})
}

// BringDown stops device
func (m *Manager) BringDown(ctx context.Context, device string) error {
	_, err := m.Reconciler.Stop(ctx, device)
	return err
}

// Reboot restarts device from the persisted config
func (m *Manager) Reboot(ctx context.Context, device string, configPath string) error {
	return m.Store.View(configPath, func(server *model.Server) error {
		_, err := m.Reconciler.Reboot(ctx, device, server)
		return err
	})
}

// ClientStats lists every client together with the live counters of its peer.
// Clients the interface does not know about are reported as not connected.
func (m *Manager) ClientStats(ctx context.Context, device string, configPath string) ([]ClientStat, error) {
	if m.Stats == nil {
		return nil, fmt.Errorf("no statistics source configured")
	}

	server, err := m.loadForRead(configPath)
	if err != nil {
		return nil, err
	}

	peers, err := m.Stats.PeerStats(ctx, device)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]driver.PeerStats, len(peers))
	for _, p := range peers {
		byKey[p.PublicKey] = p
	}

	stats := make([]ClientStat, 0, len(server.Clients))
	for _, client := range server.SortedClients() {
		stat := ClientStat{
			ID:   client.ID,
			Name: client.Name,
			IP:   server.ClientAddress(client).String(),
		}
		if p, ok := byKey[client.Keys.Public]; ok {
			stat.Connected = !p.LatestHandshake.IsZero()
			stat.Endpoint = p.Endpoint
			stat.LatestHandshake = p.LatestHandshake
			stat.Uploaded = p.ReceivedBytes
			stat.Downloaded = p.SentBytes
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

func (m *Manager) loadForRead(configPath string) (*model.Server, error) {
	var loaded *model.Server
	err := m.Store.View(configPath, func(server *model.Server) error {
		loaded = server
		return nil
	})
	return loaded, err
}
