package model

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sort"

	"go4.org/netipx"
)

// reservedAddresses counts the subnet slots never handed to clients:
// the network address, the server address and the broadcast address.
const reservedAddresses = 3

// clientAddressOffset skips the network address and the server address
const clientAddressOffset = 2

// Server model
type Server struct {
	Subnet           netip.Prefix    `json:"subnetCidr"`
	Endpoint         string          `json:"endpoint"`
	Port             uint16          `json:"port"`
	NetworkInterface string          `json:"networkInterface"`
	Keys             KeyPair         `json:"keys"`
	Clients          map[int]*Client `json:"clients"`
}

// NewServer creates a server with a fresh key pair and no clients
func NewServer(subnet netip.Prefix, endpoint string, port uint16, networkInterface string) *Server {
	return &Server{
		Subnet:           subnet.Masked(),
		Endpoint:         endpoint,
		Port:             port,
		NetworkInterface: networkInterface,
		Keys:             GenerateKeyPair(),
		Clients:          make(map[int]*Client),
	}
}

// MaxClients returns how many clients fit into the subnet.
// The result is zero or negative for /31 and /32 subnets.
func (s *Server) MaxClients() int {
	bits := s.Subnet.Bits()
	if bits < 0 || !s.Subnet.Addr().Is4() {
		return 0
	}
	return (1 << (32 - bits)) - reservedAddresses
}

// AddClient registers a new client under the lowest free id and returns that id
func (s *Server) AddClient(name string) (int, error) {
	id, ok := s.freeID()
	if !ok {
		return 0, fmt.Errorf("%w: subnet %s holds at most %d clients", ErrCapacityExceeded, s.Subnet, max(s.MaxClients(), 0))
	}
	if s.Clients == nil {
		s.Clients = make(map[int]*Client)
	}
	s.Clients[id] = NewClient(id, name)
	return id, nil
}

// RemoveClient deletes the client and hands it back so the caller can drop its live peer
func (s *Server) RemoveClient(id int) (*Client, error) {
	client, ok := s.Clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client with id %d doesn't exist", ErrNotFound, id)
	}
	delete(s.Clients, id)
	return client, nil
}

// Client looks up a client by id
func (s *Server) Client(id int) (*Client, error) {
	client, ok := s.Clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client with id %d doesn't exist", ErrNotFound, id)
	}
	return client, nil
}

// SortedClients returns the roster ordered by id
func (s *Server) SortedClients() []*Client {
	clients := make([]*Client, 0, len(s.Clients))
	for _, c := range s.Clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients
}

// ClientsByName returns the clients carrying the given name, ordered by id
func (s *Server) ClientsByName(name string) []*Client {
	var clients []*Client
	for _, c := range s.SortedClients() {
		if c.Name == name {
			clients = append(clients, c)
		}
	}
	return clients
}

// ServerAddress is the first host address of the subnet
func (s *Server) ServerAddress() netip.Addr {
	addr, _ := Nth(s.Subnet, 1)
	return addr
}

// ClientAddress derives the tunnel address of a client from its id
func (s *Server) ClientAddress(c *Client) netip.Addr {
	addr, _ := Nth(s.Subnet, c.ID+clientAddressOffset)
	return addr
}

// Validate checks the invariants a loaded server must satisfy
func (s *Server) Validate() error {
	if !s.Subnet.IsValid() || !s.Subnet.Addr().Is4() {
		return fmt.Errorf("%w: subnet %q is not an IPv4 prefix", ErrParse, s.Subnet)
	}
	if err := s.Keys.Validate(); err != nil {
		return fmt.Errorf("%w: server keys: %v", ErrParse, err)
	}
	maxClients := s.MaxClients()
	for id, c := range s.Clients {
		if c == nil {
			return fmt.Errorf("%w: client %d is empty", ErrParse, id)
		}
		if c.ID != id {
			return fmt.Errorf("%w: client stored under %d carries id %d", ErrParse, id, c.ID)
		}
		if id < 0 || id >= maxClients {
			return fmt.Errorf("%w: client id %d outside of [0, %d)", ErrParse, id, max(maxClients, 0))
		}
		if err := c.Keys.Validate(); err != nil {
			return fmt.Errorf("%w: client %d keys: %v", ErrParse, id, err)
		}
	}
	return nil
}

// freeID walks the client addresses upwards from the first one and returns the id
// of the first address no client holds
func (s *Server) freeID() (int, bool) {
	var taken netipx.IPSetBuilder
	for _, c := range s.Clients {
		if addr := s.ClientAddress(c); addr.IsValid() {
			taken.Add(addr)
		}
	}
	set, err := taken.IPSet()
	if err != nil {
		return 0, false
	}

	next, ok := Nth(s.Subnet, clientAddressOffset)
	if !ok {
		return 0, false
	}
	for id := 0; id < s.MaxClients(); id++ {
		if !set.Contains(next) {
			return id, true
		}
		next = next.Next()
	}
	return 0, false
}

// Nth returns the n-th address of an IPv4 prefix, counting the network address as 0
func Nth(prefix netip.Prefix, n int) (netip.Addr, bool) {
	if !prefix.IsValid() || !prefix.Addr().Is4() || n < 0 {
		return netip.Addr{}, false
	}
	if uint64(n) >= uint64(1)<<(32-prefix.Bits()) {
		return netip.Addr{}, false
	}

	base := prefix.Masked().Addr().As4()
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], binary.BigEndian.Uint32(base[:])+uint32(n))
	return netip.AddrFrom4(out), true
}
