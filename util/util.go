package util

import (
	"fmt"
	"net"
	"strings"
	"time"

	externalip "github.com/glendc/go-external-ip"
	"github.com/labstack/gommon/log"
	"github.com/skip2/go-qrcode"

	"github.com/ngoduykhanh/wgserver/model"
)

// BuildServerConfig to create the wireguard interface config (e.g. wg0.conf) of the server
func BuildServerConfig(server *model.Server) string {
	// Interface section
	serverAddress := fmt.Sprintf("Address = %s/%d", server.ServerAddress(), server.Subnet.Bits())
	serverPostUp := fmt.Sprintf("PostUp = iptables -A FORWARD -i %%i -j ACCEPT; iptables -t nat -A POSTROUTING -o %s -j MASQUERADE", server.NetworkInterface)
	serverPostDown := fmt.Sprintf("PostDown = iptables -D FORWARD -i %%i -j ACCEPT; iptables -t nat -D POSTROUTING -o %s -j MASQUERADE", server.NetworkInterface)
	serverListenPort := fmt.Sprintf("ListenPort = %d", server.Port)
	serverPrivateKey := fmt.Sprintf("PrivateKey = %s", server.Keys.Private)

	var b strings.Builder
	b.WriteString("[Interface]\n" +
		serverAddress + "\n" +
		serverPostUp + "\n" +
		serverPostDown + "\n" +
		serverListenPort + "\n" +
		serverPrivateKey + "\n\n")

	// one Peer section per client, ordered by id so the output is stable
	for _, client := range server.SortedClients() {
		b.WriteString("[Peer]\n" +
			fmt.Sprintf("PublicKey = %s", client.Keys.Public) + "\n" +
			fmt.Sprintf("AllowedIPs = %s/32", server.ClientAddress(client)) + "\n\n")
	}

	return b.String()
}

// BuildClientConfig to create wireguard client config string
func BuildClientConfig(server *model.Server, client *model.Client) string {
	// Interface section
	clientAddress := fmt.Sprintf("Address = %s", server.ClientAddress(client))
	clientPrivateKey := fmt.Sprintf("PrivateKey = %s", client.Keys.Private)
	clientDNS := fmt.Sprintf("DNS = %s", DefaultDNS)

	// Peer section
	peerPublicKey := fmt.Sprintf("PublicKey = %s", server.Keys.Public)
	peerEndpoint := fmt.Sprintf("Endpoint = %s:%d", server.Endpoint, server.Port)
	peerAllowedIPs := fmt.Sprintf("AllowedIPs = %s", DefaultClientAllowedIPs)
	peerPersistentKeepalive := fmt.Sprintf("PersistentKeepalive = %d", DefaultPersistentKeepalive)

	// build the config as string
	strConfig := "[Interface]\n" +
		clientAddress + "\n" +
		clientPrivateKey + "\n" +
		clientDNS + "\n\n" +
		"[Peer]" + "\n" +
		peerPublicKey + "\n" +
		peerEndpoint + "\n" +
		peerAllowedIPs + "\n" +
		peerPersistentKeepalive + "\n"

	return strConfig
}

// BuildClientQRCode encodes a client config as a PNG QR code
func BuildClientQRCode(config string) ([]byte, error) {
	png, err := qrcode.Encode(config, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("cannot generate QR code: %w", err)
	}
	return png, nil
}

// GetInterfaceIPs to get local machine's interface ip addresses
func GetInterfaceIPs() ([]model.Interface, error) {
	// get machine's interfaces
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var interfaceList = []model.Interface{}

	// get interface's ip addresses
	for _, i := range ifaces {
		if i.Flags&net.FlagUp == 0 || i.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := i.Addrs()
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			ip = ip.To4()
			if ip == nil {
				continue
			}

			iface := model.Interface{}
			iface.Name = i.Name
			iface.IPAddress = ip.String()
			interfaceList = append(interfaceList, iface)
		}
	}
	return interfaceList, err
}

// GetDefaultInterface returns the first interface that is up, not a loopback and carries an IPv4 address
func GetDefaultInterface() (model.Interface, error) {
	interfaces, err := GetInterfaceIPs()
	if err != nil {
		return model.Interface{}, err
	}
	if len(interfaces) == 0 {
		return model.Interface{}, fmt.Errorf("no network interface with an IPv4 address is up")
	}
	return interfaces[0], nil
}

// GetPublicIP to get machine's public ip address
func GetPublicIP() (model.Interface, error) {
	// set time out to 5 seconds
	cfg := externalip.ConsensusConfig{}
	cfg.Timeout = time.Second * 5
	consensus := externalip.NewConsensus(&cfg, nil)

	// add trusted voters
	consensus.AddVoter(externalip.NewHTTPSource("http://checkip.amazonaws.com/"), 1)
	consensus.AddVoter(externalip.NewHTTPSource("http://whatismyip.akamai.com"), 1)
	consensus.AddVoter(externalip.NewHTTPSource("http://ifconfig.top"), 1)

	publicInterface := model.Interface{}
	publicInterface.Name = "Public Address"

	ip, err := consensus.ExternalIP()
	if err != nil {
		publicInterface.IPAddress = "N/A"
		return publicInterface, err
	}
	publicInterface.IPAddress = ip.String()

	return publicInterface, nil
}

// DetectEndpoint picks the address clients should dial: the public address if it can be
// discovered, the address of the default interface otherwise
func DetectEndpoint() (string, error) {
	publicInterface, err := GetPublicIP()
	if err == nil {
		return publicInterface.IPAddress, nil
	}
	log.Warnf("Cannot discover public ip address, falling back to the default interface: %v", err)

	iface, err := GetDefaultInterface()
	if err != nil {
		return "", fmt.Errorf("cannot detect endpoint address: %w", err)
	}
	return iface.IPAddress, nil
}

// ParseLogLevel maps a level name to a gommon log level
func ParseLogLevel(lvl string) (log.Lvl, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return log.DEBUG, nil
	case "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	default:
		return log.DEBUG, fmt.Errorf("not a valid log level: %s", lvl)
	}
}
