// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"net"

	applog "beat/internal/log"

	"github.com/hashicorp/mdns"
)

// MDNSServiceType is the DNS-SD type the bar feed is advertised under.
const MDNSServiceType = "_beat._tcp"

// Advertiser announces the WebSocket feed on the local network so
// visualizers can find it without configuration.
type Advertiser struct {
	server *mdns.Server
}

// NewAdvertiser starts advertising instance on port.
func NewAdvertiser(instance string, port int) (*Advertiser, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}
	service, err := newService(instance, port, ips)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}
	applog.Infof("Advertiser: Advertising %s on port %d (type: %s)", instance, port, MDNSServiceType)
	return &Advertiser{server: server}, nil
}

func newService(instance string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	service, err := mdns.NewMDNSService(instance, MDNSServiceType, "", "", port, ips,
		[]string{"path=" + WebSocketPath, "format=json"})
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return service, nil
}

// Close stops advertising.
func (a *Advertiser) Close() error {
	return a.server.Shutdown()
}

// localIPs returns the non-loopback IPv4 addresses of interfaces that are up.
func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
