// SPDX-License-Identifier: MIT
package transport

import (
	"net"
	"slices"
	"testing"
)

func TestNewService(t *testing.T) {
	ips := []net.IP{net.ParseIP("192.168.1.20")}
	svc, err := newService("beat-test", 8080, ips)
	if err != nil {
		t.Fatalf("newService: %v", err)
	}
	if svc.Instance != "beat-test" || svc.Service != MDNSServiceType || svc.Port != 8080 {
		t.Errorf("service = %s %s %d", svc.Instance, svc.Service, svc.Port)
	}
	if !slices.Contains(svc.TXT, "path="+WebSocketPath) {
		t.Errorf("TXT = %v, want path record", svc.TXT)
	}
}

func TestLocalIPs(t *testing.T) {
	ips, err := localIPs()
	if err != nil {
		t.Fatalf("localIPs: %v", err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.To4() == nil {
			t.Errorf("unexpected address %s", ip)
		}
	}
}
