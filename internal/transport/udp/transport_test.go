// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"testing"
	"time"

	"beat/internal/analysis"
	"beat/internal/engine"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTransportSendsBars(t *testing.T) {
	rx := listen(t)
	tr, err := Dial(rx.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	snap := &engine.Snapshot{
		Seq:      9,
		Bars:     []float64{0.1, 0.9, 0.1},
		Bands:    analysis.EnergyBands{Mid: analysis.Band{Smoothed: 0.5}},
		Playing:  true,
		Captured: time.Unix(0, 12345),
	}
	for range 2 {
		if err := tr.Send(snap); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	buf := make([]byte, 1500)
	for want := uint32(1); want <= 2; want++ {
		rx.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := rx.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		p, err := DecodePacket(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if p.Seq != want || p.Timestamp != 12345 || len(p.Bars) != 3 || p.Bars[1] != 0.9 || p.Mid != 0.5 || !p.Playing {
			t.Errorf("packet %d = %+v", want, p)
		}
	}
}

func TestTransportErrors(t *testing.T) {
	if _, err := NewTransport(nil); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := Dial("no-port"); err == nil {
		t.Error("expected error for address without port")
	}

	rx := listen(t)
	tr, err := Dial(rx.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send([]float64{1}); err == nil {
		t.Error("expected error for unsupported payload")
	}
	tr.Close()
	if err := tr.Send(&engine.Snapshot{}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v, want ErrSenderClosed", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
