// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"

	"beat/internal/engine"
	applog "beat/internal/log"
)

// Transport packs snapshots into bar packets and sends them with a Sender.
// Buffers are reused, so steady-state sends do not allocate.
type Transport struct {
	sender *Sender

	mu     sync.Mutex
	seq    uint32
	packet Packet
	buf    []byte
}

// NewTransport creates a transport over sender.
func NewTransport(sender *Sender) (*Transport, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPTransport: UDP sender cannot be nil")
	}
	return &Transport{sender: sender}, nil
}

// Dial creates a sender for targetAddress and a transport over it.
func Dial(targetAddress string) (*Transport, error) {
	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return NewTransport(sender)
}

// Send encodes a *engine.Snapshot and transmits it.
func (t *Transport) Send(data any) error {
	var snap *engine.Snapshot
	switch v := data.(type) {
	case *engine.Snapshot:
		snap = v
	case engine.Snapshot:
		snap = &v
	}
	if snap == nil {
		return fmt.Errorf("UDPTransport: unsupported payload %T", data)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	p := &t.packet
	p.Seq = t.seq
	p.Timestamp = snap.Captured.UnixNano()
	if snap.Captured.IsZero() {
		p.Timestamp = 0
	}
	p.Bars = p.Bars[:0]
	for _, v := range snap.Bars {
		p.Bars = append(p.Bars, float32(v))
	}
	b := snap.Bands
	p.Bass, p.Mid, p.High, p.Overall = float32(b.Bass.Smoothed), float32(b.Mid.Smoothed), float32(b.High.Smoothed), float32(b.Overall.Smoothed)
	p.Beat = snap.Beat
	p.Playing = snap.Playing

	t.buf = AppendPacket(t.buf[:0], p)
	if err := t.sender.Send(t.buf); err != nil {
		return err
	}
	applog.Debugf("UDPTransport: Sent packet %d (%d bytes)", t.seq, len(t.buf))
	return nil
}

// Close closes the underlying sender.
func (t *Transport) Close() error {
	return t.sender.Close()
}
