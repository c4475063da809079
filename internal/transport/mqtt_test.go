// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"beat/internal/analysis"
	"beat/internal/engine"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

// fakeClient records publishes; other mqtt.Client methods are unused.
type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	published    map[string][][]byte
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string][][]byte)
	}
	c.published[topic] = append(c.published[topic], payload.([]byte))
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestMQTTTransport(t *testing.T) {
	client := &fakeClient{}
	m := newMQTTTransport(client, "beat/energy")

	captured := time.UnixMilli(1_700_000_000_000)
	quiet := &engine.Snapshot{Seq: 1, Playing: true, Captured: captured}
	loud := &engine.Snapshot{
		Seq:      2,
		Playing:  true,
		Beat:     true,
		Captured: captured,
		Bands:    analysis.EnergyBands{Bass: analysis.Band{Raw: 0.8, Smoothed: 0.4}},
	}
	for _, s := range []*engine.Snapshot{quiet, loud} {
		if err := m.Send(s); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	if n := len(client.published["beat/energy"]); n != 2 {
		t.Fatalf("energy messages = %d, want 2", n)
	}
	beats := client.published["beat/energy/beat"]
	if len(beats) != 1 {
		t.Fatalf("beat messages = %d, want 1", len(beats))
	}

	var energy energyMessage
	if err := json.Unmarshal(client.published["beat/energy"][1], &energy); err != nil {
		t.Fatal(err)
	}
	if energy.Seq != 2 || !energy.Beat || energy.Bands.Bass.Smoothed != 0.4 || energy.Timestamp != captured.UnixMilli() {
		t.Errorf("energy = %+v", energy)
	}
	var beat beatMessage
	if err := json.Unmarshal(beats[0], &beat); err != nil {
		t.Fatal(err)
	}
	if beat.Seq != 2 || beat.Bass != 0.8 {
		t.Errorf("beat = %+v", beat)
	}

	if err := m.Send("bars"); err == nil {
		t.Error("expected error for unsupported payload")
	}
	m.Close()
	if !client.disconnected {
		t.Error("Close did not disconnect")
	}
}

func TestNewMQTTTransportRequiresTopic(t *testing.T) {
	if _, err := NewMQTTTransport(MQTTConfig{Broker: "tcp://127.0.0.1:1"}); err == nil {
		t.Error("expected error for empty topic")
	}
}
