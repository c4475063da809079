// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"beat/internal/analysis"
	"beat/internal/engine"
	applog "beat/internal/log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttQoS            = 0
	mqttPublishTimeout = time.Second
	mqttDisconnectWait = 250 // milliseconds
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // Energy telemetry; beats go to Topic + "/beat".
}

// energyMessage is the telemetry payload published per snapshot.
type energyMessage struct {
	Seq         uint64               `json:"seq"`
	Timestamp   int64                `json:"ts"`
	Playing     bool                 `json:"playing"`
	Bands       analysis.EnergyBands `json:"bands"`
	Floor       float64              `json:"floor"`
	Sensitivity float64              `json:"sensitivity"`
	Beat        bool                 `json:"beat"`
}

type beatMessage struct {
	Seq       uint64  `json:"seq"`
	Timestamp int64   `json:"ts"`
	Bass      float64 `json:"bass"`
}

// MQTTTransport publishes energy telemetry and beat events to an MQTT
// broker. Bars are not published; they are too large for the cadence
// brokers are usually fed at.
type MQTTTransport struct {
	client    mqtt.Client
	topic     string
	beatTopic string
}

// NewMQTTTransport connects to the broker and returns a transport
// publishing under cfg.Topic.
func NewMQTTTransport(cfg MQTTConfig) (*MQTTTransport, error) {
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic cannot be empty")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		applog.Infof("MQTTTransport: Connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		applog.Warnf("MQTTTransport: Connection lost: %v", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	applog.Infof("MQTTTransport: Connected to broker %s (topic %s)", cfg.Broker, cfg.Topic)
	return newMQTTTransport(client, cfg.Topic), nil
}

func newMQTTTransport(client mqtt.Client, topic string) *MQTTTransport {
	return &MQTTTransport{client: client, topic: topic, beatTopic: topic + "/beat"}
}

// Send publishes the snapshot's energy bands, and a beat event when the
// snapshot carries one.
func (m *MQTTTransport) Send(data any) error {
	snap, err := snapshotOf(data)
	if err != nil {
		return err
	}
	if err := m.publish(m.topic, newEnergyMessage(snap)); err != nil {
		return err
	}
	if snap.Beat {
		return m.publish(m.beatTopic, beatMessage{
			Seq:       snap.Seq,
			Timestamp: timestampOf(snap),
			Bass:      snap.Bands.Bass.Raw,
		})
	}
	return nil
}

func (m *MQTTTransport) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	token := m.client.Publish(topic, mqttQoS, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTTTransport) Close() error {
	m.client.Disconnect(mqttDisconnectWait)
	applog.Infof("MQTTTransport: Disconnected")
	return nil
}

func newEnergyMessage(snap *engine.Snapshot) energyMessage {
	return energyMessage{
		Seq:         snap.Seq,
		Timestamp:   timestampOf(snap),
		Playing:     snap.Playing,
		Bands:       snap.Bands,
		Floor:       snap.Floor,
		Sensitivity: snap.Sensitivity,
		Beat:        snap.Beat,
	}
}

func timestampOf(snap *engine.Snapshot) int64 {
	if snap.Captured.IsZero() {
		return time.Now().UnixMilli()
	}
	return snap.Captured.UnixMilli()
}

var _ Transport = (*MQTTTransport)(nil)
