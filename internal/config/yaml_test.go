// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Analysis.BarCount != DefaultBarCount {
		t.Errorf("BarCount = %d, want %d", cfg.Analysis.BarCount, DefaultBarCount)
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("FramesPerBuffer = %d, want %d", cfg.Audio.FramesPerBuffer, DefaultFramesPerBuffer)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
audio:
  source: tone
  frames_per_buffer: 512
  tone_frequency: 220
analysis:
  bar_count: 48
  visual_mode: Pulse
  floor:
    dynamic: false
    manual: 0.1
transport:
  udp_send_interval: 20ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.Source != SourceTone {
		t.Errorf("Source = %q, want %q", cfg.Audio.Source, SourceTone)
	}
	if cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("FramesPerBuffer = %d, want 512", cfg.Audio.FramesPerBuffer)
	}
	if cfg.Analysis.BarCount != 48 {
		t.Errorf("BarCount = %d, want 48", cfg.Analysis.BarCount)
	}
	if cfg.Analysis.VisualMode != VisualPulse {
		t.Errorf("VisualMode = %q, want %q", cfg.Analysis.VisualMode, VisualPulse)
	}
	if cfg.Analysis.Floor.Dynamic || cfg.Analysis.Floor.Manual != 0.1 {
		t.Errorf("Floor = %+v, want manual 0.1", cfg.Analysis.Floor)
	}
	// Unset fields keep their defaults.
	if cfg.Analysis.Floor.Max != DefaultFloorMax {
		t.Errorf("Floor.Max = %f, want default %f", cfg.Analysis.Floor.Max, DefaultFloorMax)
	}
	if cfg.Transport.UDPSendInterval != 20*time.Millisecond {
		t.Errorf("UDPSendInterval = %s, want 20ms", cfg.Transport.UDPSendInterval)
	}
}

func TestValidate_ClampsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Audio.FramesPerBuffer = 64
	cfg.Audio.SampleRate = 1e6
	cfg.Audio.GateThreshold = -1
	cfg.Analysis.BarCount = 0
	cfg.Analysis.Attack = 5
	cfg.Engine.BackoffMax = time.Millisecond
	cfg.Transport.UDPSendInterval = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Audio.FramesPerBuffer != MinBufferFrames {
		t.Errorf("FramesPerBuffer = %d, want %d", cfg.Audio.FramesPerBuffer, MinBufferFrames)
	}
	if cfg.Audio.SampleRate != MaxSampleRate {
		t.Errorf("SampleRate = %f, want %d", cfg.Audio.SampleRate, MaxSampleRate)
	}
	if cfg.Audio.GateThreshold != 0 {
		t.Errorf("GateThreshold = %f, want 0", cfg.Audio.GateThreshold)
	}
	if cfg.Analysis.BarCount != MinBarCount {
		t.Errorf("BarCount = %d, want %d", cfg.Analysis.BarCount, MinBarCount)
	}
	if cfg.Analysis.Attack != 1 {
		t.Errorf("Attack = %f, want 1", cfg.Analysis.Attack)
	}
	if cfg.Engine.BackoffMax != cfg.Engine.BackoffInitial {
		t.Errorf("BackoffMax = %s, want %s", cfg.Engine.BackoffMax, cfg.Engine.BackoffInitial)
	}
	if cfg.Transport.UDPSendInterval != MinPublishInterval {
		t.Errorf("UDPSendInterval = %s, want %s", cfg.Transport.UDPSendInterval, MinPublishInterval)
	}
}

func TestValidate_RejectsUnknownNames(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Unknown source", func(c *Config) { c.Audio.Source = "jack" }, "unknown audio.source"},
		{"File without path", func(c *Config) { c.Audio.Source = SourceFile }, "file_path"},
		{"Unknown visual mode", func(c *Config) { c.Analysis.VisualMode = "wave" }, "visual_mode"},
		{"UDP without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_SOURCE", "tone")
	t.Setenv("ENV_BAR_COUNT", "64")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "40ms")
	t.Setenv("ENV_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.Source != SourceTone {
		t.Errorf("Source = %q, want tone", cfg.Audio.Source)
	}
	if cfg.Analysis.BarCount != 64 {
		t.Errorf("BarCount = %d, want 64", cfg.Analysis.BarCount)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPSendInterval != 40*time.Millisecond {
		t.Errorf("UDP = %v/%s, want enabled/40ms", cfg.Transport.UDPEnabled, cfg.Transport.UDPSendInterval)
	}
	if !cfg.Transport.MQTTEnabled || cfg.Transport.MQTTBroker != "tcp://broker:1883" {
		t.Errorf("MQTT = %v/%q, want enabled broker override", cfg.Transport.MQTTEnabled, cfg.Transport.MQTTBroker)
	}
}
