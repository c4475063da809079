// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (forces log level debug).
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Capture settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectral analysis settings.
	Engine    EngineConfig    `yaml:"engine"`    // Engine scheduling and lifecycle settings.
	Transport TransportConfig `yaml:"transport"` // Publishing settings.
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	Source          string  `yaml:"source"`            // One of portaudio, loopback, file, tone.
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per captured block (256-2048).
	InputChannels   int     `yaml:"input_channels"`    // Number of captured channels, mixed to mono for analysis.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	FilePath        string  `yaml:"file_path"`         // WAV file replayed by the file source.
	ToneFrequency   float64 `yaml:"tone_frequency"`    // Frequency of the synthetic tone source.
	ToneAmplitude   float64 `yaml:"tone_amplitude"`    // Amplitude of the synthetic tone source.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Peak level (0-1) above which a block counts as audio.
}

// AnalysisConfig holds spectral analysis settings.
type AnalysisConfig struct {
	BarCount      int                 `yaml:"bar_count"`      // Number of bars shared by all consumers.
	FFTWindow     string              `yaml:"fft_window"`     // Window function name (e.g., "Hann", "Hamming").
	MinFrequency  float64             `yaml:"min_frequency"`  // Lowest frequency mapped to the center bars.
	MaxFrequency  float64             `yaml:"max_frequency"`  // Highest frequency mapped to the edge bars.
	Attack        float64             `yaml:"attack"`         // Rise blend factor (0-1].
	Decay         float64             `yaml:"decay"`          // Fall blend factor (0-1].
	BandSmoothing float64             `yaml:"band_smoothing"` // Energy band smoothing factor (0-1].
	VisualMode    string              `yaml:"visual_mode"`    // spectrum or pulse.
	PulseMix      float64             `yaml:"pulse_mix"`      // Pulse mode blend toward overall energy.
	Floor         FloorSettings       `yaml:"floor"`
	Sensitivity   SensitivitySettings `yaml:"sensitivity"`
}

// FloorSettings configures the noise floor subtracted from every bar.
type FloorSettings struct {
	Dynamic  bool    `yaml:"dynamic"`  // Derive the floor from running bass energy.
	Manual   float64 `yaml:"manual"`   // Fixed floor used when dynamic is false.
	Ratio    float64 `yaml:"ratio"`    // Fraction of the bass average used as floor.
	Headroom float64 `yaml:"headroom"` // Constant added to the dynamic floor.
	Min      float64 `yaml:"min"`      // Lower clamp bound.
	Max      float64 `yaml:"max"`      // Upper clamp bound.
	Alpha    float64 `yaml:"alpha"`    // Running average weight of the newest pass.
}

// SensitivitySettings selects the automatic or manual bar multiplier.
type SensitivitySettings struct {
	Recommended bool    `yaml:"recommended"` // Use the calibrated multiplier.
	Value       float64 `yaml:"value"`       // Manual multiplier.
}

// EngineConfig holds engine scheduling settings.
type EngineConfig struct {
	PoolWorkers    int           `yaml:"pool_workers"`    // Compute pool size.
	PoolQueue      int           `yaml:"pool_queue"`      // Compute pool queue depth.
	StopTimeout    time.Duration `yaml:"stop_timeout"`    // Bound on joining the capture goroutine.
	BackoffInitial time.Duration `yaml:"backoff_initial"` // First capture retry delay.
	BackoffMax     time.Duration `yaml:"backoff_max"`     // Capture retry delay cap.
}

// TransportConfig holds settings related to publishing analysis results.
type TransportConfig struct {
	WebSocketEnabled  bool          `yaml:"websocket_enabled"`  // Serve bar frames over WebSocket.
	WebSocketAddr     string        `yaml:"websocket_addr"`     // Listen address, e.g. ":8080".
	WebSocketInterval time.Duration `yaml:"websocket_interval"` // Publish cadence.
	UDPEnabled        bool          `yaml:"udp_enabled"`        // Send bar packets over UDP.
	UDPTargetAddress  string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval   time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	MQTTEnabled       bool          `yaml:"mqtt_enabled"`       // Publish energy telemetry to MQTT.
	MQTTBroker        string        `yaml:"mqtt_broker"`        // e.g. "tcp://localhost:1883".
	MQTTClientID      string        `yaml:"mqtt_client_id"`
	MQTTUsername      string        `yaml:"mqtt_username"`
	MQTTPassword      string        `yaml:"mqtt_password"`
	MQTTTopic         string        `yaml:"mqtt_topic"`
	MQTTInterval      time.Duration `yaml:"mqtt_interval"`
	MDNSAdvertise     bool          `yaml:"mdns_advertise"` // Advertise the WebSocket feed via mDNS.
	MDNSServiceName   string        `yaml:"mdns_service_name"`
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. A ".env" file in the working directory is loaded into the process
// environment, then ENV_* overrides are applied and the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "beat.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate clamps numeric settings into their supported ranges and rejects
// names it does not know. Out-of-range numbers are never an error.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Audio.Source) {
	case SourcePortAudio, SourceLoopback, SourceTone:
	case SourceFile:
		if c.Audio.FilePath == "" {
			errs = append(errs, errors.New("audio.file_path must be set for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audio.source %q", c.Audio.Source))
	}
	c.Audio.Source = strings.ToLower(c.Audio.Source)

	if c.Audio.InputDevice < MinDeviceID {
		c.Audio.InputDevice = MinDeviceID
	}
	c.Audio.SampleRate = clamp(c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	c.Audio.FramesPerBuffer = clampInt(c.Audio.FramesPerBuffer, MinBufferFrames, MaxBufferFrames)
	c.Audio.InputChannels = clampInt(c.Audio.InputChannels, 1, MaxChannels)
	c.Audio.ToneFrequency = clamp(c.Audio.ToneFrequency, 1, c.Audio.SampleRate/2)
	c.Audio.ToneAmplitude = clamp(c.Audio.ToneAmplitude, 0, 1)
	c.Audio.GateThreshold = clamp(c.Audio.GateThreshold, 0, 1)

	a := &c.Analysis
	a.BarCount = clampInt(a.BarCount, MinBarCount, MaxBarCount)
	a.MinFrequency = clamp(a.MinFrequency, 1, c.Audio.SampleRate/2)
	a.MaxFrequency = clamp(a.MaxFrequency, a.MinFrequency, c.Audio.SampleRate/2)
	a.Attack = clamp(a.Attack, 0.01, 1)
	a.Decay = clamp(a.Decay, 0.01, 1)
	a.BandSmoothing = clamp(a.BandSmoothing, 0.01, 1)
	a.PulseMix = clamp(a.PulseMix, 0, 1)
	switch strings.ToLower(a.VisualMode) {
	case VisualSpectrum, VisualPulse:
		a.VisualMode = strings.ToLower(a.VisualMode)
	default:
		errs = append(errs, fmt.Errorf("unknown analysis.visual_mode %q", a.VisualMode))
	}

	if c.Engine.PoolWorkers < 1 {
		c.Engine.PoolWorkers = 1
	}
	if c.Engine.PoolQueue < 1 {
		c.Engine.PoolQueue = 1
	}
	if c.Engine.StopTimeout <= 0 {
		c.Engine.StopTimeout = DefaultStopTimeout
	}
	if c.Engine.BackoffInitial <= 0 {
		c.Engine.BackoffInitial = DefaultBackoffInitial
	}
	if c.Engine.BackoffMax < c.Engine.BackoffInitial {
		c.Engine.BackoffMax = c.Engine.BackoffInitial
	}

	t := &c.Transport
	for _, d := range []*time.Duration{&t.WebSocketInterval, &t.UDPSendInterval, &t.MQTTInterval} {
		if *d < MinPublishInterval {
			*d = MinPublishInterval
		}
	}
	if t.UDPEnabled && !strings.Contains(t.UDPTargetAddress, ":") {
		errs = append(errs, fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress))
	}
	if t.MQTTEnabled && t.MQTTBroker == "" {
		errs = append(errs, errors.New("transport.mqtt_broker must be set when MQTT is enabled"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file or default values.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
	}

	// ENV_SOURCE / ENV_BAR_COUNT
	if val, ok := os.LookupEnv("ENV_SOURCE"); ok {
		cfg.Audio.Source = val
	}
	if val, ok := os.LookupEnv("ENV_BAR_COUNT"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Analysis.BarCount = n
		}
	}

	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddr = val
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
		}
	}

	// ENV_MQTT_BROKER
	if val, ok := os.LookupEnv("ENV_MQTT_BROKER"); ok {
		cfg.Transport.MQTTEnabled = true
		cfg.Transport.MQTTBroker = val
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
