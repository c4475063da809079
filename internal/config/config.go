// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults for
// capture, analysis and publishing.
const (
	// Capture
	DefaultSource          = SourcePortAudio
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 1024        // ~23ms at 44.1kHz
	DefaultChannels        = 2           // Loopback is usually stereo
	DefaultToneFrequency   = 100.0       // Bass tone for the synthetic source
	DefaultToneAmplitude   = 0.5
	DefaultGateThreshold   = 0.001 // Peak level that counts as "audio observed"

	// Analysis
	DefaultBarCount      = 32
	DefaultFFTWindow     = "Hann"
	DefaultMinFrequency  = 20.0
	DefaultMaxFrequency  = 16000.0
	DefaultAttack        = 0.7
	DefaultDecay         = 0.25
	DefaultBandSmoothing = 0.2
	DefaultVisualMode    = VisualSpectrum
	DefaultPulseMix      = 0.5

	DefaultFloorDynamic  = true
	DefaultFloorManual   = 0.05
	DefaultFloorRatio    = 0.5
	DefaultFloorHeadroom = 0.01
	DefaultFloorMin      = 0.005
	DefaultFloorMax      = 0.3
	DefaultFloorAlpha    = 0.1

	DefaultSensitivityRecommended = true
	DefaultSensitivity            = 2.0

	// Engine
	DefaultPoolWorkers    = 2
	DefaultPoolQueue      = 16
	DefaultStopTimeout    = 2 * time.Second
	DefaultBackoffInitial = 50 * time.Millisecond
	DefaultBackoffMax     = 2 * time.Second

	// Transport
	DefaultWebSocketAddr     = ":8080"
	DefaultPublishInterval   = 33 * time.Millisecond // ~30Hz
	DefaultUDPTargetAddress  = "127.0.0.1:9090"
	DefaultMQTTBroker        = "tcp://localhost:1883"
	DefaultMQTTClientID      = "beat-engine"
	DefaultMQTTTopic         = "beat/energy"
	DefaultMQTTInterval      = 250 * time.Millisecond
	DefaultMDNSServiceName   = "beat-engine"
	DefaultMonitorFrameDelay = 33 * time.Millisecond

	// Hardware and processing limits
	MinDeviceID        = -1     // -1 represents system default device
	MinSampleRate      = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate      = 192000 // Maximum supported sample rate (Hz)
	MinBufferFrames    = 256    // Smallest capture block
	MaxBufferFrames    = 2048   // Largest capture block
	MinBarCount        = 2
	MaxBarCount        = 512
	MaxChannels        = 8
	MinPublishInterval = 5 * time.Millisecond
)

// Source kinds.
const (
	SourcePortAudio = "portaudio"
	SourceLoopback  = "loopback"
	SourceFile      = "file"
	SourceTone      = "tone"
)

// Visual modes.
const (
	VisualSpectrum = "spectrum"
	VisualPulse    = "pulse"
)

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			Source:          DefaultSource,
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
			ToneFrequency:   DefaultToneFrequency,
			ToneAmplitude:   DefaultToneAmplitude,
			GateThreshold:   DefaultGateThreshold,
		},
		Analysis: AnalysisConfig{
			BarCount:      DefaultBarCount,
			FFTWindow:     DefaultFFTWindow,
			MinFrequency:  DefaultMinFrequency,
			MaxFrequency:  DefaultMaxFrequency,
			Attack:        DefaultAttack,
			Decay:         DefaultDecay,
			BandSmoothing: DefaultBandSmoothing,
			VisualMode:    DefaultVisualMode,
			PulseMix:      DefaultPulseMix,
			Floor: FloorSettings{
				Dynamic:  DefaultFloorDynamic,
				Manual:   DefaultFloorManual,
				Ratio:    DefaultFloorRatio,
				Headroom: DefaultFloorHeadroom,
				Min:      DefaultFloorMin,
				Max:      DefaultFloorMax,
				Alpha:    DefaultFloorAlpha,
			},
			Sensitivity: SensitivitySettings{
				Recommended: DefaultSensitivityRecommended,
				Value:       DefaultSensitivity,
			},
		},
		Engine: EngineConfig{
			PoolWorkers:    DefaultPoolWorkers,
			PoolQueue:      DefaultPoolQueue,
			StopTimeout:    DefaultStopTimeout,
			BackoffInitial: DefaultBackoffInitial,
			BackoffMax:     DefaultBackoffMax,
		},
		Transport: TransportConfig{
			WebSocketAddr:     DefaultWebSocketAddr,
			WebSocketInterval: DefaultPublishInterval,
			UDPTargetAddress:  DefaultUDPTargetAddress,
			UDPSendInterval:   DefaultPublishInterval,
			MQTTBroker:        DefaultMQTTBroker,
			MQTTClientID:      DefaultMQTTClientID,
			MQTTTopic:         DefaultMQTTTopic,
			MQTTInterval:      DefaultMQTTInterval,
			MDNSServiceName:   DefaultMDNSServiceName,
		},
	}
}
