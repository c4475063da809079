// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"beat/internal/config"
	applog "beat/internal/log"
	"beat/pkg/build"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flags holds command line overrides. Only flags the user set are applied
// on top of the loaded configuration.
type flags struct {
	configPath string
	logLevel   string
	debug      bool

	source     string
	device     int
	sampleRate float64
	frames     int
	channels   int
	lowLatency bool
	file       string
	tone       float64

	bars        int
	window      string
	visual      string
	sensitivity float64
	floor       float64

	wsAddr     string
	udpTarget  string
	mqttBroker string
	mdns       bool
}

func (f *flags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to a YAML config file (default: ./config.yaml if present)")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVarP(&f.debug, "verbose", "v", false, "Shorthand for --log-level debug")

	fs.StringVar(&f.source, "source", config.DefaultSource, "Audio source: portaudio, loopback, file, tone")
	fs.IntVarP(&f.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'devices' command to see available devices.")
	fs.Float64VarP(&f.sampleRate, "sample-rate", "s", config.DefaultSampleRate, "Sample rate, measured in Hertz (Hz)")
	fs.IntVarP(&f.frames, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per captured block (affects latency and resolution)")
	fs.IntVarP(&f.channels, "channels", "c", config.DefaultChannels, "Number of channels to capture")
	fs.BoolVarP(&f.lowLatency, "low-latency", "l", false, "Use low latency mode for real-time processing")
	fs.StringVar(&f.file, "file", "", "WAV file replayed by the file source (implies --source file)")
	fs.Float64Var(&f.tone, "tone", config.DefaultToneFrequency, "Frequency of the tone source in Hz")

	fs.IntVarP(&f.bars, "bars", "n", config.DefaultBarCount, "Number of bars")
	fs.StringVar(&f.window, "window", config.DefaultFFTWindow, "FFT window function")
	fs.StringVar(&f.visual, "visual", config.DefaultVisualMode, "Visual mode: spectrum or pulse")
	fs.Float64Var(&f.sensitivity, "sensitivity", config.DefaultSensitivity, "Manual sensitivity multiplier (disables auto calibration)")
	fs.Float64Var(&f.floor, "floor", config.DefaultFloorManual, "Manual noise floor (disables the dynamic floor)")

	fs.StringVar(&f.wsAddr, "ws", "", "Serve bars over WebSocket on this address, e.g. :8080")
	fs.StringVar(&f.udpTarget, "udp", "", "Send bar packets to this host:port")
	fs.StringVar(&f.mqttBroker, "mqtt", "", "Publish energy telemetry to this MQTT broker")
	fs.BoolVar(&f.mdns, "mdns", false, "Advertise the WebSocket feed over mDNS")
}

// apply copies every flag the user set onto cfg and validates the result.
func (f *flags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("log-level", func() { cfg.LogLevel = f.logLevel })
	set("verbose", func() { cfg.Debug = f.debug })

	set("source", func() { cfg.Audio.Source = f.source })
	set("device", func() { cfg.Audio.InputDevice = f.device })
	set("sample-rate", func() { cfg.Audio.SampleRate = f.sampleRate })
	set("frames-per-buffer", func() { cfg.Audio.FramesPerBuffer = f.frames })
	set("channels", func() { cfg.Audio.InputChannels = f.channels })
	set("low-latency", func() { cfg.Audio.LowLatency = f.lowLatency })
	set("file", func() {
		cfg.Audio.FilePath = f.file
		if !fs.Changed("source") {
			cfg.Audio.Source = config.SourceFile
		}
	})
	set("tone", func() { cfg.Audio.ToneFrequency = f.tone })

	set("bars", func() { cfg.Analysis.BarCount = f.bars })
	set("window", func() { cfg.Analysis.FFTWindow = f.window })
	set("visual", func() { cfg.Analysis.VisualMode = f.visual })
	set("sensitivity", func() {
		cfg.Analysis.Sensitivity.Recommended = false
		cfg.Analysis.Sensitivity.Value = f.sensitivity
	})
	set("floor", func() {
		cfg.Analysis.Floor.Dynamic = false
		cfg.Analysis.Floor.Manual = f.floor
	})

	set("ws", func() {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddr = f.wsAddr
	})
	set("udp", func() {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = f.udpTarget
	})
	set("mqtt", func() {
		cfg.Transport.MQTTEnabled = true
		cfg.Transport.MQTTBroker = f.mqttBroker
	})
	set("mdns", func() { cfg.Transport.MDNSAdvertise = f.mdns })

	return cfg.Validate()
}

// configureLogging applies the configured log level.
func configureLogging(cfg *config.Config) {
	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		applog.Warnf("Unknown log level %q, using %s", cfg.LogLevel, level)
	}
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
}

// newRootCommand builds the command tree. The loaded configuration is
// stored in *cfg before any subcommand runs.
func newRootCommand(cfg **config.Config) *cobra.Command {
	buildInfo := build.Current()
	opts := &flags{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd.Flags(), loaded); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			configureLogging(loaded)
			*cfg = loaded
			return nil
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	opts.register(rootCmd.PersistentFlags())

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Capture, analyze and publish until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfg, false)
		},
	}
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show live bars and energy bands in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfg, true)
		},
	}
	rootCmd.RunE = runCmd.RunE
	rootCmd.AddCommand(runCmd, monitorCmd, newDevicesCommand())
	return rootCmd
}

// Execute parses os.Args and runs the selected command.
func Execute() error {
	var cfg *config.Config
	rootCmd := newRootCommand(&cfg)
	rootCmd.SetArgs(os.Args[1:])
	return rootCmd.Execute()
}
