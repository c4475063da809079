// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"beat/internal/audio"
	"beat/internal/config"
	"beat/internal/engine"
	applog "beat/internal/log"
	"beat/internal/pool"
	"beat/internal/transport"
	"beat/internal/transport/udp"
	"beat/internal/tui"

	"golang.org/x/sync/errgroup"
)

const (
	silenceAfter = 5 * time.Second
	silencePoll  = time.Second
	idleLogEvery = time.Second
)

// newFactory builds engines from cfg, each with its own capture source.
func newFactory(cfg *config.Config) engine.Factory {
	return func(barCount int) (*engine.Engine, error) {
		opts, err := engine.OptionsFromConfig(cfg, barCount)
		if err != nil {
			return nil, err
		}
		src, err := audio.NewSource(cfg.Audio)
		if err != nil {
			return nil, err
		}
		return engine.New(opts, src), nil
	}
}

// openTransports creates every enabled transport with its cadence. On
// error, transports already opened are closed.
func openTransports(cfg *config.Config) (ts []namedTransport, closers []func() error, err error) {
	defer func() {
		if err != nil {
			for _, c := range closers {
				c()
			}
			ts, closers = nil, nil
		}
	}()

	t := cfg.Transport
	if t.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(t.WebSocketAddr)
		if err != nil {
			return nil, closers, err
		}
		ts = append(ts, namedTransport{"websocket", ws, t.WebSocketInterval})
		closers = append(closers, ws.Close)

		if t.MDNSAdvertise {
			port := 0
			if addr, ok := ws.Addr().(*net.TCPAddr); ok {
				port = addr.Port
			}
			adv, err := transport.NewAdvertiser(t.MDNSServiceName, port)
			if err != nil {
				// Discovery is a convenience; the feed still works without it.
				applog.Warnf("mDNS advertisement unavailable: %v", err)
			} else {
				closers = append(closers, adv.Close)
			}
		}
	}
	if t.UDPEnabled {
		u, err := udp.Dial(t.UDPTargetAddress)
		if err != nil {
			return nil, closers, err
		}
		ts = append(ts, namedTransport{"udp", u, t.UDPSendInterval})
		closers = append(closers, u.Close)
	}
	if t.MQTTEnabled {
		m, err := transport.NewMQTTTransport(transport.MQTTConfig{
			Broker:   t.MQTTBroker,
			ClientID: t.MQTTClientID,
			Username: t.MQTTUsername,
			Password: t.MQTTPassword,
			Topic:    t.MQTTTopic,
		})
		if err != nil {
			return nil, closers, err
		}
		ts = append(ts, namedTransport{"mqtt", m, t.MQTTInterval})
		closers = append(closers, m.Close)
	}
	return ts, closers, nil
}

type namedTransport struct {
	name      string
	transport transport.Transport
	interval  time.Duration
}

// run wires capture, engine and consumers together and blocks until ctx is
// cancelled, an interrupt arrives or, with monitor, the user quits.
func run(ctx context.Context, cfg *config.Config, monitor bool) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	computePool := pool.New(cfg.Engine.PoolWorkers, cfg.Engine.PoolQueue)
	defer computePool.Close()

	registry := engine.NewRegistry(newFactory(cfg))
	registry.SetThreadPool(computePool)
	defer func() {
		if err := registry.Close(); err != nil {
			applog.Warnf("Engine shutdown: %v", err)
		}
	}()

	transports, closers, err := openTransports(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				applog.Warnf("Transport shutdown: %v", err)
			}
		}
	}()
	if len(transports) == 0 && !monitor {
		applog.Infof("No transports enabled, logging snapshots at debug level")
		transports = append(transports, namedTransport{"log", transport.NewLoggingTransport(), idleLogEvery})
	}

	g, ctx := errgroup.WithContext(ctx)
	var handles []*engine.Handle
	defer func() {
		for _, h := range handles {
			registry.Release(h)
		}
	}()
	acquire := func() (*engine.Handle, error) {
		h, err := registry.Acquire(cfg.Analysis.BarCount)
		if err == nil {
			handles = append(handles, h)
		}
		return h, err
	}

	for _, nt := range transports {
		h, err := acquire()
		if err != nil {
			return err
		}
		p, err := transport.NewPublisher(nt.name, h.Engine(), nt.transport, nt.interval)
		if err != nil {
			return err
		}
		g.Go(func() error { return p.Run(ctx) })
	}

	if monitor {
		h, err := acquire()
		if err != nil {
			return err
		}
		// The alt screen owns the terminal.
		applog.SetOutput(io.Discard)
		defer applog.SetOutput(os.Stderr)
		g.Go(func() error {
			err := tui.RunMonitor(ctx, h.Engine(), config.DefaultMonitorFrameDelay)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errQuit
			}
			return err
		})
	}

	if e, ok := registry.Engine(cfg.Analysis.BarCount); ok {
		g.Go(func() error { return watchSilence(ctx, e) })
		applog.Infof("Running with %d bars from %s source (%s)", e.BarCount(), cfg.Audio.Source, describe(transports))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// errQuit ends the group when the monitor exits normally.
var errQuit = errors.New("quit")

// watchSilence logs when capture goes quiet and when audio returns.
func watchSilence(ctx context.Context, e *engine.Engine) error {
	ticker := time.NewTicker(silencePoll)
	defer ticker.Stop()
	silent := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := e.Silent(silenceAfter)
			if now != silent {
				if now {
					applog.Infof("No audio above the gate for %s", silenceAfter)
				} else {
					applog.Infof("Audio detected")
				}
				silent = now
			}
		}
	}
}

func describe(ts []namedTransport) string {
	if len(ts) == 0 {
		return "monitor only"
	}
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ", "
		}
		s += t.name + " every " + t.interval.String()
	}
	return s
}
