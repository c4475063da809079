// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	applog "beat/internal/log"
)

// LoggingTransport implements the Transport interface by logging a summary
// of each snapshot at Debug level.
type LoggingTransport struct {
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received snapshot.
func (lt *LoggingTransport) Send(data any) error {
	snap, err := snapshotOf(data)
	if err != nil {
		return err
	}
	lt.sent.Add(1)
	b := snap.Bands
	applog.Debugf("LoggingTransport: seq=%d playing=%t bass=%.3f mid=%.3f high=%.3f overall=%.3f floor=%.3f beat=%t",
		snap.Seq, snap.Playing, b.Bass.Smoothed, b.Mid.Smoothed, b.High.Smoothed, b.Overall.Smoothed, snap.Floor, snap.Beat)
	return nil
}

// Sent returns the number of snapshots logged.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called (%d sent)", lt.Sent())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
