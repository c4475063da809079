// SPDX-License-Identifier: MIT
/*
Package transport publishes engine snapshots to consumers outside the
process.

Each transport is driven by its own Publisher, which ticks the engine at
the transport's cadence and sends every new snapshot. Transports never
call into analysis directly; a slow transport only delays its own
publisher.
*/
package transport

import (
	"errors"
	"fmt"

	"beat/internal/engine"
)

// ErrUnsupported is returned by Send for payloads a transport cannot encode.
var ErrUnsupported = errors.New("unsupported payload")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Source is what a Publisher drives: an engine, or anything that ticks and
// caches snapshots like one.
type Source interface {
	Tick() error
	Snapshot() *engine.Snapshot
}

var _ Source = (*engine.Engine)(nil)

// snapshotOf unwraps the payloads transports accept.
func snapshotOf(data any) (*engine.Snapshot, error) {
	switch v := data.(type) {
	case *engine.Snapshot:
		if v == nil {
			return nil, fmt.Errorf("%w: nil snapshot", ErrUnsupported)
		}
		return v, nil
	case engine.Snapshot:
		return &v, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, data)
	}
}
