// Package netstatus broadcasts the bus wrapper's connectivity to every
// live WebSocket connection (spec §4.6).
package netstatus

import (
	"context"

	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/wire"
)

// Broadcaster is the subset of *registry.Registry this package needs.
type Broadcaster interface {
	Broadcast(frame wire.WSFrame)
}

// Run subscribes to lifecycle and broadcasts one OK/ERROR frame per
// transition until ctx is cancelled. Intended to run as a long-lived
// task started via shutdown.Sequencer.Go.
func Run(ctx context.Context, lifecycle <-chan bus.Lifecycle, b Broadcaster) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-lifecycle:
			frame := wire.WSFrame{NetworkStatus: wire.NetworkOK}
			if state == bus.Down {
				frame.NetworkStatus = wire.NetworkError
			}
			b.Broadcast(frame)
		}
	}
}
