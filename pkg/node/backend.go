package node

import (
	"context"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// Backend is the device access service a Tree operates on.
// Implemented by rpc.Client for a single connection and by
// session.Conn, which adds transaction buffering on the write path.
//
// All paths are canonical absolute paths without wildcards; wildcard
// resolution happens above this interface.
type Backend interface {
	// Get reads a node's last value known to the data server.
	Get(ctx context.Context, path string) (any, error)

	// GetDeep reads a node's value directly from the device and
	// returns it with the device timestamp in clock ticks.
	GetDeep(ctx context.Context, path string) (any, uint64, error)

	// Set writes a node's value.
	Set(ctx context.Context, path string, value any) error

	// SetDeep writes a node's value directly to the device and
	// returns the acknowledged value, which may be rounded or
	// clamped.
	SetDeep(ctx context.Context, path string, value any) (any, error)

	// SetBatch applies an ordered list of writes in one round trip.
	// Duplicate paths are not coalesced; later writes win on the
	// device.
	SetBatch(ctx context.Context, writes []wire.BatchWrite) error

	// ListNodes returns the paths below prefix.
	ListNodes(ctx context.Context, prefix string, flags wire.ListFlags) ([]string, error)

	// NodeInfo returns the metadata of a leaf node. Unknown paths
	// fail with schema.ErrNodeNotFound.
	NodeInfo(ctx context.Context, path string) (schema.NodeInfo, error)

	// Subscribe starts server-side buffering of a node's updates.
	Subscribe(ctx context.Context, path string) error

	// Unsubscribe stops server-side buffering of a node's updates.
	Unsubscribe(ctx context.Context, path string) error

	// Poll drains buffered updates for all subscribed nodes, waiting
	// up to recordingTime for data to arrive.
	Poll(ctx context.Context, recordingTime, timeout time.Duration, flags wire.PollFlags) (map[string][]wire.Sample, error)

	// ClockRate returns the device clock rate in ticks per second,
	// learned during the hello exchange. Zero when unknown.
	ClockRate() float64
}

// SubscriptionSet is implemented by backends that track which paths
// they have subscribed. The tree uses it to skip redundant subscribe
// round trips and to answer the SubscribedOnly children filter; with
// a backend that does not track, subscribes always go out and the
// filter matches nothing.
type SubscriptionSet interface {
	// IsSubscribed reports whether path has an active subscription.
	IsSubscribed(path string) bool

	// Subscriptions returns the subscribed paths in subscription
	// order.
	Subscriptions() []string
}
