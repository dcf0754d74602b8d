package node

import (
	"context"
	"fmt"

	"github.com/arbor-protocol/arbor-go/pkg/codec"
	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// Node is an immutable handle on a position in the settings tree: an
// absolute path expression plus a reference to its Tree. Handles are
// cheap values; deriving children allocates nothing but a slightly
// longer path. No I/O happens until a terminal operation (Get, Set,
// Children, Subscribe, ...).
//
// The path may contain wildcards and may name interior nodes; what
// that means is decided per operation at resolution time.
type Node struct {
	tree *Tree
	path nodepath.Path
}

// Child returns the handle one segment below. No validation, no I/O.
func (n Node) Child(segment string) Node {
	return Node{tree: n.tree, path: n.path.Join(segment)}
}

// Index returns the handle for the i-th channel below. No validation,
// no I/O.
func (n Node) Index(i int) Node {
	return Node{tree: n.tree, path: n.path.JoinIndex(i)}
}

// Wildcard returns the handle with a wildcard segment appended.
func (n Node) Wildcard() Node {
	return Node{tree: n.tree, path: n.path.Join(nodepath.Wildcard)}
}

// Path returns a copy of the handle's path.
func (n Node) Path() nodepath.Path {
	return n.path.Clone()
}

func (n Node) String() string {
	return n.path.String()
}

// Tree returns the tree this handle belongs to.
func (n Node) Tree() *Tree {
	return n.tree
}

// callOptions collects the per-call switches shared by gets and sets.
type callOptions struct {
	deep      bool
	broadcast bool
	codec     codec.Options
}

func applyCallOptions(opts []CallOption) callOptions {
	o := callOptions{codec: codec.DefaultOptions()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CallOption adjusts a single get or set.
type CallOption func(*callOptions)

// Deep bypasses the data server's value cache and talks to the device
// itself: gets return the device's current value with its timestamp,
// sets block until the device acknowledges. Only defined for handles
// resolving to exactly one leaf.
func Deep() CallOption {
	return func(o *callOptions) { o.deep = true }
}

// Broadcast permits a set to write the same value to every leaf the
// handle resolves to. Without it a multi-node set fails with
// ErrBroadcastRequired. Gets ignore it.
func Broadcast() CallOption {
	return func(o *callOptions) { o.broadcast = true }
}

// Raw disables registered user parsers for this call.
func Raw() CallOption {
	return func(o *callOptions) { o.codec.Parse = false }
}

// RawEnum disables label translation on enumerated nodes for this
// call: gets return the wire integer, sets accept only integers.
func RawEnum() CallOption {
	return func(o *callOptions) { o.codec.Enum = false }
}

// Get reads the handle's value. A handle resolving to exactly one
// leaf yields the bare decoded value; a wildcard or interior handle
// yields a map[string]any keyed by concrete path. Zero matches fail
// with ErrNoMatchingNodes under the strict policy and yield an empty
// map under the tolerant one.
func (n Node) Get(ctx context.Context, opts ...CallOption) (any, error) {
	o := applyCallOptions(opts)

	leaves, err := n.tree.resolveLeaves(ctx, n.path)
	if err != nil {
		return nil, err
	}

	switch len(leaves) {
	case 0:
		if err := n.tree.emptyResolution(n.path); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	case 1:
		return n.tree.getLeaf(ctx, leaves[0], o)
	default:
		if o.deep {
			return nil, fmt.Errorf("%w: %s matches %d", ErrAmbiguousDeep, n.path, len(leaves))
		}
		return n.tree.getLeaves(ctx, leaves, o)
	}
}

// GetAll reads the handle's value as a map keyed by concrete path,
// regardless of how many leaves it resolves to.
func (n Node) GetAll(ctx context.Context, opts ...CallOption) (map[string]any, error) {
	o := applyCallOptions(opts)

	leaves, err := n.tree.resolveLeaves(ctx, n.path)
	if err != nil {
		return nil, err
	}

	if len(leaves) == 0 {
		if err := n.tree.emptyResolution(n.path); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	}
	if o.deep && len(leaves) > 1 {
		return nil, fmt.Errorf("%w: %s matches %d", ErrAmbiguousDeep, n.path, len(leaves))
	}
	return n.tree.getLeaves(ctx, leaves, o)
}

// GetWithTimestamp reads the handle's value directly from the device
// and returns it together with the device timestamp in clock ticks.
// Implies Deep; the handle must resolve to exactly one leaf.
func (n Node) GetWithTimestamp(ctx context.Context, opts ...CallOption) (any, uint64, error) {
	o := applyCallOptions(opts)

	leaves, err := n.tree.resolveLeaves(ctx, n.path)
	if err != nil {
		return nil, 0, err
	}

	switch len(leaves) {
	case 0:
		if err := n.tree.emptyResolution(n.path); err != nil {
			return nil, 0, err
		}
		return nil, 0, nil
	case 1:
		leaf := leaves[0]
		if !leaf.info.Readable {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotReadable, leaf.path)
		}
		raw, ts, err := n.tree.backend.GetDeep(ctx, leaf.path.String())
		if err != nil {
			return nil, 0, err
		}
		v, err := n.tree.codec.ApplyGet(leaf.path, leaf.info, raw, o.codec)
		if err != nil {
			return nil, 0, err
		}
		return v, ts, nil
	default:
		return nil, 0, fmt.Errorf("%w: %s matches %d", ErrAmbiguousDeep, n.path, len(leaves))
	}
}

// Set writes a value. A handle resolving to exactly one leaf performs
// a single write. A multi-node resolution requires the Broadcast
// option and then writes the identical value to every writable
// matched leaf in resolution order, as one batch. Inside a
// transaction the writes land in the transaction buffer instead.
func (n Node) Set(ctx context.Context, value any, opts ...CallOption) error {
	o := applyCallOptions(opts)

	leaves, err := n.tree.resolveLeaves(ctx, n.path)
	if err != nil {
		return err
	}

	switch len(leaves) {
	case 0:
		return n.tree.emptyResolution(n.path)
	case 1:
		return n.tree.setLeaf(ctx, leaves[0], value, o)
	default:
		if o.deep {
			return fmt.Errorf("%w: %s matches %d", ErrAmbiguousDeep, n.path, len(leaves))
		}
		if !o.broadcast {
			return fmt.Errorf("%w: %s matches %d nodes", ErrBroadcastRequired, n.path, len(leaves))
		}
		return n.tree.setBroadcast(ctx, n.path, leaves, value, o)
	}
}

// Subscribe registers the handle's leaves for update buffering. An
// interior or wildcard handle subscribes every leaf below it.
// Idempotent when the backend tracks subscriptions: already
// subscribed leaves are skipped without a round trip.
func (n Node) Subscribe(ctx context.Context) error {
	leaves, err := n.tree.resolveLeaves(ctx, n.path)
	if err != nil {
		return err
	}
	if len(leaves) == 0 {
		return n.tree.emptyResolution(n.path)
	}

	for _, leaf := range leaves {
		if n.tree.isSubscribed(leaf.path) {
			continue
		}
		if err := n.tree.backend.Subscribe(ctx, leaf.path.String()); err != nil {
			return fmt.Errorf("subscribing %s: %w", leaf.path, err)
		}
	}
	return nil
}

// Unsubscribe deregisters the handle's leaves. The inverse of
// Subscribe, with the same resolution and idempotency rules.
func (n Node) Unsubscribe(ctx context.Context) error {
	leaves, err := n.tree.resolveLeaves(ctx, n.path)
	if err != nil {
		return err
	}
	if len(leaves) == 0 {
		return n.tree.emptyResolution(n.path)
	}

	tracker, tracked := n.tree.backend.(SubscriptionSet)
	for _, leaf := range leaves {
		if tracked && !tracker.IsSubscribed(leaf.path.String()) {
			continue
		}
		if err := n.tree.backend.Unsubscribe(ctx, leaf.path.String()); err != nil {
			return fmt.Errorf("unsubscribing %s: %w", leaf.path, err)
		}
	}
	return nil
}

// Info returns the metadata of the leaf this handle names. The path
// must be concrete; wildcard handles carry no metadata.
func (n Node) Info(ctx context.Context) (schema.NodeInfo, error) {
	if n.path.HasWildcard() {
		return schema.NodeInfo{}, fmt.Errorf("%w: %s is a pattern, not a node", schema.ErrNodeNotFound, n.path)
	}
	info, found, err := n.tree.schema.Lookup(ctx, n.path.String())
	if err != nil {
		return schema.NodeInfo{}, err
	}
	if !found {
		return schema.NodeInfo{}, fmt.Errorf("%w: %s", schema.ErrNodeNotFound, n.path)
	}
	return info, nil
}

// Exists reports whether the handle resolves to at least one leaf.
func (n Node) Exists(ctx context.Context) (bool, error) {
	leaves, err := n.tree.resolveLeaves(ctx, n.path)
	if err != nil {
		return false, err
	}
	return len(leaves) > 0, nil
}

// getLeaf reads and decodes a single leaf.
func (t *Tree) getLeaf(ctx context.Context, leaf leafRef, o callOptions) (any, error) {
	if !leaf.info.Readable {
		return nil, fmt.Errorf("%w: %s", ErrNotReadable, leaf.path)
	}

	var (
		raw any
		err error
	)
	if o.deep {
		raw, _, err = t.backend.GetDeep(ctx, leaf.path.String())
	} else {
		raw, err = t.backend.Get(ctx, leaf.path.String())
	}
	if err != nil {
		return nil, err
	}
	return t.codec.ApplyGet(leaf.path, leaf.info, raw, o.codec)
}

// getLeaves reads a set of leaves into a path-keyed map. Unreadable
// leaves are left out rather than failing the sweep.
func (t *Tree) getLeaves(ctx context.Context, leaves []leafRef, o callOptions) (map[string]any, error) {
	out := make(map[string]any, len(leaves))
	for _, leaf := range leaves {
		if !leaf.info.Readable {
			continue
		}
		v, err := t.getLeaf(ctx, leaf, o)
		if err != nil {
			return nil, err
		}
		out[leaf.path.String()] = v
	}
	return out, nil
}

// setLeaf encodes and writes a single leaf.
func (t *Tree) setLeaf(ctx context.Context, leaf leafRef, value any, o callOptions) error {
	if !leaf.info.Writable {
		return fmt.Errorf("%w: %s", ErrNotWritable, leaf.path)
	}

	encoded, err := t.codec.ApplySet(leaf.path, leaf.info, value, o.codec)
	if err != nil {
		return err
	}

	if o.deep {
		_, err := t.backend.SetDeep(ctx, leaf.path.String(), encoded)
		return err
	}
	return t.backend.Set(ctx, leaf.path.String(), encoded)
}

// setBroadcast writes one value to every writable matched leaf as a
// single batch, in resolution order.
func (t *Tree) setBroadcast(ctx context.Context, pattern nodepath.Path, leaves []leafRef, value any, o callOptions) error {
	writes := make([]wire.BatchWrite, 0, len(leaves))
	for _, leaf := range leaves {
		if !leaf.info.Writable {
			continue
		}
		encoded, err := t.codec.ApplySet(leaf.path, leaf.info, value, o.codec)
		if err != nil {
			return err
		}
		writes = append(writes, wire.BatchWrite{Path: leaf.path.String(), Value: encoded})
	}

	if len(writes) == 0 {
		return fmt.Errorf("%w: nothing writable matches %s", ErrNotWritable, pattern)
	}
	return t.backend.SetBatch(ctx, writes)
}
