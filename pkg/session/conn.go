package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/codec"
	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/rpc"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

var (
	// ErrNoDeviceID indicates the connection has not completed the
	// hello exchange, so its device identity is unknown.
	ErrNoDeviceID = errors.New("connection has no device id")

	// ErrDuplicateDevice indicates a device with the same id is
	// already attached to the session.
	ErrDuplicateDevice = errors.New("device already attached")

	// ErrUnknownDevice indicates a session path names a device that
	// is not attached.
	ErrUnknownDevice = errors.New("unknown device")
)

// Client is the per-connection request surface a Conn drives.
// *rpc.Client implements it; tests substitute their own.
type Client interface {
	node.Backend

	// DeviceID returns the device identity learned during the hello
	// exchange, empty when unknown.
	DeviceID() string

	// Done is closed when the connection ends for any reason.
	Done() <-chan struct{}

	// Close tears the connection down.
	Close() error
}

// Conn is one device connection. It bundles the rpc client with the
// device's settings tree (schema cache and parser registry), tracks
// the subscription set, and intercepts writes into the active
// transaction. Node handles obtained from a Conn route all their I/O
// through it.
//
// A Conn is safe for concurrent use. Transaction buffers are not: a
// transaction belongs to the scope that began it, and writes issued
// concurrently while it is open land in the buffer in an unspecified
// order.
type Conn struct {
	logger log.Logger
	tree   *node.Tree

	mu     sync.Mutex
	client Client
	tx     *Transaction

	subMu  sync.RWMutex
	subs   []string
	subSet map[string]struct{}
}

type connOptions struct {
	logger   log.Logger
	policy   node.ResolvePolicy
	registry *codec.Registry
}

// Option configures a Conn.
type Option func(*connOptions)

// WithLogger sets the protocol logger for session and tree events.
func WithLogger(l log.Logger) Option {
	return func(o *connOptions) { o.logger = l }
}

// WithResolvePolicy sets the empty-resolution policy for the
// connection's tree. Default is strict.
func WithResolvePolicy(p node.ResolvePolicy) Option {
	return func(o *connOptions) { o.policy = p }
}

// WithCodec uses a caller-owned parser registry, shared across
// connections to the same instrument family.
func WithCodec(r *codec.Registry) Option {
	return func(o *connOptions) { o.registry = r }
}

// NewConn wraps an established client whose hello exchange is
// complete. The connection's tree is created empty; schema fills in
// lazily on first use.
func NewConn(client Client, opts ...Option) *Conn {
	var o connOptions
	for _, opt := range opts {
		opt(&o)
	}
	c := &Conn{
		logger: o.logger,
		client: client,
		subSet: make(map[string]struct{}),
	}
	treeOpts := []node.TreeOption{node.WithResolvePolicy(o.policy)}
	if o.logger != nil {
		treeOpts = append(treeOpts, node.WithLogger(o.logger))
	}
	if o.registry != nil {
		treeOpts = append(treeOpts, node.WithCodec(o.registry))
	}
	c.tree = node.NewTree(c, treeOpts...)
	return c
}

// backend returns the current underlying client.
func (c *Conn) backend() Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// Client returns the underlying client, usually an *rpc.Client.
func (c *Conn) Client() Client {
	return c.backend()
}

// Tree returns the connection's settings tree.
func (c *Conn) Tree() *node.Tree {
	return c.tree
}

// Root returns the handle for the device's tree root.
func (c *Conn) Root() node.Node {
	return c.tree.Root()
}

// Node returns a handle for path. No I/O happens until the handle is
// used.
func (c *Conn) Node(path string) node.Node {
	return c.tree.Node(path)
}

// RegisterParser attaches a get/set parser pair to a concrete path or
// a wildcard pattern on this connection's tree.
func (c *Conn) RegisterParser(pathOrPattern string, get codec.GetParser, set codec.SetParser) {
	c.tree.RegisterParser(pathOrPattern, get, set)
}

// DeviceID returns the device identity learned during the hello
// exchange.
func (c *Conn) DeviceID() string {
	return c.backend().DeviceID()
}

// ClockRate returns the device clock rate in ticks per second.
func (c *Conn) ClockRate() float64 {
	return c.backend().ClockRate()
}

// Get reads a node's last value known to the data server.
func (c *Conn) Get(ctx context.Context, path string) (any, error) {
	return c.backend().Get(ctx, path)
}

// GetDeep reads a node's value directly from the device.
func (c *Conn) GetDeep(ctx context.Context, path string) (any, uint64, error) {
	return c.backend().GetDeep(ctx, path)
}

// Set writes a node's value. While a transaction is open on this
// connection the write is buffered instead and flushed by the
// transaction's End.
func (c *Conn) Set(ctx context.Context, path string, value any) error {
	c.mu.Lock()
	if t := c.tx; t != nil {
		t.writes = append(t.writes, wire.BatchWrite{Path: path, Value: value})
		c.mu.Unlock()
		return nil
	}
	cl := c.client
	c.mu.Unlock()
	return cl.Set(ctx, path, value)
}

// SetDeep writes a node's value directly to the device and returns
// the acknowledged value. While a transaction is open the write is
// buffered and the submitted value is echoed back; the device's
// rounding is not visible until the flush.
func (c *Conn) SetDeep(ctx context.Context, path string, value any) (any, error) {
	c.mu.Lock()
	if t := c.tx; t != nil {
		t.writes = append(t.writes, wire.BatchWrite{Path: path, Value: value})
		c.mu.Unlock()
		return value, nil
	}
	cl := c.client
	c.mu.Unlock()
	return cl.SetDeep(ctx, path, value)
}

// SetBatch applies an ordered list of writes in one round trip. While
// a transaction is open the writes are appended to its buffer in
// order.
func (c *Conn) SetBatch(ctx context.Context, writes []wire.BatchWrite) error {
	c.mu.Lock()
	if t := c.tx; t != nil {
		t.writes = append(t.writes, writes...)
		c.mu.Unlock()
		return nil
	}
	cl := c.client
	c.mu.Unlock()
	return cl.SetBatch(ctx, writes)
}

// ListNodes returns the paths below prefix.
func (c *Conn) ListNodes(ctx context.Context, prefix string, flags wire.ListFlags) ([]string, error) {
	return c.backend().ListNodes(ctx, prefix, flags)
}

// NodeInfo returns the metadata of a node.
func (c *Conn) NodeInfo(ctx context.Context, path string) (schema.NodeInfo, error) {
	return c.backend().NodeInfo(ctx, path)
}

// Subscribe starts server-side buffering of a node's updates and
// records the subscription for Poll, Resubscribe and the
// SubscribedOnly filter.
func (c *Conn) Subscribe(ctx context.Context, path string) error {
	if err := c.backend().Subscribe(ctx, path); err != nil {
		return err
	}
	c.subMu.Lock()
	if _, ok := c.subSet[path]; !ok {
		c.subSet[path] = struct{}{}
		c.subs = append(c.subs, path)
	}
	c.subMu.Unlock()
	return nil
}

// Unsubscribe stops server-side buffering of a node's updates and
// drops the recorded subscription.
func (c *Conn) Unsubscribe(ctx context.Context, path string) error {
	if err := c.backend().Unsubscribe(ctx, path); err != nil {
		return err
	}
	c.subMu.Lock()
	if _, ok := c.subSet[path]; ok {
		delete(c.subSet, path)
		for i, p := range c.subs {
			if p == path {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
	}
	c.subMu.Unlock()
	return nil
}

// IsSubscribed reports whether path has an active subscription on
// this connection.
func (c *Conn) IsSubscribed(path string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subSet[path]
	return ok
}

// Subscriptions returns the subscribed paths in subscription order.
func (c *Conn) Subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, len(c.subs))
	copy(out, c.subs)
	return out
}

// Poll drains buffered updates for this connection's subscribed
// nodes, waiting up to recordingTime for data to arrive.
func (c *Conn) Poll(ctx context.Context, recordingTime, timeout time.Duration, flags wire.PollFlags) (map[string][]wire.Sample, error) {
	return c.backend().Poll(ctx, recordingTime, timeout, flags)
}

// Rebind swaps in a freshly connected client, keeping every Node
// handle, parser registration and recorded subscription valid. The
// schema cache is dropped because node metadata may have changed
// across a device restart; the old client is not closed. An open
// transaction survives and flushes through the new client.
//
// The new client must identify the same device. Call Resubscribe
// afterwards to re-establish server-side buffering.
func (c *Conn) Rebind(client Client) {
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	c.tree.Schema().Invalidate()
}

// Resubscribe re-issues every recorded subscription, after a Rebind.
// All paths are attempted; the errors are joined.
func (c *Conn) Resubscribe(ctx context.Context) error {
	cl := c.backend()
	var errs []error
	for _, path := range c.Subscriptions() {
		if err := cl.Subscribe(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("resubscribing %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// Close tears the connection down. An open transaction's buffer is
// discarded.
func (c *Conn) Close() error {
	c.mu.Lock()
	discarded := 0
	if c.tx != nil {
		discarded = len(c.tx.writes)
		c.tx.writes = nil
		c.tx = nil
	}
	cl := c.client
	c.mu.Unlock()
	if discarded > 0 {
		c.logTransaction(stateBuffering, stateDiscarded, fmt.Sprintf("connection closed with %d writes pending", discarded))
	}
	return cl.Close()
}

func (c *Conn) logTransaction(oldState, newState, reason string) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		LocalRole: log.RoleClient,
		DeviceID:  c.DeviceID(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTransaction,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// canonicalID lower-cases a device id so session routing matches the
// path canonicalization.
func canonicalID(deviceID string) string {
	return strings.ToLower(deviceID)
}

// Compile-time checks.
var (
	_ Client               = (*rpc.Client)(nil)
	_ node.Backend         = (*Conn)(nil)
	_ node.SubscriptionSet = (*Conn)(nil)
	_ schema.Source        = (*Conn)(nil)
)
