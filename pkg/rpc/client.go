package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/transport"
	"github.com/arbor-protocol/arbor-go/pkg/version"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// Client errors.
var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client is closed")

	// ErrRequestTimeout indicates no response arrived in time.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrVersionMismatch indicates the device speaks an incompatible
	// protocol major version.
	ErrVersionMismatch = errors.New("incompatible protocol version")

	// ErrKeepAliveTimeout indicates the device stopped answering
	// pings.
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")

	// ErrStatus marks errors the device reported in a response.
	// Use errors.Is(err, ErrStatus) to tell device-reported failures
	// from transport failures, and errors.As with *StatusError for
	// the details.
	ErrStatus = errors.New("device reported an error")
)

// StatusError is an error status returned by the device.
type StatusError struct {
	Status  wire.Status
	Message string
	Path    string
}

func (e *StatusError) Error() string {
	s := e.Status.String()
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Path != "" {
		s += " (" + e.Path + ")"
	}
	return s
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// statusError builds the error for a failed response.
func statusError(resp *wire.Response, path string) error {
	se := &StatusError{Status: resp.Status, Path: path}
	if len(resp.Payload) > 0 {
		var ep wire.ErrorPayload
		if err := wire.Unmarshal(resp.Payload, &ep); err == nil {
			se.Message = ep.Message
			if ep.Path != "" {
				se.Path = ep.Path
			}
		}
	}
	return se
}

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// Timeout is the per-request timeout (default: 30s). Poll waits
	// additionally for the requested recording time.
	Timeout time.Duration

	// KeepAlive configures liveness pings. Zero values select the
	// transport defaults.
	KeepAlive transport.KeepAliveConfig

	// DisableKeepAlive turns off liveness pings.
	DisableKeepAlive bool

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnDisconnect is called once when the connection ends. The error
	// is nil on clean close (optional).
	OnDisconnect func(err error)
}

// Client issues Arbor requests over one connection and correlates the
// responses. It owns the connection's read loop: responses are matched
// to pending requests by message ID, notifications go to the
// notification handler, and control messages are answered in place.
//
// All request methods are safe for concurrent use; requests from
// multiple goroutines interleave on the wire and resolve
// independently.
type Client struct {
	conn   transport.ClientConnection
	config Config
	logger log.Logger

	msgID atomic.Uint32

	pending   map[uint32]chan *wire.Response
	pendingMu sync.Mutex

	notifyMu      sync.RWMutex
	notifyHandler func(*wire.Notification)

	keepAlive *transport.KeepAlive

	state     atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once

	hello atomic.Pointer[wire.HelloResult]
}

// NewClient creates a client over an established connection and
// starts its read loop.
func NewClient(conn transport.ClientConnection, config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	c := &Client{
		conn:    conn,
		config:  config,
		logger:  config.Logger,
		pending: make(map[uint32]chan *wire.Response),
		closed:  make(chan struct{}),
	}
	c.msgID.Store(wire.FirstMessageID - 1)
	c.state.Store(int32(transport.StateConnected))

	if !config.DisableKeepAlive {
		c.keepAlive = transport.NewKeepAlive(config.KeepAlive, conn.SendPing, func() {
			c.teardown(ErrKeepAliveTimeout)
		})
		c.keepAlive.Start(context.Background())
	}

	go c.readLoop()

	return c
}

// ConnID returns the underlying connection identifier.
func (c *Client) ConnID() string {
	return c.conn.ConnID()
}

// State returns the connection state.
func (c *Client) State() transport.ConnectionState {
	return transport.ConnectionState(c.state.Load())
}

// Done returns a channel closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// SetNotificationHandler sets the handler for unsolicited sample
// pushes. Pass nil to drop them.
func (c *Client) SetNotificationHandler(handler func(*wire.Notification)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notifyHandler = handler
}

// Close sends a close message and tears the connection down.
func (c *Client) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
	}

	c.state.Store(int32(transport.StateClosing))
	c.conn.SendClose() // best effort
	c.teardown(nil)
	return nil
}

// teardown ends the connection exactly once.
func (c *Client) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(transport.StateDisconnected))
		close(c.closed)

		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		c.conn.Close()

		// Abandon everything still in flight; waiters observe the
		// closed channel and fail with ErrClientClosed.
		c.pendingMu.Lock()
		c.pending = make(map[uint32]chan *wire.Response)
		c.pendingMu.Unlock()

		c.logStateChange("CONNECTED", "DISCONNECTED", cause)

		if c.config.OnDisconnect != nil {
			c.config.OnDisconnect(cause)
		}
	})
}

// nextMessageID allocates the next request ID, skipping the reserved
// range on wrap-around.
func (c *Client) nextMessageID() uint32 {
	for {
		id := c.msgID.Add(1)
		if id >= wire.FirstMessageID {
			return id
		}
	}
}

// readLoop pumps incoming messages until the connection ends.
func (c *Client) readLoop() {
	for {
		data, err := c.conn.Receive(0)
		if err != nil {
			select {
			case <-c.closed:
				// Expected during close
			default:
				c.teardown(err)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one incoming message.
func (c *Client) dispatch(data []byte) {
	msgType, err := wire.PeekMessageType(data)
	if err != nil {
		c.logError("undecodable frame", err)
		return
	}

	switch msgType {
	case wire.MessageTypeResponse:
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			c.logError("bad response", err)
			return
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.MessageID]
		c.pendingMu.Unlock()
		if !ok {
			c.logError("unmatched response", fmt.Errorf("messageId=%d", resp.MessageID))
			return
		}

		select {
		case ch <- resp:
		default:
			// Duplicate response for the same ID; drop
		}

	case wire.MessageTypeNotification:
		notif, err := wire.DecodeNotification(data)
		if err != nil {
			c.logError("bad notification", err)
			return
		}
		for i := range notif.Samples {
			notif.Samples[i].Value = wire.NormalizeValue(notif.Samples[i].Value)
		}

		c.logNotification(notif)

		c.notifyMu.RLock()
		handler := c.notifyHandler
		c.notifyMu.RUnlock()
		if handler != nil {
			handler(notif)
		}

	case wire.MessageTypeControl:
		ctrl, err := wire.DecodeControlMessage(data)
		if err != nil {
			c.logError("bad control message", err)
			return
		}
		c.handleControl(ctrl)

	default:
		c.logError("unexpected message type", fmt.Errorf("type=%d", msgType))
	}
}

// handleControl processes a control message from the device.
func (c *Client) handleControl(ctrl *wire.ControlMessage) {
	switch ctrl.Type {
	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(ctrl.Sequence)
		}

	case wire.ControlPing:
		// Device-initiated liveness check
		if msg, err := wire.EncodeControlMessage(&wire.ControlMessage{
			Type:     wire.ControlPong,
			Sequence: ctrl.Sequence,
		}); err == nil {
			c.conn.Send(msg)
		}

	case wire.ControlClose:
		// Device initiated close; acknowledge and tear down
		if msg, err := wire.EncodeControlMessage(&wire.ControlMessage{
			Type: wire.ControlClose,
		}); err == nil {
			c.conn.Send(msg)
		}
		c.teardown(nil)
	}
}

// call sends a request and waits for its response using the default
// timeout.
func (c *Client) call(ctx context.Context, op wire.Operation, path string, payload any) (*wire.Response, error) {
	return c.callTimeout(ctx, op, path, payload, c.config.Timeout)
}

// callTimeout sends a request and waits up to timeout for the
// response.
func (c *Client) callTimeout(ctx context.Context, op wire.Operation, path string, payload any, timeout time.Duration) (*wire.Response, error) {
	select {
	case <-c.closed:
		return nil, ErrClientClosed
	default:
	}

	raw, err := wire.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	req := &wire.Request{
		MessageID: c.nextMessageID(),
		Operation: op,
		Path:      path,
		Payload:   raw,
	}

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[req.MessageID] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}()

	start := time.Now()
	c.logRequest(req)

	if err := c.conn.Send(data); err != nil {
		return nil, fmt.Errorf("sending %s request: %w", op, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClientClosed
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s %s after %s", ErrRequestTimeout, op, path, timeout)
	case resp := <-respCh:
		c.logResponse(resp, time.Since(start))
		return resp, nil
	}
}

// Hello performs the protocol handshake. It must be called once after
// connecting, before other operations; the device identity and clock
// rate it returns are cached on the client.
func (c *Client) Hello(ctx context.Context, clientName string) (*wire.HelloResult, error) {
	resp, err := c.call(ctx, wire.OpHello, "", &wire.HelloRequest{
		ProtocolVersion: version.Current,
		ClientName:      clientName,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp, "")
	}

	var result wire.HelloResult
	if err := wire.Unmarshal(resp.Payload, &result); err != nil {
		return nil, fmt.Errorf("decoding hello result: %w", err)
	}

	remote, err := version.Parse(result.ProtocolVersion)
	if err != nil {
		return nil, fmt.Errorf("device reported version %q: %w", result.ProtocolVersion, err)
	}
	local, _ := version.Parse(version.Current)
	if !local.Compatible(remote) {
		return nil, fmt.Errorf("%w: device speaks %s, client speaks %s",
			ErrVersionMismatch, result.ProtocolVersion, version.Current)
	}

	c.hello.Store(&result)
	return &result, nil
}

// DeviceID returns the device identifier learned during Hello, or ""
// before the handshake.
func (c *Client) DeviceID() string {
	if h := c.hello.Load(); h != nil {
		return h.DeviceID
	}
	return ""
}

// ClockRate returns the device clock rate in ticks per second, or 0
// before the handshake.
func (c *Client) ClockRate() float64 {
	if h := c.hello.Load(); h != nil {
		return h.ClockRate
	}
	return 0
}

// Get reads a node's last value known to the data server.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	resp, err := c.call(ctx, wire.OpGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp, path)
	}

	var result wire.GetResult
	if err := wire.Unmarshal(resp.Payload, &result); err != nil {
		return nil, fmt.Errorf("decoding get result for %s: %w", path, err)
	}
	return wire.NormalizeValue(result.Value), nil
}

// GetDeep reads a node's value directly from the device, returning
// the value and the device timestamp in clock ticks.
func (c *Client) GetDeep(ctx context.Context, path string) (any, uint64, error) {
	resp, err := c.call(ctx, wire.OpGetDeep, path, nil)
	if err != nil {
		return nil, 0, err
	}
	if !resp.IsSuccess() {
		return nil, 0, statusError(resp, path)
	}

	var result wire.GetResult
	if err := wire.Unmarshal(resp.Payload, &result); err != nil {
		return nil, 0, fmt.Errorf("decoding get result for %s: %w", path, err)
	}
	return wire.NormalizeValue(result.Value), result.Timestamp, nil
}

// Set writes a node's value.
func (c *Client) Set(ctx context.Context, path string, value any) error {
	resp, err := c.call(ctx, wire.OpSet, path, &wire.SetRequest{Value: value})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp, path)
	}
	return nil
}

// SetDeep writes a node's value directly to the device and returns
// the acknowledged value.
func (c *Client) SetDeep(ctx context.Context, path string, value any) (any, error) {
	resp, err := c.call(ctx, wire.OpSetDeep, path, &wire.SetRequest{Value: value})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp, path)
	}

	var result wire.SetResult
	if err := wire.Unmarshal(resp.Payload, &result); err != nil {
		return nil, fmt.Errorf("decoding set result for %s: %w", path, err)
	}
	return wire.NormalizeValue(result.Value), nil
}

// SetBatch applies an ordered list of writes in one round trip.
func (c *Client) SetBatch(ctx context.Context, writes []wire.BatchWrite) error {
	resp, err := c.call(ctx, wire.OpSetBatch, "", &wire.SetBatchRequest{Writes: writes})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp, "")
	}
	return nil
}

// ListNodes returns the paths below prefix.
func (c *Client) ListNodes(ctx context.Context, prefix string, flags wire.ListFlags) ([]string, error) {
	resp, err := c.call(ctx, wire.OpListNodes, prefix, &wire.ListNodesRequest{Flags: flags})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp, prefix)
	}

	var result wire.ListNodesResult
	if err := wire.Unmarshal(resp.Payload, &result); err != nil {
		return nil, fmt.Errorf("decoding node listing for %s: %w", prefix, err)
	}
	return result.Paths, nil
}

// NodeInfo returns the metadata of a leaf node. Unknown paths fail
// with schema.ErrNodeNotFound.
func (c *Client) NodeInfo(ctx context.Context, path string) (schema.NodeInfo, error) {
	resp, err := c.call(ctx, wire.OpNodeInfo, path, nil)
	if err != nil {
		return schema.NodeInfo{}, err
	}
	if resp.Status == wire.StatusNotFound {
		return schema.NodeInfo{}, fmt.Errorf("%w: %s", schema.ErrNodeNotFound, path)
	}
	if !resp.IsSuccess() {
		return schema.NodeInfo{}, statusError(resp, path)
	}

	var result wire.NodeInfoResult
	if err := wire.Unmarshal(resp.Payload, &result); err != nil {
		return schema.NodeInfo{}, fmt.Errorf("decoding node info for %s: %w", path, err)
	}

	return schema.NodeInfo{
		Path:        path,
		Description: result.Description,
		Readable:    result.Readable,
		Writable:    result.Writable,
		Setting:     result.Setting,
		Streaming:   result.Streaming,
		Vector:      result.Vector,
		Unit:        result.Unit,
		Type:        schema.ValueType(result.Type),
		Options:     result.Options,
	}, nil
}

// Subscribe starts server-side buffering of a node's updates.
func (c *Client) Subscribe(ctx context.Context, path string) error {
	resp, err := c.call(ctx, wire.OpSubscribe, path, nil)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp, path)
	}
	return nil
}

// Unsubscribe stops server-side buffering of a node's updates.
func (c *Client) Unsubscribe(ctx context.Context, path string) error {
	resp, err := c.call(ctx, wire.OpUnsubscribe, path, nil)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp, path)
	}
	return nil
}

// Poll drains buffered updates for all subscribed nodes. The device
// holds the request up to recordingTime waiting for data, so the
// client-side wait is extended accordingly.
func (c *Client) Poll(ctx context.Context, recordingTime, timeout time.Duration, flags wire.PollFlags) (map[string][]wire.Sample, error) {
	req := &wire.PollRequest{
		RecordingTimeMS: uint32(recordingTime.Milliseconds()),
		TimeoutMS:       uint32(timeout.Milliseconds()),
		Flags:           flags,
	}

	wait := recordingTime + timeout + c.config.Timeout
	resp, err := c.callTimeout(ctx, wire.OpPoll, "", req, wait)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp, "")
	}

	var result wire.PollResult
	if err := wire.Unmarshal(resp.Payload, &result); err != nil {
		return nil, fmt.Errorf("decoding poll result: %w", err)
	}

	for path, samples := range result.Updates {
		for i := range samples {
			samples[i].Value = wire.NormalizeValue(samples[i].Value)
		}
		result.Updates[path] = samples
	}
	return result.Updates, nil
}

// Logging helpers

func (c *Client) logRequest(req *wire.Request) {
	if c.logger == nil {
		return
	}
	op := req.Operation
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		DeviceID:     c.DeviceID(),
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			MessageID: req.MessageID,
			Operation: &op,
			Path:      req.Path,
		},
	})
}

func (c *Client) logResponse(resp *wire.Response, rtt time.Duration) {
	if c.logger == nil {
		return
	}
	status := resp.Status
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		DeviceID:     c.DeviceID(),
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			MessageID:      resp.MessageID,
			Status:         &status,
			ProcessingTime: &rtt,
		},
	})
}

func (c *Client) logNotification(notif *wire.Notification) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		DeviceID:     c.DeviceID(),
		Message: &log.MessageEvent{
			Type:      log.MessageTypeNotification,
			MessageID: wire.NotificationMessageID,
			Path:      notif.Path,
		},
	})
}

func (c *Client) logStateChange(oldState, newState string, cause error) {
	if c.logger == nil {
		return
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnID(),
		Layer:        log.LayerWire,
		Category:     log.CategoryState,
		LocalRole:    log.RoleClient,
		DeviceID:     c.DeviceID(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Client) logError(what string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		LocalRole:    log.RoleClient,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: what,
		},
	})
}

// Compile-time checks.
var (
	_ node.Backend  = (*Client)(nil)
	_ schema.Source = (*Client)(nil)
)
