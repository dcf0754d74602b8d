package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// Session groups connections to several devices behind one path
// namespace: the first path segment is the device id, the rest is the
// path on that device. Device ids are matched case-insensitively,
// consistent with path canonicalization; the device segment is always
// literal, wildcards start after it.
//
// A Session is safe for concurrent use.
type Session struct {
	logger log.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
	order []string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger for attach and detach events.
func WithSessionLogger(l log.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an empty session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{conns: make(map[string]*Conn)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach adds a device connection under its device id. The
// connection must have completed the hello exchange.
func (s *Session) Attach(conn *Conn) error {
	id := canonicalID(conn.DeviceID())
	if id == "" {
		return ErrNoDeviceID
	}
	s.mu.Lock()
	if _, ok := s.conns[id]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, id)
	}
	s.conns[id] = conn
	s.order = append(s.order, id)
	s.mu.Unlock()
	s.logState(id, "DETACHED", "ATTACHED")
	return nil
}

// Detach removes the device's connection from the session and
// returns it without closing it. The second return is false when the
// device is not attached.
func (s *Session) Detach(deviceID string) (*Conn, bool) {
	id := canonicalID(deviceID)
	s.mu.Lock()
	conn, ok := s.conns[id]
	if ok {
		delete(s.conns, id)
		for i, d := range s.order {
			if d == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if ok {
		s.logState(id, "ATTACHED", "DETACHED")
	}
	return conn, ok
}

// Conn returns the connection attached under deviceID.
func (s *Session) Conn(deviceID string) (*Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[canonicalID(deviceID)]
	return conn, ok
}

// Devices returns the attached device ids in attach order.
func (s *Session) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Node returns a handle for a session path. The first segment selects
// the device, the remainder is the path on it; "dev8047/osc/0/freq"
// addresses osc/0/freq on device dev8047. A bare device id yields
// that device's root.
func (s *Session) Node(path string) (node.Node, error) {
	p := nodepath.Parse(path)
	if p.IsEmpty() {
		return node.Node{}, fmt.Errorf("%w: session paths start with the device id", ErrUnknownDevice)
	}
	conn, ok := s.Conn(p[0])
	if !ok {
		return node.Node{}, fmt.Errorf("%w: %s", ErrUnknownDevice, p[0])
	}
	return conn.Node(p[1:].String()), nil
}

// Root returns the root handle of one attached device.
func (s *Session) Root(deviceID string) (node.Node, error) {
	conn, ok := s.Conn(deviceID)
	if !ok {
		return node.Node{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return conn.Root(), nil
}

// snapshot returns the attached connections in attach order.
func (s *Session) snapshot() ([]string, []*Conn) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	conns := make([]*Conn, len(ids))
	for i, id := range ids {
		conns[i] = s.conns[id]
	}
	return ids, conns
}

// SessionTransaction batches writes across every device attached when
// it began. It flushes as one batch request per device that buffered
// writes.
type SessionTransaction struct {
	txs []sessionTx
}

type sessionTx struct {
	device string
	tx     *Transaction
}

// BeginTransaction opens a transaction spanning every attached
// device. Writes issued through any of the session's connections are
// buffered until End.
func (s *Session) BeginTransaction() *SessionTransaction {
	ids, conns := s.snapshot()
	st := &SessionTransaction{txs: make([]sessionTx, 0, len(conns))}
	for i, conn := range conns {
		st.txs = append(st.txs, sessionTx{device: ids[i], tx: conn.BeginTransaction()})
	}
	return st
}

// End flushes every device's buffer, one batch request per device
// with pending writes, in attach order. All devices are flushed even
// when some fail; the errors are joined. Like Transaction.End it
// flushes exactly once and is safe to defer.
func (t *SessionTransaction) End(ctx context.Context) error {
	var errs []error
	for _, st := range t.txs {
		if err := st.tx.End(ctx); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", st.device, err))
		}
	}
	return errors.Join(errs...)
}

// Pending returns the number of buffered writes across all devices.
func (t *SessionTransaction) Pending() int {
	n := 0
	for _, st := range t.txs {
		n += st.tx.Pending()
	}
	return n
}

// WithTransaction runs fn inside a session-wide transaction, with the
// same flush guarantees as Conn.WithTransaction.
func (s *Session) WithTransaction(ctx context.Context, fn func(context.Context) error) (err error) {
	tx := s.BeginTransaction()
	defer func() {
		flushErr := tx.End(ctx)
		if r := recover(); r != nil {
			panic(r)
		}
		switch {
		case err == nil:
			err = flushErr
		case flushErr != nil:
			err = errors.Join(err, flushErr)
		}
	}()
	return fn(ctx)
}

// Poll drains buffered updates from every attached device in
// parallel and merges them under session paths, the device id
// prefixed to each node path. Per-path arrival order is preserved. An
// empty map means nothing arrived within the window, which is not an
// error. When some devices fail the merged updates of the others are
// still returned alongside the first error.
func (s *Session) Poll(ctx context.Context, recordingTime, timeout time.Duration, flags wire.PollFlags) (map[string][]wire.Sample, error) {
	ids, conns := s.snapshot()

	results := make([]map[string][]wire.Sample, len(conns))
	var g errgroup.Group
	for i, conn := range conns {
		g.Go(func() error {
			updates, err := conn.Poll(ctx, recordingTime, timeout, flags)
			if err != nil {
				return fmt.Errorf("device %s: %w", ids[i], err)
			}
			results[i] = updates
			return nil
		})
	}
	err := g.Wait()

	merged := make(map[string][]wire.Sample)
	for i, updates := range results {
		for path, samples := range updates {
			merged[ids[i]+nodepath.Separator+path] = samples
		}
	}
	return merged, err
}

// Subscribe subscribes one session path, routed to its device.
func (s *Session) Subscribe(ctx context.Context, path string) error {
	n, err := s.Node(path)
	if err != nil {
		return err
	}
	return n.Subscribe(ctx)
}

// Unsubscribe unsubscribes one session path, routed to its device.
func (s *Session) Unsubscribe(ctx context.Context, path string) error {
	n, err := s.Node(path)
	if err != nil {
		return err
	}
	return n.Unsubscribe(ctx)
}

// Close detaches and closes every connection. All connections are
// closed even when some fail; the errors are joined.
func (s *Session) Close() error {
	s.mu.Lock()
	ids := s.order
	conns := make([]*Conn, len(ids))
	for i, id := range ids {
		conns[i] = s.conns[id]
	}
	s.conns = make(map[string]*Conn)
	s.order = nil
	s.mu.Unlock()

	var errs []error
	for i, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", ids[i], err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) logState(deviceID, oldState, newState string) {
	if s.logger == nil {
		return
	}
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		LocalRole: log.RoleClient,
		DeviceID:  deviceID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: oldState,
			NewState: newState,
		},
	})
}
