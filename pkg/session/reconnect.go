package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/log"
)

var (
	// ErrRedialerClosed indicates the redialer has been closed.
	ErrRedialerClosed = errors.New("redialer is closed")

	// ErrAlreadyConnected indicates Connect was called twice.
	ErrAlreadyConnected = errors.New("already connected")
)

// DefaultRedialTimeout bounds a single reconnect attempt.
const DefaultRedialTimeout = 30 * time.Second

// RedialState is the redialer's connection state.
type RedialState int

const (
	// RedialStateIdle means Connect has not run yet.
	RedialStateIdle RedialState = iota
	// RedialStateConnected means the connection is up.
	RedialStateConnected
	// RedialStateReconnecting means the connection was lost and
	// redial attempts are running.
	RedialStateReconnecting
	// RedialStateClosed means the redialer was closed.
	RedialStateClosed
)

// String returns the state name.
func (s RedialState) String() string {
	switch s {
	case RedialStateIdle:
		return "IDLE"
	case RedialStateConnected:
		return "CONNECTED"
	case RedialStateReconnecting:
		return "RECONNECTING"
	case RedialStateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes a connection and completes the hello exchange.
// NewDialer builds one from a Config; custom transports supply their
// own.
type DialFunc func(ctx context.Context) (Client, error)

// RedialConfig configures a Redialer.
type RedialConfig struct {
	// Dial establishes each connection, the first one included.
	Dial DialFunc

	// Backoff tunes the delay sequence between attempts. Zero fields
	// take the defaults.
	Backoff BackoffConfig

	// DialTimeout bounds a single reconnect attempt (default: 30s).
	DialTimeout time.Duration

	// SkipResubscribe leaves server-side buffering alone after a
	// reconnect instead of re-issuing the recorded subscriptions.
	SkipResubscribe bool

	// ConnOptions are applied to the Conn the redialer creates.
	ConnOptions []Option

	// Logger for state and error events (optional).
	Logger log.Logger

	// OnStateChange is called after every state transition
	// (optional).
	OnStateChange func(oldState, newState RedialState)

	// OnReconnecting is called before each attempt with the attempt
	// number and the delay about to be waited (optional).
	OnReconnecting func(attempt int, delay time.Duration)
}

// Redialer keeps one device connection alive. Connect dials and hands
// out a Conn; when the connection drops, the redialer dials again
// with exponential backoff and rebinds the same Conn, so Node
// handles, parsers and the subscription set stay valid across the
// outage. Recorded subscriptions are re-issued after each reconnect
// unless SkipResubscribe is set.
//
// Requests made while the connection is down fail with the rpc
// client's closed error; callers retry on their own schedule. Close
// the redialer, not the Conn, or the drop is taken for an outage and
// redialed.
type Redialer struct {
	config  RedialConfig
	backoff *Backoff

	mu     sync.Mutex
	state  RedialState
	conn   *Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedialer creates a redialer. Nothing is dialed until Connect.
func NewRedialer(config RedialConfig) *Redialer {
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultRedialTimeout
	}
	return &Redialer{
		config:  config,
		backoff: NewBackoff(config.Backoff),
	}
}

// Connect dials the device and returns its Conn. The redialer watches
// the connection from here on.
func (r *Redialer) Connect(ctx context.Context) (*Conn, error) {
	if r.config.Dial == nil {
		return nil, errors.New("redialer needs a dial function")
	}
	r.mu.Lock()
	switch r.state {
	case RedialStateClosed:
		r.mu.Unlock()
		return nil, ErrRedialerClosed
	case RedialStateConnected, RedialStateReconnecting:
		r.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	r.mu.Unlock()

	client, err := r.config.Dial(ctx)
	if err != nil {
		return nil, err
	}
	conn := NewConn(client, r.config.ConnOptions...)

	watchCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	if r.state == RedialStateClosed {
		r.mu.Unlock()
		cancel()
		conn.Close()
		return nil, ErrRedialerClosed
	}
	r.conn = conn
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.transition(RedialStateConnected, "")
	go r.watch(watchCtx, done)
	return conn, nil
}

// Conn returns the connection, nil before Connect.
func (r *Redialer) Conn() *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// State returns the current state.
func (r *Redialer) State() RedialState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Attempts returns the number of redial attempts since the last
// successful connect.
func (r *Redialer) Attempts() int {
	return r.backoff.Attempts()
}

// Close stops watching, waits for a running redial attempt to wind
// down and closes the connection.
func (r *Redialer) Close() error {
	r.mu.Lock()
	if r.state == RedialStateClosed {
		r.mu.Unlock()
		return nil
	}
	from := r.state
	r.state = RedialStateClosed
	cancel := r.cancel
	done := r.done
	conn := r.conn
	r.mu.Unlock()

	r.logState(from, RedialStateClosed, "")
	if r.config.OnStateChange != nil {
		r.config.OnStateChange(from, RedialStateClosed)
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// transition moves to a new state unless closed, then notifies.
func (r *Redialer) transition(to RedialState, reason string) bool {
	r.mu.Lock()
	if r.state == to || r.state == RedialStateClosed {
		r.mu.Unlock()
		return false
	}
	from := r.state
	r.state = to
	r.mu.Unlock()

	r.logState(from, to, reason)
	if r.config.OnStateChange != nil {
		r.config.OnStateChange(from, to)
	}
	return true
}

// watch waits for the current client to die and redials until the
// context ends.
func (r *Redialer) watch(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		client := r.conn.Client()
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
		}
		r.transition(RedialStateReconnecting, "connection lost")
		if !r.redial(ctx) {
			return
		}
	}
}

// redial attempts to reconnect until it succeeds or the context ends.
func (r *Redialer) redial(ctx context.Context) bool {
	for {
		delay := r.backoff.Next()
		if r.config.OnReconnecting != nil {
			r.config.OnReconnecting(r.backoff.Attempts(), delay)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		dialCtx, cancel := context.WithTimeout(ctx, r.config.DialTimeout)
		client, err := r.config.Dial(dialCtx)
		cancel()
		if err != nil {
			r.logError(fmt.Errorf("redial attempt %d: %w", r.backoff.Attempts(), err))
			continue
		}

		r.conn.Rebind(client)
		if !r.config.SkipResubscribe {
			resubCtx, cancel := context.WithTimeout(ctx, r.config.DialTimeout)
			if err := r.conn.Resubscribe(resubCtx); err != nil {
				r.logError(fmt.Errorf("after redial: %w", err))
			}
			cancel()
		}
		r.backoff.Reset()
		r.transition(RedialStateConnected, "reconnected")
		return true
	}
}

func (r *Redialer) logState(from, to RedialState, reason string) {
	if r.config.Logger == nil {
		return
	}
	deviceID := ""
	if conn := r.Conn(); conn != nil {
		deviceID = conn.DeviceID()
	}
	r.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		LocalRole: log.RoleClient,
		DeviceID:  deviceID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (r *Redialer) logError(err error) {
	if r.config.Logger == nil {
		return
	}
	r.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSession,
		Category:  log.CategoryError,
		LocalRole: log.RoleClient,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: err.Error(),
			Context: "redial",
		},
	})
}
