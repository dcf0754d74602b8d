package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// Transaction states as logged.
const (
	stateBuffering = "BUFFERING"
	stateFlushed   = "FLUSHED"
	stateFailed    = "FAILED"
	stateDiscarded = "DISCARDED"
)

// Transaction batches writes issued through one connection. While it
// is open, set calls on the connection and on any of its Node handles
// append to the buffer in issue order and return immediately; End
// flushes the buffer as a single batch request. Duplicate paths are
// kept as issued, the device applies them in order and the last write
// wins.
//
// A transaction belongs to the scope that began it and flushes
// exactly once. Beginning a transaction while one is already open
// returns a nested handle: its writes land in the outer buffer and
// its End does nothing.
type Transaction struct {
	conn   *Conn
	owns   bool
	writes []wire.BatchWrite
}

// BeginTransaction opens a transaction on the connection. Writes
// issued until End are buffered; reads, subscriptions and schema
// queries pass through unaffected.
func (c *Conn) BeginTransaction() *Transaction {
	c.mu.Lock()
	if c.tx != nil {
		nested := &Transaction{conn: c}
		c.mu.Unlock()
		return nested
	}
	t := &Transaction{conn: c, owns: true}
	c.tx = t
	c.mu.Unlock()
	c.logTransaction("", stateBuffering, "")
	return t
}

// End flushes the buffered writes as one batch request and closes the
// transaction. An empty buffer flushes without any round trip. End is
// safe to defer: a second End, and End on a nested handle, do nothing
// and return nil. On flush failure the buffer is discarded and the
// error returned; nothing is retried.
func (t *Transaction) End(ctx context.Context) error {
	if !t.owns {
		return nil
	}
	c := t.conn
	c.mu.Lock()
	if c.tx != t {
		c.mu.Unlock()
		return nil
	}
	c.tx = nil
	writes := t.writes
	t.writes = nil
	cl := c.client
	c.mu.Unlock()

	if len(writes) == 0 {
		c.logTransaction(stateBuffering, stateFlushed, "no writes")
		return nil
	}
	if err := cl.SetBatch(ctx, writes); err != nil {
		c.logTransaction(stateBuffering, stateFailed, err.Error())
		return fmt.Errorf("transaction flush: %w", err)
	}
	c.logTransaction(stateBuffering, stateFlushed, fmt.Sprintf("%d writes", len(writes)))
	return nil
}

// Pending returns the number of writes currently buffered on the
// transaction's connection. Zero after End.
func (t *Transaction) Pending() int {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return 0
	}
	return len(c.tx.writes)
}

// WithTransaction runs fn inside a transaction and flushes when fn
// returns, exactly once, also when fn fails or panics. A panic is
// re-raised after the flush. fn's error is returned after a
// successful flush; when the flush fails too, both errors are joined.
func (c *Conn) WithTransaction(ctx context.Context, fn func(context.Context) error) (err error) {
	tx := c.BeginTransaction()
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
