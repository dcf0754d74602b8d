package session

import (
	"context"
	"errors"
	"testing"

	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

func TestTransactionBuffersWritesInOrder(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	tx := conn.BeginTransaction()
	writes := []wire.BatchWrite{
		{Path: "osc/0/freq", Value: 1.0e6},
		{Path: "demod/0/rate", Value: 500.0},
		{Path: "osc/0/freq", Value: 3.0e6},
	}
	for _, w := range writes {
		if err := conn.Set(ctx, w.Path, w.Value); err != nil {
			t.Fatalf("Set(%s) failed: %v", w.Path, err)
		}
	}

	if f.setCount() != 0 {
		t.Errorf("writes reached the device before End: %d", f.setCount())
	}
	if tx.Pending() != 3 {
		t.Errorf("Pending = %d, want 3", tx.Pending())
	}

	if err := tx.End(ctx); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if f.batchCount() != 1 {
		t.Fatalf("batch calls = %d, want exactly one", f.batchCount())
	}
	batch := f.batch(0)
	if len(batch) != 3 {
		t.Fatalf("batch size = %d, want 3 (duplicates kept)", len(batch))
	}
	for i, w := range writes {
		expectWrite(t, batch[i], w.Path, w.Value)
	}
	if tx.Pending() != 0 {
		t.Errorf("Pending after End = %d, want 0", tx.Pending())
	}
}

func TestTransactionThroughNodeHandles(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := conn.Node("osc/0/freq").Set(ctx, 1.2e6); err != nil {
			return err
		}
		return conn.Node("osc/0/enable").Set(ctx, "on")
	})
	if err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}

	if f.batchCount() != 1 {
		t.Fatalf("batch calls = %d, want 1", f.batchCount())
	}
	batch := f.batch(0)
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want 2", len(batch))
	}
	expectWrite(t, batch[0], "osc/0/freq", 1.2e6)
	// The enum label was encoded before buffering.
	expectWrite(t, batch[1], "osc/0/enable", int64(1))
}

func TestTransactionEmptyEndSendsNothing(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	tx := conn.BeginTransaction()
	if err := tx.End(ctx); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if f.batchCount() != 0 {
		t.Errorf("empty transaction sent a batch")
	}
}

func TestTransactionEndTwice(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	tx := conn.BeginTransaction()
	if err := conn.Set(ctx, "osc/0/freq", 2.0e6); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := tx.End(ctx); err != nil {
		t.Fatalf("first End failed: %v", err)
	}
	if err := tx.End(ctx); err != nil {
		t.Errorf("second End = %v, want nil", err)
	}
	if f.batchCount() != 1 {
		t.Errorf("batch calls = %d, want 1 (flush exactly once)", f.batchCount())
	}
}

func TestTransactionNestedCollapses(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	outer := conn.BeginTransaction()
	if err := conn.Set(ctx, "osc/0/freq", 1.0e6); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	inner := conn.BeginTransaction()
	if err := conn.Set(ctx, "osc/1/freq", 2.0e6); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := inner.End(ctx); err != nil {
		t.Fatalf("inner End failed: %v", err)
	}
	if f.batchCount() != 0 {
		t.Fatal("inner End flushed; nested transactions must collapse")
	}

	if err := conn.Set(ctx, "demod/0/rate", 100.0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := outer.End(ctx); err != nil {
		t.Fatalf("outer End failed: %v", err)
	}

	if f.batchCount() != 1 {
		t.Fatalf("batch calls = %d, want 1", f.batchCount())
	}
	batch := f.batch(0)
	if len(batch) != 3 {
		t.Fatalf("batch size = %d, want 3 (inner writes in outer buffer)", len(batch))
	}
	expectWrite(t, batch[0], "osc/0/freq", 1.0e6)
	expectWrite(t, batch[1], "osc/1/freq", 2.0e6)
	expectWrite(t, batch[2], "demod/0/rate", 100.0)
}

func TestTransactionFlushFailureDiscardsBuffer(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()
	batchErr := errors.New("device went away")
	f.batchErr = batchErr

	tx := conn.BeginTransaction()
	if err := conn.Set(ctx, "osc/0/freq", 2.0e6); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	err := tx.End(ctx)
	if !errors.Is(err, batchErr) {
		t.Fatalf("End error = %v, want wrapped flush error", err)
	}

	// The buffer is gone; nothing is retried.
	f.mu.Lock()
	f.batchErr = nil
	f.mu.Unlock()
	if err := tx.End(ctx); err != nil {
		t.Errorf("End after failed flush = %v, want nil", err)
	}
	if f.batchCount() != 0 {
		t.Errorf("failed flush was retried: %d batches", f.batchCount())
	}
}

func TestTransactionSetDeepEchoesValue(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	tx := conn.BeginTransaction()
	ack, err := conn.SetDeep(ctx, "osc/0/freq", 7.0e6)
	if err != nil {
		t.Fatalf("SetDeep failed: %v", err)
	}
	if ack != 7.0e6 {
		t.Errorf("buffered SetDeep ack = %v, want the submitted value", ack)
	}
	if f.setCount() != 0 {
		t.Error("buffered SetDeep reached the device")
	}

	if err := tx.End(ctx); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if f.batchCount() != 1 || len(f.batch(0)) != 1 {
		t.Fatalf("flush batches = %d", f.batchCount())
	}
	expectWrite(t, f.batch(0)[0], "osc/0/freq", 7.0e6)
}

func TestTransactionSetBatchAppends(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	tx := conn.BeginTransaction()
	if err := conn.Set(ctx, "osc/0/freq", 1.0e6); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	err := conn.SetBatch(ctx, []wire.BatchWrite{
		{Path: "osc/1/freq", Value: 2.0e6},
		{Path: "demod/0/rate", Value: 50.0},
	})
	if err != nil {
		t.Fatalf("SetBatch failed: %v", err)
	}
	if err := tx.End(ctx); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if f.batchCount() != 1 {
		t.Fatalf("batch calls = %d, want 1", f.batchCount())
	}
	batch := f.batch(0)
	if len(batch) != 3 {
		t.Fatalf("batch size = %d, want 3", len(batch))
	}
	expectWrite(t, batch[1], "osc/1/freq", 2.0e6)
	expectWrite(t, batch[2], "demod/0/rate", 50.0)
}

func TestTransactionReadsPassThrough(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	tx := conn.BeginTransaction()
	defer tx.End(ctx)

	v, err := conn.Node("osc/0/freq").Get(ctx)
	if err != nil {
		t.Fatalf("Get inside transaction failed: %v", err)
	}
	if v != 1.0e6 {
		t.Errorf("Get = %v, want 1e6", v)
	}
	if f.gets != 1 {
		t.Errorf("backend gets = %d, want 1 (reads are not buffered)", f.gets)
	}

	if err := conn.Subscribe(ctx, "osc/0/freq"); err != nil {
		t.Fatalf("Subscribe inside transaction failed: %v", err)
	}
	if got := f.subscribeLog(); len(got) != 1 {
		t.Errorf("subscribe round trips = %d, want 1", len(got))
	}
}

func TestWithTransactionFnError(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()
	fnErr := errors.New("sweep aborted")

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := conn.Set(ctx, "osc/0/freq", 2.0e6); err != nil {
			return err
		}
		return fnErr
	})
	if !errors.Is(err, fnErr) {
		t.Fatalf("error = %v, want fn error", err)
	}
	// The buffer still flushed, exactly once.
	if f.batchCount() != 1 {
		t.Errorf("batch calls = %d, want 1", f.batchCount())
	}
}

func TestWithTransactionJoinsFlushError(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()
	fnErr := errors.New("sweep aborted")
	batchErr := errors.New("device went away")
	f.batchErr = batchErr

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := conn.Set(ctx, "osc/0/freq", 2.0e6); err != nil {
			return err
		}
		return fnErr
	})
	if !errors.Is(err, fnErr) {
		t.Errorf("error %v does not include fn error", err)
	}
	if !errors.Is(err, batchErr) {
		t.Errorf("error %v does not include flush error", err)
	}
}

func TestWithTransactionFlushErrorAlone(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()
	batchErr := errors.New("device went away")
	f.batchErr = batchErr

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		return conn.Set(ctx, "osc/0/freq", 2.0e6)
	})
	if !errors.Is(err, batchErr) {
		t.Fatalf("error = %v, want flush error", err)
	}
}

func TestWithTransactionPanicFlushesFirst(t *testing.T) {
	conn, f := newTestConn(t)
	ctx := context.Background()

	defer func() {
		r := recover()
		if r != "boom" {
			t.Fatalf("recovered %v, want the original panic", r)
		}
		if f.batchCount() != 1 {
			t.Errorf("batch calls = %d, want 1 (flush before re-panic)", f.batchCount())
		}
	}()

	_ = conn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := conn.Set(ctx, "osc/0/freq", 2.0e6); err != nil {
			return err
		}
		panic("boom")
	})
}

func TestTransactionFlushLogged(t *testing.T) {
	logger := &captureLogger{}
	conn, _ := newTestConn(t, WithLogger(logger))
	ctx := context.Background()

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		return conn.Set(ctx, "osc/0/freq", 2.0e6)
	})
	if err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}

	var began, flushed bool
	for _, e := range logger.all() {
		if e.StateChange == nil {
			continue
		}
		switch e.StateChange.NewState {
		case "BUFFERING":
			began = true
		case "FLUSHED":
			flushed = true
			if e.StateChange.Reason != "1 writes" {
				t.Errorf("flush reason = %q, want \"1 writes\"", e.StateChange.Reason)
			}
		}
	}
	if !began || !flushed {
		t.Errorf("transaction state events: began=%v flushed=%v", began, flushed)
	}
}
