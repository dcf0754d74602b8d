package node

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

const (
	// DefaultWaitTimeout bounds WaitForStateChange unless overridden.
	DefaultWaitTimeout = 30 * time.Second

	// DefaultPollInterval is the pause between value reads.
	DefaultPollInterval = 50 * time.Millisecond
)

type waitOptions struct {
	timeout  time.Duration
	interval time.Duration
	invert   bool
}

// WaitOption adjusts a WaitForStateChange call.
type WaitOption func(*waitOptions)

// WithTimeout bounds the total wait. Default 30s.
func WithTimeout(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.timeout = d }
}

// WithPollInterval sets the pause between reads. Default 50ms.
func WithPollInterval(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.interval = d }
}

// Invert waits for the value to become anything other than target.
func Invert() WaitOption {
	return func(o *waitOptions) { o.invert = true }
}

// WaitForStateChange reads the node until its value equals target
// (or, with Invert, no longer equals it), then returns nil. Expiry
// returns ErrTimeout carrying the path and the last observed value.
//
// This is a synchronous poll loop, not a push-based wait: simple,
// load-bound by the poll interval, and good enough for settling
// checks after configuration writes. Subscribe and Poll are the tools
// for watching fast-moving values.
func (n Node) WaitForStateChange(ctx context.Context, target any, opts ...WaitOption) error {
	o := waitOptions{timeout: DefaultWaitTimeout, interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	deadline := time.Now().Add(o.timeout)
	var last any
	for {
		v, err := n.Get(ctx)
		if err != nil {
			return err
		}
		if valuesEqual(v, target) != o.invert {
			return nil
		}
		last = v

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if o.invert {
				return fmt.Errorf("%w: %s still %v after %s", ErrTimeout, n.path, last, o.timeout)
			}
			return fmt.Errorf("%w: %s did not reach %v after %s (last %v)", ErrTimeout, n.path, target, o.timeout, last)
		}

		wait := o.interval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// valuesEqual compares a decoded node value against a user-supplied
// target, bridging the numeric type zoo: any two numerics compare by
// value, strings by equality, everything else by DeepEqual.
func valuesEqual(a, b any) bool {
	a = wire.NormalizeValue(a)
	b = wire.NormalizeValue(b)

	if af, ok := schema.ToFloat64(a); ok {
		bf, ok := schema.ToFloat64(b)
		return ok && af == bf
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	return reflect.DeepEqual(a, b)
}
