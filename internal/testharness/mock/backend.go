// Package mock provides hand-written test doubles for the device
// access interfaces.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// BackendHandlers holds per-operation overrides. A nil handler falls
// back to the in-memory default.
type BackendHandlers struct {
	OnGet         func(path string) (any, error)
	OnGetDeep     func(path string) (any, uint64, error)
	OnSet         func(path string, value any) error
	OnSetDeep     func(path string, value any) (any, error)
	OnSetBatch    func(writes []wire.BatchWrite) error
	OnListNodes   func(prefix string, flags wire.ListFlags) ([]string, error)
	OnNodeInfo    func(path string) (schema.NodeInfo, error)
	OnSubscribe   func(path string) error
	OnUnsubscribe func(path string) error
	OnPoll        func(recordingTime, timeout time.Duration, flags wire.PollFlags) (map[string][]wire.Sample, error)
}

// Calls counts backend operations by name.
type Calls struct {
	Gets         int
	GetDeeps     int
	Sets         int
	SetDeeps     int
	SetBatches   int
	Lists        int
	Infos        int
	Subscribes   int
	Unsubscribes int
	Polls        int
}

// Backend is an in-memory node.Backend that records every call.
// Leaves are added with AddLeaf; Handlers override individual
// operations, everything else runs against the built-in store.
//
// The default Poll returns whatever QueueSamples staged and never
// waits, so tests stay deterministic.
type Backend struct {
	// Handlers override individual operations.
	Handlers BackendHandlers

	// Clock is the clock rate reported by ClockRate.
	Clock float64

	mu      sync.Mutex
	values  map[string]any
	infos   map[string]schema.NodeInfo
	stamps  map[string]uint64
	subs    map[string]bool
	samples map[string][]wire.Sample
	batches [][]wire.BatchWrite
	subLog  []string
	calls   Calls
	tick    uint64
}

// NewBackend creates an empty mock backend with a 1.8 GHz clock.
func NewBackend() *Backend {
	return &Backend{
		Clock:   1.8e9,
		values:  make(map[string]any),
		infos:   make(map[string]schema.NodeInfo),
		stamps:  make(map[string]uint64),
		subs:    make(map[string]bool),
		samples: make(map[string][]wire.Sample),
	}
}

// AddLeaf defines a leaf with its metadata and initial value. The path
// is canonicalized; info.Path is set to match.
func (b *Backend) AddLeaf(path string, info schema.NodeInfo, value any) {
	canon := nodepath.Parse(path).String()
	info.Path = canon

	b.mu.Lock()
	defer b.mu.Unlock()
	b.infos[canon] = info
	b.values[canon] = value
	b.tick++
	b.stamps[canon] = b.tick
}

// Value returns the stored value for a path.
func (b *Backend) Value(path string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.values[nodepath.Parse(path).String()]
}

// SetValue updates the store directly, without counting as a Set.
func (b *Backend) SetValue(path string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store(nodepath.Parse(path).String(), value)
}

// QueueSamples stages samples for the next default Poll.
func (b *Backend) QueueSamples(path string, samples ...wire.Sample) {
	canon := nodepath.Parse(path).String()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[canon] = append(b.samples[canon], samples...)
}

// Calls returns a snapshot of the call counters.
func (b *Backend) Calls() Calls {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Batches returns every SetBatch payload in call order.
func (b *Backend) Batches() [][]wire.BatchWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]wire.BatchWrite, len(b.batches))
	copy(out, b.batches)
	return out
}

// SubscribeLog returns subscription changes in order, "+path" for
// subscribes and "-path" for unsubscribes.
func (b *Backend) SubscribeLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subLog...)
}

// store writes value and advances the per-path timestamp. Callers hold mu.
func (b *Backend) store(canon string, value any) {
	b.values[canon] = value
	b.tick++
	b.stamps[canon] = b.tick
	if b.subs[canon] {
		b.samples[canon] = append(b.samples[canon], wire.Sample{
			Timestamp: b.tick,
			Value:     value,
		})
	}
}

func (b *Backend) Get(ctx context.Context, path string) (any, error) {
	b.mu.Lock()
	b.calls.Gets++
	h := b.Handlers.OnGet
	b.mu.Unlock()

	if h != nil {
		return h(path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	canon := nodepath.Parse(path).String()
	value, ok := b.values[canon]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrNodeNotFound, canon)
	}
	return value, nil
}

func (b *Backend) GetDeep(ctx context.Context, path string) (any, uint64, error) {
	b.mu.Lock()
	b.calls.GetDeeps++
	h := b.Handlers.OnGetDeep
	b.mu.Unlock()

	if h != nil {
		return h(path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	canon := nodepath.Parse(path).String()
	value, ok := b.values[canon]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", schema.ErrNodeNotFound, canon)
	}
	return value, b.stamps[canon], nil
}

func (b *Backend) Set(ctx context.Context, path string, value any) error {
	b.mu.Lock()
	b.calls.Sets++
	h := b.Handlers.OnSet
	b.mu.Unlock()

	if h != nil {
		return h(path, value)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	canon := nodepath.Parse(path).String()
	if _, ok := b.infos[canon]; !ok {
		return fmt.Errorf("%w: %s", schema.ErrNodeNotFound, canon)
	}
	b.store(canon, value)
	return nil
}

func (b *Backend) SetDeep(ctx context.Context, path string, value any) (any, error) {
	b.mu.Lock()
	b.calls.SetDeeps++
	h := b.Handlers.OnSetDeep
	b.mu.Unlock()

	if h != nil {
		return h(path, value)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	canon := nodepath.Parse(path).String()
	if _, ok := b.infos[canon]; !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrNodeNotFound, canon)
	}
	b.store(canon, value)
	return value, nil
}

func (b *Backend) SetBatch(ctx context.Context, writes []wire.BatchWrite) error {
	b.mu.Lock()
	b.calls.SetBatches++
	b.batches = append(b.batches, append([]wire.BatchWrite(nil), writes...))
	h := b.Handlers.OnSetBatch
	b.mu.Unlock()

	if h != nil {
		return h(writes)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range writes {
		canon := nodepath.Parse(w.Path).String()
		if _, ok := b.infos[canon]; !ok {
			return fmt.Errorf("write %d: %w: %s", i, schema.ErrNodeNotFound, canon)
		}
		b.store(canon, w.Value)
	}
	return nil
}

func (b *Backend) ListNodes(ctx context.Context, prefix string, flags wire.ListFlags) ([]string, error) {
	b.mu.Lock()
	b.calls.Lists++
	h := b.Handlers.OnListNodes
	b.mu.Unlock()

	if h != nil {
		return h(prefix, flags)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pre := nodepath.Parse(prefix)
	leafFilter := flags.Has(wire.ListLeavesOnly) ||
		flags.Has(wire.ListSettingsOnly) ||
		flags.Has(wire.ListStreamingOnly)

	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}

	for path, info := range b.infos {
		p := nodepath.Parse(path)
		if len(p) <= len(pre) || !pre.IsPrefixOf(p) {
			continue
		}
		if flags.Has(wire.ListSettingsOnly) && !info.Setting {
			continue
		}
		if flags.Has(wire.ListStreamingOnly) && !info.Streaming {
			continue
		}

		switch {
		case flags.Has(wire.ListRecursive) && leafFilter:
			add(p.String())
		case flags.Has(wire.ListRecursive):
			for i := len(pre) + 1; i <= len(p); i++ {
				add(p[:i].String())
			}
		default:
			child := p[:len(pre)+1]
			if leafFilter && len(child) != len(p) {
				continue
			}
			add(child.String())
		}
	}

	sort.Strings(out)
	return out, nil
}

func (b *Backend) NodeInfo(ctx context.Context, path string) (schema.NodeInfo, error) {
	b.mu.Lock()
	b.calls.Infos++
	h := b.Handlers.OnNodeInfo
	b.mu.Unlock()

	if h != nil {
		return h(path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	canon := nodepath.Parse(path).String()
	info, ok := b.infos[canon]
	if !ok {
		return schema.NodeInfo{}, fmt.Errorf("%w: %s", schema.ErrNodeNotFound, canon)
	}
	return info, nil
}

func (b *Backend) Subscribe(ctx context.Context, path string) error {
	b.mu.Lock()
	b.calls.Subscribes++
	h := b.Handlers.OnSubscribe
	b.mu.Unlock()

	if h != nil {
		return h(path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	canon := nodepath.Parse(path).String()
	if _, ok := b.infos[canon]; !ok {
		return fmt.Errorf("%w: %s", schema.ErrNodeNotFound, canon)
	}
	if !b.subs[canon] {
		b.subs[canon] = true
		b.subLog = append(b.subLog, "+"+canon)
	}
	return nil
}

func (b *Backend) Unsubscribe(ctx context.Context, path string) error {
	b.mu.Lock()
	b.calls.Unsubscribes++
	h := b.Handlers.OnUnsubscribe
	b.mu.Unlock()

	if h != nil {
		return h(path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	canon := nodepath.Parse(path).String()
	if b.subs[canon] {
		delete(b.subs, canon)
		b.subLog = append(b.subLog, "-"+canon)
	}
	return nil
}

func (b *Backend) Poll(ctx context.Context, recordingTime, timeout time.Duration, flags wire.PollFlags) (map[string][]wire.Sample, error) {
	b.mu.Lock()
	b.calls.Polls++
	h := b.Handlers.OnPoll
	b.mu.Unlock()

	if h != nil {
		return h(recordingTime, timeout, flags)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	updates := make(map[string][]wire.Sample)
	for path, samples := range b.samples {
		if len(samples) == 0 {
			continue
		}
		updates[path] = samples
		delete(b.samples, path)
	}
	return updates, nil
}

func (b *Backend) ClockRate() float64 {
	return b.Clock
}

// IsSubscribed reports whether path has an active subscription.
func (b *Backend) IsSubscribed(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[nodepath.Parse(path).String()]
}

// Subscriptions returns the subscribed paths, sorted.
func (b *Backend) Subscriptions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for p := range b.subs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var (
	_ node.Backend         = (*Backend)(nil)
	_ node.SubscriptionSet = (*Backend)(nil)
)
