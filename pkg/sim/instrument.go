package sim

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

// Defaults for instruments built from an empty Config.
const (
	DefaultDeviceID  = "arbor-sim"
	DefaultClockRate = 1.8e9
)

// Config configures a simulated instrument.
type Config struct {
	// DeviceID identifies the instrument (default "arbor-sim").
	DeviceID string

	// ClockRate is the device clock rate in ticks per second
	// (default 1.8 GHz).
	ClockRate float64

	// WallClock derives timestamps from wall time instead of the
	// per-operation tick counter. The counter is deterministic and
	// preferred in tests; the daemon runs with wall time.
	WallClock bool
}

type entry struct {
	info       schema.NodeInfo
	value      any
	timestamp  uint64
	subscribed bool
	buffered   []wire.Sample
}

// Stats counts instrument operations since creation. Useful for
// asserting which calls a client stack actually issued.
type Stats struct {
	Gets       uint64
	GetDeeps   uint64
	Sets       uint64
	SetDeeps   uint64
	Batches    uint64
	Lists      uint64
	Infos      uint64
	Subscribes uint64
	Polls      uint64
}

// Instrument is an in-memory settings tree speaking the device side
// of the protocol. It implements node.Backend, so a tree can drive it
// in-process without a socket; Handler serves it over the wire.
type Instrument struct {
	deviceID  string
	clockRate float64
	wallClock bool
	epoch     time.Time

	mu      sync.Mutex
	entries map[string]*entry
	ticks   uint64
	wake    chan struct{}
	stats   Stats
}

// New returns an empty instrument. Populate it with AddNode or build
// one from a fixture with FromFixture.
func New(config Config) *Instrument {
	if config.DeviceID == "" {
		config.DeviceID = DefaultDeviceID
	}
	if config.ClockRate == 0 {
		config.ClockRate = DefaultClockRate
	}
	return &Instrument{
		deviceID:  config.DeviceID,
		clockRate: config.ClockRate,
		wallClock: config.WallClock,
		epoch:     time.Now(),
		entries:   make(map[string]*entry),
		wake:      make(chan struct{}),
	}
}

// DeviceID returns the instrument's identity.
func (in *Instrument) DeviceID() string {
	return in.deviceID
}

// ClockRate returns the device clock rate in ticks per second.
func (in *Instrument) ClockRate() float64 {
	return in.clockRate
}

// now returns the current device time in ticks. Callers hold in.mu.
// In counter mode every call yields a fresh tick, so writes in one
// operation get distinct timestamps.
func (in *Instrument) now() uint64 {
	if in.wallClock {
		return uint64(time.Since(in.epoch).Seconds() * in.clockRate)
	}
	in.ticks++
	return in.ticks
}

// Tick advances the deterministic clock by n ticks. Ignored in wall
// clock mode.
func (in *Instrument) Tick(n uint64) {
	in.mu.Lock()
	in.ticks += n
	in.mu.Unlock()
}

// AddNode defines a leaf node. The initial value is coerced to the
// node's type; nil initializes to the type's zero value (the lowest
// defined option for enumerated nodes).
func (in *Instrument) AddNode(info schema.NodeInfo, initial any) error {
	p := nodepath.Parse(info.Path)
	if p.IsEmpty() {
		return fmt.Errorf("node path required")
	}
	if p.HasWildcard() {
		return fmt.Errorf("node path %s: wildcards not allowed", info.Path)
	}
	info.Path = p.String()
	if info.Type == schema.TypeEnumerated && len(info.Options) == 0 {
		return fmt.Errorf("node %s: enumerated type needs options", info.Path)
	}

	e := &entry{info: info}
	if initial != nil {
		v, err := coerceValue(info, initial)
		if err != nil {
			return err
		}
		e.value = v
	} else {
		e.value = zeroValue(info)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if _, exists := in.entries[info.Path]; exists {
		return fmt.Errorf("node %s already defined", info.Path)
	}
	for existing := range in.entries {
		q := nodepath.Parse(existing)
		if p.IsPrefixOf(q) || q.IsPrefixOf(p) {
			return fmt.Errorf("node %s conflicts with %s", info.Path, existing)
		}
	}
	e.timestamp = in.now()
	in.entries[info.Path] = e
	return nil
}

// Paths returns all defined leaf paths, sorted.
func (in *Instrument) Paths() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, 0, len(in.entries))
	for p := range in.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Stats returns a snapshot of the operation counters.
func (in *Instrument) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}

// entryFor looks up a leaf by path. Callers hold in.mu.
func (in *Instrument) entryFor(path string) (*entry, string, error) {
	canon := nodepath.Parse(path).String()
	e, ok := in.entries[canon]
	if !ok {
		return nil, canon, fmt.Errorf("%w: %s", schema.ErrNodeNotFound, canon)
	}
	return e, canon, nil
}

// Get reads a node's current value.
func (in *Instrument) Get(ctx context.Context, path string) (any, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.Gets++
	e, canon, err := in.entryFor(path)
	if err != nil {
		return nil, err
	}
	if !e.info.Readable {
		return nil, fmt.Errorf("%w: %s", node.ErrNotReadable, canon)
	}
	return e.value, nil
}

// GetDeep reads a node's current value and its device timestamp.
func (in *Instrument) GetDeep(ctx context.Context, path string) (any, uint64, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.GetDeeps++
	e, canon, err := in.entryFor(path)
	if err != nil {
		return nil, 0, err
	}
	if !e.info.Readable {
		return nil, 0, fmt.Errorf("%w: %s", node.ErrNotReadable, canon)
	}
	return e.value, e.timestamp, nil
}

// write stores a coerced value and buffers a sample when the node is
// subscribed. Callers hold in.mu.
func (in *Instrument) write(path string, value any) (any, error) {
	e, canon, err := in.entryFor(path)
	if err != nil {
		return nil, err
	}
	if !e.info.Writable {
		return nil, fmt.Errorf("%w: %s", node.ErrNotWritable, canon)
	}
	v, err := coerceValue(e.info, value)
	if err != nil {
		return nil, err
	}
	in.store(e, v)
	return v, nil
}

// store updates an entry's value and timestamp. Callers hold in.mu.
func (in *Instrument) store(e *entry, v any) {
	e.value = v
	e.timestamp = in.now()
	if e.subscribed {
		e.buffered = append(e.buffered, wire.Sample{Timestamp: e.timestamp, Value: v})
		close(in.wake)
		in.wake = make(chan struct{})
	}
}

// Set writes a node's value.
func (in *Instrument) Set(ctx context.Context, path string, value any) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.Sets++
	_, err := in.write(path, value)
	return err
}

// SetDeep writes a node's value and returns the value as stored,
// which reflects type coercion.
func (in *Instrument) SetDeep(ctx context.Context, path string, value any) (any, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.SetDeeps++
	return in.write(path, value)
}

// SetBatch applies writes in order. The first failing write stops the
// batch; earlier writes stay applied.
func (in *Instrument) SetBatch(ctx context.Context, writes []wire.BatchWrite) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.Batches++
	for i, w := range writes {
		if _, err := in.write(w.Path, w.Value); err != nil {
			return fmt.Errorf("write %d: %w", i, err)
		}
	}
	return nil
}

// ListNodes returns the paths below prefix, sorted. Without
// ListRecursive the listing is one level deep and interior paths
// stand in for their subtrees. The attribute flags (leaves, settings,
// streaming) select leaves; once any of them is set, interior paths
// no longer appear. A wildcard prefix matches segment-wise.
func (in *Instrument) ListNodes(ctx context.Context, prefix string, flags wire.ListFlags) ([]string, error) {
	pre := nodepath.Parse(prefix)
	leavesOnly := flags.Has(wire.ListLeavesOnly) ||
		flags.Has(wire.ListSettingsOnly) ||
		flags.Has(wire.ListStreamingOnly)

	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.Lists++

	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	for path, e := range in.entries {
		p := nodepath.Parse(path)
		if len(p) <= len(pre) || !pre.Match(p[:len(pre)]) {
			continue
		}
		if flags.Has(wire.ListSettingsOnly) && !e.info.Setting {
			continue
		}
		if flags.Has(wire.ListStreamingOnly) && !e.info.Streaming {
			continue
		}

		if !flags.Has(wire.ListRecursive) {
			child := p[:len(pre)+1]
			if leavesOnly && len(child) != len(p) {
				continue
			}
			add(child.String())
			continue
		}
		if leavesOnly {
			add(path)
			continue
		}
		for i := len(pre) + 1; i <= len(p); i++ {
			add(p[:i].String())
		}
	}
	sort.Strings(out)
	return out, nil
}

// NodeInfo returns a leaf's metadata.
func (in *Instrument) NodeInfo(ctx context.Context, path string) (schema.NodeInfo, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.Infos++
	e, _, err := in.entryFor(path)
	if err != nil {
		return schema.NodeInfo{}, err
	}
	return e.info, nil
}

// Subscribe starts buffering a node's updates. Subscribing twice is
// harmless.
func (in *Instrument) Subscribe(ctx context.Context, path string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stats.Subscribes++
	e, _, err := in.entryFor(path)
	if err != nil {
		return err
	}
	e.subscribed = true
	return nil
}

// Unsubscribe stops buffering a node's updates and discards anything
// buffered.
func (in *Instrument) Unsubscribe(ctx context.Context, path string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, _, err := in.entryFor(path)
	if err != nil {
		return err
	}
	e.subscribed = false
	e.buffered = nil
	return nil
}

// Poll drains the buffers of all subscribed nodes. When nothing is
// buffered it waits up to recordingTime (capped by timeout when that
// is shorter) for the first update, then returns whatever arrived.
// An empty result is not an error.
func (in *Instrument) Poll(ctx context.Context, recordingTime, timeout time.Duration, flags wire.PollFlags) (map[string][]wire.Sample, error) {
	wait := recordingTime
	if timeout > 0 && timeout < wait {
		wait = timeout
	}
	deadline := time.Now().Add(wait)

	in.mu.Lock()
	in.stats.Polls++
	if updates := in.drain(); len(updates) > 0 || wait <= 0 {
		in.mu.Unlock()
		return updates, nil
	}

	for {
		wake := in.wake
		in.mu.Unlock()

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			in.mu.Lock()
			updates := in.drain()
			in.mu.Unlock()
			return updates, nil
		case <-wake:
			timer.Stop()
		}

		in.mu.Lock()
		if updates := in.drain(); len(updates) > 0 {
			in.mu.Unlock()
			return updates, nil
		}
	}
}

// drain collects and clears all sample buffers. Callers hold in.mu.
func (in *Instrument) drain() map[string][]wire.Sample {
	updates := make(map[string][]wire.Sample)
	for path, e := range in.entries {
		if len(e.buffered) == 0 {
			continue
		}
		updates[path] = e.buffered
		e.buffered = nil
	}
	return updates
}

// Emit records a device-side update: the value is stored with a fresh
// timestamp regardless of writability, and buffered when the node is
// subscribed. This is how generators and interactive sessions produce
// measurement data.
func (in *Instrument) Emit(path string, value any) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, _, err := in.entryFor(path)
	if err != nil {
		return err
	}
	v, err := coerceValue(e.info, value)
	if err != nil {
		return err
	}
	in.store(e, v)
	return nil
}

// StartGenerator emits gen(n) on path every interval until the
// returned stop function is called. n counts emitted samples from
// zero. Values the node cannot store are dropped.
func (in *Instrument) StartGenerator(path string, interval time.Duration, gen func(n uint64) any) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("generator interval must be positive")
	}
	in.mu.Lock()
	_, canon, err := in.entryFor(path)
	in.mu.Unlock()
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var n uint64
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = in.Emit(canon, gen(n))
				n++
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}, nil
}

// coerceValue validates a raw value against the node's type and
// converts it to the canonical stored form: int64 for integer and
// enumerated nodes, float64 for doubles, interleaved []float64 for
// complex vectors.
func coerceValue(info schema.NodeInfo, v any) (any, error) {
	v = wire.NormalizeValue(v)
	if err := info.ValidateValue(v); err != nil {
		return nil, err
	}
	switch info.Type {
	case schema.TypeInt64, schema.TypeEnumerated:
		iv, _ := schema.ToInt64(v)
		return iv, nil
	case schema.TypeDouble:
		fv, _ := schema.ToFloat64(v)
		return fv, nil
	case schema.TypeComplexVector:
		if cv, ok := v.([]complex128); ok {
			flat := make([]float64, 0, len(cv)*2)
			for _, c := range cv {
				flat = append(flat, real(c), imag(c))
			}
			return flat, nil
		}
		return v, nil
	default:
		return v, nil
	}
}

func zeroValue(info schema.NodeInfo) any {
	switch info.Type {
	case schema.TypeInt64:
		return int64(0)
	case schema.TypeDouble:
		return float64(0)
	case schema.TypeString:
		return ""
	case schema.TypeByteVector:
		return []byte{}
	case schema.TypeComplexVector:
		return []float64{}
	case schema.TypeEnumerated:
		var lowest int64
		found := false
		for raw := range info.Options {
			if !found || raw < lowest {
				lowest = raw
				found = true
			}
		}
		return lowest
	default:
		return nil
	}
}

var _ node.Backend = (*Instrument)(nil)
