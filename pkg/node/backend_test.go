package node

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// fakeBackend is an in-memory device tree with call counters. It
// tracks subscriptions, so it also serves as a SubscriptionSet.
type fakeBackend struct {
	mu     sync.Mutex
	infos  map[string]schema.NodeInfo
	values map[string]any
	subs   map[string]bool
	subLog []string

	getCalls      int
	getDeepCalls  int
	setCalls      int
	setDeepCalls  int
	setBatchCalls int
	listCalls     int
	infoCalls     int
	batches       [][]wire.BatchWrite
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		infos:  make(map[string]schema.NodeInfo),
		values: make(map[string]any),
		subs:   make(map[string]bool),
	}
}

func (f *fakeBackend) addLeaf(path string, info schema.NodeInfo, value any) {
	info.Path = path
	f.infos[path] = info
	f.values[path] = value
}

func (f *fakeBackend) value(path string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[path]
}

func (f *fakeBackend) setValue(path string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[path] = v
}

func (f *fakeBackend) Get(ctx context.Context, path string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	v, ok := f.values[path]
	if !ok {
		return nil, fmt.Errorf("unknown path %s", path)
	}
	return v, nil
}

func (f *fakeBackend) GetDeep(ctx context.Context, path string) (any, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getDeepCalls++
	v, ok := f.values[path]
	if !ok {
		return nil, 0, fmt.Errorf("unknown path %s", path)
	}
	return v, 1111, nil
}

func (f *fakeBackend) Set(ctx context.Context, path string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.values[path] = value
	return nil
}

func (f *fakeBackend) SetDeep(ctx context.Context, path string, value any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setDeepCalls++
	f.values[path] = value
	return value, nil
}

func (f *fakeBackend) SetBatch(ctx context.Context, writes []wire.BatchWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setBatchCalls++
	f.batches = append(f.batches, append([]wire.BatchWrite(nil), writes...))
	for _, w := range writes {
		f.values[w.Path] = w.Value
	}
	return nil
}

// ListNodes returns the distinct paths exactly one level below
// prefix, interior prefixes included, sorted for determinism.
func (f *fakeBackend) ListNodes(ctx context.Context, prefix string, flags wire.ListFlags) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	pre := nodepath.Parse(prefix)
	seen := make(map[string]bool)
	var out []string
	for path := range f.infos {
		p := nodepath.Parse(path)
		if len(p) <= len(pre) || !pre.IsPrefixOf(p) {
			continue
		}
		child := p[:len(pre)+1].String()
		if !seen[child] {
			seen[child] = true
			out = append(out, child)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeBackend) NodeInfo(ctx context.Context, path string) (schema.NodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	info, ok := f.infos[path]
	if !ok {
		return schema.NodeInfo{}, fmt.Errorf("%w: %s", schema.ErrNodeNotFound, path)
	}
	return info, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.subs[path] {
		f.subs[path] = true
		f.subLog = append(f.subLog, "+"+path)
	}
	return nil
}

func (f *fakeBackend) Unsubscribe(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[path] {
		delete(f.subs, path)
		f.subLog = append(f.subLog, "-"+path)
	}
	return nil
}

func (f *fakeBackend) IsSubscribed(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[path]
}

func (f *fakeBackend) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for p := range f.subs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (f *fakeBackend) Poll(ctx context.Context, recordingTime, timeout time.Duration, flags wire.PollFlags) (map[string][]wire.Sample, error) {
	return map[string][]wire.Sample{}, nil
}

func (f *fakeBackend) ClockRate() float64 { return 1.8e9 }

func (f *fakeBackend) counters() (gets, getDeeps, sets, setDeeps, setBatches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, f.getDeepCalls, f.setCalls, f.setDeepCalls, f.setBatchCalls
}

var (
	_ Backend         = (*fakeBackend)(nil)
	_ SubscriptionSet = (*fakeBackend)(nil)
)

// instrumentFixture builds the tree used by most tests:
//
//	osc/0/freq     double  RW setting
//	osc/0/enable   enum    RW setting {0:off, 1:on}
//	osc/1/freq     double  RW setting
//	osc/2/freq     double  RW setting
//	demod/0/rate   double  RW setting
//	demod/0/sample vector  R  streaming
//	stat/serial    string  R
//	cmd/load       int     W
func instrumentFixture() *fakeBackend {
	f := newFakeBackend()
	rwDouble := schema.NodeInfo{
		Readable: true, Writable: true, Setting: true,
		Type: schema.TypeDouble, Unit: "Hz",
	}
	f.addLeaf("osc/0/freq", rwDouble, 1.0e6)
	f.addLeaf("osc/1/freq", rwDouble, 2.0e6)
	f.addLeaf("osc/2/freq", rwDouble, 3.0e6)
	f.addLeaf("osc/0/enable", schema.NodeInfo{
		Readable: true, Writable: true, Setting: true,
		Type:    schema.TypeEnumerated,
		Options: map[int64]string{0: "off", 1: "on"},
	}, int64(0))
	f.addLeaf("demod/0/rate", schema.NodeInfo{
		Readable: true, Writable: true, Setting: true,
		Type: schema.TypeDouble, Unit: "1/s",
	}, 1000.0)
	f.addLeaf("demod/0/sample", schema.NodeInfo{
		Readable: true, Streaming: true, Vector: true,
		Type: schema.TypeComplexVector,
	}, []float64{1, 2})
	f.addLeaf("stat/serial", schema.NodeInfo{
		Readable: true, Type: schema.TypeString,
	}, "dev-123")
	f.addLeaf("cmd/load", schema.NodeInfo{
		Writable: true, Type: schema.TypeInt64,
	}, int64(0))
	return f
}

func fixtureTree(opts ...TreeOption) (*Tree, *fakeBackend) {
	f := instrumentFixture()
	return NewTree(f, opts...), f
}
