package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

func demoInstrument(t *testing.T) *Instrument {
	t.Helper()
	inst, err := FromFixture(DefaultFixture(), Config{})
	require.NoError(t, err)
	return inst
}

func TestInstrumentDefaults(t *testing.T) {
	in := New(Config{})
	assert.Equal(t, DefaultDeviceID, in.DeviceID())
	assert.Equal(t, DefaultClockRate, in.ClockRate())
	assert.Empty(t, in.Paths())
}

func TestInstrumentAddNodeValidation(t *testing.T) {
	in := New(Config{})
	require.NoError(t, in.AddNode(schema.NodeInfo{
		Path: "osc/0/freq", Readable: true, Writable: true, Type: schema.TypeDouble,
	}, nil))

	tests := []struct {
		name string
		info schema.NodeInfo
	}{
		{"empty path", schema.NodeInfo{Type: schema.TypeDouble}},
		{"wildcard path", schema.NodeInfo{Path: "osc/*/freq", Type: schema.TypeDouble}},
		{"duplicate", schema.NodeInfo{Path: "osc/0/freq", Type: schema.TypeDouble}},
		{"prefix of existing", schema.NodeInfo{Path: "osc/0", Type: schema.TypeDouble}},
		{"extends existing", schema.NodeInfo{Path: "osc/0/freq/offset", Type: schema.TypeDouble}},
		{"enum without options", schema.NodeInfo{Path: "mode", Type: schema.TypeEnumerated}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, in.AddNode(tt.info, nil))
		})
	}
}

func TestInstrumentGetSet(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	v, err := in.Get(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Equal(t, 10e6, v)

	require.NoError(t, in.Set(ctx, "osc/0/freq", 5e6))
	v, err = in.Get(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Equal(t, 5e6, v)

	// Path spellings normalize to the same node.
	v, err = in.Get(ctx, "/OSC/0/FREQ")
	require.NoError(t, err)
	assert.Equal(t, 5e6, v)
}

func TestInstrumentTimestampsAdvance(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	_, ts1, err := in.GetDeep(ctx, "osc/0/freq")
	require.NoError(t, err)
	require.NoError(t, in.Set(ctx, "osc/0/freq", 1e6))
	v, ts2, err := in.GetDeep(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Equal(t, 1e6, v)
	assert.Greater(t, ts2, ts1)

	in.Tick(1000)
	require.NoError(t, in.Set(ctx, "osc/0/freq", 2e6))
	_, ts3, err := in.GetDeep(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Greater(t, ts3, ts2+1000)
}

func TestInstrumentWallClock(t *testing.T) {
	ctx := context.Background()
	in := New(Config{WallClock: true})
	require.NoError(t, in.AddNode(schema.NodeInfo{
		Path: "clip/level", Readable: true, Writable: true, Type: schema.TypeDouble,
	}, nil))

	require.NoError(t, in.Set(ctx, "clip/level", 0.5))
	_, ts1, err := in.GetDeep(ctx, "clip/level")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, in.Set(ctx, "clip/level", 0.6))
	_, ts2, err := in.GetDeep(ctx, "clip/level")
	require.NoError(t, err)
	assert.Greater(t, ts2, ts1)
}

func TestInstrumentAccessControl(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	err := in.Set(ctx, "dev/serial", "SIM-9999")
	assert.ErrorIs(t, err, node.ErrNotWritable)

	require.NoError(t, in.Set(ctx, "system/preset/load", 3))
	_, err = in.Get(ctx, "system/preset/load")
	assert.ErrorIs(t, err, node.ErrNotReadable)
	_, _, err = in.GetDeep(ctx, "system/preset/load")
	assert.ErrorIs(t, err, node.ErrNotReadable)
}

func TestInstrumentUnknownPath(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	_, err := in.Get(ctx, "osc/9/freq")
	assert.ErrorIs(t, err, schema.ErrNodeNotFound)
	err = in.Set(ctx, "osc/9/freq", 1.0)
	assert.ErrorIs(t, err, schema.ErrNodeNotFound)
	_, err = in.NodeInfo(ctx, "osc/9/freq")
	assert.ErrorIs(t, err, schema.ErrNodeNotFound)
	err = in.Subscribe(ctx, "osc/9/freq")
	assert.ErrorIs(t, err, schema.ErrNodeNotFound)
	err = in.Unsubscribe(ctx, "osc/9/freq")
	assert.ErrorIs(t, err, schema.ErrNodeNotFound)
}

func TestInstrumentCoercion(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	// Integers land as float64 on double nodes.
	require.NoError(t, in.Set(ctx, "osc/0/freq", 2))
	v, err := in.Get(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Equal(t, float64(2), v)

	// SetDeep acknowledges the stored form.
	ack, err := in.SetDeep(ctx, "demod/0/order", uint8(6))
	require.NoError(t, err)
	assert.Equal(t, int64(6), ack)

	err = in.Set(ctx, "osc/0/freq", "fast")
	assert.ErrorIs(t, err, schema.ErrValueType)
	err = in.Set(ctx, "dev/serial", 12)
	assert.ErrorIs(t, err, node.ErrNotWritable)
}

func TestInstrumentEnumValues(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	require.NoError(t, in.Set(ctx, "sigin/0/ac", 1))
	v, err := in.Get(ctx, "sigin/0/ac")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	err = in.Set(ctx, "sigin/0/ac", 7)
	assert.ErrorIs(t, err, schema.ErrValueType)
	err = in.Set(ctx, "sigin/0/ac", "on")
	assert.ErrorIs(t, err, schema.ErrValueType)
}

func TestInstrumentComplexVector(t *testing.T) {
	ctx := context.Background()
	in := New(Config{})
	require.NoError(t, in.AddNode(schema.NodeInfo{
		Path: "demod/0/filter", Readable: true, Writable: true,
		Vector: true, Type: schema.TypeComplexVector,
	}, nil))

	require.NoError(t, in.Set(ctx, "demod/0/filter", []complex128{1 + 2i, 3 + 4i}))
	v, err := in.Get(ctx, "demod/0/filter")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, v)

	require.NoError(t, in.Set(ctx, "demod/0/filter", []float64{5, 6}))
	v, err = in.Get(ctx, "demod/0/filter")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, v)
}

func TestInstrumentSetBatch(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	err := in.SetBatch(ctx, []wire.BatchWrite{
		{Path: "osc/0/freq", Value: 1e6},
		{Path: "osc/1/freq", Value: 2e6},
		{Path: "osc/0/freq", Value: 3e6},
	})
	require.NoError(t, err)

	v, err := in.Get(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Equal(t, 3e6, v, "last write wins")
	v, err = in.Get(ctx, "osc/1/freq")
	require.NoError(t, err)
	assert.Equal(t, 2e6, v)
}

func TestInstrumentSetBatchStopsAtFirstError(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	err := in.SetBatch(ctx, []wire.BatchWrite{
		{Path: "osc/0/freq", Value: 4e6},
		{Path: "osc/9/freq", Value: 5e6},
		{Path: "osc/1/freq", Value: 6e6},
	})
	assert.ErrorIs(t, err, schema.ErrNodeNotFound)

	v, err := in.Get(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Equal(t, 4e6, v, "writes before the failure stay applied")
	v, err = in.Get(ctx, "osc/1/freq")
	require.NoError(t, err)
	assert.Equal(t, 10e6, v, "writes after the failure are not applied")
}

func TestInstrumentListNodes(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	tests := []struct {
		name   string
		prefix string
		flags  wire.ListFlags
		want   []string
	}{
		{"root children", "", 0,
			[]string{"demod", "dev", "osc", "sigin", "system"}},
		{"branch children", "osc", 0,
			[]string{"osc/0", "osc/1"}},
		{"leaf children", "osc/0", 0,
			[]string{"osc/0/freq"}},
		{"wildcard prefix", "osc/*", 0,
			[]string{"osc/0/freq", "osc/1/freq"}},
		{"recursive subtree", "demod", wire.ListRecursive,
			[]string{"demod/0", "demod/0/enable", "demod/0/order", "demod/0/rate", "demod/0/sample"}},
		{"recursive leaves", "demod", wire.ListRecursive | wire.ListLeavesOnly,
			[]string{"demod/0/enable", "demod/0/order", "demod/0/rate", "demod/0/sample"}},
		{"streaming only", "", wire.ListRecursive | wire.ListStreamingOnly,
			[]string{"demod/0/sample"}},
		{"settings below demod", "demod/0", wire.ListSettingsOnly,
			[]string{"demod/0/enable", "demod/0/order", "demod/0/rate"}},
		{"unknown prefix", "xyz", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.ListNodes(ctx, tt.prefix, tt.flags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	all, err := in.ListNodes(ctx, "", wire.ListRecursive|wire.ListLeavesOnly)
	require.NoError(t, err)
	assert.Equal(t, in.Paths(), all)
}

func TestInstrumentNodeInfo(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	info, err := in.NodeInfo(ctx, "sigin/0/ac")
	require.NoError(t, err)
	assert.Equal(t, "sigin/0/ac", info.Path)
	assert.Equal(t, schema.TypeEnumerated, info.Type)
	assert.Equal(t, map[int64]string{0: "off", 1: "on"}, info.Options)
	assert.True(t, info.Setting)

	info, err = in.NodeInfo(ctx, "demod/0/sample")
	require.NoError(t, err)
	assert.True(t, info.Streaming)
	assert.False(t, info.Setting)
	assert.False(t, info.Writable)
}

func TestInstrumentSubscribePoll(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	require.NoError(t, in.Subscribe(ctx, "osc/0/freq"))
	require.NoError(t, in.Subscribe(ctx, "osc/0/freq"), "subscribing twice is harmless")

	require.NoError(t, in.Set(ctx, "osc/0/freq", 1e6))
	require.NoError(t, in.Set(ctx, "osc/0/freq", 2e6))
	require.NoError(t, in.Set(ctx, "osc/1/freq", 9e6), "unsubscribed writes don't buffer")

	updates, err := in.Poll(ctx, 0, 0, wire.PollNone)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	samples := updates["osc/0/freq"]
	require.Len(t, samples, 2)
	assert.Equal(t, 1e6, samples[0].Value)
	assert.Equal(t, 2e6, samples[1].Value)
	assert.Greater(t, samples[1].Timestamp, samples[0].Timestamp)

	updates, err = in.Poll(ctx, 0, 0, wire.PollNone)
	require.NoError(t, err)
	assert.Empty(t, updates, "poll clears the buffers")
}

func TestInstrumentUnsubscribeDropsBuffer(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	require.NoError(t, in.Subscribe(ctx, "osc/0/freq"))
	require.NoError(t, in.Set(ctx, "osc/0/freq", 1e6))
	require.NoError(t, in.Unsubscribe(ctx, "osc/0/freq"))

	updates, err := in.Poll(ctx, 0, 0, wire.PollNone)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestInstrumentPollWakesOnData(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)
	require.NoError(t, in.Subscribe(ctx, "demod/0/sample"))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = in.Emit("demod/0/sample", 0.25)
	}()

	start := time.Now()
	updates, err := in.Poll(ctx, 5*time.Second, 0, wire.PollNone)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "poll returns on first data, not at the deadline")
	require.Len(t, updates["demod/0/sample"], 1)
	assert.Equal(t, 0.25, updates["demod/0/sample"][0].Value)
}

func TestInstrumentPollTimeoutCapsRecording(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	start := time.Now()
	updates, err := in.Poll(ctx, time.Hour, 20*time.Millisecond, wire.PollNone)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NotNil(t, updates)
	assert.Empty(t, updates)
}

func TestInstrumentPollContextCanceled(t *testing.T) {
	in := demoInstrument(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := in.Poll(ctx, time.Hour, 0, wire.PollNone)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInstrumentEmit(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	// Emit updates read-only nodes; that's how measurement data moves.
	require.NoError(t, in.Emit("demod/0/sample", 0.5))
	v, err := in.Get(ctx, "demod/0/sample")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	updates, err := in.Poll(ctx, 0, 0, wire.PollNone)
	require.NoError(t, err)
	assert.Empty(t, updates, "unsubscribed emits don't buffer")

	assert.ErrorIs(t, in.Emit("nope", 1.0), schema.ErrNodeNotFound)
	assert.ErrorIs(t, in.Emit("demod/0/sample", "x"), schema.ErrValueType)
}

func TestInstrumentGenerator(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)
	require.NoError(t, in.Subscribe(ctx, "demod/0/sample"))

	stop, err := in.StartGenerator("demod/0/sample", 5*time.Millisecond, func(n uint64) any {
		return float64(n)
	})
	require.NoError(t, err)

	updates, err := in.Poll(ctx, 5*time.Second, 0, wire.PollNone)
	require.NoError(t, err)
	require.NotEmpty(t, updates["demod/0/sample"])
	assert.Equal(t, float64(0), updates["demod/0/sample"][0].Value)

	stop()
	stop() // stopping twice is fine

	// Drain leftovers; nothing new arrives once stopped.
	_, err = in.Poll(ctx, 0, 0, wire.PollNone)
	require.NoError(t, err)
	final, err := in.Poll(ctx, 30*time.Millisecond, 0, wire.PollNone)
	require.NoError(t, err)
	assert.Empty(t, final)

	_, err = in.StartGenerator("nope", time.Millisecond, func(uint64) any { return 0.0 })
	assert.ErrorIs(t, err, schema.ErrNodeNotFound)
	_, err = in.StartGenerator("demod/0/sample", 0, func(uint64) any { return 0.0 })
	assert.Error(t, err)
}

func TestInstrumentStats(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)

	_, _ = in.Get(ctx, "osc/0/freq")
	_, _ = in.Get(ctx, "osc/1/freq")
	_, _, _ = in.GetDeep(ctx, "osc/0/freq")
	_ = in.Set(ctx, "osc/0/freq", 1e6)
	_, _ = in.SetDeep(ctx, "osc/0/freq", 2e6)
	_ = in.SetBatch(ctx, []wire.BatchWrite{{Path: "osc/0/freq", Value: 3e6}})
	_, _ = in.ListNodes(ctx, "", 0)
	_, _ = in.NodeInfo(ctx, "osc/0/freq")
	_ = in.Subscribe(ctx, "osc/0/freq")
	_, _ = in.Poll(ctx, 0, 0, wire.PollNone)

	assert.Equal(t, Stats{
		Gets:       2,
		GetDeeps:   1,
		Sets:       1,
		SetDeeps:   1,
		Batches:    1,
		Lists:      1,
		Infos:      1,
		Subscribes: 1,
		Polls:      1,
	}, in.Stats())
}

// A tree can drive the instrument in-process, which exercises the
// whole resolution and codec stack without a socket.
func TestInstrumentDrivesTree(t *testing.T) {
	ctx := context.Background()
	in := demoInstrument(t)
	tree := node.NewTree(in)

	got, err := tree.Node("osc/*/freq").GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"osc/0/freq": 10e6,
		"osc/1/freq": 10e6,
	}, got)

	require.NoError(t, tree.Node("osc/*/freq").Set(ctx, 5e6, node.Broadcast()))
	v, err := in.Get(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Equal(t, 5e6, v)
	v, err = in.Get(ctx, "osc/1/freq")
	require.NoError(t, err)
	assert.Equal(t, 5e6, v)

	// Enum decode and encode run through the tree's codec.
	label, err := tree.Node("sigin/0/ac").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "off", label)
	require.NoError(t, tree.Node("sigin/0/ac").Set(ctx, "on"))
	raw, err := in.Get(ctx, "sigin/0/ac")
	require.NoError(t, err)
	assert.Equal(t, int64(1), raw)
}
