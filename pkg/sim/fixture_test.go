package sim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-protocol/arbor-go/pkg/schema"
)

const sampleFixture = `
device_id: dev8047
clock_rate: 60.0e6
nodes:
  - path: osc/0/freq
    type: double
    unit: Hz
    description: Oscillator frequency
    initial: 1.0e6
  - path: osc/0/enable
    type: enum
    options:
      0: "off"
      1: "on"
    initial: "on"
  - path: demod/0/sample
    type: double
    unit: V
    streaming: true
  - path: dev/serial
    type: string
    writable: false
    initial: DEV8047
`

func TestParseFixture(t *testing.T) {
	f, err := ParseFixture([]byte(sampleFixture))
	require.NoError(t, err)
	assert.Equal(t, "dev8047", f.DeviceID)
	assert.Equal(t, 60e6, f.ClockRate)
	require.Len(t, f.Nodes, 4)
	assert.Equal(t, map[int64]string{0: "off", 1: "on"}, f.Nodes[1].Options)
}

func TestFixtureNodeDefaults(t *testing.T) {
	f, err := ParseFixture([]byte(sampleFixture))
	require.NoError(t, err)

	// Plain node: read-write setting.
	info := f.Nodes[0].Info()
	assert.True(t, info.Readable)
	assert.True(t, info.Writable)
	assert.True(t, info.Setting)
	assert.False(t, info.Streaming)
	assert.Equal(t, schema.TypeDouble, info.Type)

	// Streaming node: read-only measurement.
	info = f.Nodes[2].Info()
	assert.True(t, info.Readable)
	assert.False(t, info.Writable)
	assert.False(t, info.Setting)
	assert.True(t, info.Streaming)

	// Explicit writable overrides the default.
	info = f.Nodes[3].Info()
	assert.False(t, info.Writable)
	assert.True(t, info.Setting)
}

func TestParseFixtureErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", `{{`},
		{"missing path", "nodes:\n  - type: double\n"},
		{"missing type", "nodes:\n  - path: a/b\n"},
		{"unknown type", "nodes:\n  - path: a/b\n    type: quaternion\n"},
		{"enum without options", "nodes:\n  - path: a/b\n    type: enum\n"},
		{"duplicate path", "nodes:\n  - path: a/b\n    type: double\n  - path: /A/B\n    type: double\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestFromFixture(t *testing.T) {
	ctx := context.Background()
	f, err := ParseFixture([]byte(sampleFixture))
	require.NoError(t, err)

	in, err := FromFixture(f, Config{})
	require.NoError(t, err)
	assert.Equal(t, "dev8047", in.DeviceID())
	assert.Equal(t, 60e6, in.ClockRate())

	// Enum initial given as a label.
	v, err := in.Get(ctx, "osc/0/enable")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Streaming node without an initial starts at the type's zero.
	v, err = in.Get(ctx, "demod/0/sample")
	require.NoError(t, err)
	assert.Equal(t, float64(0), v)
}

func TestFromFixtureConfigOverrides(t *testing.T) {
	f, err := ParseFixture([]byte(sampleFixture))
	require.NoError(t, err)

	in, err := FromFixture(f, Config{DeviceID: "bench-1", ClockRate: 100e6})
	require.NoError(t, err)
	assert.Equal(t, "bench-1", in.DeviceID())
	assert.Equal(t, 100e6, in.ClockRate())
}

func TestFromFixtureBadLabel(t *testing.T) {
	f := &Fixture{Nodes: []FixtureNode{{
		Path: "mode", Type: "enum",
		Options: map[int64]string{0: "idle"},
		Initial: "warp",
	}}}
	_, err := FromFixture(f, Config{})
	assert.ErrorContains(t, err, "not a defined option")
}

func TestDefaultFixture(t *testing.T) {
	ctx := context.Background()
	f := DefaultFixture()
	require.NoError(t, f.Validate())

	in, err := FromFixture(f, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDeviceID, in.DeviceID())
	assert.Len(t, in.Paths(), 10)

	v, err := in.Get(ctx, "osc/0/freq")
	require.NoError(t, err)
	assert.Equal(t, 10e6, v)
	v, err = in.Get(ctx, "sigin/0/ac")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFixture), 0o644))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, "dev8047", f.DeviceID)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
