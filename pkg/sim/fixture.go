package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
)

// Fixture describes a simulated device in YAML: identity, clock rate,
// and the settings tree. The same format feeds arbor-sim and
// arbor-nodegen.
type Fixture struct {
	DeviceID  string        `yaml:"device_id"`
	ClockRate float64       `yaml:"clock_rate"`
	Nodes     []FixtureNode `yaml:"nodes"`
}

// FixtureNode describes one leaf node. Readable defaults to true;
// Writable and Setting default to the inverse of Streaming, so a
// plain node is a read-write setting and a streaming node is a
// read-only measurement. Enumerated initial values may be given as
// option labels.
type FixtureNode struct {
	Path        string           `yaml:"path"`
	Type        string           `yaml:"type"`
	Description string           `yaml:"description,omitempty"`
	Readable    *bool            `yaml:"readable,omitempty"`
	Writable    *bool            `yaml:"writable,omitempty"`
	Setting     *bool            `yaml:"setting,omitempty"`
	Streaming   bool             `yaml:"streaming,omitempty"`
	Vector      bool             `yaml:"vector,omitempty"`
	Unit        string           `yaml:"unit,omitempty"`
	Options     map[int64]string `yaml:"options,omitempty"`
	Initial     any              `yaml:"initial,omitempty"`
}

// Info converts the fixture node to schema metadata, applying the
// defaults described on FixtureNode.
func (n FixtureNode) Info() schema.NodeInfo {
	readable := n.Readable == nil || *n.Readable
	writable := !n.Streaming
	if n.Writable != nil {
		writable = *n.Writable
	}
	setting := !n.Streaming
	if n.Setting != nil {
		setting = *n.Setting
	}
	return schema.NodeInfo{
		Path:        nodepath.Parse(n.Path).String(),
		Description: n.Description,
		Readable:    readable,
		Writable:    writable,
		Setting:     setting,
		Streaming:   n.Streaming,
		Vector:      n.Vector,
		Unit:        n.Unit,
		Type:        schema.ParseValueType(n.Type),
		Options:     n.Options,
	}
}

// ParseFixture parses and validates a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFixture reads and parses a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks the fixture for structural problems: empty or
// duplicate paths, missing or unknown types, enumerations without
// options.
func (f *Fixture) Validate() error {
	seen := make(map[string]struct{})
	for i, n := range f.Nodes {
		canon := nodepath.Parse(n.Path).String()
		if canon == "" {
			return fmt.Errorf("node %d: path required", i)
		}
		if _, dup := seen[canon]; dup {
			return fmt.Errorf("node %s defined twice", canon)
		}
		seen[canon] = struct{}{}
		if n.Type == "" {
			return fmt.Errorf("node %s: type required", canon)
		}
		vt := schema.ParseValueType(n.Type)
		if vt == schema.TypeUnknown {
			return fmt.Errorf("node %s: unknown type %q", canon, n.Type)
		}
		if vt == schema.TypeEnumerated && len(n.Options) == 0 {
			return fmt.Errorf("node %s: enumerated type needs options", canon)
		}
	}
	return nil
}

// FromFixture builds an instrument from a fixture. Config fields left
// zero adopt the fixture's device ID and clock rate.
func FromFixture(f *Fixture, config Config) (*Instrument, error) {
	if config.DeviceID == "" {
		config.DeviceID = f.DeviceID
	}
	if config.ClockRate == 0 {
		config.ClockRate = f.ClockRate
	}
	in := New(config)
	for _, n := range f.Nodes {
		info := n.Info()
		initial := n.Initial
		if info.Type == schema.TypeEnumerated {
			if label, ok := initial.(string); ok {
				raw, defined := info.OptionValue(label)
				if !defined {
					return nil, fmt.Errorf("fixture node %s: %q is not a defined option", n.Path, label)
				}
				initial = raw
			}
		}
		if err := in.AddNode(info, initial); err != nil {
			return nil, fmt.Errorf("fixture node %s: %w", n.Path, err)
		}
	}
	return in, nil
}

// DefaultFixture returns a small demo instrument: two oscillators, a
// demodulator with a streaming sample node, a signal input, and a
// read-only serial number.
func DefaultFixture() *Fixture {
	no := false
	onOff := map[int64]string{0: "off", 1: "on"}
	return &Fixture{
		DeviceID:  DefaultDeviceID,
		ClockRate: DefaultClockRate,
		Nodes: []FixtureNode{
			{Path: "osc/0/freq", Type: "double", Unit: "Hz", Description: "Oscillator 0 frequency", Initial: 10e6},
			{Path: "osc/1/freq", Type: "double", Unit: "Hz", Description: "Oscillator 1 frequency", Initial: 10e6},
			{Path: "sigin/0/range", Type: "double", Unit: "V", Description: "Signal input 0 range", Initial: 1.0},
			{Path: "sigin/0/ac", Type: "enum", Options: onOff, Description: "Signal input 0 AC coupling", Initial: "off"},
			{Path: "demod/0/enable", Type: "enum", Options: onOff, Description: "Demodulator 0 enable", Initial: "off"},
			{Path: "demod/0/rate", Type: "double", Unit: "1/s", Description: "Demodulator 0 data rate", Initial: 1.674e3},
			{Path: "demod/0/order", Type: "int64", Description: "Demodulator 0 filter order", Initial: 4},
			{Path: "demod/0/sample", Type: "double", Unit: "V", Streaming: true, Description: "Demodulator 0 sample stream"},
			{Path: "system/preset/load", Type: "int64", Readable: &no, Description: "Load a preset slot"},
			{Path: "dev/serial", Type: "string", Writable: &no, Description: "Device serial number", Initial: "SIM-8614"},
		},
	}
}
