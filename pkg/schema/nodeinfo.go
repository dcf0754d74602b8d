package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Schema errors.
var (
	// ErrNodeNotFound indicates the device has no node at the given path.
	ErrNodeNotFound = errors.New("node not found")

	// ErrValueType indicates a value does not match the node's type.
	ErrValueType = errors.New("invalid value type for node")
)

// ValueType is the wire-level type of a node's value.
type ValueType uint8

const (
	TypeUnknown ValueType = iota
	TypeInt64
	TypeDouble
	TypeString
	TypeComplexVector
	TypeByteVector
	TypeEnumerated
)

// String returns the value type name.
func (t ValueType) String() string {
	names := []string{
		"unknown", "int64", "double", "string",
		"complexvector", "bytevector", "enumerated",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "unknown"
}

// ParseValueType parses a value type name as used in fixtures and
// generated code. Unknown names yield TypeUnknown.
func ParseValueType(s string) ValueType {
	switch strings.ToLower(s) {
	case "int64", "int", "integer":
		return TypeInt64
	case "double", "float", "float64":
		return TypeDouble
	case "string":
		return TypeString
	case "complexvector", "complex":
		return TypeComplexVector
	case "bytevector", "bytes":
		return TypeByteVector
	case "enumerated", "enum":
		return TypeEnumerated
	default:
		return TypeUnknown
	}
}

// NodeInfo describes one leaf node of a device's settings tree.
// Immutable once fetched; owned by the connection's Cache.
type NodeInfo struct {
	// Path is the canonical absolute path of the node.
	Path string

	// Description is a human-readable description.
	Description string

	// Readable indicates the node's value can be read.
	Readable bool

	// Writable indicates the node's value can be written.
	Writable bool

	// Setting distinguishes configuration nodes from streaming
	// measurement nodes.
	Setting bool

	// Streaming indicates the node produces continuous sample data
	// when subscribed.
	Streaming bool

	// Vector indicates the value is a vector type regardless of Type
	// (some scalar-typed nodes report vector payloads).
	Vector bool

	// Unit is the unit of measurement (e.g. "Hz", "V", "dB").
	Unit string

	// Type is the value type.
	Type ValueType

	// Options maps raw integer values to labels. Only present when
	// Type is TypeEnumerated.
	Options map[int64]string
}

// AccessString returns the access flags as a short string: "R", "W",
// "RW", or "-".
func (n NodeInfo) AccessString() string {
	var s string
	if n.Readable {
		s += "R"
	}
	if n.Writable {
		s += "W"
	}
	if s == "" {
		return "-"
	}
	return s
}

// OptionLabel returns the label for a raw enumerated value.
func (n NodeInfo) OptionLabel(raw int64) (string, bool) {
	label, ok := n.Options[raw]
	return label, ok
}

// OptionValue returns the raw value for an enumerated label. Matching
// is exact first, then case-insensitive.
func (n NodeInfo) OptionValue(label string) (int64, bool) {
	for raw, l := range n.Options {
		if l == label {
			return raw, true
		}
	}
	for raw, l := range n.Options {
		if strings.EqualFold(l, label) {
			return raw, true
		}
	}
	return 0, false
}

// ValidateValue checks whether a raw value matches the node's type.
// Enumerated nodes accept integers naming a defined option; label
// translation happens in the codec layer, not here.
func (n NodeInfo) ValidateValue(value any) error {
	switch n.Type {
	case TypeInt64:
		if !isIntegerValue(value) {
			return fmt.Errorf("%w %s: expected integer, got %T", ErrValueType, n.Path, value)
		}
	case TypeDouble:
		if !isNumericValue(value) {
			return fmt.Errorf("%w %s: expected number, got %T", ErrValueType, n.Path, value)
		}
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w %s: expected string, got %T", ErrValueType, n.Path, value)
		}
	case TypeByteVector:
		if _, ok := value.([]byte); !ok {
			return fmt.Errorf("%w %s: expected bytes, got %T", ErrValueType, n.Path, value)
		}
	case TypeComplexVector:
		switch value.(type) {
		case []complex128, []float64:
		default:
			return fmt.Errorf("%w %s: expected complex vector, got %T", ErrValueType, n.Path, value)
		}
	case TypeEnumerated:
		iv, ok := ToInt64(value)
		if !ok {
			return fmt.Errorf("%w %s: expected enumerated integer, got %T", ErrValueType, n.Path, value)
		}
		if _, defined := n.Options[iv]; !defined {
			return fmt.Errorf("%w %s: %d is not a defined option", ErrValueType, n.Path, iv)
		}
	}
	return nil
}

// ToInt64 converts any integer-kind value to int64.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

// ToFloat64 converts any numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	if i, ok := ToInt64(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func isIntegerValue(v any) bool {
	_, ok := ToInt64(v)
	return ok
}

func isNumericValue(v any) bool {
	_, ok := ToFloat64(v)
	return ok
}
