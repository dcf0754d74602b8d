package wire

import "strings"

// ListFlags modify a ListNodes request.
type ListFlags uint8

const (
	// ListRecursive returns the whole subtree, not just direct children.
	ListRecursive ListFlags = 1 << iota

	// ListLeavesOnly returns only leaf nodes.
	ListLeavesOnly

	// ListSettingsOnly returns only configuration nodes.
	ListSettingsOnly

	// ListStreamingOnly returns only streaming measurement nodes.
	ListStreamingOnly
)

// Has returns true if all given flags are set.
func (f ListFlags) Has(flags ListFlags) bool {
	return f&flags == flags
}

// String returns the flag names, "|"-joined, or "-" when empty.
func (f ListFlags) String() string {
	var parts []string
	if f.Has(ListRecursive) {
		parts = append(parts, "recursive")
	}
	if f.Has(ListLeavesOnly) {
		parts = append(parts, "leavesonly")
	}
	if f.Has(ListSettingsOnly) {
		parts = append(parts, "settingsonly")
	}
	if f.Has(ListStreamingOnly) {
		parts = append(parts, "streamingonly")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// PollFlags modify a Poll request.
type PollFlags uint8

const (
	// PollNone requests default poll behavior.
	PollNone PollFlags = 0

	// PollDetectGaps asks the device to flag discontinuities in
	// streamed data. Reserved; devices may ignore it.
	PollDetectGaps PollFlags = 1
)

// GetResult is the response payload for Get and GetDeep.
//
// Timestamp is in device clock ticks (see HelloResult.ClockRate) and
// only meaningful for GetDeep; plain Get reports the data server's
// last known value, which carries no timestamp guarantee.
type GetResult struct {
	Value     any    `cbor:"1,keyasint"`
	Timestamp uint64 `cbor:"2,keyasint,omitempty"`
}

// SetRequest is the request payload for Set and SetDeep.
type SetRequest struct {
	Value any `cbor:"1,keyasint"`
}

// SetResult is the response payload for SetDeep: the value the device
// acknowledges, which may differ from the requested value due to
// rounding or clamping. Plain Set responds with no payload.
type SetResult struct {
	Value any `cbor:"1,keyasint,omitempty"`
}

// BatchWrite is one path/value pair of a SetBatch request.
type BatchWrite struct {
	Path  string `cbor:"1,keyasint"`
	Value any    `cbor:"2,keyasint"`
}

// SetBatchRequest is the request payload for SetBatch. Writes are
// applied in order; duplicate paths are not coalesced, the last write
// wins.
type SetBatchRequest struct {
	Writes []BatchWrite `cbor:"1,keyasint"`
}

// ListNodesRequest is the request payload for ListNodes; the prefix
// travels in the request path field.
type ListNodesRequest struct {
	Flags ListFlags `cbor:"1,keyasint,omitempty"`
}

// ListNodesResult is the response payload for ListNodes.
type ListNodesResult struct {
	Paths []string `cbor:"1,keyasint,omitempty"`
}

// NodeInfoResult is the response payload for NodeInfo.
type NodeInfoResult struct {
	Description string           `cbor:"1,keyasint,omitempty"`
	Readable    bool             `cbor:"2,keyasint,omitempty"`
	Writable    bool             `cbor:"3,keyasint,omitempty"`
	Setting     bool             `cbor:"4,keyasint,omitempty"`
	Vector      bool             `cbor:"5,keyasint,omitempty"`
	Unit        string           `cbor:"6,keyasint,omitempty"`
	Type        uint8            `cbor:"7,keyasint"`
	Options     map[int64]string `cbor:"8,keyasint,omitempty"`
	Streaming   bool             `cbor:"9,keyasint,omitempty"`
}

// PollRequest is the request payload for Poll. The device waits up to
// RecordingTimeMS for data to arrive; TimeoutMS bounds the total
// server-side processing time.
type PollRequest struct {
	RecordingTimeMS uint32    `cbor:"1,keyasint"`
	TimeoutMS       uint32    `cbor:"2,keyasint,omitempty"`
	Flags           PollFlags `cbor:"3,keyasint,omitempty"`
}

// PollResult is the response payload for Poll: buffered samples per
// subscribed path, in arrival order. Paths without new samples are
// absent.
type PollResult struct {
	Updates map[string][]Sample `cbor:"1,keyasint,omitempty"`
}

// HelloRequest is the request payload for Hello.
type HelloRequest struct {
	ProtocolVersion string `cbor:"1,keyasint"`
	ClientName      string `cbor:"2,keyasint,omitempty"`
}

// HelloResult is the response payload for Hello.
type HelloResult struct {
	ProtocolVersion string  `cbor:"1,keyasint"`
	DeviceID        string  `cbor:"2,keyasint"`
	ClockRate       float64 `cbor:"3,keyasint"`
}

// ErrorPayload carries additional error information in a failed
// response.
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
	Path    string `cbor:"2,keyasint,omitempty"`
}
