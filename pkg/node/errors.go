package node

import "errors"

// Tree errors. All of them are wrapped with the offending path or
// pattern; match with errors.Is.
var (
	// ErrNoMatchingNodes indicates a resolution matched zero leaves
	// under the strict policy.
	ErrNoMatchingNodes = errors.New("no matching nodes")

	// ErrNotReadable indicates a read of a write-only node. Raised
	// locally, before any round trip.
	ErrNotReadable = errors.New("node is not readable")

	// ErrNotWritable indicates a write to a read-only node. Raised
	// locally, before any round trip.
	ErrNotWritable = errors.New("node is not writable")

	// ErrAmbiguousDeep indicates a deep get or set against a handle
	// that resolves to more than one leaf. Deep semantics are only
	// defined for a single node: the device acknowledges one value,
	// not a mapping.
	ErrAmbiguousDeep = errors.New("deep operation needs exactly one node")

	// ErrBroadcastRequired indicates a set against a multi-node
	// resolution without the Broadcast option. Writing the same value
	// to many nodes is deliberate enough to demand opting in.
	ErrBroadcastRequired = errors.New("multi-node set requires Broadcast")

	// ErrTimeout indicates WaitForStateChange expired before the
	// value matched.
	ErrTimeout = errors.New("timeout")
)
