package wire

// Operation represents an Arbor protocol operation.
type Operation uint8

const (
	// OpGet reads a node's last value known to the data server.
	OpGet Operation = 1

	// OpGetDeep reads a node's value directly from the device,
	// bypassing any data-server cache, and returns a timestamp.
	OpGetDeep Operation = 2

	// OpSet writes a node's value.
	OpSet Operation = 3

	// OpSetDeep writes a node's value directly to the device and
	// returns the acknowledged value.
	OpSetDeep Operation = 4

	// OpSetBatch applies an ordered list of writes in one round trip.
	OpSetBatch Operation = 5

	// OpListNodes enumerates the paths below a prefix.
	OpListNodes Operation = 6

	// OpNodeInfo fetches a leaf node's schema metadata.
	OpNodeInfo Operation = 7

	// OpSubscribe starts server-side buffering of a node's updates.
	OpSubscribe Operation = 8

	// OpUnsubscribe stops server-side buffering of a node's updates.
	OpUnsubscribe Operation = 9

	// OpPoll drains buffered updates for all subscribed nodes.
	OpPoll Operation = 10

	// OpHello exchanges protocol version, device identity, and clock
	// rate; sent once after connect.
	OpHello Operation = 11
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpGet:
		return "Get"
	case OpGetDeep:
		return "GetDeep"
	case OpSet:
		return "Set"
	case OpSetDeep:
		return "SetDeep"
	case OpSetBatch:
		return "SetBatch"
	case OpListNodes:
		return "ListNodes"
	case OpNodeInfo:
		return "NodeInfo"
	case OpSubscribe:
		return "Subscribe"
	case OpUnsubscribe:
		return "Unsubscribe"
	case OpPoll:
		return "Poll"
	case OpHello:
		return "Hello"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a valid Arbor operation.
func (o Operation) IsValid() bool {
	return o >= OpGet && o <= OpHello
}
