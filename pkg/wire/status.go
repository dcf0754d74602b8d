package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusNotFound indicates the path doesn't name a known node.
	StatusNotFound Status = 1

	// StatusNotReadable indicates a read of a write-only node.
	StatusNotReadable Status = 2

	// StatusNotWritable indicates a write to a read-only node.
	StatusNotWritable Status = 3

	// StatusInvalidValue indicates the value doesn't match the node's
	// type or violates a constraint.
	StatusInvalidValue Status = 4

	// StatusBadRequest indicates a malformed request.
	StatusBadRequest Status = 5

	// StatusInternal indicates a device-side failure.
	StatusInternal Status = 6

	// StatusBusy indicates the device is busy; try again later.
	StatusBusy Status = 7

	// StatusTimeout indicates the operation timed out device-side.
	StatusTimeout Status = 8

	// StatusUnsupported indicates the operation is not supported.
	StatusUnsupported Status = 9
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotReadable:
		return "NOT_READABLE"
	case StatusNotWritable:
		return "NOT_WRITABLE"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusInternal:
		return "INTERNAL"
	case StatusBusy:
		return "BUSY"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusUnsupported:
		return "UNSUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
