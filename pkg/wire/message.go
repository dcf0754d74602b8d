package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys for message encoding.
// All Arbor messages use integer keys for efficiency.
const (
	// Common message keys
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
	KeyPath       = 3 // Request target path (requests only)
	KeyPayload    = 4 // Request payload; responses use key 3

	// Notification-specific keys (messageId=0 indicates notification)
	KeyNotifyPath    = 2
	KeyNotifySamples = 3
)

// NotificationMessageID is reserved to indicate a notification message.
const NotificationMessageID uint32 = 0

// FirstMessageID is the lowest message ID a client may allocate for a
// request. IDs 1-15 are reserved so control messages stay unambiguous.
const FirstMessageID uint32 = 16

// Request represents an Arbor request message from client to device.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32, >= 16
//	  2: operation,    // uint8
//	  3: path,         // text string, "" when the operation has no target
//	  4: payload       // operation-specific data, CBOR-encoded
//	}
//
// The path key is always present, even when empty: the framing layer
// relies on it to tell requests apart from other message types.
type Request struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Operation Operation       `cbor:"2,keyasint"`
	Path      string          `cbor:"3,keyasint"`
	Payload   cbor.RawMessage `cbor:"4,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID < FirstMessageID {
		return fmt.Errorf("messageId %d is reserved", r.MessageID)
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	return nil
}

// Response represents an Arbor response message from device to client.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32: matches request
//	  2: status,       // uint8: 0=success, or error code
//	  3: payload       // operation-specific response data
//	}
type Response struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Status    Status          `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Notification represents an unsolicited sample push from device to
// client. The poll operation is the supported drain mechanism; push
// notifications are reserved for future protocol versions, but the
// frame layout is fixed here so peers can already skip them safely.
//
// CBOR encoding:
//
//	{
//	  1: 0,          // messageId 0 = notification
//	  2: path,       // text string
//	  3: samples     // array of samples
//	}
type Notification struct {
	Path    string   `cbor:"2,keyasint"`
	Samples []Sample `cbor:"3,keyasint,omitempty"`
}

// ControlMessage represents a transport-level control message.
// These are separate from the request/response/notification model.
type ControlMessage struct {
	Type     ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32             `cbor:"2,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}
