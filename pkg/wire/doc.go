// Package wire defines the CBOR wire format types for the Arbor protocol.
//
// Arbor uses CBOR (RFC 8949) with integer keys for efficient encoding.
// All messages are length-prefixed and transmitted over TCP, optionally
// inside TLS 1.3.
//
// # Message Types
//
// There are four message types:
//   - Request: Client to device (Get, Set, ListNodes, Subscribe, Poll, ...)
//   - Response: Device to client (success or error, correlated by message ID)
//   - Notification: Device to client (unsolicited sample push, reserved)
//   - ControlMessage: Either direction (ping/pong/close)
//
// # Message IDs
//
// Message ID 0 is reserved for notifications. IDs 1 through 15 are
// reserved so that control messages, whose first key carries the
// control type (1-3), can never be confused with a response; clients
// allocate request IDs starting at FirstMessageID.
//
// # CBOR Integer Keys
//
// All maps use integer keys for compactness. Decoding is lenient:
// unknown keys are ignored so newer peers can add fields without
// breaking older ones.
package wire
