// Package transport provides the Arbor transport layer implementation.
//
// The transport layer handles:
//   - TCP connections, optionally wrapped in TLS 1.3
//   - Length-prefixed message framing
//   - WebSocket transport for HTTP-fronted devices
//   - Keep-alive ping/pong for connection liveness
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│     TLS 1.3 (optional)         │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Instruments on a trusted lab network typically run plain TCP on
// port 8614. A nil TLSConfig selects plain TCP on both ends.
//
// # TLS
//
// When TLS is enabled it is TLS 1.3 with no fallback to earlier
// versions, and ALPN carries the protocol major version. Client
// certificates are required only when the server is configured with
// a client CA pool.
//
// # WebSocket
//
// Client.ConnectWebSocket dials ws:// or wss:// endpoints. Each
// binary WebSocket message carries one complete wire message; the TCP
// length prefix is not used on this path.
//
// # Keep-Alive
//
// Connection liveness is monitored using ping/pong messages:
//   - Ping interval: 30 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
package transport
