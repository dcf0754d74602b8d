// Package rpc implements the Arbor request/response layer.
//
// A Client multiplexes concurrent requests over one connection:
// every request carries a message ID, and the client's read loop
// correlates each response back to its caller. Notifications and
// control messages arriving between responses are routed to their
// handlers without disturbing in-flight requests.
//
// # Usage
//
// Connect a transport, wrap it in a client, and perform the
// handshake before anything else:
//
//	tc := transport.NewClient(transport.ClientConfig{})
//	conn, err := tc.Connect(ctx, "instrument.local:8614")
//	if err != nil {
//		return err
//	}
//
//	client := rpc.NewClient(conn, rpc.Config{})
//	defer client.Close()
//
//	hello, err := client.Hello(ctx, "my-tool")
//	if err != nil {
//		return err
//	}
//	fmt.Println("connected to", hello.DeviceID)
//
//	value, err := client.Get(ctx, "osc/1/freq")
//
// # Error Handling
//
// Failures split into two families. Transport and timeout failures
// come back as plain errors (ErrRequestTimeout, ErrClientClosed,
// connection errors). Failures the device itself reported come back
// as a *StatusError wrapping ErrStatus:
//
//	err := client.Set(ctx, "osc/1/freq", 2e6)
//	if errors.Is(err, rpc.ErrStatus) {
//		var se *rpc.StatusError
//		errors.As(err, &se)
//		fmt.Println("device said:", se.Status, se.Message)
//	}
//
// # Liveness
//
// Unless disabled, the client pings the device at the configured
// keep-alive interval. A device that stops answering is detected and
// the connection is torn down with ErrKeepAliveTimeout, failing all
// pending requests and firing the OnDisconnect callback.
package rpc
