// Package session ties a device connection to its settings tree and
// adds the stateful client concerns: transactional write batching,
// subscription bookkeeping, multi-device grouping and reconnection.
//
// # Connecting
//
// Connect dials, completes the hello exchange and returns a Conn
// whose Node handles route through the connection:
//
//	conn, err := session.Connect(ctx, session.Config{
//		Addr: "10.0.0.17:8614",
//	})
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	freq := conn.Node("osc/0/freq")
//	value, err := freq.Get(ctx)
//
// # Transactions
//
// A transaction turns the set calls inside it into one batch request.
// Writes keep their issue order, duplicate paths are not coalesced,
// and the device applies last write wins:
//
//	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
//		if err := conn.Node("osc/0/freq").Set(ctx, 1.2e6); err != nil {
//			return err
//		}
//		return conn.Node("osc/0/enable").Set(ctx, "on")
//	})
//
// The flush happens exactly once when the function returns, also on
// error or panic. The explicit form suits scopes that cross function
// boundaries:
//
//	tx := conn.BeginTransaction()
//	defer tx.End(ctx)
//
// Reads, subscriptions and schema queries inside a transaction pass
// through to the device unaffected.
//
// # Multiple Devices
//
// A Session groups connections under one namespace. The first path
// segment selects the device:
//
//	sess := session.NewSession()
//	sess.Attach(connA) // device dev8047
//	sess.Attach(connB) // device dev8123
//
//	n, err := sess.Node("dev8047/osc/0/freq")
//
// Session.Poll drains every device in parallel and prefixes the
// returned paths with the device id; Session.BeginTransaction spans
// all attached devices and flushes one batch per device.
//
// # Reconnection
//
// A Redialer keeps a Conn usable across connection loss. It watches
// the underlying client, dials again with exponential backoff and
// rebinds the same Conn, so handles and registered parsers stay
// valid; the schema cache is dropped and subscriptions are
// re-issued:
//
//	r := session.NewRedialer(session.RedialConfig{
//		Dial: session.NewDialer(config),
//	})
//	conn, err := r.Connect(ctx)
//	defer r.Close()
package session
