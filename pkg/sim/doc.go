// Package sim provides an in-memory instrument for development and
// tests: a settings tree defined by YAML fixtures, driven in-process
// as a node.Backend or served over the wire protocol.
//
// Build an instrument from the demo fixture and serve it:
//
//	inst, err := sim.FromFixture(sim.DefaultFixture(), sim.Config{})
//	if err != nil {
//		return err
//	}
//	srv, err := sim.NewServer(inst, sim.ServerConfig{Address: ":8614"})
//	if err != nil {
//		return err
//	}
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//	defer srv.Stop()
//
// For tests that don't need a socket, hang a tree directly on the
// instrument:
//
//	tree := node.NewTree(inst)
//	freqs, err := tree.Node("osc/*/freq").Get(ctx)
//
// Writes to subscribed nodes buffer samples that Poll drains, and
// StartGenerator emits synthetic measurement data on an interval.
package sim
