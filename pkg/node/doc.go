// Package node implements the lazy client-side view of a device's
// settings tree.
//
// A Tree wraps a backend connection; Node handles are cheap immutable
// values that name positions in the tree. Deriving handles performs
// no I/O and no validation; only terminal operations resolve the path
// against the device's schema:
//
//	tree := node.NewTree(conn)
//	freq := tree.Node("osc").Index(1).Child("freq")   // no I/O yet
//	value, err := freq.Get(ctx)                       // resolves, reads
//	err = freq.Set(ctx, 1.5e6)                        // resolves, writes
//
// The schema is fetched lazily and cached per tree: the first
// operation under a subtree lists and describes it, later operations
// reuse the cache.
//
// # Wildcards
//
// A handle's path may contain wildcard segments. Resolution expands
// them against the schema; interior nodes expand to every leaf below
// them:
//
//	all, err := tree.Node("osc/*/freq").GetAll(ctx)
//	// map["osc/0/freq"]=..., map["osc/1/freq"]=...
//
// A Get on a handle resolving to exactly one leaf returns the bare
// value; otherwise it returns the same path-keyed map GetAll always
// returns. Writing through a multi-node handle requires the explicit
// Broadcast option; without it the set fails with
// ErrBroadcastRequired rather than fan out by accident.
//
// Empty resolutions are governed by the tree's policy: strict (the
// default) fails with ErrNoMatchingNodes, tolerant logs a warning and
// no-ops. Tolerant mode exists for firmware variants that omit
// optional subtrees.
//
// # Deep Operations
//
// By default gets return the data server's last known value and sets
// return as soon as the data server accepts the write. The Deep
// option bypasses that cache: a deep get asks the device itself and
// carries the device timestamp (GetWithTimestamp), a deep set blocks
// until the device acknowledges the applied value. Deep semantics
// need exactly one leaf; multi-node deep calls fail with
// ErrAmbiguousDeep.
//
// # Tree Walks
//
// Children returns a lazy iterator over the nodes below a handle,
// narrowed by AND-composed filters:
//
//	for child, err := range tree.Root().Children(ctx,
//		node.Recursive(), node.LeavesOnly(), node.SettingsOnly()) {
//		...
//	}
//
// The walk re-reads the schema cache on every restart, so it observes
// Invalidate.
//
// # Values
//
// Read values pass through the codec pipeline: CBOR shapes are
// normalized (integers to int64, float32 to float64, interleaved
// complex vectors to []complex128), enumerated integers become their
// option labels, and registered user parsers run last. Writes run the
// same pipeline in reverse. The Raw and RawEnum options switch the
// parser and enum layers off per call.
package node
