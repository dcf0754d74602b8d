// Package schema provides node metadata and the lazy per-connection
// schema cache.
//
// An Arbor device describes every leaf node of its settings tree with
// a NodeInfo record: description, access flags, unit, value type, and
// (for enumerated nodes) the option table. The full schema of a large
// device spans tens of thousands of leaves, so fetching it eagerly at
// connect time is not acceptable; Cache fetches it lazily, one subtree
// listing or one node record at a time, and memoizes everything for
// the lifetime of the connection.
//
// # Laziness
//
// Cache.Children fetches a prefix's child listing at most once.
// Cache.Lookup fetches a node's metadata at most once, including
// definitive not-found answers. Concurrent first accesses to the same
// key collapse into a single fetch. Invalidate drops all cached state
// and is meant for connection teardown or reconnect.
package schema
