package node

import (
	"context"
	"iter"

	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
)

// childrenOptions collects the walk predicates. They compose by AND.
type childrenOptions struct {
	recursive        bool
	leavesOnly       bool
	settingsOnly     bool
	streamingOnly    bool
	subscribedOnly   bool
	baseChannelOnly  bool
	excludeStreaming bool
	excludeVectors   bool
}

// Filter narrows a Children walk.
type Filter func(*childrenOptions)

// Recursive descends into interior nodes instead of stopping one
// level down.
func Recursive() Filter {
	return func(o *childrenOptions) { o.recursive = true }
}

// LeavesOnly yields only leaf nodes.
func LeavesOnly() Filter {
	return func(o *childrenOptions) { o.leavesOnly = true }
}

// SettingsOnly yields only leaves marked as settings.
func SettingsOnly() Filter {
	return func(o *childrenOptions) { o.settingsOnly = true }
}

// StreamingOnly yields only leaves that stream sample data.
func StreamingOnly() Filter {
	return func(o *childrenOptions) { o.streamingOnly = true }
}

// SubscribedOnly yields only leaves with an active subscription.
// Requires a backend that tracks subscriptions; otherwise nothing
// matches.
func SubscribedOnly() Filter {
	return func(o *childrenOptions) { o.subscribedOnly = true }
}

// BaseChannelOnly keeps only the first channel at every indexed
// level: of the integer-named children of a node, all but the first
// are pruned, subtrees included. Cuts multi-channel repetition out of
// schema sweeps.
func BaseChannelOnly() Filter {
	return func(o *childrenOptions) { o.baseChannelOnly = true }
}

// ExcludeStreaming drops leaves that stream sample data.
func ExcludeStreaming() Filter {
	return func(o *childrenOptions) { o.excludeStreaming = true }
}

// ExcludeVectors drops leaves with vector values.
func ExcludeVectors() Filter {
	return func(o *childrenOptions) { o.excludeVectors = true }
}

// Children returns a lazy walk over the nodes below this handle.
// The walk is finite and restartable: each range re-reads the schema
// cache, so a walk started after an Invalidate sees fresh listings.
// Yielded errors come from schema fetches; the walk stops at the
// first one.
//
//	for child, err := range dev.Node("osc").Children(ctx, node.Recursive(), node.LeavesOnly()) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(child)
//	}
func (n Node) Children(ctx context.Context, filters ...Filter) iter.Seq2[Node, error] {
	var o childrenOptions
	for _, f := range filters {
		f(&o)
	}

	return func(yield func(Node, error) bool) {
		n.tree.walkChildren(ctx, n.path, o, yield)
	}
}

// walkChildren yields the filtered nodes below prefix, depth first in
// listing order. Returns false when the consumer stopped the walk.
func (t *Tree) walkChildren(ctx context.Context, prefix nodepath.Path, o childrenOptions, yield func(Node, error) bool) bool {
	kids, err := t.schema.Children(ctx, prefix)
	if err != nil {
		return yield(Node{tree: t, path: prefix}, err)
	}
	if o.baseChannelOnly {
		kids = pruneChannels(kids)
	}

	for _, k := range kids {
		info, isLeaf, err := t.schema.Lookup(ctx, k.String())
		if err != nil {
			return yield(Node{tree: t, path: k}, err)
		}

		if o.matches(t, k, info, isLeaf) {
			if !yield(Node{tree: t, path: k}, nil) {
				return false
			}
		}

		if o.recursive && !isLeaf {
			if !t.walkChildren(ctx, k, o, yield) {
				return false
			}
		}
	}
	return true
}

// matches applies the AND-composed predicates to one node. Inclusion
// predicates that need leaf metadata reject interior nodes; exclusion
// predicates let them pass.
func (o childrenOptions) matches(t *Tree, p nodepath.Path, info schema.NodeInfo, isLeaf bool) bool {
	if o.leavesOnly && !isLeaf {
		return false
	}
	if o.settingsOnly && (!isLeaf || !info.Setting) {
		return false
	}
	if o.streamingOnly && (!isLeaf || !info.Streaming) {
		return false
	}
	if o.subscribedOnly && (!isLeaf || !t.isSubscribed(p)) {
		return false
	}
	if o.excludeStreaming && isLeaf && info.Streaming {
		return false
	}
	if o.excludeVectors && isLeaf && info.Vector {
		return false
	}
	return true
}

// pruneChannels keeps only the first integer-named child of a
// listing; named children pass through untouched.
func pruneChannels(kids []nodepath.Path) []nodepath.Path {
	out := kids[:0:0]
	keptIndex := false
	for _, k := range kids {
		if isIndexSegment(k.Leaf()) {
			if keptIndex {
				continue
			}
			keptIndex = true
		}
		out = append(out, k)
	}
	return out
}

func isIndexSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
