package node

import (
	"context"
	"fmt"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/codec"
	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
)

// ResolvePolicy controls what happens when a path expression matches
// zero nodes.
type ResolvePolicy int

const (
	// ResolveStrict fails empty resolutions with ErrNoMatchingNodes.
	ResolveStrict ResolvePolicy = iota

	// ResolveTolerant logs a warning and turns empty resolutions into
	// no-ops: gets return an empty map, sets and subscribes do
	// nothing. Needed for firmware variants that omit optional nodes.
	ResolveTolerant
)

func (p ResolvePolicy) String() string {
	switch p {
	case ResolveStrict:
		return "strict"
	case ResolveTolerant:
		return "tolerant"
	default:
		return "unknown"
	}
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithResolvePolicy sets the empty-resolution policy. Default is
// strict.
func WithResolvePolicy(p ResolvePolicy) TreeOption {
	return func(t *Tree) { t.policy = p }
}

// WithLogger sets the protocol logger for tree-layer events.
func WithLogger(l log.Logger) TreeOption {
	return func(t *Tree) { t.logger = l }
}

// WithCodec uses a caller-owned parser registry instead of a fresh
// one. Lets several trees share registered parsers.
func WithCodec(r *codec.Registry) TreeOption {
	return func(t *Tree) { t.codec = r }
}

// Tree is the client-side view of one device's settings tree. It owns
// the schema cache and the value codec and hands out Node handles;
// all I/O goes through the backend.
//
// A Tree is safe for concurrent use when its backend is.
type Tree struct {
	backend Backend
	schema  *schema.Cache
	codec   *codec.Registry
	policy  ResolvePolicy
	logger  log.Logger
}

// NewTree builds a tree over a backend. The backend's listing and
// node-info operations feed the schema cache lazily; nothing is
// fetched up front.
func NewTree(backend Backend, opts ...TreeOption) *Tree {
	t := &Tree{
		backend: backend,
		schema:  schema.New(backend),
		codec:   codec.NewRegistry(),
		policy:  ResolveStrict,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the handle for the tree root.
func (t *Tree) Root() Node {
	return Node{tree: t}
}

// Node returns a handle for the given path expression. The path may
// contain wildcards; nothing is validated until a terminal operation.
func (t *Tree) Node(path string) Node {
	return Node{tree: t, path: nodepath.Parse(path)}
}

// Backend returns the tree's backend.
func (t *Tree) Backend() Backend {
	return t.backend
}

// Schema returns the tree's schema cache. Invalidate it after a
// reconnect so listings and metadata are refetched.
func (t *Tree) Schema() *schema.Cache {
	return t.schema
}

// RegisterParser installs a get/set parser pair for a path or
// wildcard pattern. Either parser may be nil.
func (t *Tree) RegisterParser(pathOrPattern string, get codec.GetParser, set codec.SetParser) {
	t.codec.Register(pathOrPattern, get, set)
}

// Policy returns the empty-resolution policy.
func (t *Tree) Policy() ResolvePolicy {
	return t.policy
}

// leafRef is one concrete leaf a path expression resolved to.
type leafRef struct {
	path nodepath.Path
	info schema.NodeInfo
}

// resolveLeaves expands a path expression to the concrete leaves it
// names: wildcards are matched against the schema and interior nodes
// are expanded to every leaf below them. Resolution order is listing
// order, depth first.
func (t *Tree) resolveLeaves(ctx context.Context, pattern nodepath.Path) ([]leafRef, error) {
	matches, err := nodepath.Resolve(ctx, pattern, t.schema.Enumerator())
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", pattern, err)
	}

	var leaves []leafRef
	for _, m := range matches {
		if err := t.collectLeaves(ctx, m, &leaves); err != nil {
			return nil, err
		}
	}

	t.logResolve(pattern, len(leaves))
	return leaves, nil
}

// collectLeaves appends the leaves at or below p. A path that is
// neither a known leaf nor a known interior node contributes nothing.
func (t *Tree) collectLeaves(ctx context.Context, p nodepath.Path, out *[]leafRef) error {
	info, found, err := t.schema.Lookup(ctx, p.String())
	if err != nil {
		return err
	}
	if found {
		*out = append(*out, leafRef{path: p, info: info})
		return nil
	}

	kids, err := t.schema.Children(ctx, p)
	if err != nil {
		return err
	}
	for _, k := range kids {
		if err := t.collectLeaves(ctx, k, out); err != nil {
			return err
		}
	}
	return nil
}

// emptyResolution applies the policy to a zero-match resolution:
// strict returns ErrNoMatchingNodes, tolerant logs and returns nil.
func (t *Tree) emptyResolution(pattern nodepath.Path) error {
	if t.policy == ResolveTolerant {
		t.logResolveWarning(pattern)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoMatchingNodes, pattern)
}

// isSubscribed reports backend-tracked subscription state; false when
// the backend does not track.
func (t *Tree) isSubscribed(p nodepath.Path) bool {
	if s, ok := t.backend.(SubscriptionSet); ok {
		return s.IsSubscribed(p.String())
	}
	return false
}

func (t *Tree) logResolve(pattern nodepath.Path, matches int) {
	if t.logger == nil || !pattern.HasWildcard() {
		return
	}
	t.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTree,
		Category:  log.CategoryResolve,
		LocalRole: log.RoleClient,
		Resolve: &log.ResolveEvent{
			Pattern: pattern.String(),
			Matches: matches,
		},
	})
}

func (t *Tree) logResolveWarning(pattern nodepath.Path) {
	if t.logger == nil {
		return
	}
	t.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTree,
		Category:  log.CategoryError,
		LocalRole: log.RoleClient,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTree,
			Message: fmt.Sprintf("no matching nodes for %s, skipping", pattern),
			Context: "resolve",
		},
	})
}
