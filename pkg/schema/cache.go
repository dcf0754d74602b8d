package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// Source is the schema enumeration service the cache fetches from,
// implemented by the transport client.
type Source interface {
	// ListNodes returns the paths directly below prefix.
	ListNodes(ctx context.Context, prefix string, flags wire.ListFlags) ([]string, error)

	// NodeInfo returns the metadata of a leaf node. Unknown paths
	// fail with ErrNodeNotFound.
	NodeInfo(ctx context.Context, path string) (NodeInfo, error)
}

// Cache memoizes node metadata and child listings for one connection.
// Safe for concurrent use; concurrent first accesses to the same key
// collapse into a single Source call.
type Cache struct {
	src Source

	mu       sync.RWMutex
	info     map[string]NodeInfo
	missing  map[string]bool
	children map[string][]nodepath.Path
	listed   map[string]bool

	flight singleflight.Group
}

// New creates an empty cache over the given source.
func New(src Source) *Cache {
	return &Cache{
		src:      src,
		info:     make(map[string]NodeInfo),
		missing:  make(map[string]bool),
		children: make(map[string][]nodepath.Path),
		listed:   make(map[string]bool),
	}
}

type lookupResult struct {
	info  NodeInfo
	found bool
}

// Lookup returns the metadata for a leaf path, fetching it on first
// access. A definitive not-found answer is memoized and reported as
// found=false with a nil error; transport failures are returned
// unmemoized so a later retry can succeed.
func (c *Cache) Lookup(ctx context.Context, path string) (NodeInfo, bool, error) {
	canon := nodepath.Parse(path).String()

	if res, ok := c.cachedLookup(canon); ok {
		return res.info, res.found, nil
	}

	v, err, _ := c.flight.Do("info:"+canon, func() (any, error) {
		if res, ok := c.cachedLookup(canon); ok {
			return res, nil
		}

		info, err := c.src.NodeInfo(ctx, canon)
		if err != nil {
			if errors.Is(err, ErrNodeNotFound) {
				c.mu.Lock()
				c.missing[canon] = true
				c.mu.Unlock()
				return lookupResult{}, nil
			}
			return nil, err
		}

		info.Path = canon
		c.mu.Lock()
		c.info[canon] = info
		c.mu.Unlock()
		return lookupResult{info: info, found: true}, nil
	})
	if err != nil {
		return NodeInfo{}, false, fmt.Errorf("fetching node info for %q: %w", canon, err)
	}

	res := v.(lookupResult)
	return res.info, res.found, nil
}

func (c *Cache) cachedLookup(canon string) (lookupResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if info, ok := c.info[canon]; ok {
		return lookupResult{info: info, found: true}, true
	}
	if c.missing[canon] {
		return lookupResult{}, true
	}
	return lookupResult{}, false
}

// Children returns the paths directly below prefix, fetching the
// listing on first access. An unknown prefix yields an empty slice.
func (c *Cache) Children(ctx context.Context, prefix nodepath.Path) ([]nodepath.Path, error) {
	key := prefix.String()

	c.mu.RLock()
	if c.listed[key] {
		kids := c.children[key]
		c.mu.RUnlock()
		return kids, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.flight.Do("list:"+key, func() (any, error) {
		c.mu.RLock()
		if c.listed[key] {
			kids := c.children[key]
			c.mu.RUnlock()
			return kids, nil
		}
		c.mu.RUnlock()

		raw, err := c.src.ListNodes(ctx, key, 0)
		if err != nil {
			return nil, err
		}

		// Keep only well-formed entries exactly one level below the
		// prefix, de-duplicated, in listing order.
		seen := make(map[string]bool)
		var kids []nodepath.Path
		for _, s := range raw {
			p := nodepath.Parse(s)
			if len(p) != len(prefix)+1 || !prefix.IsPrefixOf(p) {
				continue
			}
			if k := p.String(); !seen[k] {
				seen[k] = true
				kids = append(kids, p)
			}
		}

		c.mu.Lock()
		c.children[key] = kids
		c.listed[key] = true
		c.mu.Unlock()
		return kids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing children of %q: %w", key, err)
	}
	return v.([]nodepath.Path), nil
}

// Enumerator adapts the cache for wildcard resolution.
func (c *Cache) Enumerator() nodepath.Enumerator {
	return func(ctx context.Context, prefix nodepath.Path) ([]nodepath.Path, error) {
		return c.Children(ctx, prefix)
	}
}

// Invalidate drops all cached schema state. Call on connection
// teardown or reconnect; subsequent accesses refetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = make(map[string]NodeInfo)
	c.missing = make(map[string]bool)
	c.children = make(map[string][]nodepath.Path)
	c.listed = make(map[string]bool)
}
