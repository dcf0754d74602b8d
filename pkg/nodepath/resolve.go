package nodepath

import (
	"context"
	"fmt"
)

// Enumerator returns the existing child paths one level below the
// given concrete prefix. An unknown prefix yields an empty slice, not
// an error; errors are reserved for transport or schema failures.
type Enumerator func(ctx context.Context, prefix Path) ([]Path, error)

// Resolve expands every wildcard segment of pattern against the
// enumerator and returns the concrete paths the pattern denotes,
// de-duplicated, in discovery order.
//
// A pattern without wildcards resolves to itself without calling the
// enumerator at all; existence is checked by whatever terminal
// operation follows, not here. A wildcard whose concrete prefix has no
// children resolves to an empty result, also without error: whether an
// empty resolution is tolerable is the caller's policy.
func Resolve(ctx context.Context, pattern Path, enum Enumerator) ([]Path, error) {
	if !pattern.HasWildcard() {
		return []Path{pattern.Clone()}, nil
	}
	if enum == nil {
		return nil, fmt.Errorf("resolving %q: wildcard pattern requires an enumerator", pattern)
	}

	seen := make(map[string]bool)
	var out []Path
	if err := resolveFrom(ctx, pattern, 0, enum, seen, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveFrom expands pattern starting at segment index from. Segments
// before from are already concrete.
func resolveFrom(ctx context.Context, pattern Path, from int, enum Enumerator, seen map[string]bool, out *[]Path) error {
	for i := from; i < len(pattern); i++ {
		if pattern[i] != Wildcard {
			continue
		}

		prefix := make(Path, i)
		copy(prefix, pattern[:i])

		children, err := enum(ctx, prefix)
		if err != nil {
			return fmt.Errorf("resolving %q: %w", pattern, err)
		}

		for _, child := range children {
			if len(child) != i+1 || !prefix.IsPrefixOf(child) {
				// Enumerator contract violation; skip rather than mis-substitute.
				continue
			}
			candidate := make(Path, len(pattern))
			copy(candidate, pattern)
			candidate[i] = child[i]
			if err := resolveFrom(ctx, candidate, i+1, enum, seen, out); err != nil {
				return err
			}
		}
		return nil
	}

	// Fully concrete.
	key := pattern.String()
	if !seen[key] {
		seen[key] = true
		*out = append(*out, pattern.Clone())
	}
	return nil
}
