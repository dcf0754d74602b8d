package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// fakeSource serves a static tree and counts calls.
type fakeSource struct {
	infos    map[string]NodeInfo
	kids     map[string][]string
	infoErr  error
	listErr  error
	infoCall atomic.Int32
	listCall atomic.Int32
}

func (f *fakeSource) ListNodes(_ context.Context, prefix string, _ wire.ListFlags) ([]string, error) {
	f.listCall.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.kids[prefix], nil
}

func (f *fakeSource) NodeInfo(_ context.Context, path string) (NodeInfo, error) {
	f.infoCall.Add(1)
	if f.infoErr != nil {
		return NodeInfo{}, f.infoErr
	}
	info, ok := f.infos[path]
	if !ok {
		return NodeInfo{}, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}
	return info, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		infos: map[string]NodeInfo{
			"osc/0/freq": {Description: "Oscillator frequency", Readable: true, Writable: true, Type: TypeDouble, Unit: "Hz"},
		},
		kids: map[string][]string{
			"osc":   {"osc/0", "osc/1"},
			"osc/0": {"osc/0/freq", "osc/0/amp"},
		},
	}
}

func TestCache_LookupMemoized(t *testing.T) {
	src := newFakeSource()
	c := New(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, found, err := c.Lookup(ctx, "OSC/0/FREQ")
		if err != nil {
			t.Fatalf("Lookup returned error: %v", err)
		}
		if !found {
			t.Fatal("Lookup did not find known node")
		}
		if info.Path != "osc/0/freq" {
			t.Errorf("info.Path = %q, want canonical osc/0/freq", info.Path)
		}
		if info.Unit != "Hz" {
			t.Errorf("info.Unit = %q, want Hz", info.Unit)
		}
	}

	if n := src.infoCall.Load(); n != 1 {
		t.Errorf("source NodeInfo called %d times, want 1", n)
	}
}

func TestCache_NegativeLookupMemoized(t *testing.T) {
	src := newFakeSource()
	c := New(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, found, err := c.Lookup(ctx, "no/such/node")
		if err != nil {
			t.Fatalf("not-found should not be an error, got: %v", err)
		}
		if found {
			t.Fatal("unknown node reported as found")
		}
	}

	if n := src.infoCall.Load(); n != 1 {
		t.Errorf("source NodeInfo called %d times for memoized miss, want 1", n)
	}
}

func TestCache_TransportErrorNotMemoized(t *testing.T) {
	src := newFakeSource()
	src.infoErr = errors.New("connection reset")
	c := New(src)
	ctx := context.Background()

	if _, _, err := c.Lookup(ctx, "osc/0/freq"); err == nil {
		t.Fatal("expected transport error")
	}

	// Source recovers; the failure must not have been cached.
	src.infoErr = nil
	_, found, err := c.Lookup(ctx, "osc/0/freq")
	if err != nil || !found {
		t.Fatalf("retry after transport error failed: found=%v err=%v", found, err)
	}
	if n := src.infoCall.Load(); n != 2 {
		t.Errorf("source NodeInfo called %d times, want 2", n)
	}
}

func TestCache_ChildrenMemoized(t *testing.T) {
	src := newFakeSource()
	c := New(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		kids, err := c.Children(ctx, nodepath.Parse("osc"))
		if err != nil {
			t.Fatalf("Children returned error: %v", err)
		}
		if len(kids) != 2 {
			t.Fatalf("got %d children, want 2", len(kids))
		}
		if kids[0].String() != "osc/0" || kids[1].String() != "osc/1" {
			t.Errorf("children = %v, want [osc/0 osc/1]", kids)
		}
	}

	if n := src.listCall.Load(); n != 1 {
		t.Errorf("source ListNodes called %d times, want 1", n)
	}
}

func TestCache_ChildrenUnknownPrefixEmpty(t *testing.T) {
	src := newFakeSource()
	c := New(src)

	kids, err := c.Children(context.Background(), nodepath.Parse("bogus"))
	if err != nil {
		t.Fatalf("unknown prefix should not error: %v", err)
	}
	if len(kids) != 0 {
		t.Errorf("got %d children for unknown prefix, want 0", len(kids))
	}

	// The empty answer is also memoized.
	if _, err := c.Children(context.Background(), nodepath.Parse("bogus")); err != nil {
		t.Fatal(err)
	}
	if n := src.listCall.Load(); n != 1 {
		t.Errorf("source ListNodes called %d times, want 1", n)
	}
}

func TestCache_ChildrenFiltersMalformedEntries(t *testing.T) {
	src := newFakeSource()
	src.kids["osc"] = []string{"osc/0", "osc/0", "osc/1/freq", "unrelated/x", "osc/1"}
	c := New(src)

	kids, err := c.Children(context.Background(), nodepath.Parse("osc"))
	if err != nil {
		t.Fatal(err)
	}
	if len(kids) != 2 {
		t.Fatalf("children = %v, want [osc/0 osc/1]", kids)
	}
	if kids[0].String() != "osc/0" || kids[1].String() != "osc/1" {
		t.Errorf("children = %v, want [osc/0 osc/1]", kids)
	}
}

func TestCache_Invalidate(t *testing.T) {
	src := newFakeSource()
	c := New(src)
	ctx := context.Background()

	if _, _, err := c.Lookup(ctx, "osc/0/freq"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Children(ctx, nodepath.Parse("osc")); err != nil {
		t.Fatal(err)
	}

	c.Invalidate()

	if _, _, err := c.Lookup(ctx, "osc/0/freq"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Children(ctx, nodepath.Parse("osc")); err != nil {
		t.Fatal(err)
	}

	if n := src.infoCall.Load(); n != 2 {
		t.Errorf("NodeInfo called %d times across invalidate, want 2", n)
	}
	if n := src.listCall.Load(); n != 2 {
		t.Errorf("ListNodes called %d times across invalidate, want 2", n)
	}
}

func TestCache_ConcurrentLookupSingleFetch(t *testing.T) {
	src := newFakeSource()
	c := New(src)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, found, err := c.Lookup(context.Background(), "osc/0/freq")
			if err != nil || !found {
				t.Errorf("concurrent Lookup failed: found=%v err=%v", found, err)
			}
		}()
	}
	wg.Wait()

	// All concurrent first accesses collapse into one fetch.
	if n := src.infoCall.Load(); n != 1 {
		t.Errorf("source NodeInfo called %d times under concurrency, want 1", n)
	}
}

func TestCache_Enumerator(t *testing.T) {
	src := newFakeSource()
	c := New(src)

	kids, err := c.Enumerator()(context.Background(), nodepath.Parse("osc/0"))
	if err != nil {
		t.Fatal(err)
	}
	if len(kids) != 2 {
		t.Fatalf("enumerator returned %d children, want 2", len(kids))
	}
}
