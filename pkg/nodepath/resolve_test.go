package nodepath

import (
	"context"
	"errors"
	"sort"
	"testing"
)

// treeEnum builds an Enumerator over a static child-segment table and
// counts invocations.
func treeEnum(children map[string][]string) (Enumerator, *int) {
	calls := new(int)
	enum := func(_ context.Context, prefix Path) ([]Path, error) {
		*calls++
		var out []Path
		for _, seg := range children[prefix.String()] {
			out = append(out, prefix.Join(seg))
		}
		return out, nil
	}
	return enum, calls
}

func pathStrings(paths []Path) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	sort.Strings(out)
	return out
}

func TestResolve_ConcreteFastPath(t *testing.T) {
	enum, calls := treeEnum(map[string][]string{})

	got, err := Resolve(context.Background(), Parse("osc/2/freq"), enum)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(got) != 1 || got[0].String() != "osc/2/freq" {
		t.Errorf("Resolve = %v, want [osc/2/freq]", pathStrings(got))
	}
	if *calls != 0 {
		t.Errorf("enumerator called %d times for concrete path, want 0", *calls)
	}
}

func TestResolve_ConcreteWithNilEnumerator(t *testing.T) {
	got, err := Resolve(context.Background(), Parse("a/b"), nil)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d paths, want 1", len(got))
	}
}

func TestResolve_WildcardNilEnumerator(t *testing.T) {
	_, err := Resolve(context.Background(), Parse("a/*"), nil)
	if err == nil {
		t.Fatal("wildcard without enumerator should error")
	}
}

func TestResolve_SingleWildcard(t *testing.T) {
	enum, _ := treeEnum(map[string][]string{
		"a": {"0", "1", "2"},
	})

	got, err := Resolve(context.Background(), Parse("a/*/x"), enum)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	want := []string{"a/0/x", "a/1/x", "a/2/x"}
	gotStrs := pathStrings(got)
	if len(gotStrs) != len(want) {
		t.Fatalf("Resolve = %v, want %v", gotStrs, want)
	}
	for i := range want {
		if gotStrs[i] != want[i] {
			t.Errorf("Resolve = %v, want %v", gotStrs, want)
			break
		}
	}
}

func TestResolve_TrailingWildcard(t *testing.T) {
	enum, _ := treeEnum(map[string][]string{
		"osc/0": {"freq", "amp", "enable"},
	})

	got, err := Resolve(context.Background(), Parse("osc/0/*"), enum)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	want := []string{"osc/0/amp", "osc/0/enable", "osc/0/freq"}
	gotStrs := pathStrings(got)
	if len(gotStrs) != 3 {
		t.Fatalf("Resolve = %v, want %v", gotStrs, want)
	}
	for i := range want {
		if gotStrs[i] != want[i] {
			t.Errorf("Resolve = %v, want %v", gotStrs, want)
			break
		}
	}
}

func TestResolve_MultipleWildcards(t *testing.T) {
	enum, calls := treeEnum(map[string][]string{
		"ch":       {"0", "1"},
		"ch/0/out": {"a", "b"},
		"ch/1/out": {"a"},
	})

	got, err := Resolve(context.Background(), Parse("ch/*/out/*"), enum)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	want := []string{"ch/0/out/a", "ch/0/out/b", "ch/1/out/a"}
	gotStrs := pathStrings(got)
	if len(gotStrs) != len(want) {
		t.Fatalf("Resolve = %v, want %v", gotStrs, want)
	}
	for i := range want {
		if gotStrs[i] != want[i] {
			t.Errorf("Resolve = %v, want %v", gotStrs, want)
			break
		}
	}

	// One call for "ch", one per expanded channel.
	if *calls != 3 {
		t.Errorf("enumerator called %d times, want 3", *calls)
	}
}

func TestResolve_UnknownPrefixYieldsEmpty(t *testing.T) {
	enum, _ := treeEnum(map[string][]string{
		"a": {"0"},
	})

	got, err := Resolve(context.Background(), Parse("nonexistent/*/x"), enum)
	if err != nil {
		t.Fatalf("empty resolution should not error, got: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve = %v, want empty", pathStrings(got))
	}
}

func TestResolve_Deduplicates(t *testing.T) {
	// Enumerator that reports the same child twice.
	enum := func(_ context.Context, prefix Path) ([]Path, error) {
		return []Path{prefix.Join("x"), prefix.Join("x")}, nil
	}

	got, err := Resolve(context.Background(), Parse("a/*"), enum)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d paths, want 1 after dedup", len(got))
	}
}

func TestResolve_EnumeratorError(t *testing.T) {
	wantErr := errors.New("schema fetch failed")
	enum := func(_ context.Context, _ Path) ([]Path, error) {
		return nil, wantErr
	}

	_, err := Resolve(context.Background(), Parse("a/*"), enum)
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestResolve_SkipsMalformedEnumeratorResults(t *testing.T) {
	// Children not one level below the prefix must be ignored.
	enum := func(_ context.Context, prefix Path) ([]Path, error) {
		return []Path{
			prefix.Join("ok"),
			prefix.Join("too/deep"),
			Parse("unrelated/child"),
		}, nil
	}

	got, err := Resolve(context.Background(), Parse("a/*"), enum)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(got) != 1 || got[0].String() != "a/ok" {
		t.Errorf("Resolve = %v, want [a/ok]", pathStrings(got))
	}
}

func TestResolve_ResultsDoNotAliasPattern(t *testing.T) {
	pattern := Parse("a/b")
	got, err := Resolve(context.Background(), pattern, nil)
	if err != nil {
		t.Fatal(err)
	}
	got[0][0] = "z"
	if pattern[0] != "a" {
		t.Error("resolved path aliases the input pattern")
	}
}
