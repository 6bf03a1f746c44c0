package graph

import (
	"slices"
	"testing"
)

func deps(edges map[string][]string) func(string) []string {
	return func(k string) []string { return edges[k] }
}

func TestBuildOrder(t *testing.T) {
	tests := []struct {
		name      string
		requested []string
		edges     map[string][]string
		sequence  []string
		cyclic    []string
	}{
		{
			name:      "chain",
			requested: []string{"c", "b", "a"},
			edges:     map[string][]string{"c": {"b"}, "b": {"a"}},
			sequence:  []string{"a", "b", "c"},
			cyclic:    []string{},
		},
		{
			name:      "independent nodes in key order",
			requested: []string{"z", "a", "m"},
			sequence:  []string{"a", "m", "z"},
			cyclic:    []string{},
		},
		{
			name:      "diamond",
			requested: []string{"d", "c", "b", "a"},
			edges:     map[string][]string{"d": {"b", "c"}, "b": {"a"}, "c": {"a"}},
			sequence:  []string{"a", "b", "c", "d"},
			cyclic:    []string{},
		},
		{
			name:      "smallest ready key first",
			requested: []string{"x", "y", "a"},
			edges:     map[string][]string{"x": {"y"}},
			sequence:  []string{"a", "y", "x"},
			cyclic:    []string{},
		},
		{
			name:      "self loop",
			requested: []string{"a", "b"},
			edges:     map[string][]string{"a": {"a"}},
			sequence:  []string{"b"},
			cyclic:    []string{"a"},
		},
		{
			name:      "cycle taints its dependents",
			requested: []string{"a", "b", "c", "d", "e"},
			edges:     map[string][]string{"a": {"b"}, "b": {"a"}, "c": {"a"}, "e": {"c"}},
			sequence:  []string{"d"},
			cyclic:    []string{"a", "b", "c", "e"},
		},
		{
			name:      "dependency of a cycle stays acyclic",
			requested: []string{"a", "b", "leaf"},
			edges:     map[string][]string{"a": {"b", "leaf"}, "b": {"a"}},
			sequence:  []string{"leaf"},
			cyclic:    []string{"a", "b"},
		},
		{
			name:      "references outside the request are not edges",
			requested: []string{"a"},
			edges:     map[string][]string{"a": {"outside", "b"}, "b": {"a"}},
			sequence:  []string{"a"},
			cyclic:    []string{},
		},
		{
			name:      "duplicates collapse",
			requested: []string{"b", "a", "b"},
			edges:     map[string][]string{"b": {"a"}},
			sequence:  []string{"a", "b"},
			cyclic:    []string{},
		},
		{
			name:     "empty",
			sequence: []string{},
			cyclic:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := BuildOrder(tt.requested, deps(tt.edges))
			if !slices.Equal(order.Sequence, tt.sequence) {
				t.Errorf("Sequence = %v, want %v", order.Sequence, tt.sequence)
			}
			if !slices.Equal(order.Cyclic, tt.cyclic) {
				t.Errorf("Cyclic = %v, want %v", order.Cyclic, tt.cyclic)
			}
			for _, k := range tt.cyclic {
				if !order.IsCyclic(k) {
					t.Errorf("IsCyclic(%q) = false", k)
				}
			}
			for _, k := range tt.sequence {
				if order.IsCyclic(k) {
					t.Errorf("IsCyclic(%q) = true for a sequenced node", k)
				}
			}
		})
	}
}

func TestBuildOrder_TwoSeparateCycles(t *testing.T) {
	edges := map[int][]int{
		1: {2}, 2: {3}, 3: {1},
		10: {11}, 11: {10},
		20: {1},
		30: {},
	}
	requested := []int{30, 20, 11, 10, 3, 2, 1}
	order := BuildOrder(requested, func(k int) []int { return edges[k] })

	if want := []int{30}; !slices.Equal(order.Sequence, want) {
		t.Errorf("Sequence = %v, want %v", order.Sequence, want)
	}
	if want := []int{1, 2, 3, 10, 11, 20}; !slices.Equal(order.Cyclic, want) {
		t.Errorf("Cyclic = %v, want %v", order.Cyclic, want)
	}
}

func TestBuildOrder_LongChain(t *testing.T) {
	const n = 50000
	requested := make([]int, n)
	for i := range requested {
		requested[i] = n - 1 - i
	}
	chain := func(k int) []int {
		if k == 0 {
			return nil
		}
		return []int{k - 1}
	}

	order := BuildOrder(requested, chain)
	if len(order.Sequence) != n || len(order.Cyclic) != 0 {
		t.Fatalf("got %d sequenced and %d cyclic nodes", len(order.Sequence), len(order.Cyclic))
	}
	for i, k := range order.Sequence {
		if k != i {
			t.Fatalf("Sequence[%d] = %d", i, k)
		}
	}

	// closing the chain into a ring makes every node cyclic
	ring := func(k int) []int {
		if k == 0 {
			return []int{n - 1}
		}
		return []int{k - 1}
	}
	order = BuildOrder(requested, ring)
	if len(order.Sequence) != 0 || len(order.Cyclic) != n {
		t.Fatalf("ring: got %d sequenced and %d cyclic nodes", len(order.Sequence), len(order.Cyclic))
	}
}
