package formula

import "slices"

// Dependencies collects the distinct field ids referenced under node in
// ascending order.
func Dependencies(node Node) []FieldID {
	seen := make(map[FieldID]struct{})
	collectRefs(node, seen)

	deps := make([]FieldID, 0, len(seen))
	for id := range seen {
		deps = append(deps, id)
	}
	slices.Sort(deps)
	return deps
}

func collectRefs(node Node, seen map[FieldID]struct{}) {
	switch n := node.(type) {
	case *FieldRefNode:
		seen[n.ID] = struct{}{}
	case *BinaryOpNode:
		collectRefs(n.Left, seen)
		collectRefs(n.Right, seen)
	case *GroupNode:
		collectRefs(n.Inner, seen)
	}
}
