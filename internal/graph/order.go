// Package graph orders calculated fields for evaluation.
//
// The graph is built over the requested ids only. Each id is mapped to a
// dense uint32 arena index (ids sorted ascending, so index order is id
// order) and all node sets are roaring bitmaps over those indices.
package graph

import (
	"cmp"
	"container/heap"
	"slices"

	"github.com/RoaringBitmap/roaring"
)

// Order is the evaluation plan for one calculation request.
type Order[K cmp.Ordered] struct {
	// Sequence lists the acyclic nodes, dependencies before dependents.
	Sequence []K
	// Cyclic lists, in ascending order, every node in a cycle or depending
	// on one.
	Cyclic []K

	cyclic map[K]struct{}
}

// IsCyclic reports whether k was marked cyclic.
func (o Order[K]) IsCyclic(k K) bool {
	_, ok := o.cyclic[k]
	return ok
}

// arena is the index-addressed form of the requested subgraph.
type arena[K cmp.Ordered] struct {
	ids      []K
	index    map[K]uint32
	deps     [][]uint32 // node -> nodes it depends on
	users    [][]uint32 // node -> nodes depending on it
	selfLoop *roaring.Bitmap
}

func newArena[K cmp.Ordered](requested []K, dependencyOf func(K) []K) *arena[K] {
	ids := slices.Clone(requested)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	a := &arena[K]{
		ids:      ids,
		index:    make(map[K]uint32, len(ids)),
		deps:     make([][]uint32, len(ids)),
		users:    make([][]uint32, len(ids)),
		selfLoop: roaring.New(),
	}
	for i, id := range ids {
		a.index[id] = uint32(i)
	}

	for i, id := range ids {
		from := uint32(i)
		edges := roaring.New()
		for _, dep := range dependencyOf(id) {
			// references outside the request are leaf lookups, not edges
			to, ok := a.index[dep]
			if !ok {
				continue
			}
			if to == from {
				a.selfLoop.Add(from)
			}
			edges.Add(to)
		}
		a.deps[i] = edges.ToArray()
		for _, to := range a.deps[i] {
			a.users[to] = append(a.users[to], from)
		}
	}
	return a
}

// BuildOrder builds the dependency subgraph restricted to requested, marks
// cyclic nodes, and topologically sorts the rest with ties broken by
// ascending key. dependencyOf returns the direct dependencies of a node; it
// may return keys outside requested, which are ignored.
func BuildOrder[K cmp.Ordered](requested []K, dependencyOf func(K) []K) Order[K] {
	a := newArena(requested, dependencyOf)

	cyclic := a.stronglyConnected()
	a.taintDependents(cyclic)

	order := Order[K]{
		Sequence: a.topological(cyclic),
		Cyclic:   make([]K, 0, cyclic.GetCardinality()),
		cyclic:   make(map[K]struct{}, cyclic.GetCardinality()),
	}
	it := cyclic.Iterator()
	for it.HasNext() {
		id := a.ids[it.Next()]
		order.Cyclic = append(order.Cyclic, id)
		order.cyclic[id] = struct{}{}
	}
	return order
}

// stronglyConnected runs Tarjan's algorithm iteratively and returns the
// nodes of every SCC with more than one member plus self loops.
func (a *arena[K]) stronglyConnected() *roaring.Bitmap {
	const unvisited = -1

	n := len(a.ids)
	index := make([]int, n)
	lowLink := make([]int, n)
	for i := range index {
		index[i] = unvisited
	}
	onStack := roaring.New()
	sccStack := make([]uint32, 0, n)
	cyclic := a.selfLoop.Clone()
	next := 0

	type callFrame struct {
		node uint32
		edge int
	}

	for root := 0; root < n; root++ {
		if index[root] != unvisited {
			continue
		}

		callStack := []callFrame{{node: uint32(root)}}
		index[root], lowLink[root] = next, next
		next++
		sccStack = append(sccStack, uint32(root))
		onStack.Add(uint32(root))

		for len(callStack) > 0 {
			frame := &callStack[len(callStack)-1]
			v := frame.node

			if frame.edge < len(a.deps[v]) {
				w := a.deps[v][frame.edge]
				frame.edge++
				switch {
				case index[w] == unvisited:
					index[w], lowLink[w] = next, next
					next++
					sccStack = append(sccStack, w)
					onStack.Add(w)
					callStack = append(callStack, callFrame{node: w})
				case onStack.Contains(w):
					lowLink[v] = min(lowLink[v], index[w])
				}
				continue
			}

			// all edges of v done; pop and fold lowLink into the parent
			callStack = callStack[:len(callStack)-1]
			if len(callStack) > 0 {
				parent := callStack[len(callStack)-1].node
				lowLink[parent] = min(lowLink[parent], lowLink[v])
			}

			if lowLink[v] != index[v] {
				continue
			}
			var component []uint32
			for {
				w := sccStack[len(sccStack)-1]
				sccStack = sccStack[:len(sccStack)-1]
				onStack.Remove(w)
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 {
				cyclic.AddMany(component)
			}
		}
	}
	return cyclic
}

// taintDependents extends cyclic with every node that reaches it.
func (a *arena[K]) taintDependents(cyclic *roaring.Bitmap) {
	queue := cyclic.ToArray()
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, user := range a.users[v] {
			if cyclic.CheckedAdd(user) {
				queue = append(queue, user)
			}
		}
	}
}

// topological is Kahn's algorithm over the non-cyclic nodes. A min-heap of
// ready indices yields the smallest key first among ready nodes.
func (a *arena[K]) topological(cyclic *roaring.Bitmap) []K {
	pending := make([]int, len(a.ids))
	ready := &indexQueue{}

	for i := range a.ids {
		if cyclic.Contains(uint32(i)) {
			continue
		}
		// every dependency of an acyclic node is acyclic
		pending[i] = len(a.deps[i])
		if pending[i] == 0 {
			heap.Push(ready, uint32(i))
		}
	}

	sequence := make([]K, 0, len(a.ids)-int(cyclic.GetCardinality()))
	for ready.Len() > 0 {
		v := heap.Pop(ready).(uint32)
		sequence = append(sequence, a.ids[v])
		for _, user := range a.users[v] {
			if cyclic.Contains(user) {
				continue
			}
			pending[user]--
			if pending[user] == 0 {
				heap.Push(ready, user)
			}
		}
	}
	return sequence
}

// indexQueue is a min-heap of arena indices.
type indexQueue []uint32

func (q indexQueue) Len() int           { return len(q) }
func (q indexQueue) Less(i, j int) bool { return q[i] < q[j] }
func (q indexQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *indexQueue) Push(x any) {
	*q = append(*q, x.(uint32))
}

func (q *indexQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
