package calcfield

import (
	"math/big"

	"github.com/ZanzyTHEbar/calcfield/internal/formula"
)

// resolver classifies every field reference met while evaluating one
// calculation request.
type resolver struct {
	defs      Definitions
	ectx      EvaluationContext
	requested map[FieldID]struct{}
	cyclic    func(FieldID) bool

	// results computed earlier in this call
	computed map[FieldID]Result
}

var _ formula.Resolver = (*resolver)(nil)

func newResolver(defs Definitions, ectx EvaluationContext, requested map[FieldID]struct{}, cyclic func(FieldID) bool) *resolver {
	return &resolver{
		defs:      defs,
		ectx:      ectx,
		requested: requested,
		cyclic:    cyclic,
		computed:  make(map[FieldID]Result, len(requested)),
	}
}

// record makes a field's result visible to fields evaluated after it.
func (r *resolver) record(id FieldID, res Result) {
	r.computed[id] = res
}

// Resolve implements formula.Resolver.
func (r *resolver) Resolve(id FieldID) Result {
	if _, ok := r.requested[id]; ok {
		if res, done := r.computed[id]; done {
			if res.Error != nil {
				// upstream descriptor travels unchanged
				return formula.BlankFrom(*res.Error)
			}
			return formula.Value(new(big.Rat).Set(res.Value))
		}
		if r.cyclic(id) {
			return formula.Blank(Circular, "")
		}
		// a valid order evaluates every acyclic dependency first
	}

	if !r.ectx.IsEnabled(id) {
		return formula.Blank(DisabledValue, id)
	}

	stored := r.ectx.Stored[id]
	if stored == nil {
		return formula.Blank(MissingValue, id)
	}

	if def, ok := r.defs[id]; ok && def.Kind == KindWeightedItemList {
		return r.weight(id, def, stored)
	}
	if stored.Number == nil {
		// a selection on something that is not a weighted list has no weight
		return formula.Blank(MissingValue, id)
	}
	return formula.Value(new(big.Rat).Set(stored.Number))
}

func (r *resolver) weight(id FieldID, def Definition, stored *StoredValue) Result {
	if stored.Option == "" {
		return formula.Blank(MissingValue, id)
	}
	w, ok := def.Weight(stored.Option)
	if !ok {
		return formula.Blank(MissingValue, id)
	}
	return formula.Value(new(big.Rat).Set(w))
}
