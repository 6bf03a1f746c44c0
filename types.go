package calcfield

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/ZanzyTHEbar/calcfield/internal/formula"
)

// FieldID identifies a custom field definition within its owning entity.
type FieldID = formula.FieldID

// Formula is a parsed formula.
type Formula = formula.Formula

// Result is either a Value or a Blank carrying an ErrorDescriptor.
type Result = formula.Result

// ErrorDescriptor explains why a field was blanked.
type ErrorDescriptor = formula.ErrorDescriptor

// ErrorKind classifies an ErrorDescriptor.
type ErrorKind = formula.ErrorKind

const (
	Mathematical  = formula.Mathematical
	MissingValue  = formula.MissingValue
	DisabledValue = formula.DisabledValue
	Circular      = formula.Circular
)

// FieldKind is the kind of a custom field.
type FieldKind string

const (
	// KindConstant fields hold a value entered directly.
	KindConstant FieldKind = "constant"
	// KindWeightedItemList fields hold a selected option whose weight is
	// used in arithmetic.
	KindWeightedItemList FieldKind = "weighted_item_list"
	// KindCalculated fields derive their value from a formula.
	KindCalculated FieldKind = "calculated"
)

// Valid reports whether k is a known kind.
func (k FieldKind) Valid() bool {
	switch k {
	case KindConstant, KindWeightedItemList, KindCalculated:
		return true
	default:
		return false
	}
}

// Definition describes one custom field. Only calculated fields carry a
// Formula and only weighted item lists carry Options (option key to
// weight). Definitions are owned by the host and never modified here.
type Definition struct {
	ID      FieldID             `json:"id" yaml:"id"`
	Kind    FieldKind           `json:"kind" yaml:"kind"`
	Formula string              `json:"formula,omitempty" yaml:"formula,omitempty"`
	Options map[string]*big.Rat `json:"options,omitempty" yaml:"-"`
}

// Weight returns the weight of a weighted item list option.
func (d Definition) Weight(option string) (*big.Rat, bool) {
	w, ok := d.Options[option]
	if !ok || w == nil {
		return nil, false
	}
	return w, true
}

// Definitions indexes field definitions by id.
type Definitions map[FieldID]Definition

// NewDefinitions indexes defs by id. Later duplicates replace earlier ones.
func NewDefinitions(defs ...Definition) Definitions {
	out := make(Definitions, len(defs))
	for _, d := range defs {
		out[d.ID] = d
	}
	return out
}

// Calculated returns the ids of all calculated definitions, ascending.
func (d Definitions) Calculated() []FieldID {
	ids := make([]FieldID, 0, len(d))
	for id, def := range d {
		if def.Kind == KindCalculated {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// StoredValue is the persisted value of a field on a record: an exact
// number for constant and calculated fields, or the selected option key for
// a weighted item list.
type StoredValue struct {
	Number *big.Rat
	Option string
}

// NumberValue wraps a rational as a stored value.
func NumberValue(r *big.Rat) *StoredValue {
	return &StoredValue{Number: r}
}

// SelectionValue wraps a weighted item list selection.
func SelectionValue(option string) *StoredValue {
	return &StoredValue{Option: option}
}

// IsSelection reports whether the value is a weighted item selection.
func (v *StoredValue) IsSelection() bool {
	return v != nil && v.Number == nil && v.Option != ""
}

func (v *StoredValue) String() string {
	switch {
	case v == nil:
		return "<none>"
	case v.Number != nil:
		return v.Number.RatString()
	case v.Option != "":
		return "option:" + v.Option
	default:
		return "<none>"
	}
}

// ParseNumber parses an exact decimal ("12.5") or fraction ("3/4").
func ParseNumber(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return r, nil
}

// EvaluationContext is the per-record input of one calculation call: which
// fields are enabled and their current stored values. A missing or nil
// Stored entry means the field has no value.
type EvaluationContext struct {
	Enabled map[FieldID]struct{}
	Stored  map[FieldID]*StoredValue
}

// NewEvaluationContext creates an empty context.
func NewEvaluationContext() EvaluationContext {
	return EvaluationContext{
		Enabled: make(map[FieldID]struct{}),
		Stored:  make(map[FieldID]*StoredValue),
	}
}

// Enable marks ids as enabled and returns the context for chaining.
func (c EvaluationContext) Enable(ids ...FieldID) EvaluationContext {
	for _, id := range ids {
		c.Enabled[id] = struct{}{}
	}
	return c
}

// Store records a value and returns the context for chaining.
func (c EvaluationContext) Store(id FieldID, v *StoredValue) EvaluationContext {
	c.Stored[id] = v
	return c
}

// IsEnabled reports whether id is enabled.
func (c EvaluationContext) IsEnabled(id FieldID) bool {
	_, ok := c.Enabled[id]
	return ok
}

// Outcome maps each requested field to its result. Fields that were not
// requested never appear.
type Outcome map[FieldID]Result

// Values returns the fields that produced a value.
func (o Outcome) Values() map[FieldID]*big.Rat {
	out := make(map[FieldID]*big.Rat, len(o))
	for id, r := range o {
		if !r.IsBlank() {
			out[id] = r.Value
		}
	}
	return out
}

// Blanks returns the descriptor of every blanked field.
func (o Outcome) Blanks() map[FieldID]ErrorDescriptor {
	out := make(map[FieldID]ErrorDescriptor)
	for id, r := range o {
		if r.Error != nil {
			out[id] = *r.Error
		}
	}
	return out
}

// IDs returns the fields in the outcome, ascending.
func (o Outcome) IDs() []FieldID {
	ids := make([]FieldID, 0, len(o))
	for id := range o {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Equal reports whether both outcomes hold the same results.
func (o Outcome) Equal(other Outcome) bool {
	if len(o) != len(other) {
		return false
	}
	for id, r := range o {
		or, ok := other[id]
		if !ok || !r.Equal(or) {
			return false
		}
	}
	return true
}

// FormatNumber renders r as an integer or a finite decimal when exact, and
// as a fraction otherwise.
func FormatNumber(r *big.Rat) string {
	return formula.FormatRat(r)
}
