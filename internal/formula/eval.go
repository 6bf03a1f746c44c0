package formula

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrorKind classifies why a field was left blank.
type ErrorKind string

const (
	// Mathematical is a division or modulo by zero in the field's own formula.
	Mathematical ErrorKind = "mathematical"
	// MissingValue means a referenced field is enabled but has no value.
	MissingValue ErrorKind = "missing_value"
	// DisabledValue means a referenced field is not enabled on the record.
	DisabledValue ErrorKind = "disabled_value"
	// Circular means the field is part of, or depends on, a reference cycle.
	Circular ErrorKind = "circular"
)

// ErrorDescriptor explains a blank result. Field is set for MissingValue and
// DisabledValue and names the offending reference; it is empty otherwise.
type ErrorDescriptor struct {
	Kind  ErrorKind `json:"kind"`
	Field FieldID   `json:"field,omitempty"`
}

func (d ErrorDescriptor) String() string {
	if d.Field == "" {
		return string(d.Kind)
	}
	return fmt.Sprintf("%s(%s)", d.Kind, d.Field)
}

// Result is either an exact value or a blank carrying an ErrorDescriptor.
type Result struct {
	Value *big.Rat         `json:"value,omitempty"`
	Error *ErrorDescriptor `json:"error,omitempty"`
}

// Value wraps a rational result.
func Value(r *big.Rat) Result {
	return Result{Value: r}
}

// Blank builds a blank result.
func Blank(kind ErrorKind, field FieldID) Result {
	return Result{Error: &ErrorDescriptor{Kind: kind, Field: field}}
}

// BlankFrom propagates an existing descriptor unchanged.
func BlankFrom(d ErrorDescriptor) Result {
	return Result{Error: &d}
}

// IsBlank reports whether the result carries no value.
func (r Result) IsBlank() bool {
	return r.Error != nil || r.Value == nil
}

// Equal compares two results by value.
func (r Result) Equal(other Result) bool {
	if r.Error != nil || other.Error != nil {
		return r.Error != nil && other.Error != nil && *r.Error == *other.Error
	}
	if r.Value == nil || other.Value == nil {
		return r.Value == nil && other.Value == nil
	}
	return r.Value.Cmp(other.Value) == 0
}

func (r Result) String() string {
	switch {
	case r.Error != nil:
		return "blank(" + r.Error.String() + ")"
	case r.Value != nil:
		return r.Value.RatString()
	default:
		return "blank"
	}
}

// Resolver supplies operand values for field references.
type Resolver interface {
	Resolve(id FieldID) Result
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id FieldID) Result

func (f ResolverFunc) Resolve(id FieldID) Result { return f(id) }

// ErrMalformedAST is returned for trees the parser could not have produced.
var ErrMalformedAST = errors.New("malformed formula AST")

var hundred = big.NewRat(100, 1)

// Evaluate walks the tree in post-order. The first blank operand, left to
// right, becomes the result; no further arithmetic is attempted after it.
// The returned error is reserved for malformed trees.
func Evaluate(node Node, r Resolver) (Result, error) {
	switch n := node.(type) {
	case *NumberNode:
		if n.Value == nil {
			return Result{}, fmt.Errorf("%w: number without value", ErrMalformedAST)
		}
		return Value(new(big.Rat).Set(n.Value)), nil

	case *PercentNode:
		if n.Value == nil {
			return Result{}, fmt.Errorf("%w: percent without value", ErrMalformedAST)
		}
		return Value(new(big.Rat).Quo(n.Value, hundred)), nil

	case *FieldRefNode:
		res := r.Resolve(n.ID)
		if res.IsBlank() && res.Error == nil {
			return Blank(MissingValue, n.ID), nil
		}
		return res, nil

	case *GroupNode:
		if n.Inner == nil {
			return Result{}, fmt.Errorf("%w: empty group", ErrMalformedAST)
		}
		return Evaluate(n.Inner, r)

	case *BinaryOpNode:
		if n.Left == nil || n.Right == nil {
			return Result{}, fmt.Errorf("%w: operator %s missing operand", ErrMalformedAST, n.Op)
		}
		left, err := Evaluate(n.Left, r)
		if err != nil || left.IsBlank() {
			return left, err
		}
		right, err := Evaluate(n.Right, r)
		if err != nil || right.IsBlank() {
			return right, err
		}
		return apply(n.Op, left.Value, right.Value)

	case nil:
		return Result{}, fmt.Errorf("%w: nil node", ErrMalformedAST)

	default:
		return Result{}, fmt.Errorf("%w: unknown node %T", ErrMalformedAST, node)
	}
}

func apply(op BinaryOp, a, b *big.Rat) (Result, error) {
	switch op {
	case OpAdd:
		return Value(new(big.Rat).Add(a, b)), nil
	case OpSub:
		return Value(new(big.Rat).Sub(a, b)), nil
	case OpMul:
		return Value(new(big.Rat).Mul(a, b)), nil
	case OpDiv:
		if b.Sign() == 0 {
			return Blank(Mathematical, ""), nil
		}
		return Value(new(big.Rat).Quo(a, b)), nil
	case OpMod:
		if b.Sign() == 0 {
			return Blank(Mathematical, ""), nil
		}
		return Value(Mod(a, b)), nil
	default:
		return Result{}, fmt.Errorf("%w: unknown operator %s", ErrMalformedAST, op)
	}
}

// Mod returns the floored remainder a - b*floor(a/b); the sign of a
// non-zero result follows b. b must be non-zero.
func Mod(a, b *big.Rat) *big.Rat {
	q := new(big.Rat).Quo(a, b)
	// Denom is always positive, so Euclidean Div is floor division here.
	floor := new(big.Int).Div(q.Num(), q.Denom())
	prod := new(big.Rat).Mul(b, new(big.Rat).SetInt(floor))
	return prod.Sub(a, prod)
}
