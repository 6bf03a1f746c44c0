// Package formula parses and evaluates calculated custom field formulas.
//
// A formula is arithmetic over exact rationals. Operands are decimal
// literals, percent literals (7% is the rational 7/100) and references to
// other custom fields written as #{id}. References are resolved to typed
// FieldRefNode values at parse time so evaluation never re-reads the text.
package formula

import (
	"fmt"
	"math/big"
	"strings"
)

// FieldID identifies a custom field definition. Ordering is lexicographic.
type FieldID string

// BinaryOp is an arithmetic operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	default:
		return fmt.Sprintf("BinaryOp(%d)", int(op))
	}
}

// Node is a formula AST node. Nodes are immutable once built and may be
// shared across goroutines.
type Node interface {
	// String renders the node back into formula syntax.
	String() string
	node()
}

// NumberNode is a decimal literal.
type NumberNode struct {
	Value *big.Rat
}

// PercentNode is a literal followed by '%'. It evaluates to Value/100 and is
// never applied to the neighbouring operand.
type PercentNode struct {
	Value *big.Rat
}

// FieldRefNode references another custom field by id.
type FieldRefNode struct {
	ID FieldID
}

// BinaryOpNode applies Op to Left and Right.
type BinaryOpNode struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// GroupNode is a parenthesised sub-expression.
type GroupNode struct {
	Inner Node
}

func (*NumberNode) node()   {}
func (*PercentNode) node()  {}
func (*FieldRefNode) node() {}
func (*BinaryOpNode) node() {}
func (*GroupNode) node()    {}

func (n *NumberNode) String() string  { return FormatRat(n.Value) }
func (n *PercentNode) String() string { return FormatRat(n.Value) + "%" }
func (n *FieldRefNode) String() string {
	return "#{" + string(n.ID) + "}"
}

func (n *BinaryOpNode) String() string {
	var b strings.Builder
	b.WriteString(n.Left.String())
	b.WriteByte(' ')
	b.WriteString(n.Op.String())
	b.WriteByte(' ')
	b.WriteString(n.Right.String())
	return b.String()
}

func (n *GroupNode) String() string { return "(" + n.Inner.String() + ")" }

// FormatRat prints a rational the way it would be typed: integers plainly,
// finite decimals in decimal notation, anything else as a fraction.
func FormatRat(r *big.Rat) string {
	if r == nil {
		return "<nil>"
	}
	if r.IsInt() {
		return r.Num().String()
	}
	if prec, exact := r.FloatPrec(); exact {
		return r.FloatString(prec)
	}
	return r.RatString()
}

// Formula is a parsed formula. The zero value is not usable; build one with
// Parse or MustParse.
type Formula struct {
	Text string
	Root Node

	deps []FieldID
}

// Dependencies returns the distinct field ids referenced by the formula in
// ascending order. The returned slice must not be modified.
func (f *Formula) Dependencies() []FieldID {
	return f.deps
}

// String renders the normalised formula.
func (f *Formula) String() string {
	if f == nil || f.Root == nil {
		return ""
	}
	return f.Root.String()
}
