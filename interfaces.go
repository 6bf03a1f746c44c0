package calcfield

import "context"

// FormulaCache stores parsed formulas keyed by formula text. Formula text
// for a field revision is immutable, so a cached AST may be shared by
// concurrent calculations. Get returns an error on a miss.
type FormulaCache interface {
	Get(ctx context.Context, text string) (*Formula, error)
	Set(ctx context.Context, text string, f *Formula) error
}

// Calculator is the engine contract consumed by hosts.
type Calculator interface {
	Calculate(ctx context.Context, requested []FieldID, defs Definitions, ectx EvaluationContext) (Outcome, error)
}
