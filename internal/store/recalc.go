package store

import (
	"context"

	"github.com/ZanzyTHEbar/calcfield"
)

// Recalculate loads a record, calculates the requested fields (every
// enabled calculated field when none are given) and persists the outcome.
func (s *SQLiteStore) Recalculate(ctx context.Context, calc calcfield.Calculator, recordID string, requested []calcfield.FieldID) (calcfield.Outcome, error) {
	defs, err := s.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	ectx, err := s.LoadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if len(requested) == 0 {
		for _, id := range defs.Calculated() {
			if ectx.IsEnabled(id) {
				requested = append(requested, id)
			}
		}
	}

	outcome, err := calc.Calculate(ctx, requested, defs, ectx)
	if err != nil {
		return nil, err
	}
	if err := s.SaveOutcome(ctx, recordID, outcome); err != nil {
		return nil, err
	}
	s.logger.Info("record recalculated", map[string]interface{}{
		"record_id": recordID,
		"fields":    len(outcome),
		"blanked":   len(outcome.Blanks()),
	})
	return outcome, nil
}
