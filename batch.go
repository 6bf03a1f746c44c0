package calcfield

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/calcfield/internal/eventbus"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecordRequest is one record's calculation input within a batch.
type RecordRequest struct {
	RecordID    string
	Requested   []FieldID
	Definitions Definitions
	Context     EvaluationContext
}

// RecordOutcome is the result of one RecordRequest. Err holds the hard
// error of that record only; other records are unaffected by it.
type RecordOutcome struct {
	RecordID string
	Outcome  Outcome
	Err      error
}

// CalculateBatch calculates independent records concurrently, at most
// Config.BatchConcurrency at a time. Outcomes are returned in request order.
// The returned error is non-nil only when ctx ends before every record was
// calculated; records that never started carry a cancellation Err.
func (e *Engine) CalculateBatch(ctx context.Context, requests []RecordRequest) ([]RecordOutcome, error) {
	batchID := uuid.New().String()
	ctx, span := otel.Tracer("calcfield").Start(ctx, "calcfield.Engine.CalculateBatch",
		trace.WithAttributes(
			attribute.String("batch_id", batchID),
			attribute.Int("records", len(requests)),
			attribute.Int("concurrency", e.config.BatchConcurrency),
		),
	)
	defer span.End()

	start := time.Now()
	e.publish(ctx, eventbus.EventBatchStarted, len(requests), map[string]interface{}{
		"batch_id": batchID,
	})

	outcomes := make([]RecordOutcome, len(requests))
	p := pool.New().WithMaxGoroutines(e.config.BatchConcurrency).WithContext(ctx)
	for i := range requests {
		req := requests[i]
		outcomes[i].RecordID = req.RecordID
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = NewCancelledError("batch", err)
				return err
			}
			outcome, err := e.Calculate(ctx, req.Requested, req.Definitions, req.Context)
			outcomes[i].Outcome = outcome
			outcomes[i].Err = err
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		cancelErr := NewCancelledError("batch", err)
		span.RecordError(cancelErr)
		span.SetStatus(codes.Error, "batch cancelled")
		e.logger.Error("batch cancelled", map[string]interface{}{
			"batch_id": batchID,
			"error":    err.Error(),
		})
		e.publish(context.WithoutCancel(ctx), eventbus.EventBatchFailed, cancelErr, map[string]interface{}{
			"batch_id": batchID,
		})
		return outcomes, cancelErr
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed_records", failed))

	e.logger.Info("batch finished", map[string]interface{}{
		"batch_id": batchID,
		"records":  len(requests),
		"failed":   failed,
		"duration": time.Since(start).String(),
	})
	e.publish(ctx, eventbus.EventBatchCompleted, len(requests), map[string]interface{}{
		"batch_id":       batchID,
		"failed_records": failed,
		"duration_ms":    time.Since(start).Milliseconds(),
	})

	return outcomes, nil
}
