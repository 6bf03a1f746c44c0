// Package calcfield evaluates the formulas of calculated custom fields.
//
// An Engine takes the calculated fields a host wants (re)computed for one
// record, the definitions of every field enabled on that record, and the
// record's stored values, and returns an Outcome: an exact rational per
// requested field, or a blank with an ErrorDescriptor saying why. Fields
// outside the request are read from their stored values and never
// recomputed, even when they are calculated fields themselves.
package calcfield

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ZanzyTHEbar/calcfield/internal/cache"
	"github.com/ZanzyTHEbar/calcfield/internal/eventbus"
	"github.com/ZanzyTHEbar/calcfield/internal/formula"
	"github.com/ZanzyTHEbar/calcfield/internal/graph"
	"github.com/ZanzyTHEbar/calcfield/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Engine is the calculation facade. It holds no per-record state; one
// Engine may serve concurrent calculations for different records.
type Engine struct {
	config   Config
	cache    FormulaCache
	logger   logging.Logger
	eventBus eventbus.EventBus

	// parses deduplicates concurrent parses of the same formula text
	parses singleflight.Group

	metrics CalculationMetrics

	closers []func() error
}

var _ Calculator = (*Engine)(nil)

// Config holds the configuration options for an Engine.
type Config struct {
	// Lifetime of parsed formulas in the default cache; zero keeps them
	// until the engine is closed.
	CacheTTL time.Duration

	// Maximum number of records calculated concurrently by CalculateBatch
	BatchConcurrency int

	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:            time.Hour,
		BatchConcurrency:    8,
		EnableEventBus:      false,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 2,
	}
}

// Option is a function that configures an Engine.
type Option func(*Engine)

// WithConfig sets the configuration.
func WithConfig(config Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

// WithCache sets the formula cache.
func WithCache(c FormulaCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine with the provided options.
func New(options ...Option) (*Engine, error) {
	e := &Engine{
		config: DefaultConfig(),
		logger: logging.NopLogger{},
	}

	for _, option := range options {
		option(e)
	}

	if e.config.BatchConcurrency < 1 {
		return nil, NewConfigurationError(fmt.Sprintf("batch concurrency must be positive, got %d", e.config.BatchConcurrency), nil)
	}
	if e.logger == nil {
		e.logger = logging.NopLogger{}
	}

	if e.cache == nil {
		memCache := cache.NewInMemoryCache(e.config.CacheTTL, cache.WithLogger(e.logger))
		e.cache = memCache
		e.closers = append(e.closers, memCache.Close)
	}

	if e.config.EnableEventBus && e.eventBus == nil {
		bus := eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(e.config.EventBusBufferSize),
			eventbus.WithWorkerCount(e.config.EventBusWorkerCount),
			eventbus.WithLogger(e.logger),
		)
		e.eventBus = bus
		e.closers = append(e.closers, bus.Close)
		e.logger.Debug("initialized default channel event bus", map[string]interface{}{
			"buffer_size":  e.config.EventBusBufferSize,
			"worker_count": e.config.EventBusWorkerCount,
		})
	}

	return e, nil
}

// Close releases resources the engine created itself. Injected caches and
// event buses are left to their owners.
func (e *Engine) Close() error {
	var errs []error
	for _, closeFn := range e.closers {
		errs = append(errs, closeFn())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// EventBus returns the bus calculation events are published on, or nil.
func (e *Engine) EventBus() eventbus.EventBus {
	return e.eventBus
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() CalculationMetrics {
	return e.metrics.Copy()
}

// Parse returns the parsed formula for text, consulting the cache first.
func (e *Engine) Parse(ctx context.Context, text string) (*Formula, error) {
	if f, err := e.cache.Get(ctx, text); err == nil && f != nil {
		e.metrics.recordCache(true)
		return f, nil
	}
	e.metrics.recordCache(false)

	v, err, _ := e.parses.Do(text, func() (interface{}, error) {
		f, err := formula.Parse(text)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Set(ctx, text, f); err != nil {
			e.logger.Debug("formula not cached", map[string]interface{}{"formula": text, "error": err.Error()})
		}
		return f, nil
	})
	if err != nil {
		return nil, err
	}

	f, ok := v.(*Formula)
	if !ok {
		return nil, NewInternalError("parse", fmt.Sprintf("unexpected type from parse group: %T", v), nil)
	}
	return f, nil
}

// Calculate evaluates the requested calculated fields of one record.
//
// Blank, cycle and arithmetic conditions are reported inside the Outcome.
// An error is returned only for host misuse: a requested id without a
// definition, a requested field that is not calculated, or a formula that
// does not parse. No input is modified.
func (e *Engine) Calculate(ctx context.Context, requested []FieldID, defs Definitions, ectx EvaluationContext) (Outcome, error) {
	start := time.Now()
	runID := uuid.New().String()
	e.publish(ctx, eventbus.EventCalculationStarted, requested, map[string]interface{}{
		"run_id":    runID,
		"requested": len(requested),
	})

	outcome, evaluated, err := e.calculate(ctx, requested, defs, ectx)
	if err != nil {
		e.metrics.recordFailure()
		e.logger.Error("calculation failed", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
		e.publish(ctx, eventbus.EventCalculationFailed, err, map[string]interface{}{
			"run_id": runID,
			"code":   ErrorCode(err),
		})
		return nil, err
	}

	duration := time.Since(start)
	e.metrics.recordOutcome(len(outcome), evaluated, outcome, duration)

	blanks := outcome.Blanks()
	e.logger.Debug("calculation finished", map[string]interface{}{
		"run_id":    runID,
		"requested": len(outcome),
		"evaluated": evaluated,
		"blanked":   len(blanks),
		"duration":  duration.String(),
	})
	if e.eventBus != nil {
		for _, id := range outcome.IDs() {
			if d, blank := blanks[id]; blank {
				e.publish(ctx, eventbus.EventFieldBlanked, d, map[string]interface{}{
					"run_id": runID,
					"field":  string(id),
				})
			}
		}
		e.publish(ctx, eventbus.EventCalculationCompleted, outcome, map[string]interface{}{
			"run_id":      runID,
			"blanked":     len(blanks),
			"duration_ms": duration.Milliseconds(),
		})
	}

	return outcome, nil
}

func (e *Engine) calculate(ctx context.Context, requested []FieldID, defs Definitions, ectx EvaluationContext) (Outcome, int, error) {
	ids := slices.Clone(requested)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	requestedSet := make(map[FieldID]struct{}, len(ids))
	formulas := make(map[FieldID]*Formula, len(ids))
	for _, id := range ids {
		def, ok := defs[id]
		if !ok {
			return nil, 0, NewUnknownFieldError("plan", id)
		}
		if def.Kind != KindCalculated {
			return nil, 0, NewNotCalculatedError(id, def.Kind)
		}
		if def.Formula == "" {
			return nil, 0, NewMalformedFormulaError("parse", id, errors.New("calculated field has no formula"))
		}
		f, err := e.Parse(ctx, def.Formula)
		if err != nil {
			return nil, 0, NewMalformedFormulaError("parse", id, err)
		}
		formulas[id] = f
		requestedSet[id] = struct{}{}
	}

	order := graph.BuildOrder(ids, func(id FieldID) []FieldID {
		return formulas[id].Dependencies()
	})

	outcome := make(Outcome, len(ids))
	for _, id := range order.Cyclic {
		outcome[id] = formula.Blank(Circular, "")
	}

	res := newResolver(defs, ectx, requestedSet, order.IsCyclic)
	for _, id := range order.Sequence {
		result, err := formula.Evaluate(formulas[id].Root, res)
		if err != nil {
			return nil, 0, NewMalformedFormulaError("evaluate", id, err)
		}
		res.record(id, result)
		outcome[id] = result
	}

	return outcome, len(order.Sequence), nil
}

func (e *Engine) publish(ctx context.Context, eventType eventbus.EventType, payload interface{}, metadata map[string]interface{}) {
	if e.eventBus == nil {
		return
	}
	evt := eventbus.NewEvent(eventType, payload, "calcfield.Engine", metadata)
	if err := e.eventBus.Publish(ctx, evt); err != nil {
		e.logger.Debug("event not published", map[string]interface{}{
			"event_type": string(eventType),
			"error":      err.Error(),
		})
	}
}
