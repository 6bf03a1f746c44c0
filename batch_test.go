package calcfield

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/calcfield/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBatch_PreservesOrderAndIsolatesFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchConcurrency = 3
	e := newTestEngine(t, WithConfig(cfg))

	defs := NewDefinitions(constant("qty"), calculated("total", "#{qty} * 1.5"))
	requests := make([]RecordRequest, 0, 20)
	for i := range 20 {
		ectx := NewEvaluationContext().Enable("qty").Store("qty", NumberValue(rat(fmt.Sprint(i))))
		requests = append(requests, RecordRequest{
			RecordID:    fmt.Sprintf("rec-%02d", i),
			Requested:   []FieldID{"total"},
			Definitions: defs,
			Context:     ectx,
		})
	}
	requests[7].Requested = []FieldID{"missing"}

	outcomes, err := e.CalculateBatch(context.Background(), requests)
	require.NoError(t, err)
	require.Len(t, outcomes, len(requests))

	for i, o := range outcomes {
		assert.Equal(t, requests[i].RecordID, o.RecordID)
		if i == 7 {
			assert.Equal(t, ErrCodeUnknownField, ErrorCode(o.Err))
			assert.Nil(t, o.Outcome)
			continue
		}
		require.NoError(t, o.Err)
		requireValue(t, fmt.Sprintf("%d/2", 3*i), o.Outcome["total"])
	}
}

func TestCalculateBatch_CancelledContext(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	requests := []RecordRequest{
		{RecordID: "a", Requested: []FieldID{"x"}, Definitions: NewDefinitions(calculated("x", "1")), Context: NewEvaluationContext()},
		{RecordID: "b", Requested: []FieldID{"x"}, Definitions: NewDefinitions(calculated("x", "2")), Context: NewEvaluationContext()},
	}
	outcomes, err := e.CalculateBatch(ctx, requests)
	require.Error(t, err)
	assert.Equal(t, ErrCodeCancelled, ErrorCode(err))
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, ErrCodeCancelled, ErrorCode(o.Err))
	}
}

func TestCalculateBatch_Empty(t *testing.T) {
	e := newTestEngine(t)
	outcomes, err := e.CalculateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestEngine_PublishesCalculationEvents(t *testing.T) {
	bus := eventbus.NewChannelEventBus(eventbus.WithBufferSize(32), eventbus.WithWorkerCount(1))
	defer bus.Close()

	var (
		mu     sync.Mutex
		events []eventbus.Event
	)
	done := make(chan struct{})
	_, err := bus.SubscribeAll(func(ctx context.Context, evt eventbus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, evt)
		if evt.Type() == eventbus.EventCalculationCompleted {
			close(done)
		}
		return nil
	})
	require.NoError(t, err)

	e := newTestEngine(t, WithEventBus(bus))
	defs := NewDefinitions(
		constant("b"),
		calculated("ok", "1"),
		calculated("bad", "#{b} + 1"),
	)
	_, err = e.Calculate(context.Background(), defs.Calculated(), defs, NewEvaluationContext())
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for calculation_completed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)

	// a single worker delivers in publish order
	assert.Equal(t, eventbus.EventCalculationStarted, events[0].Type())
	assert.Equal(t, eventbus.EventFieldBlanked, events[1].Type())
	assert.Equal(t, eventbus.EventCalculationCompleted, events[2].Type())

	runID := events[0].Metadata()["run_id"]
	require.NotEmpty(t, runID)
	for _, evt := range events {
		assert.Equal(t, runID, evt.Metadata()["run_id"])
	}
	assert.Equal(t, "bad", events[1].Metadata()["field"])
	assert.Equal(t, ErrorDescriptor{Kind: DisabledValue, Field: "b"}, events[1].Payload())
}

func TestEngine_PublishesFailureEvent(t *testing.T) {
	bus := eventbus.NewChannelEventBus(eventbus.WithBufferSize(8), eventbus.WithWorkerCount(1))
	defer bus.Close()

	failed := make(chan eventbus.Event, 1)
	_, err := bus.Subscribe([]eventbus.EventType{eventbus.EventCalculationFailed}, func(ctx context.Context, evt eventbus.Event) error {
		failed <- evt
		return nil
	})
	require.NoError(t, err)

	e := newTestEngine(t, WithEventBus(bus))
	_, err = e.Calculate(context.Background(), []FieldID{"nope"}, Definitions{}, NewEvaluationContext())
	require.Error(t, err)

	select {
	case evt := <-failed:
		assert.Equal(t, ErrCodeUnknownField, evt.Metadata()["code"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for calculation_failed")
	}
}
