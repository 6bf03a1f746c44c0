package calcfield

import "github.com/ZanzyTHEbar/calcfield/internal/eventbus"

// WithEventBus sets the event bus calculation events are published on. An
// injected bus is not closed by Engine.Close.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *Engine) {
		e.eventBus = bus
	}
}
