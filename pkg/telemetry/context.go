package telemetry

import "context"

// contextKey is a type for context keys to avoid collisions
type contextKey string

const dispatcherContextKey contextKey = "telemetry_dispatcher"

// WithDispatcher adds a telemetry dispatcher to the context
func WithDispatcher(ctx context.Context, d *Dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherContextKey, d)
}

// FromContext retrieves the telemetry dispatcher from context
func FromContext(ctx context.Context) *Dispatcher {
	if d, ok := ctx.Value(dispatcherContextKey).(*Dispatcher); ok {
		return d
	}
	return nil
}

// Record reports an event through the dispatcher carried by ctx, if any.
// With no dispatcher on the context it is a no-op, so call sites never need
// to guard.
func Record(ctx context.Context, name EventName, data any) {
	if d := FromContext(ctx); d != nil {
		d.Record(ctx, name, data)
	}
}
