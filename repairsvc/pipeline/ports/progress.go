package ports

import "context"

// ProgressReporter emits coarse lifecycle events for observability. Events
// carry no control-flow significance.
type ProgressReporter interface {
	StepStarted(ctx context.Context, step, msg string)
	StepFinished(ctx context.Context, step, msg string)
	Event(ctx context.Context, name string, attrs map[string]any)
}
