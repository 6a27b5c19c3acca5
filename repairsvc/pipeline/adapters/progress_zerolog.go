// Package adapters provides the concrete implementations of the pipeline
// ports: stores, cache, runner and progress reporting.
package adapters

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
)

// ZerologProgress implements the ProgressReporter interface using zerolog.
type ZerologProgress struct {
	logger zerolog.Logger
}

// NewZerologProgress creates a new zerolog progress reporter.
func NewZerologProgress(logger zerolog.Logger) *ZerologProgress {
	return &ZerologProgress{logger: logger}
}

// StepStarted logs the start of a lifecycle step.
func (p *ZerologProgress) StepStarted(ctx context.Context, step, msg string) {
	p.logger.Info().Str("step", step).Str("event", "step_started").Msg(msg)
}

// StepFinished logs the end of a lifecycle step.
func (p *ZerologProgress) StepFinished(ctx context.Context, step, msg string) {
	p.logger.Info().Str("step", step).Str("event", "step_finished").Msg(msg)
}

// Event logs a point-in-time progress event with attributes.
func (p *ZerologProgress) Event(ctx context.Context, name string, attrs map[string]any) {
	event := p.logger.Info()
	for k, v := range attrs {
		event = event.Interface(k, v)
	}
	event.Str("event", name).Msg("progress event")
}

// Ensure ZerologProgress implements the ProgressReporter interface.
var _ ports.ProgressReporter = (*ZerologProgress)(nil)
