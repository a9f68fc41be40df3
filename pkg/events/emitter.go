// Package events announces resolution run lifecycle changes.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	EventRunComputed = "resolution.computed"
	EventRunApplied  = "resolution.applied"
	EventRunReversed = "resolution.reversed"
)

type Publisher interface {
	PublishResolutionEvent(ctx context.Context, event *kafka.ResolutionEvent) error
}

type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) RunComputed(ctx context.Context, run models.ResolutionRun, summary models.RunSummary) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RunComputed")
	defer span.End()

	return e.emit(ctx, EventRunComputed, run, run.ComputedBy, summary)
}

func (e *Emitter) RunApplied(ctx context.Context, run models.ResolutionRun, summary models.ApplySummary) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RunApplied")
	defer span.End()

	return e.emit(ctx, EventRunApplied, run, deref(run.AppliedBy), summary)
}

func (e *Emitter) RunReversed(ctx context.Context, run models.ResolutionRun, summary models.ReverseSummary) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RunReversed")
	defer span.End()

	return e.emit(ctx, EventRunReversed, run, deref(run.ReversedBy), summary)
}

func (e *Emitter) emit(ctx context.Context, eventType string, run models.ResolutionRun, actor string, summary any) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	event := &kafka.ResolutionEvent{
		EventType: eventType,
		OrgID:     run.OrgID,
		RunID:     run.ID,
		Status:    string(run.Status),
		Actor:     actor,
		Summary:   data,
	}

	if err := e.publisher.PublishResolutionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", eventType).Error("Failed to emit resolution event")
		return err
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
