// Package processor reacts to source sync notifications.
package processor

import (
	"context"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultActor is recorded on runs started by a sync when the message names no actor.
const DefaultActor = "system:source-sync"

type AutoApplier interface {
	AutoApply(ctx context.Context, orgID, actor string) (models.AutoApplySummary, error)
}

// SyncProcessor runs the auto-apply policy for every org whose source finished syncing.
type SyncProcessor struct {
	applier AutoApplier
	logger  ectologger.Logger
	enabled bool
}

func NewSyncProcessor(applier AutoApplier, logger ectologger.Logger, enabled bool) *SyncProcessor {
	return &SyncProcessor{
		applier: applier,
		logger:  logger,
		enabled: enabled,
	}
}

// Handle is a kafka.MessageHandler.
func (p *SyncProcessor) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.SyncProcessor.Handle")
	defer span.End()

	orgID := msg.GetOrgID()
	actor := DefaultActor
	source := ""
	if msg.Synced != nil {
		source = msg.Synced.Source
		if msg.Synced.Actor != "" {
			actor = msg.Synced.Actor
		}
	}

	ctx = appctx.SetOrgID(ctx, orgID)
	ctx = appctx.SetActorID(ctx, actor)

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"org_id": orgID,
		"source": source,
	})

	if !p.enabled {
		log.Debug("Auto-apply disabled, ignoring source sync")
		return nil
	}

	result, err := p.applier.AutoApply(ctx, orgID, actor)
	if err != nil {
		log.WithError(err).Error("Auto-apply after source sync failed")
		return err
	}

	fields := map[string]any{
		"run_id":     result.Compute.RunID,
		"candidates": result.Compute.Candidates,
		"status":     result.Status,
	}
	if result.Apply != nil {
		fields["edges_created"] = result.Apply.EdgesCreated
	}
	log.WithFields(fields).Info("Auto-applied resolution after source sync")
	return nil
}
