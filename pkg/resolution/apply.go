package resolution

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/clover/pkg/materializer"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Apply materializes the run's candidates into the identity graph. A nil
// acceptedIDs applies every candidate that is not rejected; otherwise only the listed
// ones are considered and unknown ids are ignored. Failures are counted per candidate.
func (o *Orchestrator) Apply(ctx context.Context, orgID, runID, actor string, acceptedIDs []string) (summary models.ApplySummary, err error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Orchestrator.Apply")
	defer span.End()

	started := time.Now()
	defer func() { record("apply", started, err) }()

	release := o.hold(ctx, orgID, "apply")
	defer release()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"org_id": orgID,
		"run_id": runID,
	})

	run, err := o.deps.Runs.Get(ctx, orgID, runID)
	if err != nil {
		return models.ApplySummary{}, err
	}

	candidates, err := o.deps.Candidates.ListByRun(ctx, orgID, runID, models.CandidateFilter{})
	if err != nil {
		return models.ApplySummary{}, err
	}

	selected := selectCandidates(candidates, acceptedIDs)
	summary = models.ApplySummary{RunID: runID}

	nodes := map[string]struct{}{}
	outcome := make(map[string]models.CandidateStatus, len(candidates))
	for _, c := range candidates {
		outcome[c.ID] = c.Status
	}

	for _, c := range selected {
		res, err := o.applyCandidate(ctx, orgID, runID, actor, c)
		if err != nil {
			summary.Errors++
			log.WithError(err).WithField("candidate_id", c.ID).Warn("Failed to apply candidate, skipping")
			continue
		}

		nodes[res.Source.ID] = struct{}{}
		nodes[res.Target.ID] = struct{}{}
		outcome[c.ID] = models.CandidateStatusAccepted
		summary.Accepted++

		if res.Created {
			summary.EdgesCreated++
			o.deps.Materializer.Project(ctx, res)
		} else {
			summary.EdgesExisting++
		}

		linked, err := o.deps.Materializer.MirrorLink(ctx, orgID, c.RefA(), c.RefB(), res.Edge, runID)
		if err != nil {
			log.WithError(err).WithField("candidate_id", c.ID).Warn("Failed to mirror identity link")
		}
		if linked {
			summary.IdentityLinksCreated++
		}
	}
	summary.GraphNodesSynced = len(nodes)
	summary.Status = models.RunStatusApplied
	for _, status := range outcome {
		if status != models.CandidateStatusAccepted {
			summary.Status = models.RunStatusPartiallyApplied
			break
		}
	}

	now := o.now()
	run.Status = summary.Status
	run.AppliedBy = &actor
	run.AppliedAt = &now
	stats := run.Stats.Data
	stats.Apply = &summary
	run.Stats.Data = stats
	if err := o.deps.Runs.Update(ctx, *run); err != nil {
		log.WithError(err).Error("Failed to record apply on run")
		return summary, err
	}

	metrics.RecordEdges("created", summary.EdgesCreated)
	metrics.RecordEdges("existing", summary.EdgesExisting)
	o.invalidate(ctx, orgID)

	log.WithFields(map[string]any{
		"status":         summary.Status,
		"accepted":       summary.Accepted,
		"edges_created":  summary.EdgesCreated,
		"edges_existing": summary.EdgesExisting,
		"errors":         summary.Errors,
	}).Info("Applied resolution run")

	o.notify(ctx, "applied", func(n Notifier) error { return n.RunApplied(ctx, *run, summary) })
	return summary, nil
}

func selectCandidates(candidates []models.PersistedCandidate, acceptedIDs []string) []models.PersistedCandidate {
	var wanted map[string]struct{}
	if acceptedIDs != nil {
		wanted = make(map[string]struct{}, len(acceptedIDs))
		for _, id := range acceptedIDs {
			wanted[id] = struct{}{}
		}
	}

	selected := make([]models.PersistedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Status == models.CandidateStatusRejected {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[c.ID]; !ok {
				continue
			}
		}
		selected = append(selected, c)
	}
	return selected
}

// applyCandidate ensures both nodes and the edge, then marks the candidate accepted,
// all in one transaction. Projection happens after commit.
func (o *Orchestrator) applyCandidate(ctx context.Context, orgID, runID, actor string, c models.PersistedCandidate) (materializer.EdgeResult, error) {
	var res materializer.EdgeResult
	err := o.withinTx(ctx, func(ctx context.Context) error {
		a, err := o.deps.Materializer.EnsureNode(ctx, orgID, c.SourceA.EntityType(), c.RecordAID, c.LabelA, actor)
		if err != nil {
			return err
		}
		b, err := o.deps.Materializer.EnsureNode(ctx, orgID, c.SourceB.EntityType(), c.RecordBID, c.LabelB, actor)
		if err != nil {
			return err
		}

		res, err = o.deps.Materializer.EnsureEdge(ctx, orgID, a, b, materializer.EdgeSpec{
			Confidence: c.Confidence,
			Actor:      actor,
			Properties: models.EdgeProperties{
				RunID:     runID,
				Tier:      c.Tier,
				Signals:   c.Signals.Data,
				MatchedOn: c.MatchedOn,
			},
		})
		if err != nil {
			return err
		}

		return o.deps.Candidates.Accept(ctx, orgID, c.ID, res.Edge.ID, actor)
	})
	if err != nil {
		return materializer.EdgeResult{}, err
	}
	return res, nil
}

// Reverse retires every edge the run's accepted candidates point at and returns those
// candidates to pending. An edge shared with another run is retired for both.
func (o *Orchestrator) Reverse(ctx context.Context, orgID, runID, actor string) (summary models.ReverseSummary, err error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Orchestrator.Reverse")
	defer span.End()

	started := time.Now()
	defer func() { record("reverse", started, err) }()

	release := o.hold(ctx, orgID, "reverse")
	defer release()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"org_id": orgID,
		"run_id": runID,
	})

	run, err := o.deps.Runs.Get(ctx, orgID, runID)
	if err != nil {
		return models.ReverseSummary{}, err
	}
	if run.Status == models.RunStatusPendingReview {
		return models.ReverseSummary{}, fmt.Errorf("reverse run %s: %w", runID, models.ErrRunNotApplied)
	}

	accepted, err := o.deps.Candidates.ListByRun(ctx, orgID, runID, models.CandidateFilter{Status: models.CandidateStatusAccepted})
	if err != nil {
		return models.ReverseSummary{}, err
	}

	summary = models.ReverseSummary{RunID: runID}
	for _, c := range accepted {
		edgeID := ""
		if c.GraphEdgeID != nil {
			edgeID = *c.GraphEdgeID
		}

		var retired bool
		err := o.withinTx(ctx, func(ctx context.Context) error {
			if edgeID != "" {
				ok, err := o.deps.Materializer.RetireEdge(ctx, orgID, edgeID)
				if err != nil {
					return err
				}
				retired = ok
			}
			return o.deps.Candidates.ResetToPending(ctx, orgID, c.ID)
		})
		if err != nil {
			summary.Errors++
			log.WithError(err).WithField("candidate_id", c.ID).Warn("Failed to reverse candidate, skipping")
			continue
		}
		if edgeID == "" {
			continue
		}
		if retired {
			summary.EdgesDeactivated++
			o.deps.Materializer.Unproject(ctx, orgID, edgeID)
		}

		n, err := o.deps.Materializer.RetireLinks(ctx, orgID, edgeID)
		if err != nil {
			log.WithError(err).WithField("edge_id", edgeID).Warn("Failed to deactivate identity links")
		}
		summary.LinksDeactivated += n
	}

	now := o.now()
	run.Status = models.RunStatusReversed
	run.ReversedBy = &actor
	run.ReversedAt = &now
	stats := run.Stats.Data
	stats.Reverse = &summary
	run.Stats.Data = stats
	if err := o.deps.Runs.Update(ctx, *run); err != nil {
		log.WithError(err).Error("Failed to record reverse on run")
		return summary, err
	}

	metrics.RecordEdges("deactivated", summary.EdgesDeactivated)
	o.invalidate(ctx, orgID)

	log.WithFields(map[string]any{
		"edges_deactivated": summary.EdgesDeactivated,
		"links_deactivated": summary.LinksDeactivated,
		"errors":            summary.Errors,
	}).Info("Reversed resolution run")

	o.notify(ctx, "reversed", func(n Notifier) error { return n.RunReversed(ctx, *run, summary) })
	return summary, nil
}

// AutoApply computes a fresh run and applies only the candidates at or above the
// configured confidence threshold. The rest stay pending for review.
func (o *Orchestrator) AutoApply(ctx context.Context, orgID, actor string) (models.AutoApplySummary, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Orchestrator.AutoApply")
	defer span.End()

	computed, err := o.Compute(ctx, orgID, actor)
	if err != nil {
		return models.AutoApplySummary{}, fmt.Errorf("compute: %w", err)
	}

	candidates, err := o.deps.Candidates.ListByRun(ctx, orgID, computed.RunID, models.CandidateFilter{Status: models.CandidateStatusPending})
	if err != nil {
		return models.AutoApplySummary{}, err
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= o.config.AutoApplyThreshold {
			ids = append(ids, c.ID)
		}
	}

	result := models.AutoApplySummary{
		Compute: computed,
		Status:  models.RunStatusPendingReview,
	}
	if len(ids) == 0 {
		o.logger.WithContext(ctx).WithFields(map[string]any{
			"org_id": orgID,
			"run_id": computed.RunID,
		}).Info("No candidates above auto-apply threshold")
		return result, nil
	}

	applied, err := o.Apply(ctx, orgID, computed.RunID, actor, ids)
	if err != nil {
		return result, fmt.Errorf("apply: %w", err)
	}
	result.Apply = &applied
	result.Status = applied.Status
	return result, nil
}
