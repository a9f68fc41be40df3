// Package matching implements the six-tier waterfall matcher.
package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultCommonNameThreshold is how many records must share a first+last name before
// name-only candidates for that name are flagged for review.
const DefaultCommonNameThreshold = 3

type Config struct {
	CommonNameThreshold int
}

func DefaultConfig() Config {
	return Config{CommonNameThreshold: DefaultCommonNameThreshold}
}

// Result is the matcher output for one set of records.
type Result struct {
	Candidates   []models.MatchCandidate
	ByTier       []models.TierStats
	TotalScanned int
	UniqueEmails int
}

// Engine runs the waterfall. It holds no state between calls.
type Engine struct {
	logger ectologger.Logger
	config Config
	rules  []Rule
}

func NewEngine(logger ectologger.Logger, config Config) *Engine {
	return &Engine{
		logger: logger,
		config: config,
		rules:  Rules(),
	}
}

// Match produces at most one candidate per unordered cross-source pair, from the highest
// tier that matches it. Output is independent of input order.
func (e *Engine) Match(ctx context.Context, records []models.IdentityRecord) Result {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	ordered := Canonicalize(records)
	pairs := NewPairSet()

	freq := NameFrequency(ordered)
	commonName := func(groupKey string) bool {
		return e.config.CommonNameThreshold > 0 && freq[groupKey] >= e.config.CommonNameThreshold
	}

	result := Result{
		TotalScanned: len(ordered),
		UniqueEmails: uniqueEmails(ordered),
	}

	for _, rule := range e.rules {
		var review func(string) bool
		if rule.Tier == models.TierNameOnly {
			review = commonName
		}

		candidates := RunTier(rule, ordered, pairs, review)

		stats := models.TierStats{
			Tier:       rule.Tier,
			Label:      rule.Tier.Label(),
			Confidence: rule.Tier.Confidence(),
			Count:      len(candidates),
		}
		for _, c := range candidates {
			if c.NeedsReview {
				stats.NeedsReview++
			}
		}
		result.ByTier = append(result.ByTier, stats)
		result.Candidates = append(result.Candidates, candidates...)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"records":    result.TotalScanned,
		"candidates": len(result.Candidates),
	}).Debug("Waterfall match complete")

	return result
}

// Canonicalize sorts records by (source, id) and drops repeated keys, keeping the first.
func Canonicalize(records []models.IdentityRecord) []models.IdentityRecord {
	ordered := make([]models.IdentityRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Source != ordered[j].Source {
			return ordered[i].Source < ordered[j].Source
		}
		return ordered[i].ID < ordered[j].ID
	})

	out := ordered[:0]
	seen := make(map[string]struct{}, len(ordered))
	for _, r := range ordered {
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r)
	}
	return out
}

func uniqueEmails(records []models.IdentityRecord) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.Email != "" {
			seen[r.Email] = struct{}{}
		}
	}
	return len(seen)
}
