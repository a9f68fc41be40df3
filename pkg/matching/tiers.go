package matching

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

const keySep = "\x1f"

// Rule describes how one tier groups records.
type Rule struct {
	Tier    models.MatchTier
	Signals []string
	// Key returns the composite grouping key, or false when the record lacks a field.
	Key func(r models.IdentityRecord) (string, bool)
	// MatchedOn renders the key for humans.
	MatchedOn func(r models.IdentityRecord) string
}

func joinKey(parts ...string) (string, bool) {
	for _, p := range parts {
		if p == "" {
			return "", false
		}
	}
	return strings.Join(parts, keySep), true
}

func fullName(r models.IdentityRecord) string {
	return r.FirstName + " " + r.LastName
}

// NameKey is the (firstName, lastName) key used for tier 6 and for common-name frequency.
func NameKey(r models.IdentityRecord) (string, bool) {
	return joinKey(r.FirstName, r.LastName)
}

// Rules returns the six tiers in evaluation order.
func Rules() []Rule {
	return []Rule{
		{
			Tier:      models.TierEmail,
			Signals:   []string{"email"},
			Key:       func(r models.IdentityRecord) (string, bool) { return joinKey(r.Email) },
			MatchedOn: func(r models.IdentityRecord) string { return r.Email },
		},
		{
			Tier:      models.TierPhone,
			Signals:   []string{"phone"},
			Key:       func(r models.IdentityRecord) (string, bool) { return joinKey(r.Phone) },
			MatchedOn: func(r models.IdentityRecord) string { return r.Phone },
		},
		{
			Tier:    models.TierNameCompany,
			Signals: []string{"first_name", "last_name", "company"},
			Key: func(r models.IdentityRecord) (string, bool) {
				return joinKey(r.FirstName, r.LastName, r.Company)
			},
			MatchedOn: func(r models.IdentityRecord) string { return fullName(r) + " @ " + r.Company },
		},
		{
			Tier:    models.TierNameDomain,
			Signals: []string{"first_name", "last_name", "email_domain"},
			Key: func(r models.IdentityRecord) (string, bool) {
				return joinKey(r.FirstName, r.LastName, r.EmailDomain)
			},
			MatchedOn: func(r models.IdentityRecord) string { return fullName(r) + " @ " + r.EmailDomain },
		},
		{
			Tier:    models.TierNameCity,
			Signals: []string{"first_name", "last_name", "city"},
			Key: func(r models.IdentityRecord) (string, bool) {
				return joinKey(r.FirstName, r.LastName, r.City)
			},
			MatchedOn: func(r models.IdentityRecord) string { return fullName(r) + " in " + r.City },
		},
		{
			Tier:      models.TierNameOnly,
			Signals:   []string{"first_name", "last_name"},
			Key:       NameKey,
			MatchedOn: fullName,
		},
	}
}

// group buckets records by the rule key. Records keep their input order inside a bucket
// and the bucket keys are returned sorted.
func group(records []models.IdentityRecord, key func(models.IdentityRecord) (string, bool)) ([]string, map[string][]models.IdentityRecord) {
	groups := make(map[string][]models.IdentityRecord)
	for _, r := range records {
		k, ok := key(r)
		if !ok {
			continue
		}
		groups[k] = append(groups[k], r)
	}

	keys := make([]string, 0, len(groups))
	for k, members := range groups {
		if len(members) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, groups
}

// RunTier emits one candidate per unclaimed cross-source pair sharing the rule key.
// review decides needsReview for a group key. records must already be in canonical order.
func RunTier(rule Rule, records []models.IdentityRecord, pairs PairSet, review func(groupKey string) bool) []models.MatchCandidate {
	keys, groups := group(records, rule.Key)

	var out []models.MatchCandidate
	for _, k := range keys {
		members := groups[k]
		needsReview := review != nil && review(k)
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := members[i], members[j]
				if a.Source == b.Source {
					continue
				}
				if !pairs.Claim(a, b) {
					continue
				}
				out = append(out, models.MatchCandidate{
					RecordA:     a,
					RecordB:     b,
					Tier:        rule.Tier,
					Confidence:  rule.Tier.Confidence(),
					Signals:     append([]string(nil), rule.Signals...),
					MatchedOn:   rule.MatchedOn(a),
					NeedsReview: needsReview,
				})
			}
		}
	}
	return out
}

// NameFrequency counts every (firstName, lastName) key across all records.
func NameFrequency(records []models.IdentityRecord) map[string]int {
	freq := make(map[string]int)
	for _, r := range records {
		if k, ok := NameKey(r); ok {
			freq[k]++
		}
	}
	return freq
}
