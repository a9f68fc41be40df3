package matching

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(threshold int) *Engine {
	return NewEngine(ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}), Config{CommonNameThreshold: threshold})
}

func rec(source models.Source, id string, mod func(r *models.IdentityRecord)) models.IdentityRecord {
	r := models.IdentityRecord{Source: source, ID: id}
	if mod != nil {
		mod(&r)
	}
	return r
}

func tierCount(res Result, tier models.MatchTier) int {
	for _, s := range res.ByTier {
		if s.Tier == tier {
			return s.Count
		}
	}
	return -1
}

func TestMatch_TierSelection(t *testing.T) {
	tests := []struct {
		name     string
		a, b     func(r *models.IdentityRecord)
		wantTier models.MatchTier
	}{
		{
			name:     "email beats phone",
			a:        func(r *models.IdentityRecord) { r.Email = "a@x.com"; r.Phone = "5551234567" },
			b:        func(r *models.IdentityRecord) { r.Email = "a@x.com"; r.Phone = "5551234567" },
			wantTier: models.TierEmail,
		},
		{
			name:     "phone",
			a:        func(r *models.IdentityRecord) { r.Email = "a@x.com"; r.Phone = "5551234567" },
			b:        func(r *models.IdentityRecord) { r.Email = "b@y.com"; r.Phone = "5551234567" },
			wantTier: models.TierPhone,
		},
		{
			name:     "name and company",
			a:        func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.Company, r.City = "ada", "lovelace", "acme", "london" },
			b:        func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.Company, r.City = "ada", "lovelace", "acme", "london" },
			wantTier: models.TierNameCompany,
		},
		{
			name:     "name and email domain",
			a:        func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.EmailDomain = "ada", "lovelace", "acme.com" },
			b:        func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.EmailDomain = "ada", "lovelace", "acme.com" },
			wantTier: models.TierNameDomain,
		},
		{
			name:     "name and city",
			a:        func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.City = "ada", "lovelace", "london" },
			b:        func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.City = "ada", "lovelace", "london" },
			wantTier: models.TierNameCity,
		},
		{
			name:     "name only",
			a:        func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.City = "ada", "lovelace", "london" },
			b:        func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.City = "ada", "lovelace", "paris" },
			wantTier: models.TierNameOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newEngine(3).Match(context.Background(), []models.IdentityRecord{
				rec(models.SourceCRM, "1", tt.a),
				rec(models.SourceEcom, "2", tt.b),
			})

			require.Len(t, res.Candidates, 1)
			c := res.Candidates[0]
			assert.Equal(t, tt.wantTier, c.Tier)
			assert.Equal(t, tt.wantTier.Confidence(), c.Confidence)
			assert.Equal(t, 1, tierCount(res, tt.wantTier))
		})
	}
}

func TestMatch_EmailAndPhoneYieldsSingleTierOneCandidate(t *testing.T) {
	both := func(r *models.IdentityRecord) {
		r.Email, r.Phone, r.FirstName, r.LastName = "a@x.com", "5551234567", "ada", "lovelace"
	}
	res := newEngine(3).Match(context.Background(), []models.IdentityRecord{
		rec(models.SourceCRM, "1", both),
		rec(models.SourceEcom, "2", both),
	})

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, models.TierEmail, res.Candidates[0].Tier)
	assert.Equal(t, 0.99, res.Candidates[0].Confidence)
	assert.Equal(t, []string{"email"}, res.Candidates[0].Signals)
	assert.Equal(t, "a@x.com", res.Candidates[0].MatchedOn)
	for _, s := range res.ByTier {
		if s.Tier != models.TierEmail {
			assert.Zero(t, s.Count, "tier %d", s.Tier)
		}
	}
}

func TestMatch_SameSourceNeverMatches(t *testing.T) {
	email := func(r *models.IdentityRecord) { r.Email = "dup@x.com" }
	res := newEngine(3).Match(context.Background(), []models.IdentityRecord{
		rec(models.SourceCRM, "1", email),
		rec(models.SourceCRM, "2", email),
	})

	assert.Empty(t, res.Candidates)
	assert.Len(t, res.ByTier, 6)
}

func TestMatch_ThreeSourcesSameEmail(t *testing.T) {
	email := func(r *models.IdentityRecord) { r.Email = "a@x.com" }
	res := newEngine(3).Match(context.Background(), []models.IdentityRecord{
		rec(models.SourceMailing, "3", email),
		rec(models.SourceCRM, "1", email),
		rec(models.SourceEcom, "2", email),
	})

	require.Len(t, res.Candidates, 3)
	seen := map[string]bool{}
	for _, c := range res.Candidates {
		assert.NotEqual(t, c.RecordA.Source, c.RecordB.Source)
		seen[c.PairKey()] = true
	}
	assert.Len(t, seen, 3)
}

func TestMatch_CommonNameNeedsReview(t *testing.T) {
	smith := func(r *models.IdentityRecord) { r.FirstName, r.LastName = "john", "smith" }
	records := []models.IdentityRecord{
		rec(models.SourceCRM, "1", smith),
		rec(models.SourceEcom, "2", smith),
		rec(models.SourceMailing, "3", smith),
	}

	res := newEngine(3).Match(context.Background(), records)
	require.Len(t, res.Candidates, 3)
	for _, c := range res.Candidates {
		assert.True(t, c.NeedsReview)
	}
	assert.Equal(t, 3, res.ByTier[5].NeedsReview)

	res = newEngine(4).Match(context.Background(), records)
	for _, c := range res.Candidates {
		assert.False(t, c.NeedsReview)
	}

	res = newEngine(3).Match(context.Background(), records[:2])
	require.Len(t, res.Candidates, 1)
	assert.False(t, res.Candidates[0].NeedsReview)
}

func TestMatch_CommonNameCountsSameSourceRecords(t *testing.T) {
	smith := func(r *models.IdentityRecord) { r.FirstName, r.LastName = "john", "smith" }
	res := newEngine(3).Match(context.Background(), []models.IdentityRecord{
		rec(models.SourceCRM, "1", smith),
		rec(models.SourceCRM, "2", smith),
		rec(models.SourceEcom, "3", smith),
	})

	require.Len(t, res.Candidates, 2)
	for _, c := range res.Candidates {
		assert.True(t, c.NeedsReview)
	}
}

func TestMatch_NeedsReviewOnlyOnTierSix(t *testing.T) {
	smith := func(r *models.IdentityRecord) { r.FirstName, r.LastName, r.Company = "john", "smith", "acme" }
	res := newEngine(2).Match(context.Background(), []models.IdentityRecord{
		rec(models.SourceCRM, "1", smith),
		rec(models.SourceEcom, "2", smith),
	})

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, models.TierNameCompany, res.Candidates[0].Tier)
	assert.False(t, res.Candidates[0].NeedsReview)
}

func TestMatch_Deterministic(t *testing.T) {
	var records []models.IdentityRecord
	for i := 0; i < 40; i++ {
		i := i
		records = append(records,
			rec(models.SourceCRM, fmt.Sprintf("c%d", i), func(r *models.IdentityRecord) {
				r.Email = fmt.Sprintf("p%d@x.com", i%15)
				r.FirstName, r.LastName = "pat", fmt.Sprintf("n%d", i%7)
				r.City = "oslo"
			}),
			rec(models.SourceEcom, fmt.Sprintf("e%d", i), func(r *models.IdentityRecord) {
				r.Phone = fmt.Sprintf("55500000%02d", i%11)
				r.FirstName, r.LastName = "pat", fmt.Sprintf("n%d", i%5)
				r.City = "oslo"
			}),
			rec(models.SourceMailing, fmt.Sprintf("m%d", i), func(r *models.IdentityRecord) {
				r.Email = fmt.Sprintf("p%d@x.com", i%9)
				r.Phone = fmt.Sprintf("55500000%02d", i%4)
			}),
		)
	}

	engine := newEngine(3)
	want := engine.Match(context.Background(), records)
	require.NotEmpty(t, want.Candidates)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		shuffled := append([]models.IdentityRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := engine.Match(context.Background(), shuffled)
		assert.Equal(t, want.Candidates, got.Candidates)
		assert.Equal(t, want.ByTier, got.ByTier)
	}
}

func TestMatch_ExclusivePairs(t *testing.T) {
	var records []models.IdentityRecord
	for i := 0; i < 20; i++ {
		i := i
		records = append(records,
			rec(models.SourceCRM, fmt.Sprintf("c%d", i), func(r *models.IdentityRecord) {
				r.Email = fmt.Sprintf("u%d@x.com", i%3)
				r.Phone = fmt.Sprintf("%010d", i%4)
				r.FirstName, r.LastName = "sam", "lee"
			}),
			rec(models.SourceEcom, fmt.Sprintf("e%d", i), func(r *models.IdentityRecord) {
				r.Email = fmt.Sprintf("u%d@x.com", i%5)
				r.Phone = fmt.Sprintf("%010d", i%2)
				r.FirstName, r.LastName = "sam", "lee"
			}),
		)
	}

	res := newEngine(3).Match(context.Background(), records)
	seen := map[string]models.MatchTier{}
	for _, c := range res.Candidates {
		_, dup := seen[c.PairKey()]
		assert.False(t, dup, "pair %s produced twice", c.PairKey())
		seen[c.PairKey()] = c.Tier
	}
}

func TestMatch_ScaleScenario(t *testing.T) {
	var records []models.IdentityRecord
	for i := 0; i < 100; i++ {
		i := i
		records = append(records, rec(models.SourceCRM, fmt.Sprintf("c%03d", i), func(r *models.IdentityRecord) {
			r.Email = fmt.Sprintf("crm%03d@x.com", i)
		}))
	}
	for i := 0; i < 80; i++ {
		i := i
		records = append(records, rec(models.SourceEcom, fmt.Sprintf("e%03d", i), func(r *models.IdentityRecord) {
			if i < 30 {
				r.Email = fmt.Sprintf("crm%03d@x.com", i)
			} else {
				r.Email = fmt.Sprintf("shop%03d@y.com", i)
			}
		}))
	}

	res := newEngine(3).Match(context.Background(), records)
	assert.Equal(t, 30, tierCount(res, models.TierEmail))
	assert.Len(t, res.Candidates, 30)
	assert.Equal(t, 180, res.TotalScanned)
	assert.Equal(t, 150, res.UniqueEmails)
}

func TestRunTier_RespectsClaimedPairs(t *testing.T) {
	a := rec(models.SourceCRM, "1", func(r *models.IdentityRecord) { r.Phone = "5551234567" })
	b := rec(models.SourceEcom, "2", func(r *models.IdentityRecord) { r.Phone = "5551234567" })

	pairs := NewPairSet()
	require.True(t, pairs.Claim(b, a))

	out := RunTier(Rules()[1], []models.IdentityRecord{a, b}, pairs, nil)
	assert.Empty(t, out)
	assert.True(t, pairs.Has(a, b))
	assert.Equal(t, 1, pairs.Len())
}

func TestCanonicalize_DropsDuplicateKeys(t *testing.T) {
	out := Canonicalize([]models.IdentityRecord{
		rec(models.SourceEcom, "2", nil),
		rec(models.SourceCRM, "1", func(r *models.IdentityRecord) { r.Email = "first@x.com" }),
		rec(models.SourceCRM, "1", func(r *models.IdentityRecord) { r.Email = "second@x.com" }),
	})

	require.Len(t, out, 2)
	assert.Equal(t, "crm_contacts:1", out[0].Key())
	assert.Equal(t, "first@x.com", out[0].Email)
	assert.Equal(t, "ecom_customers:2", out[1].Key())
}
