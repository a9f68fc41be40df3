package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTier_Confidence(t *testing.T) {
	tests := []struct {
		tier MatchTier
		want float64
	}{
		{TierEmail, 0.99},
		{TierPhone, 0.90},
		{TierNameCompany, 0.80},
		{TierNameDomain, 0.75},
		{TierNameCity, 0.70},
		{TierNameOnly, 0.50},
	}

	for _, tt := range tests {
		t.Run(tt.tier.Label(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tier.Confidence())
			assert.True(t, tt.tier.Valid())
		})
	}

	assert.False(t, MatchTier(7).Valid())
	assert.Equal(t, "tier_7", MatchTier(7).Label())
	assert.Len(t, Tiers, 6)
}

func TestPairKey_Unordered(t *testing.T) {
	assert.Equal(t, PairKey("crm_contacts:1", "ecom_customers:2"), PairKey("ecom_customers:2", "crm_contacts:1"))
	assert.Equal(t, "crm_contacts:1|ecom_customers:2", PairKey("ecom_customers:2", "crm_contacts:1"))
}

func TestSource_EntityType(t *testing.T) {
	for _, s := range Sources {
		back, ok := SourceForEntityType(s.EntityType())
		assert.True(t, ok)
		assert.Equal(t, s, back)
	}
	_, ok := SourceForEntityType("order")
	assert.False(t, ok)
}

func TestLegacyLinkPair(t *testing.T) {
	crm := RecordRef{Source: SourceCRM, ID: "c1"}
	ecom := RecordRef{Source: SourceEcom, ID: "e1"}
	mail := RecordRef{Source: SourceMailing, ID: "m1"}

	contact, customer, ok := LegacyLinkPair(crm, ecom)
	assert.True(t, ok)
	assert.Equal(t, "c1", contact)
	assert.Equal(t, "e1", customer)

	contact, customer, ok = LegacyLinkPair(ecom, crm)
	assert.True(t, ok)
	assert.Equal(t, "c1", contact)
	assert.Equal(t, "e1", customer)

	_, _, ok = LegacyLinkPair(crm, mail)
	assert.False(t, ok)
}

func TestNewPersistedCandidate(t *testing.T) {
	c := MatchCandidate{
		RecordA:    IdentityRecord{Source: SourceCRM, ID: "1", Label: "Ada Lovelace"},
		RecordB:    IdentityRecord{Source: SourceEcom, ID: "2", Label: "ada@x.com"},
		Tier:       TierEmail,
		Confidence: TierEmail.Confidence(),
		MatchedOn:  "ada@x.com",
	}

	p := NewPersistedCandidate("org-1", "run-1", c)
	assert.Equal(t, CandidateStatusPending, p.Status)
	assert.Equal(t, []string{}, p.Signals.Data)
	assert.Equal(t, RecordRef{Source: SourceCRM, ID: "1"}, p.RefA())
	assert.Equal(t, RecordRef{Source: SourceEcom, ID: "2"}, p.RefB())
	assert.Nil(t, p.GraphEdgeID)
}
