package matching

import "github.com/Ramsey-B/clover/pkg/models"

// PairSet records which unordered record pairs a tier has already claimed.
// One set is shared by every tier of a single Match call.
type PairSet map[string]struct{}

func NewPairSet() PairSet {
	return make(PairSet)
}

// Claim marks the pair as matched. It reports false when the pair was already claimed.
func (p PairSet) Claim(a, b models.IdentityRecord) bool {
	key := models.PairKey(a.Key(), b.Key())
	if _, ok := p[key]; ok {
		return false
	}
	p[key] = struct{}{}
	return true
}

func (p PairSet) Has(a, b models.IdentityRecord) bool {
	_, ok := p[models.PairKey(a.Key(), b.Key())]
	return ok
}

func (p PairSet) Len() int {
	return len(p)
}
