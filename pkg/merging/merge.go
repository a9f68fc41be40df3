// Package merging collapses records linked by active same_person edges into one
// presentational row per person.
package merging

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// MergeRecords groups records transitively over links and returns one row per group,
// in order of each group's first appearance. Links touching records outside the set
// are ignored. The primary of a group is its highest-priority member; its empty
// fields are filled from the other members in priority order.
func MergeRecords(records []models.IdentityRecord, links []models.NodeEdge, priority []models.Source) []models.MergedIdentity {
	index := make(map[models.RecordRef]int, len(records))
	for i, r := range records {
		if _, ok := index[r.Ref()]; !ok {
			index[r.Ref()] = i
		}
	}

	ds := NewDisjointSet(len(records))
	for _, l := range links {
		a, okA := index[l.A]
		b, okB := index[l.B]
		if okA && okB {
			ds.Union(a, b)
		}
	}

	groups := map[int][]int{}
	var roots []int
	for i, r := range records {
		if index[r.Ref()] != i {
			continue
		}
		root := ds.Find(i)
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], i)
	}

	rank := rankOf(priority)
	merged := make([]models.MergedIdentity, 0, len(roots))
	for _, root := range roots {
		members := groups[root]
		sort.SliceStable(members, func(i, j int) bool {
			return rank(records[members[i]].Source) < rank(records[members[j]].Source)
		})
		merged = append(merged, mergeGroup(records, members))
	}
	return merged
}

// rankOf orders sources by their position in priority; unknown sources sort last.
func rankOf(priority []models.Source) func(models.Source) int {
	pos := make(map[models.Source]int, len(priority))
	for i, s := range priority {
		if _, ok := pos[s]; !ok {
			pos[s] = i
		}
	}
	return func(s models.Source) int {
		if p, ok := pos[s]; ok {
			return p
		}
		return len(priority)
	}
}

func mergeGroup(records []models.IdentityRecord, members []int) models.MergedIdentity {
	out := models.MergedIdentity{IdentityRecord: records[members[0]]}
	seen := map[models.Source]bool{}
	for _, m := range members {
		r := records[m]
		fill(&out.IdentityRecord, r)
		out.Members = append(out.Members, r.Ref())
		if !seen[r.Source] {
			seen[r.Source] = true
			out.Sources = append(out.Sources, r.Source)
		}
	}
	out.MultiSource = len(out.Sources) > 1
	return out
}

func fill(dst *models.IdentityRecord, src models.IdentityRecord) {
	fields := []struct {
		dst *string
		src string
	}{
		{&dst.Email, src.Email},
		{&dst.EmailDomain, src.EmailDomain},
		{&dst.Phone, src.Phone},
		{&dst.FirstName, src.FirstName},
		{&dst.LastName, src.LastName},
		{&dst.Company, src.Company},
		{&dst.City, src.City},
		{&dst.Label, src.Label},
		{&dst.Sublabel, src.Sublabel},
	}
	for _, f := range fields {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
		}
	}
}
