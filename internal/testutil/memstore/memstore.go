// Package memstore is an in-memory stand-in for the postgres repositories, used by
// unit tests that exercise the resolution workflow end to end.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Store holds every table behind one mutex. The typed views returned by Runs,
// Candidates, Nodes, Edges and Links implement the repository interfaces.
type Store struct {
	mu         sync.Mutex
	seq        int
	runs       map[string]models.ResolutionRun
	candidates []*models.PersistedCandidate
	nodes      map[string]*models.GraphNode
	nodeKeys   map[string]string
	edges      []*models.GraphEdge
	links      []*models.IdentityLink

	// FailNode makes node upserts for the entity id fail.
	FailNode func(entityID string) bool
	// FailBatch makes the n-th candidate batch insert (zero based) fail.
	FailBatch func(n int) bool
	batches   int
	conflicts int
}

func New() *Store {
	return &Store{
		runs:     map[string]models.ResolutionRun{},
		nodes:    map[string]*models.GraphNode{},
		nodeKeys: map[string]string{},
	}
}

// InjectConflicts makes the next n edge inserts lose a race: a competing edge for the
// same pair is written first and the insert reports models.ErrEdgeConflict.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

// WithinTx runs fn directly. The store has no rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Runs() *Runs             { return &Runs{s} }
func (s *Store) Candidates() *Candidates { return &Candidates{s} }
func (s *Store) Nodes() *Nodes           { return &Nodes{s} }
func (s *Store) Edges() *Edges           { return &Edges{s} }
func (s *Store) Links() *Links           { return &Links{s} }

// ActiveEdges returns copies of the org's active edges.
func (s *Store) ActiveEdges(orgID string) []models.GraphEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GraphEdge
	for _, e := range s.edges {
		if e.OrgID == orgID && e.Active() {
			out = append(out, *e)
		}
	}
	return out
}

// AllEdges returns copies of every edge, active or not.
func (s *Store) AllEdges() []models.GraphEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GraphEdge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, *e)
	}
	return out
}

func (s *Store) AllNodes() []models.GraphNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GraphNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) AllLinks() []models.IdentityLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.IdentityLink, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, *l)
	}
	return out
}

func (s *Store) Candidate(id string) (models.PersistedCandidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.candidates {
		if c.ID == id {
			return *c, true
		}
	}
	return models.PersistedCandidate{}, false
}

type Runs struct{ s *Store }

func (r *Runs) Create(_ context.Context, run models.ResolutionRun) (models.ResolutionRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if run.ID == "" {
		run.ID = r.s.nextID("run")
	}
	run.CreatedAt = run.ComputedAt
	run.UpdatedAt = run.ComputedAt
	r.s.runs[run.ID] = run
	return run, nil
}

func (r *Runs) Get(_ context.Context, orgID, runID string) (*models.ResolutionRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	run, ok := r.s.runs[runID]
	if !ok || run.OrgID != orgID {
		return nil, fmt.Errorf("run %s: %w", runID, models.ErrRunNotFound)
	}
	return &run, nil
}

func (r *Runs) List(_ context.Context, orgID string, limit int) ([]models.ResolutionRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.ResolutionRun{}
	for _, run := range r.s.runs {
		if run.OrgID == orgID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.After(out[j].ComputedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Runs) Update(_ context.Context, run models.ResolutionRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, models.ErrRunNotFound)
	}
	run.UpdatedAt = time.Now().UTC()
	r.s.runs[run.ID] = run
	return nil
}

type Candidates struct{ s *Store }

func (c *Candidates) InsertBatch(_ context.Context, batch []models.PersistedCandidate) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	n := c.s.batches
	c.s.batches++
	if c.s.FailBatch != nil && c.s.FailBatch(n) {
		return fmt.Errorf("batch %d rejected", n)
	}
	for _, cand := range batch {
		if cand.ID == "" {
			cand.ID = c.s.nextID("cand")
		}
		if cand.Status == "" {
			cand.Status = models.CandidateStatusPending
		}
		c.s.candidates = append(c.s.candidates, &cand)
	}
	return nil
}

func (c *Candidates) ListByRun(_ context.Context, orgID, runID string, filter models.CandidateFilter) ([]models.PersistedCandidate, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := []models.PersistedCandidate{}
	for _, cand := range c.s.candidates {
		if cand.OrgID != orgID || cand.RunID != runID {
			continue
		}
		if filter.Status != "" && cand.Status != filter.Status {
			continue
		}
		if filter.Tier != 0 && cand.Tier != filter.Tier {
			continue
		}
		out = append(out, *cand)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	if filter.Limit > 0 {
		start := min(filter.Offset, len(out))
		end := min(start+filter.Limit, len(out))
		out = out[start:end]
	}
	return out, nil
}

func (c *Candidates) find(orgID, id string) *models.PersistedCandidate {
	for _, cand := range c.s.candidates {
		if cand.ID == id && cand.OrgID == orgID {
			return cand
		}
	}
	return nil
}

func (c *Candidates) Accept(_ context.Context, orgID, candidateID, edgeID, actor string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cand := c.find(orgID, candidateID)
	if cand == nil {
		return fmt.Errorf("candidate %s not found", candidateID)
	}
	now := time.Now().UTC()
	cand.Status = models.CandidateStatusAccepted
	cand.GraphEdgeID = &edgeID
	cand.ReviewedBy = &actor
	cand.ReviewedAt = &now
	return nil
}

func (c *Candidates) Reject(_ context.Context, orgID, runID string, ids []string, actor string) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	n := 0
	for _, id := range ids {
		cand := c.find(orgID, id)
		if cand == nil || cand.RunID != runID || cand.Status != models.CandidateStatusPending {
			continue
		}
		now := time.Now().UTC()
		cand.Status = models.CandidateStatusRejected
		cand.ReviewedBy = &actor
		cand.ReviewedAt = &now
		n++
	}
	return n, nil
}

func (c *Candidates) ResetToPending(_ context.Context, orgID, candidateID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cand := c.find(orgID, candidateID)
	if cand == nil {
		return fmt.Errorf("candidate %s not found", candidateID)
	}
	cand.Status = models.CandidateStatusPending
	cand.GraphEdgeID = nil
	return nil
}

type Nodes struct{ s *Store }

func (n *Nodes) Upsert(_ context.Context, node models.GraphNode) (models.GraphNode, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.FailNode != nil && n.s.FailNode(node.EntityID) {
		return models.GraphNode{}, fmt.Errorf("upsert node %s: %w", node.EntityID, models.ErrNodeCreation)
	}
	key := node.OrgID + "/" + node.EntityType + "/" + node.EntityID
	if id, ok := n.s.nodeKeys[key]; ok {
		existing := n.s.nodes[id]
		if existing.Label == "" && node.Label != "" {
			existing.Label = node.Label
		}
		return *existing, nil
	}
	node.ID = n.s.nextID("node")
	node.CreatedAt = time.Now().UTC()
	node.UpdatedAt = node.CreatedAt
	n.s.nodes[node.ID] = &node
	n.s.nodeKeys[key] = node.ID
	return node, nil
}

type Edges struct{ s *Store }

func samePair(e *models.GraphEdge, orgID, a, b, rel string) bool {
	if e.OrgID != orgID || e.RelationType != rel || !e.Active() {
		return false
	}
	return (e.SourceNodeID == a && e.TargetNodeID == b) || (e.SourceNodeID == b && e.TargetNodeID == a)
}

func (e *Edges) FindActive(_ context.Context, orgID, a, b, rel string) (*models.GraphEdge, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for _, edge := range e.s.edges {
		if samePair(edge, orgID, a, b, rel) {
			found := *edge
			return &found, nil
		}
	}
	return nil, nil
}

func (e *Edges) Insert(_ context.Context, edge models.GraphEdge) (models.GraphEdge, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.s.conflicts > 0 {
		e.s.conflicts--
		rival := edge
		rival.ID = e.s.nextID("edge")
		rival.CreatedBy = "rival"
		e.s.edges = append(e.s.edges, &rival)
		return models.GraphEdge{}, models.ErrEdgeConflict
	}
	for _, existing := range e.s.edges {
		if samePair(existing, edge.OrgID, edge.SourceNodeID, edge.TargetNodeID, edge.RelationType) {
			return models.GraphEdge{}, models.ErrEdgeConflict
		}
	}
	edge.ID = e.s.nextID("edge")
	edge.CreatedAt = time.Now().UTC()
	e.s.edges = append(e.s.edges, &edge)
	return edge, nil
}

func (e *Edges) Deactivate(_ context.Context, orgID, edgeID string, at time.Time) (bool, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for _, edge := range e.s.edges {
		if edge.ID == edgeID && edge.OrgID == orgID && edge.Active() {
			edge.ValidUntil = &at
			return true, nil
		}
	}
	return false, nil
}

// ActiveLinks resolves active edges to the records on each end. With refs, both
// ends must be among them.
func (e *Edges) ActiveLinks(_ context.Context, orgID string, refs []models.RecordRef) ([]models.NodeEdge, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	var within map[models.RecordRef]struct{}
	if len(refs) > 0 {
		within = make(map[models.RecordRef]struct{}, len(refs))
		for _, r := range refs {
			within[r] = struct{}{}
		}
	}
	out := []models.NodeEdge{}
	for _, edge := range e.s.edges {
		if edge.OrgID != orgID || !edge.Active() {
			continue
		}
		a, okA := e.s.ref(edge.SourceNodeID)
		b, okB := e.s.ref(edge.TargetNodeID)
		if !okA || !okB {
			continue
		}
		if within != nil {
			_, inA := within[a]
			_, inB := within[b]
			if !inA || !inB {
				continue
			}
		}
		out = append(out, models.NodeEdge{EdgeID: edge.ID, A: a, B: b})
	}
	return out, nil
}

func (s *Store) ref(nodeID string) (models.RecordRef, bool) {
	node, ok := s.nodes[nodeID]
	if !ok {
		return models.RecordRef{}, false
	}
	source, ok := models.SourceForEntityType(node.EntityType)
	if !ok {
		return models.RecordRef{}, false
	}
	return models.RecordRef{Source: source, ID: node.EntityID}, true
}

type Links struct{ s *Store }

func (l *Links) Upsert(_ context.Context, link models.IdentityLink) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	for _, existing := range l.s.links {
		if existing.OrgID == link.OrgID && existing.ContactID == link.ContactID && existing.CustomerID == link.CustomerID {
			if existing.IsActive {
				return false, nil
			}
			existing.IsActive = true
			existing.DeactivatedAt = nil
			existing.GraphEdgeID = link.GraphEdgeID
			existing.RunID = link.RunID
			existing.Confidence = link.Confidence
			existing.MatchedOn = link.MatchedOn
			return true, nil
		}
	}
	link.ID = l.s.nextID("link")
	link.IsActive = true
	l.s.links = append(l.s.links, &link)
	return true, nil
}

func (l *Links) DeactivateByEdge(_ context.Context, orgID, edgeID string) (int, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, link := range l.s.links {
		if link.OrgID == orgID && link.IsActive && link.GraphEdgeID != nil && *link.GraphEdgeID == edgeID {
			link.IsActive = false
			link.DeactivatedAt = &now
			n++
		}
	}
	return n, nil
}
