package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/contribution"
	"github.com/supportiq/supportiq/internal/domain/customer"
	"github.com/supportiq/supportiq/internal/domain/interaction"
	"github.com/supportiq/supportiq/internal/domain/knowledge"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
)

// memStore is an in-memory database.Store for tests.
type memStore struct {
	recs          map[string]recommendation.Recommendation
	contribs      map[string][]contribution.Contribution
	customers     map[string]customer.Customer
	past          []recommendation.Recommendation
	pastErr       error
	saveErr       error
	savedRecs     []recommendation.Recommendation
	savedContribs []contribution.Contribution
}

func newMemStore() *memStore {
	return &memStore{
		recs:      make(map[string]recommendation.Recommendation),
		contribs:  make(map[string][]contribution.Contribution),
		customers: make(map[string]customer.Customer),
	}
}

func (m *memStore) SaveRecommendations(_ context.Context, recs []recommendation.Recommendation) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.savedRecs = append(m.savedRecs, recs...)
	for _, r := range recs {
		m.recs[r.ID] = r
	}
	return nil
}

func (m *memStore) GetRecommendation(_ context.Context, id string) (*recommendation.Recommendation, error) {
	r, ok := m.recs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) PastRecommendations(_ context.Context, _ string, _ time.Time) ([]recommendation.Recommendation, error) {
	return m.past, m.pastErr
}

func (m *memStore) UpdateOutcome(_ context.Context, id string, status recommendation.OutcomeStatus, agentID, feedback string, at time.Time) (*recommendation.Recommendation, error) {
	r, ok := m.recs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	r.OutcomeStatus = status
	r.DeliveredBy = agentID
	r.Feedback = feedback
	r.OutcomeAt = &at
	r.UpdatedAt = at
	m.recs[id] = r
	return &r, nil
}

func (m *memStore) SaveContributions(_ context.Context, contribs []contribution.Contribution) error {
	m.savedContribs = append(m.savedContribs, contribs...)
	for _, c := range contribs {
		m.contribs[c.CycleID] = append(m.contribs[c.CycleID], c)
	}
	return nil
}

func (m *memStore) ContributionsByCycle(_ context.Context, cycleID string) ([]contribution.Contribution, error) {
	return m.contribs[cycleID], nil
}

func (m *memStore) GetCustomer(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) SearchCustomers(_ context.Context, query string, _ int) ([]customer.Customer, error) {
	var out []customer.Customer
	for _, c := range m.customers {
		out = append(out, c)
	}
	return out, nil
}

func newTestOrchestrator(usageSrc *stubUsage, interactions *stubInteractions, knowledgeSrc *stubKnowledge, store *memStore) *Orchestrator {
	log := testLogger()
	return NewOrchestrator(
		NewRetrievalAgent(usageSrc, knowledgeSrc, log),
		NewSentimentAgent(interactions, log),
		NewReasoningAgent(log),
		NewValidationAgent(&stubSafety{}, log),
		store,
		2*time.Second,
		log,
	)
}

func happyPathSources() (*stubUsage, *stubInteractions, *stubKnowledge) {
	usageSrc := &stubUsage{records: retrievalFixture().UsageData}
	interactions := &stubInteractions{events: []interaction.Event{
		eventAt(5, 0.5, interaction.ResolutionResolved),
		eventAt(15, 0.6, interaction.ResolutionResolved),
	}}
	knowledgeSrc := &stubKnowledge{search: func(string, int) ([]knowledge.Article, error) {
		return []knowledge.Article{adoptionArticle(), upsellArticle()}, nil
	}}
	return usageSrc, interactions, knowledgeSrc
}

func TestOrchestratorHappyPath(t *testing.T) {
	store := newMemStore()
	usageSrc, interactions, knowledgeSrc := happyPathSources()
	o := newTestOrchestrator(usageSrc, interactions, knowledgeSrc, store)

	res, err := o.Generate(context.Background(), "cust_1", 90, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Metadata.Success {
		t.Fatalf("metadata = %+v", res.Metadata)
	}
	if res.Metadata.GracefulDegradation {
		t.Fatal("unexpected degradation")
	}
	if len(res.Adoption) == 0 {
		t.Fatal("expected adoption recommendations")
	}
	if len(res.Upsell) == 0 {
		t.Fatal("expected upsell recommendations")
	}
	for _, r := range res.Adoption {
		if r.Type != recommendation.TypeAdoption {
			t.Fatalf("adoption list holds %s recommendation %s", r.Type, r.ID)
		}
	}
	for _, r := range res.Upsell {
		if r.Type != recommendation.TypeUpsell {
			t.Fatalf("upsell list holds %s recommendation %s", r.Type, r.ID)
		}
	}
	if len(res.Contributions) != 4 {
		t.Fatalf("contributions = %d, want 4", len(res.Contributions))
	}
	if len(store.savedContribs) != 4 {
		t.Fatalf("persisted contributions = %d, want 4", len(store.savedContribs))
	}
	if res.Metadata.CycleID == "" {
		t.Fatal("missing cycle id")
	}
	for _, c := range res.Contributions {
		if c.CycleID != res.Metadata.CycleID {
			t.Fatalf("contribution cycle = %s, want %s", c.CycleID, res.Metadata.CycleID)
		}
		if err := c.Validate(); err != nil {
			t.Fatalf("contribution invalid: %v", err)
		}
	}
}

func TestOrchestratorDegradesOnStageFailure(t *testing.T) {
	store := newMemStore()
	usageSrc, _, knowledgeSrc := happyPathSources()
	interactions := &stubInteractions{err: errors.New("interaction service down")}
	o := newTestOrchestrator(usageSrc, interactions, knowledgeSrc, store)

	res, err := o.Generate(context.Background(), "cust_1", 90, nil)
	if err != nil {
		t.Fatal(err)
	}

	if res.Metadata.Success {
		t.Fatal("expected degraded cycle")
	}
	if !res.Metadata.GracefulDegradation {
		t.Fatal("expected graceful degradation flag")
	}
	if res.Metadata.Error == "" {
		t.Fatal("expected error message in metadata")
	}
	if res.Adoption == nil || len(res.Adoption) != 0 {
		t.Fatalf("degraded adoption list = %v, want empty", res.Adoption)
	}
	if res.Upsell == nil || len(res.Upsell) != 0 {
		t.Fatalf("degraded upsell list = %v, want empty", res.Upsell)
	}
	if len(res.Blocked) != 0 {
		t.Fatalf("degraded result should block nothing, got %+v", res.Blocked)
	}
}

func TestOrchestratorToleratesContributionSaveFailure(t *testing.T) {
	store := newMemStore()
	usageSrc, interactions, knowledgeSrc := happyPathSources()
	o := newTestOrchestrator(usageSrc, interactions, knowledgeSrc, store)

	// Contribution persistence failing must not fail the cycle.
	failing := &failingContribStore{memStore: store}
	o.store = failing

	res, err := o.Generate(context.Background(), "cust_1", 90, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Metadata.Success {
		t.Fatalf("metadata = %+v", res.Metadata)
	}
}

type failingContribStore struct {
	*memStore
}

func (f *failingContribStore) SaveContributions(_ context.Context, _ []contribution.Contribution) error {
	return errors.New("insert failed")
}

func TestOrchestratorValidatesInput(t *testing.T) {
	store := newMemStore()
	usageSrc, interactions, knowledgeSrc := happyPathSources()
	o := newTestOrchestrator(usageSrc, interactions, knowledgeSrc, store)

	if _, err := o.Generate(context.Background(), "", 90, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if _, err := o.Generate(context.Background(), "cust_1", 0, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
