package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/supportiq/supportiq/internal/adapter/inmem"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/contribution"
	"github.com/supportiq/supportiq/internal/domain/customer"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
	"github.com/supportiq/supportiq/internal/service"

	"log/slog"
)

// stubStore is an in-memory database.Store for handler tests.
type stubStore struct {
	recs      map[string]recommendation.Recommendation
	contribs  map[string][]contribution.Contribution
	customers map[string]customer.Customer
}

func newStubStore() *stubStore {
	return &stubStore{
		recs:     make(map[string]recommendation.Recommendation),
		contribs: make(map[string][]contribution.Contribution),
		customers: map[string]customer.Customer{
			"cust_1": {ID: "cust_1", Name: "Acme Corp", Tier: "Growth", ContactEmail: "ops@acme.example"},
		},
	}
}

func (s *stubStore) SaveRecommendations(_ context.Context, recs []recommendation.Recommendation) error {
	for _, r := range recs {
		s.recs[r.ID] = r
	}
	return nil
}

func (s *stubStore) GetRecommendation(_ context.Context, id string) (*recommendation.Recommendation, error) {
	r, ok := s.recs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (s *stubStore) PastRecommendations(_ context.Context, customerID string, _ time.Time) ([]recommendation.Recommendation, error) {
	out := []recommendation.Recommendation{}
	for _, r := range s.recs {
		if r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) UpdateOutcome(_ context.Context, id string, status recommendation.OutcomeStatus, agentID, feedback string, at time.Time) (*recommendation.Recommendation, error) {
	r, ok := s.recs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	r.OutcomeStatus = status
	r.DeliveredBy = agentID
	r.Feedback = feedback
	r.OutcomeAt = &at
	s.recs[id] = r
	return &r, nil
}

func (s *stubStore) SaveContributions(_ context.Context, contribs []contribution.Contribution) error {
	for _, c := range contribs {
		s.contribs[c.CycleID] = append(s.contribs[c.CycleID], c)
	}
	return nil
}

func (s *stubStore) ContributionsByCycle(_ context.Context, cycleID string) ([]contribution.Contribution, error) {
	return s.contribs[cycleID], nil
}

func (s *stubStore) GetCustomer(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (s *stubStore) SearchCustomers(_ context.Context, query string, _ int) ([]customer.Customer, error) {
	out := []customer.Customer{}
	for _, c := range s.customers {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func newTestRouter(store *stubStore) http.Handler {
	log := slog.New(slog.DiscardHandler)

	usageSrc := inmem.NewUsageSource()
	knowledgeSrc := inmem.NewKnowledgeSource()
	interactions := inmem.NewInteractionSource()
	moderator := inmem.NewSafetyValidator()

	orchestrator := service.NewOrchestrator(
		service.NewRetrievalAgent(usageSrc, knowledgeSrc, log),
		service.NewSentimentAgent(interactions, log),
		service.NewReasoningAgent(log),
		service.NewValidationAgent(moderator, log),
		store,
		2*time.Second,
		log,
	)

	recs := service.NewRecommendationService(orchestrator, store, nil, nil, 90, 12, 24*time.Hour, log)
	customers := service.NewCustomerService(store, usageSrc, interactions, nil, 5*time.Minute, log)

	return NewRouter(NewHandlers(recs, customers), "*", "supportiq-test")
}

func TestGenerateEndpoint(t *testing.T) {
	store := newStubStore()
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations/cust_1", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Adoption []recommendation.Recommendation `json:"adoption_recommendations"`
		Upsell   []recommendation.Recommendation `json:"upsell_recommendations"`
		Metadata struct {
			Success bool   `json:"success"`
			CycleID string `json:"cycle_id"`
		} `json:"orchestration_metadata"`
		Cached bool `json:"cached"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Metadata.Success {
		t.Fatalf("expected successful cycle: %s", rec.Body.String())
	}
	if len(out.Adoption) == 0 {
		t.Fatal("expected adoption recommendations")
	}
	for _, r := range out.Adoption {
		if r.Type != recommendation.TypeAdoption {
			t.Fatalf("adoption list holds %s recommendation %s", r.Type, r.ID)
		}
	}
	for _, r := range out.Upsell {
		if r.Type != recommendation.TypeUpsell {
			t.Fatalf("upsell list holds %s recommendation %s", r.Type, r.ID)
		}
	}
	if out.Cached {
		t.Fatal("first generation should not be cached")
	}
	if len(store.recs) != len(out.Adoption)+len(out.Upsell) {
		t.Fatalf("persisted = %d, want %d", len(store.recs), len(out.Adoption)+len(out.Upsell))
	}
}

func TestHistoryEndpoint(t *testing.T) {
	store := newStubStore()
	at := time.Now().Add(-10 * 24 * time.Hour)
	store.recs["rec_1"] = recommendation.Recommendation{
		ID:            "rec_1",
		CustomerID:    "cust_1",
		Type:          recommendation.TypeAdoption,
		Text:          "Enable Advanced Reporting.",
		GeneratedAt:   at,
		OutcomeStatus: recommendation.OutcomeDelivered,
	}
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recommendations/cust_1/history?months=6&status=Delivered", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Recommendations []recommendation.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Recommendations) != 1 {
		t.Fatalf("recommendations = %d, want 1", len(out.Recommendations))
	}
}

func TestHistoryEndpointRejectsBadMonths(t *testing.T) {
	router := newTestRouter(newStubStore())

	for _, q := range []string{"months=0", "months=13", "months=abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/recommendations/cust_1/history?"+q, http.NoBody)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestOutcomeEndpoint(t *testing.T) {
	store := newStubStore()
	store.recs["rec_1"] = recommendation.Recommendation{
		ID:            "rec_1",
		CustomerID:    "cust_1",
		OutcomeStatus: recommendation.OutcomePending,
	}
	router := newTestRouter(store)

	body := strings.NewReader(`{"outcome_status":"Delivered","agent_id":"agent_7"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/recommendations/rec_1/outcome", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if store.recs["rec_1"].OutcomeStatus != recommendation.OutcomeDelivered {
		t.Fatalf("status = %s, want Delivered", store.recs["rec_1"].OutcomeStatus)
	}
}

func TestOutcomeEndpointRejectsBadTransition(t *testing.T) {
	store := newStubStore()
	store.recs["rec_1"] = recommendation.Recommendation{
		ID:            "rec_1",
		CustomerID:    "cust_1",
		OutcomeStatus: recommendation.OutcomePending,
	}
	router := newTestRouter(store)

	body := strings.NewReader(`{"outcome_status":"Accepted","agent_id":"agent_7"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/recommendations/rec_1/outcome", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAcceptanceEndpoint(t *testing.T) {
	store := newStubStore()
	store.recs["rec_1"] = recommendation.Recommendation{
		ID:            "rec_1",
		CustomerID:    "cust_1",
		OutcomeStatus: recommendation.OutcomeDelivered,
	}
	router := newTestRouter(store)

	body := strings.NewReader(`{"agent_confirmed":true,"agent_id":"agent_7","feedback":"useful"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations/rec_1/acceptance", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if store.recs["rec_1"].OutcomeStatus != recommendation.OutcomeAccepted {
		t.Fatalf("status = %s, want Accepted", store.recs["rec_1"].OutcomeStatus)
	}
}

func TestExplainabilityEndpointNotFound(t *testing.T) {
	router := newTestRouter(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recommendations/missing/explainability", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCustomerSearchEndpoint(t *testing.T) {
	router := newTestRouter(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/search?q=acme", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Customers []customer.Customer `json:"customers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Customers) != 1 || out.Customers[0].ID != "cust_1" {
		t.Fatalf("customers = %+v", out.Customers)
	}
}

func TestCustomerProfileEndpoint(t *testing.T) {
	router := newTestRouter(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/cust_1/profile", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out service.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Customer.Name != "Acme Corp" {
		t.Fatalf("profile = %+v", out)
	}
	if out.Usage.TotalFeatures == 0 {
		t.Fatal("expected usage summary")
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
