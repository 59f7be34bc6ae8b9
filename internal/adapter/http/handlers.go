package http

import (
	"net/http"
	"strconv"

	"github.com/supportiq/supportiq/internal/domain/recommendation"
	"github.com/supportiq/supportiq/internal/service"
)

const maxBodyBytes = 1 << 20

// Handlers bundles the HTTP handlers over the application services.
type Handlers struct {
	recommendations *service.RecommendationService
	customers       *service.CustomerService
}

// NewHandlers creates the handler set.
func NewHandlers(recs *service.RecommendationService, customers *service.CustomerService) *Handlers {
	return &Handlers{recommendations: recs, customers: customers}
}

// generateRecommendations handles POST /api/v1/recommendations/{customerID}.
// Degraded cycles return 200 with success=false; the agent UI renders the
// empty state rather than an error page.
func (h *Handlers) generateRecommendations(w http.ResponseWriter, r *http.Request) {
	customerID := urlParam(r, "id")
	if !requireField(w, customerID, "customerID") {
		return
	}
	forceRefresh := r.URL.Query().Get("force_refresh") == "true"

	out, err := h.recommendations.Generate(r.Context(), customerID, forceRefresh)
	if err != nil {
		writeDomainError(w, err, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// recommendationHistory handles GET /api/v1/recommendations/{customerID}/history.
func (h *Handlers) recommendationHistory(w http.ResponseWriter, r *http.Request) {
	customerID := urlParam(r, "id")
	if !requireField(w, customerID, "customerID") {
		return
	}

	months := 12
	if raw := r.URL.Query().Get("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "months must be an integer")
			return
		}
		months = parsed
	}

	var status recommendation.OutcomeStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = recommendation.OutcomeStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown outcome status "+raw)
			return
		}
	}

	recs, err := h.recommendations.PastRecommendations(r.Context(), customerID, months)
	if err != nil {
		writeDomainError(w, err, "customer not found")
		return
	}

	if status != "" {
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.OutcomeStatus == status {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"customer_id":     customerID,
		"months":          months,
		"recommendations": recs,
	})
}

type outcomeRequest struct {
	OutcomeStatus string `json:"outcome_status"`
	AgentID       string `json:"agent_id"`
	Feedback      string `json:"feedback"`
}

// updateOutcome handles PUT /api/v1/recommendations/{recommendationID}/outcome.
func (h *Handlers) updateOutcome(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if !requireField(w, id, "recommendationID") {
		return
	}

	req, ok := readJSON[outcomeRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, req.OutcomeStatus, "outcome_status") {
		return
	}
	if !requireField(w, req.AgentID, "agent_id") {
		return
	}

	rec, err := h.recommendations.UpdateOutcome(r.Context(), id,
		recommendation.OutcomeStatus(req.OutcomeStatus), req.AgentID, req.Feedback)
	if err != nil {
		writeDomainError(w, err, "recommendation not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type acceptanceRequest struct {
	AgentConfirmed *bool  `json:"agent_confirmed"`
	AgentID        string `json:"agent_id"`
	Feedback       string `json:"feedback"`
}

// trackAcceptance handles POST /api/v1/recommendations/{recommendationID}/acceptance.
func (h *Handlers) trackAcceptance(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if !requireField(w, id, "recommendationID") {
		return
	}

	req, ok := readJSON[acceptanceRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if req.AgentConfirmed == nil {
		writeError(w, http.StatusBadRequest, "agent_confirmed is required")
		return
	}
	if !requireField(w, req.AgentID, "agent_id") {
		return
	}

	rec, err := h.recommendations.TrackAcceptance(r.Context(), id, *req.AgentConfirmed, req.AgentID, req.Feedback)
	if err != nil {
		writeDomainError(w, err, "recommendation not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// explainability handles GET /api/v1/recommendations/{recommendationID}/explainability.
func (h *Handlers) explainability(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if !requireField(w, id, "recommendationID") {
		return
	}

	report, err := h.recommendations.Explainability(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "recommendation not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// searchCustomers handles GET /api/v1/customers/search.
func (h *Handlers) searchCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if !requireField(w, query, "q") {
		return
	}

	customers, err := h.customers.Search(r.Context(), query)
	if err != nil {
		writeDomainError(w, err, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

// customerProfile handles GET /api/v1/customers/{customerID}/profile.
func (h *Handlers) customerProfile(w http.ResponseWriter, r *http.Request) {
	customerID := urlParam(r, "customerID")
	if !requireField(w, customerID, "customerID") {
		return
	}

	profile, err := h.customers.Profile(r.Context(), customerID)
	if err != nil {
		writeDomainError(w, err, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// health handles GET /health.
func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
