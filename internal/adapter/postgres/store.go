package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const recommendationColumns = `id, customer_id, recommendation_type, recommendation_text, confidence_score,
	 data_sources, reasoning_chain, generated_at, outcome_status, delivered_by_agent_id,
	 outcome_timestamp, feedback, created_at, updated_at`

// SaveRecommendations inserts a batch of recommendations in one transaction.
func (s *Store) SaveRecommendations(ctx context.Context, recs []recommendation.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save recommendations: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, r := range recs {
		sourcesJSON, err := json.Marshal(orEmpty(r.DataSources))
		if err != nil {
			return fmt.Errorf("marshal data sources: %w", err)
		}
		chainJSON, err := json.Marshal(r.ReasoningChain)
		if err != nil {
			return fmt.Errorf("marshal reasoning chain: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO recommendations (id, customer_id, recommendation_type, recommendation_text, confidence_score,
			   data_sources, reasoning_chain, generated_at, outcome_status, delivered_by_agent_id,
			   outcome_timestamp, feedback, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			r.ID, r.CustomerID, r.Type, r.Text, r.ConfidenceScore,
			sourcesJSON, chainJSON, r.GeneratedAt, r.OutcomeStatus, r.DeliveredBy,
			nullTime(r.OutcomeAt), r.Feedback, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert recommendation %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save recommendations: %w", err)
	}
	return nil
}

// GetRecommendation fetches one recommendation by ID.
func (s *Store) GetRecommendation(ctx context.Context, id string) (*recommendation.Recommendation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE id = $1`, id)

	r, err := scanRecommendation(row)
	if err != nil {
		return nil, notFoundWrap(err, "get recommendation %s", id)
	}
	return &r, nil
}

// PastRecommendations lists a customer's recommendations generated since
// the given time, newest first.
func (s *Store) PastRecommendations(ctx context.Context, customerID string, since time.Time) ([]recommendation.Recommendation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recommendationColumns+`
		 FROM recommendations
		 WHERE customer_id = $1 AND generated_at >= $2
		 ORDER BY generated_at DESC`, customerID, since)
	if err != nil {
		return nil, fmt.Errorf("list past recommendations: %w", err)
	}
	defer rows.Close()

	recs := []recommendation.Recommendation{}
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// UpdateOutcome transitions a recommendation's outcome and returns the
// updated row. The WHERE clause re-checks the transition so concurrent
// updates lose cleanly with ErrConflict.
func (s *Store) UpdateOutcome(ctx context.Context, id string, status recommendation.OutcomeStatus, agentID, feedback string, at time.Time) (*recommendation.Recommendation, error) {
	var fromStates []string
	switch status {
	case recommendation.OutcomeDelivered:
		fromStates = []string{string(recommendation.OutcomePending)}
	case recommendation.OutcomeAccepted, recommendation.OutcomeDeclined:
		fromStates = []string{string(recommendation.OutcomeDelivered)}
	case recommendation.OutcomeExcluded:
		fromStates = []string{string(recommendation.OutcomeDeclined)}
	default:
		return nil, fmt.Errorf("%w: no transition to %s", domain.ErrValidation, status)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE recommendations
		 SET outcome_status = $2, delivered_by_agent_id = $3, feedback = $4, outcome_timestamp = $5, updated_at = $5
		 WHERE id = $1 AND outcome_status = ANY($6)
		 RETURNING `+recommendationColumns, id, status, agentID, feedback, at, fromStates)

	r, err := scanRecommendation(row)
	if err != nil {
		// Distinguish a missing row from a lost transition race.
		if _, getErr := s.GetRecommendation(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, notFoundWrapConflict(err, "update outcome of %s", id)
	}
	return &r, nil
}

func scanRecommendation(row scannable) (recommendation.Recommendation, error) {
	var (
		r           recommendation.Recommendation
		sourcesJSON []byte
		chainJSON   []byte
		outcomeAt   *time.Time
	)
	err := row.Scan(&r.ID, &r.CustomerID, &r.Type, &r.Text, &r.ConfidenceScore,
		&sourcesJSON, &chainJSON, &r.GeneratedAt, &r.OutcomeStatus, &r.DeliveredBy,
		&outcomeAt, &r.Feedback, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(sourcesJSON, &r.DataSources); err != nil {
		return r, fmt.Errorf("unmarshal data sources: %w", err)
	}
	if err := json.Unmarshal(chainJSON, &r.ReasoningChain); err != nil {
		return r, fmt.Errorf("unmarshal reasoning chain: %w", err)
	}
	r.OutcomeAt = outcomeAt
	return r, nil
}
