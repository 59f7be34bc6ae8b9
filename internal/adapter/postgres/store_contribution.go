package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supportiq/supportiq/internal/domain/contribution"
)

// SaveContributions inserts the per-agent audit records for one cycle.
func (s *Store) SaveContributions(ctx context.Context, contribs []contribution.Contribution) error {
	if len(contribs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save contributions: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range contribs {
		inputJSON, err := json.Marshal(c.InputSummary)
		if err != nil {
			return fmt.Errorf("marshal input summary: %w", err)
		}
		outputJSON, err := json.Marshal(c.OutputSummary)
		if err != nil {
			return fmt.Errorf("marshal output summary: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO agent_contributions (id, cycle_id, agent_type, input_summary, output_summary, confidence, execution_time_ms, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.CycleID, c.AgentType, inputJSON, outputJSON, c.Confidence, c.ExecutionTimeMS, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert contribution %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save contributions: %w", err)
	}
	return nil
}

// ContributionsByCycle lists the agent contributions for one generation
// cycle, in insertion order.
func (s *Store) ContributionsByCycle(ctx context.Context, cycleID string) ([]contribution.Contribution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, cycle_id, agent_type, input_summary, output_summary, confidence, execution_time_ms, created_at
		 FROM agent_contributions WHERE cycle_id = $1 ORDER BY created_at, id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	contribs := []contribution.Contribution{}
	for rows.Next() {
		var (
			c          contribution.Contribution
			inputJSON  []byte
			outputJSON []byte
		)
		if err := rows.Scan(&c.ID, &c.CycleID, &c.AgentType, &inputJSON, &outputJSON, &c.Confidence, &c.ExecutionTimeMS, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		if err := json.Unmarshal(inputJSON, &c.InputSummary); err != nil {
			return nil, fmt.Errorf("unmarshal input summary: %w", err)
		}
		if err := json.Unmarshal(outputJSON, &c.OutputSummary); err != nil {
			return nil, fmt.Errorf("unmarshal output summary: %w", err)
		}
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}
