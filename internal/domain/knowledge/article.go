// Package knowledge defines knowledge base articles returned by search.
package knowledge

import (
	"fmt"

	"github.com/supportiq/supportiq/internal/domain"
)

// Article is a knowledge base document with a search relevance score.
type Article struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	RelevanceScore float64  `json:"relevance_score"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags,omitempty"`
}

// Validate checks field invariants.
func (a Article) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: article id is required", domain.ErrValidation)
	}
	if a.Title == "" {
		return fmt.Errorf("%w: article title is required", domain.ErrValidation)
	}
	if a.RelevanceScore < 0 || a.RelevanceScore > 1 {
		return fmt.Errorf("%w: relevance_score must be within [0, 1]", domain.ErrValidation)
	}
	return nil
}
