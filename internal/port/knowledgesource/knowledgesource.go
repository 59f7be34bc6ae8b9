// Package knowledgesource defines the port for knowledge base search.
package knowledgesource

import (
	"context"

	"github.com/supportiq/supportiq/internal/domain/knowledge"
)

// Source is the port interface for semantic knowledge base search.
type Source interface {
	// Search returns up to topK articles matching the query, most
	// relevant first. categoryFilter is optional; an empty query or a
	// non-positive topK is a validation error.
	Search(ctx context.Context, query string, topK int, categoryFilter string) ([]knowledge.Article, error)
}
