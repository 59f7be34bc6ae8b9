package inmem

import (
	"context"
	"strings"

	"github.com/supportiq/supportiq/internal/port/safety"
)

// SafetyValidator approves everything except texts containing blocklisted
// terms. It stands in for the remote content safety service in local mode.
type SafetyValidator struct {
	blocklist []string
}

// NewSafetyValidator creates a blocklist-based safety validator.
func NewSafetyValidator() *SafetyValidator {
	return &SafetyValidator{
		blocklist: []string{"guaranteed", "risk-free", "act now"},
	}
}

// ValidateBatch checks each text against the blocklist.
func (v *SafetyValidator) ValidateBatch(_ context.Context, texts []string) (map[string]safety.Result, error) {
	results := make(map[string]safety.Result, len(texts))
	for _, text := range texts {
		lower := strings.ToLower(text)
		res := safety.Result{IsSafe: true}
		for _, term := range v.blocklist {
			if strings.Contains(lower, term) {
				res.IsSafe = false
				res.BlockedCategories = append(res.BlockedCategories, "prohibited_marketing_language")
				break
			}
		}
		results[text] = res
	}
	return results, nil
}
