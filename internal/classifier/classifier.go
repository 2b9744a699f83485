// Package classifier implements category and urgency inference for an
// incoming ticket, gated by the circuit breaker (C2) so a degraded ML service falls
// back to the deterministic keyword classifier instead of blocking routing.
package classifier

import "context"

// Result is the inferred category and urgency for a ticket.
type Result struct {
	Category string
	Urgency  float64
	// FromFallback is true when the result came from the keyword
	// classifier: the gated fallback after an open breaker or a primary
	// error, or any direct use of KeywordClassifier.
	FromFallback bool
}

// Classifier infers a ticket's category and urgency from its text.
type Classifier interface {
	Classify(ctx context.Context, subject, description string) (Result, error)
}
