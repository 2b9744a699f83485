package classifier

import (
	"context"
	"strings"

	"github.com/smart-support/routingcore/internal/category"
)

// urgencyBoosts and urgencyDampers nudge the 0.5 baseline urgency up or down
// based on language intensity. Shared nowhere else; this is deliberately
// simpler than the category keyword table since urgency is a continuous
// score rather than a vote.
var urgencyBoosts = []string{"urgent", "critical", "emergency", "asap", "down", "outage", "immediately"}
var urgencyDampers = []string{"question", "wondering", "inquiry", "whenever", "minor"}

const (
	baselineUrgency = 0.5
	boostPerHit     = 0.15
	damperPerHit    = 0.1
)

// KeywordClassifier is the deterministic fallback: a category vote over a
// shared keyword table plus a baseline-adjusted urgency score. It never
// errors and never blocks, which is what makes it safe to fall back to when
// the primary classifier's breaker is open.
type KeywordClassifier struct{}

// NewKeywordClassifier constructs the fallback classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (k *KeywordClassifier) Classify(ctx context.Context, subject, description string) (Result, error) {
	text := subject + " " + description
	cat := category.Infer(text)
	urgency := scoreUrgency(text)
	return Result{Category: cat, Urgency: urgency, FromFallback: true}, nil
}

func scoreUrgency(text string) float64 {
	lower := strings.ToLower(text)
	score := baselineUrgency
	for _, kw := range urgencyBoosts {
		if strings.Contains(lower, kw) {
			score += boostPerHit
		}
	}
	for _, kw := range urgencyDampers {
		if strings.Contains(lower, kw) {
			score -= damperPerHit
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}
