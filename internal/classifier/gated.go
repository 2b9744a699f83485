package classifier

import (
	"context"
	"time"

	"github.com/smart-support/routingcore/internal/clock"
	"github.com/smart-support/routingcore/pkg/circuit"
)

// GatedClassifier is the C2-gated classifier: wraps a primary Classifier (the
// concrete model is out of scope — callers inject whatever backend they have:
// keyword, linear, transformer, a remote service) with a circuit.Breaker. On
// an open breaker or a primary error it falls back to a KeywordClassifier; a
// primary error is also recorded as a failure against the breaker, while the
// open-breaker path records nothing.
type GatedClassifier struct {
	primary  Classifier
	fallback Classifier
	breaker  *circuit.Breaker
	clock    clock.Clock
}

// NewGatedClassifier wraps primary with breaker, falling back to a
// KeywordClassifier when the breaker is open or primary errors.
func NewGatedClassifier(primary Classifier, breaker *circuit.Breaker, c clock.Clock) *GatedClassifier {
	if c == nil {
		c = clock.Real{}
	}
	return &GatedClassifier{
		primary:  primary,
		fallback: NewKeywordClassifier(),
		breaker:  breaker,
		clock:    c,
	}
}

func (g *GatedClassifier) Classify(ctx context.Context, subject, description string) (Result, error) {
	if !g.breaker.IsAvailable() {
		return g.fallback.Classify(ctx, subject, description)
	}

	start := g.clock.Now()
	result, err := g.primary.Classify(ctx, subject, description)
	elapsedMs := float64(g.clock.Now().Sub(start)) / float64(time.Millisecond)

	if err != nil {
		g.breaker.RecordFailure(elapsedMs)
		return g.fallback.Classify(ctx, subject, description)
	}

	g.breaker.RecordSuccess()
	g.breaker.RecordLatency(elapsedMs)
	return result, nil
}
