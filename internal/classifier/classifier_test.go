package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-support/routingcore/internal/clock"
	"github.com/smart-support/routingcore/pkg/circuit"
)

func TestKeywordClassifierInfersBillingAndBoostsUrgency(t *testing.T) {
	k := NewKeywordClassifier()
	result, err := k.Classify(context.Background(), "Invoice issue", "urgent payment failed, outage on our end")
	require.NoError(t, err)
	assert.Equal(t, "Billing", result.Category)
	assert.True(t, result.Urgency > baselineUrgency)
	assert.True(t, result.FromFallback)
}

func TestKeywordClassifierDampensUrgencyForCasualLanguage(t *testing.T) {
	k := NewKeywordClassifier()
	result, err := k.Classify(context.Background(), "Quick question", "just wondering about your legal contract terms whenever you have time")
	require.NoError(t, err)
	assert.Equal(t, "Legal", result.Category)
	assert.True(t, result.Urgency < baselineUrgency)
}

type stubClassifier struct {
	result Result
	err    error
}

func (s *stubClassifier) Classify(ctx context.Context, subject, description string) (Result, error) {
	return s.result, s.err
}

func newTestGated(primary Classifier) (*GatedClassifier, *clock.Fake, *circuit.Breaker) {
	fake := clock.NewFake(time.Now())
	breaker := circuit.NewBreaker(circuit.Config{Clock: fake, FailureThreshold: 2})
	return NewGatedClassifier(primary, breaker, fake), fake, breaker
}

func TestGatedClassifierUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubClassifier{result: Result{Category: "Technical", Urgency: 0.7}}
	gated, _, _ := newTestGated(primary)

	result, err := gated.Classify(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, "Technical", result.Category)
	assert.False(t, result.FromFallback)
}

func TestGatedClassifierFallsBackWhenPrimaryErrors(t *testing.T) {
	primary := &stubClassifier{err: errors.New("model unavailable")}
	gated, _, breaker := newTestGated(primary)

	result, err := gated.Classify(context.Background(), "Invoice problem", "payment charge dispute")
	require.NoError(t, err)
	assert.True(t, result.FromFallback)
	assert.Equal(t, "Billing", result.Category)

	// second failure trips the breaker at FailureThreshold=2
	_, _ = gated.Classify(context.Background(), "Invoice problem", "payment charge dispute")
	assert.Equal(t, circuit.StateOpen, breaker.State())
}

func TestGatedClassifierFallsBackWhenBreakerOpen(t *testing.T) {
	primary := &stubClassifier{result: Result{Category: "Technical", Urgency: 0.9}}
	gated, _, breaker := newTestGated(primary)
	breaker.ForceOpen()

	result, err := gated.Classify(context.Background(), "Server error", "the api is broken")
	require.NoError(t, err)
	assert.True(t, result.FromFallback)
	assert.Equal(t, "Technical", result.Category)
}
