// Package circuit implements the three-state circuit breaker (C2): a gate
// for a fallible capability that trips on consecutive failures or on a
// latency window whose moving average crosses a threshold. Adapted from the
// teacher's order-matching circuit breaker (atomic state + per-breaker
// mutex for transitions), generalized with the latency ring and
// success-threshold-to-close behavior described by the original Python
// CircuitBreaker (routing/circuit_breaker.py).
package circuit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smart-support/routingcore/internal/clock"
)

// State represents circuit breaker state.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// maxLatencyHistory bounds the latency ring buffer (canonical R=100).
const maxLatencyHistory = 100

// minLatencySamples is the minimum ring occupancy before the moving average
// is considered for a trip decision.
const minLatencySamples = 10

// Config holds circuit breaker configuration. Zero values fall back to the
// canonical defaults from the original system.
type Config struct {
	Name              string
	FailureThreshold  int           // F, consecutive failures to trip (default 5)
	SuccessThreshold  int           // S, consecutive half-open successes to close (default 2)
	ResetTimeout      time.Duration // T, Open->HalfOpen probe delay (default 30s)
	LatencyThresholdMs float64      // L, latency trip threshold (default 500ms)
	Clock             clock.Clock
	OnStateChange     func(name string, from, to State)
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.LatencyThresholdMs <= 0 {
		c.LatencyThresholdMs = 500
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
}

// Breaker gates a fallible capability with a three-state machine governed
// both by consecutive failure counting and a rolling latency window.
type Breaker struct {
	cfg Config

	mu               sync.Mutex
	state            int32 // atomic, State
	consecFailures   int
	consecSuccesses  int
	lastFailure      time.Time
	latencyHistory   []float64
}

// NewBreaker constructs a Breaker in the Closed state.
func NewBreaker(cfg Config) *Breaker {
	cfg.applyDefaults()
	return &Breaker{
		cfg:   cfg,
		state: int32(StateClosed),
	}
}

// State returns the current state, performing the lazy Open->HalfOpen
// transition if the reset timeout has elapsed since the last failure.
func (b *Breaker) State() State {
	cur := State(atomic.LoadInt32(&b.state))
	if cur != StateOpen {
		return cur
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	cur = State(atomic.LoadInt32(&b.state))
	if cur == StateOpen && b.cfg.Clock.Now().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		b.transitionLocked(StateHalfOpen)
		return StateHalfOpen
	}
	return cur
}

// IsAvailable reports whether the breaker currently admits calls.
func (b *Breaker) IsAvailable() bool {
	return b.State() != StateOpen
}

// RecordSuccess clears the failure streak in Closed, or advances toward
// closing in HalfOpen.
func (b *Breaker) RecordSuccess() {
	switch b.State() {
	case StateClosed:
		b.mu.Lock()
		b.consecFailures = 0
		b.mu.Unlock()
	case StateHalfOpen:
		b.mu.Lock()
		b.consecSuccesses++
		if b.consecSuccesses >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
		b.mu.Unlock()
	}
}

// RecordFailure records a failure observed at an optional latency (ms, <0
// to omit) and trips the breaker on threshold or latency breach.
func (b *Breaker) RecordFailure(latencyMs float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.cfg.Clock.Now()
	state := State(atomic.LoadInt32(&b.state))

	switch state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
		return
	case StateOpen:
		return
	}

	b.consecFailures++
	if b.consecFailures >= b.cfg.FailureThreshold {
		b.transitionLocked(StateOpen)
		return
	}
	if latencyMs >= 0 && latencyMs > b.cfg.LatencyThresholdMs {
		b.transitionLocked(StateOpen)
	}
}

// RecordLatency appends a latency sample (ms) to the bounded ring; once at
// least minLatencySamples are present and their mean exceeds the latency
// threshold, the sample is escalated into a RecordFailure call carrying the
// mean as the triggering latency.
func (b *Breaker) RecordLatency(latencyMs float64) {
	b.mu.Lock()
	b.latencyHistory = append(b.latencyHistory, latencyMs)
	if len(b.latencyHistory) > maxLatencyHistory {
		b.latencyHistory = b.latencyHistory[len(b.latencyHistory)-maxLatencyHistory:]
	}

	trip := false
	mean := 0.0
	if len(b.latencyHistory) >= minLatencySamples {
		sum := 0.0
		for _, v := range b.latencyHistory {
			sum += v
		}
		mean = sum / float64(len(b.latencyHistory))
		trip = mean > b.cfg.LatencyThresholdMs
	}
	b.mu.Unlock()

	if trip {
		b.RecordFailure(mean)
	}
}

// Execute gates fn: fails fast with ErrCircuitOpen if the breaker is Open,
// otherwise measures elapsed time, records latency, and classifies the
// outcome as success or failure.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if !b.IsAvailable() {
		return ErrCircuitOpen
	}

	start := b.cfg.Clock.Now()
	err := fn()
	elapsedMs := float64(b.cfg.Clock.Now().Sub(start).Milliseconds())

	b.RecordLatency(elapsedMs)
	if err != nil {
		b.RecordFailure(-1)
		return err
	}
	b.RecordSuccess()
	return nil
}

// Reset manually forces Closed and clears all counters and the latency ring.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecFailures = 0
	b.consecSuccesses = 0
	b.latencyHistory = nil
	b.transitionLocked(StateClosed)
}

// ForceOpen manually trips the breaker to Open, useful for draining traffic
// ahead of planned maintenance on the guarded capability.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.cfg.Clock.Now()
	b.transitionLocked(StateOpen)
}

// transitionLocked must be called with mu held.
func (b *Breaker) transitionLocked(newState State) {
	old := State(atomic.LoadInt32(&b.state))
	if old == newState {
		return
	}
	atomic.StoreInt32(&b.state, int32(newState))
	b.consecFailures = 0
	b.consecSuccesses = 0
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, old, newState)
	}
}

// Group manages multiple named breakers sharing a default configuration
// template, following the teacher's double-checked-locking Get pattern.
type Group struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	template Config
}

// NewGroup creates a Group; each breaker it mints copies defaultConfig with
// its own Name.
func NewGroup(defaultConfig Config) *Group {
	return &Group{
		breakers: make(map[string]*Breaker),
		template: defaultConfig,
	}
}

// Get returns the named breaker, creating it from the template on first use.
func (g *Group) Get(name string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.breakers[name]; ok {
		return b
	}
	cfg := g.template
	cfg.Name = name
	b = NewBreaker(cfg)
	g.breakers[name] = b
	return b
}

// Execute runs fn under the named breaker.
func (g *Group) Execute(ctx context.Context, name string, fn func() error) error {
	return g.Get(name).Execute(ctx, fn)
}

// States snapshots every breaker's current state.
func (g *Group) States() map[string]State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]State, len(g.breakers))
	for name, b := range g.breakers {
		out[name] = b.State()
	}
	return out
}
