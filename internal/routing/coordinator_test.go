package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-support/routingcore/internal/clock"
	"github.com/smart-support/routingcore/internal/registry"
)

func newTestCoordinator() (*Coordinator, *registry.Registry, *clock.Fake) {
	fake := clock.NewFake(time.Now())
	reg := registry.New(fake)
	coord := New(reg, Config{Clock: fake})
	return coord, reg, fake
}

func TestRouteAssignsToBestSkillMatch(t *testing.T) {
	coord, reg, _ := newTestCoordinator()
	agentA := reg.RegisterAgent("Alice", map[string]float64{"billing": 0.9, "technical": 0.3, "legal": 0.1}, 3)
	agentB := reg.RegisterAgent("Bob", map[string]float64{"billing": 0.2, "technical": 0.95, "legal": 0.1}, 3)

	aid, preempted := coord.Route(TicketRequest{TicketID: "t1", Category: "billing", Urgency: 0.5})
	assert.Equal(t, agentA, aid)
	assert.Empty(t, preempted)

	aid2, _ := coord.Route(TicketRequest{TicketID: "t2", Category: "technical", Urgency: 0.5})
	assert.Equal(t, agentB, aid2)
}

func TestRouteReturnsEmptyWhenNoCapacityAndBelowPreemptionThreshold(t *testing.T) {
	coord, reg, _ := newTestCoordinator()
	id := reg.RegisterAgent("Alice", map[string]float64{"billing": 0.9}, 1)
	_, _ = coord.Route(TicketRequest{TicketID: "t1", Category: "billing", Urgency: 0.5})

	agentID, preempted := coord.Route(TicketRequest{TicketID: "t2", Category: "billing", Urgency: 0.5})
	assert.Empty(t, agentID)
	assert.Empty(t, preempted)
	_ = id
}

func TestPreemptionSelectsGlobalMinimumUrgency(t *testing.T) {
	coord, reg, _ := newTestCoordinator()
	agentA := reg.RegisterAgent("Alice", map[string]float64{"billing": 0.9}, 1)
	agentB := reg.RegisterAgent("Bob", map[string]float64{"billing": 0.9}, 1)

	require.NoError(t, reg.AcceptTicket(agentA, &registry.AssignedTicket{TicketID: "lowA", Urgency: 0.3, ETASeconds: 60}))
	require.NoError(t, reg.AcceptTicket(agentB, &registry.AssignedTicket{TicketID: "lowerB", Urgency: 0.1, ETASeconds: 60}))

	agentID, preempted := coord.Route(TicketRequest{TicketID: "urgent", Category: "billing", Urgency: 0.9})
	assert.Equal(t, agentB, agentID)
	assert.Equal(t, "lowerB", preempted)
}

func TestPreemptionNeverDisplacesEqualOrHigherUrgency(t *testing.T) {
	coord, reg, _ := newTestCoordinator()
	agentA := reg.RegisterAgent("Alice", map[string]float64{"billing": 0.9}, 1)
	require.NoError(t, reg.AcceptTicket(agentA, &registry.AssignedTicket{TicketID: "same", Urgency: 0.9, ETASeconds: 60}))

	agentID, preempted := coord.Route(TicketRequest{TicketID: "new", Category: "billing", Urgency: 0.9})
	assert.Empty(t, agentID)
	assert.Empty(t, preempted)
}

func TestPreemptionTieBreaksToEarliestStarted(t *testing.T) {
	coord, reg, fake := newTestCoordinator()
	agentA := reg.RegisterAgent("Alice", map[string]float64{"billing": 0.9}, 1)
	agentB := reg.RegisterAgent("Bob", map[string]float64{"billing": 0.9}, 1)

	require.NoError(t, reg.AcceptTicket(agentA, &registry.AssignedTicket{TicketID: "older", Urgency: 0.3, ETASeconds: 60}))
	fake.Advance(time.Second)
	require.NoError(t, reg.AcceptTicket(agentB, &registry.AssignedTicket{TicketID: "newer", Urgency: 0.3, ETASeconds: 60}))

	_, preempted := coord.Route(TicketRequest{TicketID: "urgent", Category: "billing", Urgency: 0.9})
	assert.Equal(t, "older", preempted)
}

func TestCompleteResumesHighestUrgencyPaused(t *testing.T) {
	coord, reg, _ := newTestCoordinator()
	agentA := reg.RegisterAgent("Alice", map[string]float64{"billing": 0.9}, 1)
	require.NoError(t, reg.AcceptTicket(agentA, &registry.AssignedTicket{TicketID: "low", Urgency: 0.3, ETASeconds: 60}))

	_, preempted := coord.Route(TicketRequest{TicketID: "urgent", Category: "billing", Urgency: 0.9})
	require.Equal(t, "low", preempted)

	ok := coord.Complete(agentA, "urgent")
	assert.True(t, ok)

	a := reg.GetAgent(agentA)
	assert.Equal(t, registry.Active, a.Assigned["low"].Status)
}

func TestGeneralistOverrideRaisesSkillMatch(t *testing.T) {
	coord, reg, _ := newTestCoordinator()
	agentID := reg.RegisterAgent("Gen", map[string]float64{"billing": 0.6, "technical": 0.6, "legal": 0.6}, 1)
	a := reg.GetAgent(agentID)

	score := coord.skillMatch(a, TicketRequest{Category: "legal"})
	assert.Equal(t, 0.6, score)

	// An unlisted required skill gives a raw match of 0; score lifts it to
	// G=0.5 for a generalist: w=0.7, load factor 1 -> 0.7*0.5 + 0.3*1.
	req := TicketRequest{Category: "legal", RequiredSkills: []string{"unlisted"}, Urgency: 0}
	assert.Equal(t, 0.0, coord.skillMatch(a, req))
	assert.InDelta(t, 0.65, coord.score(a, req), 1e-9)
}
