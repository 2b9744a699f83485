// Package registry implements the agent registry (C5): a stateful pool of
// human agents with skill vectors, capacity, and per-agent assigned-ticket
// tables. Structurally grounded on the teacher's internal/risk/calculator.go
// (per-entity nested map behind a single RWMutex), generalized from
// per-user position books to per-agent assignment tables.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smart-support/routingcore/internal/clock"
)

var (
	ErrNotFound       = errors.New("registry: agent not found")
	ErrAgentFull      = errors.New("registry: agent at capacity or unavailable")
	ErrTicketNotFound = errors.New("registry: assigned ticket not found")
)

// AvailabilityState is the agent's own status, independent of load.
type AvailabilityState string

const (
	Available AvailabilityState = "available"
	Busy      AvailabilityState = "busy"
	Offline   AvailabilityState = "offline"
)

// AssignmentStatus is the lifecycle of one per-agent assigned ticket.
type AssignmentStatus string

const (
	Active    AssignmentStatus = "active"
	Paused    AssignmentStatus = "paused"
	Completed AssignmentStatus = "completed"
)

// AssignedTicket is the per-agent record of one ticket's service.
type AssignedTicket struct {
	TicketID          string
	Category          string
	Urgency           float64
	Description       string
	Status            AssignmentStatus
	ETASeconds        float64
	StartedAt         time.Time
	PausedAt          time.Time
	ElapsedBeforePause time.Duration
}

// RemainingETA returns max(0, ETA - consumed) at time now.
func (a *AssignedTicket) RemainingETA(now time.Time) time.Duration {
	consumed := a.ElapsedBeforePause
	if a.Status == Active {
		consumed += now.Sub(a.StartedAt)
	}
	remaining := time.Duration(a.ETASeconds*float64(time.Second)) - consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpired reports whether an Active assignment has run out its ETA.
func (a *AssignedTicket) IsExpired(now time.Time) bool {
	return a.Status == Active && a.RemainingETA(now) <= 0
}

// Agent is one routable human agent.
type Agent struct {
	ID             string
	Name           string
	Skills         map[string]float64
	Capacity       int
	CurrentLoad    int
	Status         AvailabilityState
	Assigned       map[string]*AssignedTicket
	registeredSeq  uint64
}

// CanAcceptTicket reports whether the agent has a free slot and is Available.
func (a *Agent) CanAcceptTicket() bool {
	return a.Status == Available && a.CurrentLoad < a.Capacity
}

// IsGeneralist reports whether proficiency is >= threshold across every
// known category.
func (a *Agent) IsGeneralist(threshold float64, categories []string) bool {
	for _, c := range categories {
		if a.Skills[c] < threshold {
			return false
		}
	}
	return true
}

// LowestUrgencyActiveTicket returns this agent's own lowest-urgency Active
// assignment, or nil. Exposed for callers that want a per-agent view; the
// coordinator's preemption search uses a global scan instead (spec §4.5).
func (a *Agent) LowestUrgencyActiveTicket() *AssignedTicket {
	var lowest *AssignedTicket
	for _, t := range a.Assigned {
		if t.Status != Active {
			continue
		}
		if lowest == nil || t.Urgency < lowest.Urgency {
			lowest = t
		}
	}
	return lowest
}

// Registry is the thread-safe pool of all agents.
type Registry struct {
	mu            sync.Mutex
	agents        map[string]*Agent
	clock         clock.Clock
	registerCount uint64
}

// New constructs an empty Registry.
func New(c clock.Clock) *Registry {
	if c == nil {
		c = clock.Real{}
	}
	return &Registry{
		agents: make(map[string]*Agent),
		clock:  c,
	}
}

// RegisterAgent adds a new agent and returns its generated id.
func (r *Registry) RegisterAgent(name string, skills map[string]float64, capacity int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	skillsCopy := make(map[string]float64, len(skills))
	for k, v := range skills {
		skillsCopy[k] = v
	}
	r.registerCount++
	r.agents[id] = &Agent{
		ID:            id,
		Name:          name,
		Skills:        skillsCopy,
		Capacity:      capacity,
		Status:        Available,
		Assigned:      make(map[string]*AssignedTicket),
		registeredSeq: r.registerCount,
	}
	return id
}

// UpdateStatus changes an agent's availability state.
func (r *Registry) UpdateStatus(id string, state AvailabilityState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	a.Status = state
	return true
}

// GetAgent returns a snapshot copy of the agent, or nil.
func (r *Registry) GetAgent(id string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return nil
	}
	return snapshotAgent(a)
}

func snapshotAgent(a *Agent) *Agent {
	cp := *a
	cp.Skills = make(map[string]float64, len(a.Skills))
	for k, v := range a.Skills {
		cp.Skills[k] = v
	}
	cp.Assigned = make(map[string]*AssignedTicket, len(a.Assigned))
	for k, v := range a.Assigned {
		t := *v
		cp.Assigned[k] = &t
	}
	return &cp
}

// GetAvailableAgents returns agents with load < capacity AND Available,
// in registration order (the order required for the coordinator's
// earliest-registered tie-break).
func (r *Registry) GetAvailableAgents() []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Agent
	for _, a := range r.agents {
		if a.CanAcceptTicket() {
			out = append(out, snapshotAgent(a))
		}
	}
	sortByRegisteredSeq(out)
	return out
}

// GetAllAgents returns every agent, in registration order.
func (r *Registry) GetAllAgents() []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, snapshotAgent(a))
	}
	sortByRegisteredSeq(out)
	return out
}

func sortByRegisteredSeq(agents []*Agent) {
	for i := 1; i < len(agents); i++ {
		j := i
		for j > 0 && agents[j-1].registeredSeq > agents[j].registeredSeq {
			agents[j-1], agents[j] = agents[j], agents[j-1]
			j--
		}
	}
}

// AcceptTicket assigns a new Active ticket to agent id. Fails with
// ErrAgentFull if the agent cannot accept it.
func (r *Registry) AcceptTicket(agentID string, assigned *AssignedTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if !a.CanAcceptTicket() {
		return ErrAgentFull
	}
	assigned.Status = Active
	assigned.StartedAt = r.clock.Now()
	a.Assigned[assigned.TicketID] = assigned
	a.CurrentLoad++
	return nil
}

// ReleaseTicket marks an assignment Completed and removes it, decrementing
// load. Returns ErrTicketNotFound if absent.
func (r *Registry) ReleaseTicket(agentID, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	t, ok := a.Assigned[ticketID]
	if !ok {
		return ErrTicketNotFound
	}
	t.Status = Completed
	delete(a.Assigned, ticketID)
	a.CurrentLoad--
	return nil
}

// PauseTicket freezes elapsed service time and transitions Active->Paused.
func (r *Registry) PauseTicket(agentID, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	t, ok := a.Assigned[ticketID]
	if !ok || t.Status != Active {
		return ErrTicketNotFound
	}
	now := r.clock.Now()
	t.ElapsedBeforePause += now.Sub(t.StartedAt)
	t.PausedAt = now
	t.Status = Paused
	return nil
}

// ResumeTicket clears the pause and transitions Paused->Active.
func (r *Registry) ResumeTicket(agentID, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	t, ok := a.Assigned[ticketID]
	if !ok || t.Status != Paused {
		return ErrTicketNotFound
	}
	t.PausedAt = time.Time{}
	t.StartedAt = r.clock.Now()
	t.Status = Active
	return nil
}

// ResumeHighestUrgencyPaused resumes the highest-urgency Paused ticket on
// the agent, if any, and returns its id.
func (r *Registry) ResumeHighestUrgencyPaused(agentID string) string {
	r.mu.Lock()
	a, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return ""
	}
	var best *AssignedTicket
	for _, t := range a.Assigned {
		if t.Status != Paused {
			continue
		}
		if best == nil || t.Urgency > best.Urgency {
			best = t
		}
	}
	if best == nil {
		r.mu.Unlock()
		return ""
	}
	best.PausedAt = time.Time{}
	best.StartedAt = r.clock.Now()
	best.Status = Active
	id := best.TicketID
	r.mu.Unlock()
	return id
}

// SwapIn atomically pauses victimTicketID on agentID (the victim stays in
// the agent's table as Paused, but its slot is freed: load is decremented)
// and accepts newTicket onto the same agent (load is incremented), so the
// agent's load is unchanged, all under one mutex acquisition. This is the registry primitive spec §9 calls for to
// avoid the race in "decrement load, then accept" sequences performed as
// two separate calls.
func (r *Registry) SwapIn(agentID, victimTicketID string, newTicket *AssignedTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	victim, ok := a.Assigned[victimTicketID]
	if !ok || victim.Status != Active {
		return ErrTicketNotFound
	}

	now := r.clock.Now()
	victim.ElapsedBeforePause += now.Sub(victim.StartedAt)
	victim.PausedAt = now
	victim.Status = Paused
	a.CurrentLoad-- // preemption frees the victim's slot, unlike a voluntary pause

	newTicket.Status = Active
	newTicket.StartedAt = now
	a.Assigned[newTicket.TicketID] = newTicket
	a.CurrentLoad++
	return nil
}

// ActiveAssignment pairs an assigned ticket with the agent that owns it, for
// the coordinator's global-minimum preemption scan.
type ActiveAssignment struct {
	AgentID string
	Ticket  *AssignedTicket
}

// AllActiveAssignments returns every Active assignment across every
// non-Offline agent, used by the coordinator to find the global-minimum-
// urgency preemption victim in a single pass.
func (r *Registry) AllActiveAssignments() []ActiveAssignment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ActiveAssignment
	for id, a := range r.agents {
		if a.Status == Offline {
			continue
		}
		for _, t := range a.Assigned {
			if t.Status == Active {
				cp := *t
				out = append(out, ActiveAssignment{AgentID: id, Ticket: &cp})
			}
		}
	}
	return out
}

// AutoCompleteExpired transitions every Active assignment whose remaining
// ETA has elapsed to Completed, releases its slot, and resumes the
// highest-urgency Paused ticket on the same agent if any. Returns the ids
// of tickets that were auto-completed.
func (r *Registry) AutoCompleteExpired() []string {
	r.mu.Lock()
	now := r.clock.Now()
	var expired []struct{ agentID, ticketID string }
	for agentID, a := range r.agents {
		for ticketID, t := range a.Assigned {
			if t.IsExpired(now) {
				expired = append(expired, struct{ agentID, ticketID string }{agentID, ticketID})
			}
		}
	}
	for _, e := range expired {
		a := r.agents[e.agentID]
		delete(a.Assigned, e.ticketID)
		a.CurrentLoad--
	}
	r.mu.Unlock()

	completedIDs := make([]string, 0, len(expired))
	touchedAgents := make(map[string]bool)
	for _, e := range expired {
		completedIDs = append(completedIDs, e.ticketID)
		touchedAgents[e.agentID] = true
	}
	for agentID := range touchedAgents {
		r.ResumeHighestUrgencyPaused(agentID)
	}
	return completedIDs
}

// Stats is a point-in-time summary over the whole pool.
type Stats struct {
	TotalAgents      int
	AvailableAgents  int
	TotalCurrentLoad int
	TotalCapacity    int
	Utilization      float64
	GeneralistAgents int
}

// GetStats summarizes pool-wide utilization.
func (r *Registry) GetStats(generalistThreshold float64, categories []string) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{}
	for _, a := range r.agents {
		s.TotalAgents++
		if a.CanAcceptTicket() {
			s.AvailableAgents++
		}
		s.TotalCurrentLoad += a.CurrentLoad
		s.TotalCapacity += a.Capacity
		if a.IsGeneralist(generalistThreshold, categories) {
			s.GeneralistAgents++
		}
	}
	if s.TotalCapacity > 0 {
		s.Utilization = float64(s.TotalCurrentLoad) / float64(s.TotalCapacity)
	}
	return s
}
