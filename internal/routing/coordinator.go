// Package routing implements the routing coordinator (C6): scoring,
// assignment, preemption, and auto-complete/resume policy layered over the
// agent registry (C5). Grounded on the teacher's internal/matching/engine.go
// orchestration style (ticker-driven sweep plus on-demand submit path) and
// on the original's routing/skill_routing.py route_ticket_with_preemption,
// with victim selection promoted to a true global minimum per spec.md §4.5.
package routing

import (
	"sync"
	"time"

	"github.com/smart-support/routingcore/internal/clock"
	"github.com/smart-support/routingcore/internal/registry"
)

// TicketRequest is the input to Route.
type TicketRequest struct {
	TicketID        string
	Category        string
	Urgency         float64
	Description     string
	RequiredSkills  []string
}

// Config tunes the coordinator's thresholds.
type Config struct {
	GeneralistThreshold      float64
	PreemptionUrgencyThresh  float64
	ETABaseSeconds           float64
	Categories               []string
	Clock                    clock.Clock
}

func (c *Config) applyDefaults() {
	if c.GeneralistThreshold <= 0 {
		c.GeneralistThreshold = 0.5
	}
	if c.PreemptionUrgencyThresh <= 0 {
		c.PreemptionUrgencyThresh = 0.85
	}
	if c.ETABaseSeconds <= 0 {
		c.ETABaseSeconds = 60
	}
	if len(c.Categories) == 0 {
		c.Categories = []string{"billing", "technical", "legal"}
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
}

// AssignmentEvent records one successful (possibly preempting) assignment.
type AssignmentEvent struct {
	TicketID  string
	AgentID   string
	Score     float64
	Timestamp time.Time
}

// PreemptionEvent records one preemption.
type PreemptionEvent struct {
	NewTicketID     string
	VictimTicketID  string
	AgentID         string
	VictimUrgency   float64
	NewUrgency      float64
	Timestamp       time.Time
}

// Coordinator is C6.
type Coordinator struct {
	cfg Config
	reg *registry.Registry

	historyMu          sync.Mutex
	assignmentHistory  []AssignmentEvent
	preemptionHistory  []PreemptionEvent
}

// New constructs a Coordinator over reg.
func New(reg *registry.Registry, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{cfg: cfg, reg: reg}
}

// ComputeETA returns the ETA in seconds for a ticket of the given urgency.
// Canonical implementation: a constant, independent of urgency.
func (c *Coordinator) ComputeETA(urgency float64) float64 {
	return c.cfg.ETABaseSeconds
}

// Route implements the full §4.5 route operation: auto-complete sweep,
// best-fit assignment, and, failing that, global-minimum-urgency preemption.
// Returns (agentID, preemptedTicketID); either may be empty.
func (c *Coordinator) Route(req TicketRequest) (string, string) {
	c.reg.AutoCompleteExpired()

	if agentID, score, ok := c.bestFit(req); ok {
		eta := c.ComputeETA(req.Urgency)
		assigned := &registry.AssignedTicket{
			TicketID:    req.TicketID,
			Category:    req.Category,
			Urgency:     req.Urgency,
			Description: req.Description,
			ETASeconds:  eta,
		}
		if err := c.reg.AcceptTicket(agentID, assigned); err != nil {
			return "", ""
		}
		c.recordAssignment(req.TicketID, agentID, score)
		return agentID, ""
	}

	if req.Urgency >= c.cfg.PreemptionUrgencyThresh {
		return c.preempt(req)
	}

	return "", ""
}

// bestFit scores every available agent and returns the argmax, ties broken
// by earliest registration (GetAvailableAgents is already in that order).
func (c *Coordinator) bestFit(req TicketRequest) (string, float64, bool) {
	agents := c.reg.GetAvailableAgents()
	if len(agents) == 0 {
		return "", 0, false
	}

	bestID := ""
	bestScore := -1.0
	for _, a := range agents {
		score := c.score(a, req)
		if score > bestScore {
			bestScore = score
			bestID = a.ID
		}
	}
	return bestID, bestScore, true
}

// score implements the scoring formula in spec.md §4.5.
func (c *Coordinator) score(a *registry.Agent, req TicketRequest) float64 {
	skillMatch := c.skillMatch(a, req)
	if a.IsGeneralist(c.cfg.GeneralistThreshold, c.cfg.Categories) && skillMatch < c.cfg.GeneralistThreshold {
		skillMatch = c.cfg.GeneralistThreshold
	}

	loadFactor := 1.0
	if a.Capacity > 0 {
		loadFactor = 1 - float64(a.CurrentLoad)/float64(a.Capacity)
	}

	w := 0.7 + 0.3*req.Urgency
	return w*skillMatch + (1-w)*loadFactor
}

func (c *Coordinator) skillMatch(a *registry.Agent, req TicketRequest) float64 {
	if len(req.RequiredSkills) > 0 {
		sum := 0.0
		for _, s := range req.RequiredSkills {
			sum += a.Skills[s]
		}
		return sum / float64(len(req.RequiredSkills))
	}
	if v, ok := a.Skills[lower(req.Category)]; ok {
		return v
	}
	return 0.5
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// preempt implements the global-minimum-urgency preemption protocol.
func (c *Coordinator) preempt(req TicketRequest) (string, string) {
	active := c.reg.AllActiveAssignments()

	var victim *registry.ActiveAssignment
	for i := range active {
		cand := &active[i]
		if cand.Ticket.Urgency >= req.Urgency {
			continue
		}
		if victim == nil {
			victim = cand
			continue
		}
		if cand.Ticket.Urgency < victim.Ticket.Urgency {
			victim = cand
		} else if cand.Ticket.Urgency == victim.Ticket.Urgency && cand.Ticket.StartedAt.Before(victim.Ticket.StartedAt) {
			victim = cand
		}
	}

	if victim == nil {
		return "", ""
	}

	eta := c.ComputeETA(req.Urgency)
	newAssigned := &registry.AssignedTicket{
		TicketID:    req.TicketID,
		Category:    req.Category,
		Urgency:     req.Urgency,
		Description: req.Description,
		ETASeconds:  eta,
	}
	if err := c.reg.SwapIn(victim.AgentID, victim.Ticket.TicketID, newAssigned); err != nil {
		return "", ""
	}

	c.recordPreemption(req.TicketID, victim.Ticket.TicketID, victim.AgentID, victim.Ticket.Urgency, req.Urgency)
	c.recordAssignment(req.TicketID, victim.AgentID, 0)
	return victim.AgentID, victim.Ticket.TicketID
}

// Complete handles an external completion call: releases the slot and
// resumes the highest-urgency Paused ticket on the same agent if any.
func (c *Coordinator) Complete(agentID, ticketID string) bool {
	if err := c.reg.ReleaseTicket(agentID, ticketID); err != nil {
		return false
	}
	c.reg.ResumeHighestUrgencyPaused(agentID)
	return true
}

func (c *Coordinator) recordAssignment(ticketID, agentID string, score float64) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	c.assignmentHistory = append(c.assignmentHistory, AssignmentEvent{
		TicketID:  ticketID,
		AgentID:   agentID,
		Score:     score,
		Timestamp: c.cfg.Clock.Now(),
	})
}

func (c *Coordinator) recordPreemption(newID, victimID, agentID string, victimUrgency, newUrgency float64) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	c.preemptionHistory = append(c.preemptionHistory, PreemptionEvent{
		NewTicketID:    newID,
		VictimTicketID: victimID,
		AgentID:        agentID,
		VictimUrgency:  victimUrgency,
		NewUrgency:     newUrgency,
		Timestamp:      c.cfg.Clock.Now(),
	})
}

// AssignmentHistory returns a snapshot of every assignment made so far.
func (c *Coordinator) AssignmentHistory() []AssignmentEvent {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	out := make([]AssignmentEvent, len(c.assignmentHistory))
	copy(out, c.assignmentHistory)
	return out
}

// PreemptionHistory returns a snapshot of every preemption made so far.
func (c *Coordinator) PreemptionHistory() []PreemptionEvent {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	out := make([]PreemptionEvent, len(c.preemptionHistory))
	copy(out, c.preemptionHistory)
	return out
}
