// Package events defines the domain lifecycle event envelope for tickets
// moving through the pipeline; no package in this module constructs or
// publishes these events. Adapted from the
// teacher's order/trade event envelope: same BaseEvent/Metadata shape,
// generalized from a UUID aggregate id to the routing core's string ticket
// ids, and with order/trade payloads replaced by ticket/incident payloads.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TicketCreated    = "ticket.created"
	TicketClassified = "ticket.classified"
	TicketAssigned   = "ticket.assigned"
	TicketPreempted  = "ticket.preempted"
	TicketCompleted  = "ticket.completed"
	TicketFailed     = "ticket.failed"

	IncidentCreated = "incident.created"
	IncidentLinked  = "incident.linked"

	BreakerStateChanged = "circuit_breaker.state_changed"
)

// BaseEvent contains common event fields.
type BaseEvent struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	Data          json.RawMessage `json:"data"`
	Metadata      Metadata        `json:"metadata"`
}

// Metadata carries tracing/correlation context alongside an event.
type Metadata struct {
	CorrelationID string            `json:"correlation_id"`
	CausationID   string            `json:"causation_id"`
	Source        string            `json:"source"`
	TraceID       string            `json:"trace_id,omitempty"`
	SpanID        string            `json:"span_id,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// TicketData is the payload for ticket.* events.
type TicketData struct {
	TicketID       string  `json:"ticket_id"`
	Category       string  `json:"category"`
	Urgency        float64 `json:"urgency"`
	Status         string  `json:"status"`
	AssignedAgent  string  `json:"assigned_agent,omitempty"`
	MasterIncident string  `json:"master_incident,omitempty"`
}

// PreemptionData is the payload for ticket.preempted events.
type PreemptionData struct {
	NewTicketID    string  `json:"new_ticket_id"`
	VictimTicketID string  `json:"victim_ticket_id"`
	AgentID        string  `json:"agent_id"`
	VictimUrgency  float64 `json:"victim_urgency"`
	NewUrgency     float64 `json:"new_urgency"`
}

// IncidentData is the payload for incident.* events.
type IncidentData struct {
	MasterID        string   `json:"master_id"`
	TicketIDs       []string `json:"ticket_ids"`
	Category        string   `json:"category"`
	SimilarityScore float64  `json:"similarity_score"`
	SuppressedCount int      `json:"suppressed_count"`
}

// BreakerStateData is the payload for circuit_breaker.state_changed events.
type BreakerStateData struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// NewEvent creates a new event envelope with a marshaled data payload.
func NewEvent(eventType, aggregateID, aggregateType string, data interface{}, metadata Metadata) (*BaseEvent, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &BaseEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     time.Now().UTC(),
		Version:       1,
		Data:          dataBytes,
		Metadata:      metadata,
	}, nil
}

// ParseData unmarshals the event's data payload into v.
func (e *BaseEvent) ParseData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// WithCorrelation sets correlation and causation IDs.
func (m *Metadata) WithCorrelation(correlationID, causationID string) *Metadata {
	m.CorrelationID = correlationID
	m.CausationID = causationID
	return m
}

// WithTracing sets trace context.
func (m *Metadata) WithTracing(traceID, spanID string) *Metadata {
	m.TraceID = traceID
	m.SpanID = spanID
	return m
}
