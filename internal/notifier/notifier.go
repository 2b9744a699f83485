// Package notifier implements the best-effort outbound alert capability the
// worker pipeline invokes when a ticket's urgency crosses the high-urgency
// threshold. Notifier failures never poison a ticket; callers are expected
// to log and move on.
package notifier

import "context"

// Alert is the payload delivered to a Notifier for a high-urgency ticket.
type Alert struct {
	TicketID       string
	Subject        string
	Category       string
	Urgency        float64
	AssignedAgent  string
	MasterIncident string
}

// Notifier delivers an Alert to some outbound channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}
