package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smart-support/routingcore/internal/category"
	"github.com/smart-support/routingcore/internal/clock"
)

// ticketEntry is one embedding-index record (C3). masterID is set when this
// entry is the live representative of a Master Incident, kept unprocessed
// in the index so a later near-duplicate still has something to match
// against and folds into the same incident instead of starting a new one.
type ticketEntry struct {
	ticketID    string
	subject     string
	description string
	embedding   []float64
	createdAt   time.Time
	processed   bool
	masterID    string
}

// MasterIncident is a materialized cluster of near-duplicate tickets.
type MasterIncident struct {
	MasterID        string
	TicketIDs       []string
	SimilarityScore float64
	Category        string
	CreatedAt       time.Time
	SuppressedCount int
}

// Config tunes the similarity/window/count thresholds (canonical defaults
// per spec.md §6: θ=0.9, W=5min, N=10).
type Config struct {
	SimilarityThreshold float64
	TimeWindow          time.Duration
	CountThreshold      int
	Embedder            Embedder
	Clock                clock.Clock
}

func (c *Config) applyDefaults() {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.9
	}
	if c.TimeWindow <= 0 {
		c.TimeWindow = 5 * time.Minute
	}
	if c.CountThreshold <= 0 {
		c.CountThreshold = 10
	}
	if c.Embedder == nil {
		c.Embedder = NewHashingEmbedder()
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
}

// Deduplicator implements C4 over the embedding index (C3).
type Deduplicator struct {
	cfg Config

	mu        sync.Mutex
	tickets   []*ticketEntry
	incidents map[string]*MasterIncident
}

// New constructs a Deduplicator.
func New(cfg Config) *Deduplicator {
	cfg.applyDefaults()
	return &Deduplicator{
		cfg:       cfg,
		incidents: make(map[string]*MasterIncident),
	}
}

// AddTicket embeds subject+description, checks for near-duplicates within
// the time window, and either folds the ticket into an existing/new master
// incident or inserts it as a fresh tracked entry. Returns (isDuplicate,
// masterID).
func (d *Deduplicator) AddTicket(ticketID, subject, description string) (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	text := subject + " " + description
	embedding := d.cfg.Embedder.Embed(text)
	newEntry := &ticketEntry{
		ticketID:    ticketID,
		subject:     subject,
		description: description,
		embedding:   embedding,
		createdAt:   d.cfg.Clock.Now(),
	}

	similar := d.findSimilarInWindow(newEntry)

	if len(similar) > 0 {
		// The new ticket itself completes the cluster, so a cluster of
		// CountThreshold-1 prior matches plus this one trips the incident.
		if len(similar)+1 >= d.cfg.CountThreshold {
			masterID := d.createMasterIncident(newEntry, similar)
			return true, masterID
		}
		for _, sim := range similar {
			if sim.masterID == "" {
				continue
			}
			if incident, ok := d.incidents[sim.masterID]; ok {
				incident.TicketIDs = append(incident.TicketIDs, ticketID)
				incident.SuppressedCount++
				d.cleanupOldTickets()
				return true, incident.MasterID
			}
		}
	}

	d.tickets = append(d.tickets, newEntry)
	d.cleanupOldTickets()
	return false, ""
}

func (d *Deduplicator) findSimilarInWindow(newEntry *ticketEntry) []*ticketEntry {
	cutoff := d.cfg.Clock.Now().Add(-d.cfg.TimeWindow)
	var similar []*ticketEntry
	for _, e := range d.tickets {
		if e.createdAt.Before(cutoff) || e.processed {
			continue
		}
		if CosineSimilarity(newEntry.embedding, e.embedding) > d.cfg.SimilarityThreshold {
			similar = append(similar, e)
		}
	}
	return similar
}

func (d *Deduplicator) createMasterIncident(newEntry *ticketEntry, similar []*ticketEntry) string {
	masterID := fmt.Sprintf("MASTER-%s", uuid.New().String()[:8])

	var sum float64
	texts := make([]string, 0, len(similar)+1)
	ids := make([]string, 0, len(similar)+1)
	for _, e := range similar {
		sum += CosineSimilarity(newEntry.embedding, e.embedding)
		texts = append(texts, e.subject+" "+e.description)
		ids = append(ids, e.ticketID)
		e.processed = true
	}
	ids = append(ids, newEntry.ticketID)
	texts = append(texts, newEntry.subject+" "+newEntry.description)

	avgSimilarity := 0.0
	if len(similar) > 0 {
		avgSimilarity = sum / float64(len(similar))
	}

	incident := &MasterIncident{
		MasterID:        masterID,
		TicketIDs:       ids,
		SimilarityScore: avgSimilarity,
		Category:        category.VoteMajority(texts),
		CreatedAt:       d.cfg.Clock.Now(),
		SuppressedCount: len(ids) - 1,
	}
	d.incidents[masterID] = incident

	// newEntry stays in the index, unprocessed, as the incident's live
	// representative so a later near-duplicate still has something to
	// match against instead of the incident going dark.
	newEntry.masterID = masterID
	d.tickets = append(d.tickets, newEntry)
	d.cleanupOldTickets()

	return masterID
}

// cleanupOldTickets evicts entries older than 2*W. Must be called with mu held.
func (d *Deduplicator) cleanupOldTickets() {
	cutoff := d.cfg.Clock.Now().Add(-2 * d.cfg.TimeWindow)
	kept := d.tickets[:0]
	for _, e := range d.tickets {
		if e.createdAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	d.tickets = kept
}

// GetMasterIncident returns the incident by id, or nil.
func (d *Deduplicator) GetMasterIncident(masterID string) *MasterIncident {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.incidents[masterID]
}

// GetAllMasterIncidents returns every incident.
func (d *Deduplicator) GetAllMasterIncidents() []*MasterIncident {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MasterIncident, 0, len(d.incidents))
	for _, inc := range d.incidents {
		out = append(out, inc)
	}
	return out
}

// Stats reports point-in-time deduplication metrics.
type Stats struct {
	TrackedTickets      int
	MasterIncidents     int
	TotalSuppressed     int
	SimilarityThreshold float64
	TimeWindowMinutes   float64
	CountThreshold      int
}

func (d *Deduplicator) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, inc := range d.incidents {
		total += inc.SuppressedCount
	}
	return Stats{
		TrackedTickets:      len(d.tickets),
		MasterIncidents:     len(d.incidents),
		TotalSuppressed:     total,
		SimilarityThreshold: d.cfg.SimilarityThreshold,
		TimeWindowMinutes:   d.cfg.TimeWindow.Minutes(),
		CountThreshold:      d.cfg.CountThreshold,
	}
}
