// Package queue implements the priority queue (C1): tickets ordered by
// urgency descending, ties broken by arrival order. The heap shape is
// grounded on the teacher's pkg/orderbook book.go container/heap usage,
// generalized from a two-sided bid/ask book to a single max-heap plus an
// id-addressable index.
package queue

import (
	"container/heap"
	"errors"
	"sync"

	"github.com/smart-support/routingcore/internal/ticket"
)

// ErrNotFound is returned by id-addressed operations when the id is unknown.
var ErrNotFound = errors.New("queue: ticket not found")

// entry is one heap node. Urgency is stored un-negated; Less reverses the
// comparison so the heap root is always the highest-urgency, earliest-
// arrived ticket. Storing the raw urgency (rather than the source's
// negate-on-construct convention) means update_priority never risks a
// double negation: the new urgency simply overwrites the old one in place.
type entry struct {
	ticket          *ticket.Ticket
	urgency         float64
	arrivalSequence uint64
	index           int // maintained by container/heap
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].urgency != h[j].urgency {
		return h[i].urgency > h[j].urgency
	}
	return h[i].arrivalSequence < h[j].arrivalSequence
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// PriorityQueue is a thread-safe, id-addressable priority queue of tickets.
type PriorityQueue struct {
	mu       sync.Mutex
	heap     entryHeap
	byID     map[string]*entry
	nextSeq  uint64
}

// New returns an empty PriorityQueue.
func New() *PriorityQueue {
	return &PriorityQueue{
		heap: make(entryHeap, 0),
		byID: make(map[string]*entry),
	}
}

// Enqueue inserts t, keyed by its current Urgency, and assigns it the next
// arrival sequence number.
func (q *PriorityQueue) Enqueue(t *ticket.Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &entry{
		ticket:          t,
		urgency:         t.Urgency,
		arrivalSequence: q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.heap, e)
	q.byID[t.ID] = e
}

// Dequeue removes and returns the highest-priority ticket, or nil if empty.
func (q *PriorityQueue) Dequeue() *ticket.Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.heap).(*entry)
	delete(q.byID, e.ticket.ID)
	return e.ticket
}

// Peek returns the highest-priority ticket without removing it, or nil.
func (q *PriorityQueue) Peek() *ticket.Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	return q.heap[0].ticket
}

// GetByID returns the ticket with the given id, or nil.
func (q *PriorityQueue) GetByID(id string) *ticket.Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return nil
	}
	return e.ticket
}

// UpdatePriority changes the urgency of an enqueued ticket in place and
// restores heap order in O(log n). Returns ErrNotFound if id is absent.
func (q *PriorityQueue) UpdatePriority(id string, newUrgency float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return ErrNotFound
	}
	e.urgency = newUrgency
	e.ticket.Urgency = newUrgency
	heap.Fix(&q.heap, e.index)
	return nil
}

// Remove takes a specific ticket out of the queue by id, for when the
// pipeline routes a ticket straight to an agent without it ever being
// dequeued in priority order. Returns ErrNotFound if id is absent.
func (q *PriorityQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return ErrNotFound
	}
	heap.Remove(&q.heap, e.index)
	delete(q.byID, id)
	return nil
}

// Size returns the number of tickets currently queued.
func (q *PriorityQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// IsEmpty reports whether the queue has no tickets.
func (q *PriorityQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Clear removes every ticket from the queue.
func (q *PriorityQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap = q.heap[:0]
	q.byID = make(map[string]*entry)
}

// GetAll returns an unordered snapshot of every queued ticket.
func (q *PriorityQueue) GetAll() []*ticket.Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*ticket.Ticket, 0, len(q.byID))
	for _, e := range q.byID {
		out = append(out, e.ticket)
	}
	return out
}
