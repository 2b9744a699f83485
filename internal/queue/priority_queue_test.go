package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-support/routingcore/internal/ticket"
)

func newTestTicket(id string, urgency float64) *ticket.Ticket {
	return &ticket.Ticket{ID: id, Urgency: urgency, CreatedAt: time.Now()}
}

func TestEnqueueDequeueOrdersByUrgencyThenArrival(t *testing.T) {
	q := New()
	q.Enqueue(newTestTicket("a", 0.2))
	q.Enqueue(newTestTicket("b", 0.9))
	q.Enqueue(newTestTicket("c", 0.9))
	q.Enqueue(newTestTicket("d", 0.5))

	order := []string{}
	for !q.IsEmpty() {
		order = append(order, q.Dequeue().ID)
	}
	assert.Equal(t, []string{"b", "c", "d", "a"}, order)
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New()
	q.Enqueue(newTestTicket("a", 0.5))
	require.Equal(t, "a", q.Peek().ID)
	require.Equal(t, 1, q.Size())
}

func TestGetByIDAndNotFound(t *testing.T) {
	q := New()
	q.Enqueue(newTestTicket("a", 0.5))
	assert.NotNil(t, q.GetByID("a"))
	assert.Nil(t, q.GetByID("missing"))
}

func TestUpdatePriorityReordersWithoutDoubleNegation(t *testing.T) {
	q := New()
	q.Enqueue(newTestTicket("a", 0.1))
	q.Enqueue(newTestTicket("b", 0.2))

	require.NoError(t, q.UpdatePriority("a", 0.9))
	require.NoError(t, q.UpdatePriority("a", 0.95))

	assert.Equal(t, "a", q.Dequeue().ID)
	assert.Equal(t, "b", q.Dequeue().ID)
}

func TestUpdatePriorityNotFound(t *testing.T) {
	q := New()
	assert.ErrorIs(t, q.UpdatePriority("missing", 0.5), ErrNotFound)
}

func TestSizeAndClear(t *testing.T) {
	q := New()
	q.Enqueue(newTestTicket("a", 0.5))
	q.Enqueue(newTestTicket("b", 0.5))
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 2, len(q.GetAll()))

	q.Clear()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, len(q.GetAll()))
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(newTestTicket(string(rune('a'+i%26))+string(rune(i)), float64(i%10)/10))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, q.Size())

	drained := 0
	for !q.IsEmpty() {
		if q.Dequeue() != nil {
			drained++
		}
	}
	assert.Equal(t, 50, drained)
}
