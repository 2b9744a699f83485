package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-support/routingcore/internal/clock"
)

func newTestDedup() (*Deduplicator, *clock.Fake) {
	fake := clock.NewFake(time.Now())
	d := New(Config{
		SimilarityThreshold: 0.9,
		TimeWindow:          5 * time.Minute,
		CountThreshold:      10,
		Clock:               fake,
	})
	return d, fake
}

func TestTenthDuplicateCreatesMasterIncident(t *testing.T) {
	d, _ := newTestDedup()

	text := "Login page down error 500"
	var lastDup bool
	var lastMaster string
	for i := 0; i < 10; i++ {
		lastDup, lastMaster = d.AddTicket(fmt.Sprintf("T%d", i), text, text)
	}

	require.True(t, lastDup)
	require.NotEmpty(t, lastMaster)

	inc := d.GetMasterIncident(lastMaster)
	require.NotNil(t, inc)
	assert.Len(t, inc.TicketIDs, 10)
	assert.Equal(t, 9, inc.SuppressedCount)
}

func TestNinthDuplicateDoesNotCreateMaster(t *testing.T) {
	d, _ := newTestDedup()
	text := "Login page down error 500"
	for i := 0; i < 9; i++ {
		dup, _ := d.AddTicket(fmt.Sprintf("T%d", i), text, text)
		assert.False(t, dup)
	}
	assert.Empty(t, d.GetAllMasterIncidents())
}

func TestEleventhDuplicateAppendsToExistingIncident(t *testing.T) {
	d, _ := newTestDedup()
	text := "Login page down error 500"
	var masterID string
	for i := 0; i < 10; i++ {
		_, masterID = d.AddTicket(fmt.Sprintf("T%d", i), text, text)
	}
	require.NotEmpty(t, masterID)

	dup, m := d.AddTicket("T10", text, text)
	assert.True(t, dup)
	assert.Equal(t, masterID, m)
	assert.Len(t, d.GetAllMasterIncidents(), 1)

	inc := d.GetMasterIncident(masterID)
	assert.Len(t, inc.TicketIDs, 11)
	assert.Equal(t, 10, inc.SuppressedCount)
}

func TestOldEntriesEvictedAfterTwiceTheWindow(t *testing.T) {
	d, fake := newTestDedup()
	d.AddTicket("T0", "hello world", "some description")
	assert.Equal(t, 1, d.GetStats().TrackedTickets)

	fake.Advance(11 * time.Minute)
	d.AddTicket("T1", "unrelated billing invoice", "payment charge refund")
	assert.Equal(t, 1, d.GetStats().TrackedTickets)
}

func TestDissimilarTicketsDoNotCluster(t *testing.T) {
	d, _ := newTestDedup()
	dup1, _ := d.AddTicket("T0", "Invoice payment failed", "billing charge refund issue")
	dup2, _ := d.AddTicket("T1", "Server crashed with error", "technical api broken 500")
	assert.False(t, dup1)
	assert.False(t, dup2)
	assert.Empty(t, d.GetAllMasterIncidents())
}
