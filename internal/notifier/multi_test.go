package notifier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNotifier struct {
	calls int32
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, alert Alert) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

func TestMultiNotifierSucceedsIfAnyChannelSucceeds(t *testing.T) {
	ok := &fakeNotifier{}
	fail := &fakeNotifier{err: errors.New("boom")}
	m := NewMultiNotifier(ok, fail)

	err := m.Notify(context.Background(), Alert{TicketID: "t1"})
	assert.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ok.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fail.calls))
}

func TestMultiNotifierFailsWhenAllChannelsFail(t *testing.T) {
	a := &fakeNotifier{err: errors.New("a down")}
	b := &fakeNotifier{err: errors.New("b down")}
	m := NewMultiNotifier(a, b)

	err := m.Notify(context.Background(), Alert{TicketID: "t1"})
	assert.Error(t, err)
}

func TestMultiNotifierNoopWithNoChannels(t *testing.T) {
	m := NewMultiNotifier()
	err := m.Notify(context.Background(), Alert{TicketID: "t1"})
	assert.NoError(t, err)
}
