package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MultiNotifier fans an alert out to every configured channel independently.
// Matches the original system's two-channel (Slack + Discord) webhook
// behavior: a failure on one channel does not stop delivery on the other,
// and the caller only sees an error if every channel failed.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier fanning out to all of ns.
func NewMultiNotifier(ns ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: ns}
}

func (m *MultiNotifier) Notify(ctx context.Context, alert Alert) error {
	if len(m.notifiers) == 0 {
		return nil
	}

	errs := make([]string, 0, len(m.notifiers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, n := range m.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			if err := n.Notify(ctx, alert); err != nil {
				mu.Lock()
				errs = append(errs, err.Error())
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()

	if len(errs) == len(m.notifiers) {
		return fmt.Errorf("all notification channels failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
