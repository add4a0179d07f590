// Package notify fans attempt results out to operator channels, filtered by
// event type.
package notify

import (
	"context"
	"fmt"
	"strings"

	core "github.com/DomeLiquid/liquidator"
	"github.com/pkg/errors"
)

type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier forwards an event to every sender when the event is allowed. An
// empty event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	log     core.Log
}

func NewNotifier(senders []Sender, events []string, log core.Log) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{senders: senders, events: allowed, log: log}
}

func (n *Notifier) Enabled(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		n.log.Debug().Str("event", event).Msg("notification filtered")
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// A failing sender does not stop delivery to the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.Error().Err(err).Str("sender", s.Name()).Msg("notification failed")
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.log.Debug().Str("sender", s.Name()).Str("title", title).Msg("notification sent")
	}
	if len(errs) > 0 {
		return errors.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
