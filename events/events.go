// Package events broadcasts committed case changes to whoever is listening:
// the police dashboard, the public contributor app, notification workers.
// Publishing happens after the ledger commit and never affects it.
package events

import (
	"context"
	"time"

	"github.com/bailaid/case-ledger/ledger"
)

// Event types
const (
	EventCaseRegistered       = "case_registered"
	EventContributionReceived = "contribution_received"
	EventCasePaid             = "case_paid"
	EventCaseReleased         = "case_released"
	EventCaseLocked           = "case_locked"
	EventCaseUnlocked         = "case_unlocked"
	EventCaseClosed           = "case_closed"
)

// StreamCases is the default channel / exchange for case events.
const StreamCases = "bailaid.cases"

type Event struct {
	Type    string         `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

// CaseEvent builds an event carrying the case summary every consumer needs.
func CaseEvent(eventType string, c ledger.Case) Event {
	return Event{
		Type: eventType,
		At:   time.Now().UTC(),
		Payload: map[string]any{
			"case_id":       string(c.ID),
			"report_number": c.ReportNumber,
			"station":       c.Station,
			"status":        string(c.Status),
			"target":        int64(c.Target),
			"raised":        int64(c.Raised),
			"remaining":     int64(c.Remaining()),
		},
	}
}

// ContributionEvents returns the events for one settled contribution: always
// contribution_received, plus case_paid when it completed the target.
func ContributionEvents(c ledger.Case, contrib ledger.Contribution) []Event {
	received := CaseEvent(EventContributionReceived, c)
	received.Payload["contribution_id"] = string(contrib.ID)
	received.Payload["amount"] = int64(contrib.Amount)
	received.Payload["contributor"] = contrib.Contributor.Name
	received.Payload["reference"] = contrib.Reference

	out := []Event{received}
	if c.Status == ledger.StatusPaid {
		out = append(out, CaseEvent(EventCasePaid, c))
	}
	return out
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, stream string, event Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, stream, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
