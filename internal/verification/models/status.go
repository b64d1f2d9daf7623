package models

import (
	"fmt"
)

// Status is the lifecycle state of a verification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// TerminalStatuses lists every state a provider outcome can move a record into.
var TerminalStatuses = []Status{StatusVerified, StatusCancelled, StatusExpired}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusVerified, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// TieBreak decides what happens when a terminal event reaches a record that
// already holds a different terminal status.
type TieBreak string

const (
	// LastDeliveredWins applies the most recently delivered terminal event.
	LastDeliveredWins TieBreak = "last_delivered_wins"
	// FirstTerminalWins freezes a record at its first terminal status.
	FirstTerminalWins TieBreak = "first_terminal_wins"
)

// ParseTieBreak accepts the configured policy name; empty selects LastDeliveredWins.
func ParseTieBreak(raw string) (TieBreak, error) {
	switch TieBreak(raw) {
	case "", LastDeliveredWins:
		return LastDeliveredWins, nil
	case FirstTerminalWins:
		return FirstTerminalWins, nil
	}
	return "", fmt.Errorf("unknown tie break policy %q", raw)
}

// CanTransition reports whether a record in from may move to to.
// Re-entering the same status is never a transition; callers treat it as a no-op.
func (p TieBreak) CanTransition(from, to Status) bool {
	if !to.IsTerminal() || from == to {
		return false
	}
	switch from {
	case StatusPending:
		return true
	case StatusVerified, StatusCancelled, StatusExpired:
		return p == LastDeliveredWins
	}
	return false
}

// SourcesFor lists the statuses from which a record may move to to. Stores use
// it as the guard of a single conditional update.
func (p TieBreak) SourcesFor(to Status) []Status {
	var from []Status
	for _, s := range append([]Status{StatusPending}, TerminalStatuses...) {
		if p.CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// Outcome describes what an event did to a record.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeNoop         Outcome = "noop"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeAcknowledged Outcome = "acknowledged"
)

// Resolve classifies an update attempt after the store reports whether it applied.
func Resolve(applied bool, current, target Status) Outcome {
	switch {
	case applied:
		return OutcomeApplied
	case current == target:
		return OutcomeNoop
	default:
		return OutcomeIgnored
	}
}
