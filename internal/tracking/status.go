// Package tracking holds the user-owned records the scheduler sweeps:
// deadline reminders, saved searches and company profiles.
//
// Reminder status graph:
//
//	PENDING ──► SENT
//	   │
//	   └──────► CANCELLED
//
// SENT and CANCELLED are terminal states.
package tracking

import "fmt"

// Status values mirror reminders.status in PostgreSQL.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusCancelled Status = "CANCELLED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusCancelled},
	// SENT and CANCELLED are terminal
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusSent, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown reminder status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool { return len(validTransitions[s]) == 0 }
