package model

import "time"

// Status is the lifecycle state of an objection, stored in the
// objection.status enum column.
type Status string

const (
	StatusPending  Status = "pending"  // initial state, set on submission
	StatusReviewed Status = "reviewed" // an admin has looked at it
	StatusResolved Status = "resolved" // terminal; the objection moves to the archive
)

// ActiveStatuses are the states that count against the one-objection-per-farmer limit.
var ActiveStatuses = []Status{StatusPending, StatusReviewed}

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusResolved:
		return true
	}
	return false
}

// IsActive reports whether s is pending or reviewed.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusReviewed
}

// CanTransition reports whether the edge from -> to exists. The edges are
// pending->reviewed, pending->resolved and reviewed->resolved; nothing
// leaves resolved and nothing returns to pending.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusReviewed:
		return from == StatusPending
	case StatusResolved:
		return from.IsActive()
	}
	return false
}

// Objection mirrors a row of the objection table.
type Objection struct {
	ID                uint64    `json:"id"`
	FarmerID          uint64    `json:"farmer_id"`
	Code              string    `json:"code"`
	TransactionNumber string    `json:"transaction_number"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ArchivedObjection is a resolved objection joined with its owner's name,
// as listed in the admin archive.
type ArchivedObjection struct {
	Objection
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
