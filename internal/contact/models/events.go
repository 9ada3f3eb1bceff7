package models

import "time"

// EventType names a contact change published through the outbox.
type EventType string

const (
	// EventContactCreated is emitted for every appended record.
	EventContactCreated EventType = "contact.created"
	// EventContactsLinked is emitted when a merge demotes or repoints records.
	EventContactsLinked EventType = "contact.linked"
)

// Event is a committed change to the contact graph. AggregateID is the
// cluster's primary id at commit time and is used as the record key.
//
// A merge moves an identity to a new key, so earlier events for it sit under
// the keys of the demoted primaries. Linked events list those primaries in
// MergedPrimaryIDs; consumers follow them to join the histories.
type Event struct {
	Type             EventType `json:"type"`
	AggregateID      int64     `json:"aggregate_id"`
	ContactIDs       []int64   `json:"contact_ids"`
	MergedPrimaryIDs []int64   `json:"merged_primary_ids,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// OutboxEntry is an event waiting to be relayed to the message broker.
type OutboxEntry struct {
	ID          int64
	Event       Event
	CreatedAt   time.Time
	PublishedAt *time.Time
}
