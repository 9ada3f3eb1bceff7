package models

import (
	"fmt"
	"time"
)

// LinkPrecedence marks a contact as the canonical record of its cluster or a
// record linked to it.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// IsValid checks if the precedence is one of the supported enum values.
func (p LinkPrecedence) IsValid() bool {
	return p == LinkPrecedencePrimary || p == LinkPrecedenceSecondary
}

// Contact is a single persisted (email, phone) observation.
//
// A secondary always carries LinkedID pointing directly at its cluster's
// primary; a primary never carries one.
type Contact struct {
	ID             int64
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsPrimary reports whether the contact is the canonical record of its cluster.
func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// AnchorID returns the id of the primary this contact belongs to: its own id
// when primary, else its LinkedID. Contacts that break the depth-one linking
// rule return an error instead of guessing.
func (c *Contact) AnchorID() (int64, error) {
	switch c.LinkPrecedence {
	case LinkPrecedencePrimary:
		if c.LinkedID != nil {
			return 0, fmt.Errorf("primary contact %d carries linked id %d", c.ID, *c.LinkedID)
		}
		return c.ID, nil
	case LinkPrecedenceSecondary:
		if c.LinkedID == nil {
			return 0, fmt.Errorf("secondary contact %d has no linked id", c.ID)
		}
		if *c.LinkedID == c.ID {
			return 0, fmt.Errorf("contact %d links to itself", c.ID)
		}
		return *c.LinkedID, nil
	default:
		return 0, fmt.Errorf("contact %d has unknown link precedence %q", c.ID, c.LinkPrecedence)
	}
}

// CreatedBefore orders contacts by creation time, breaking ties by id.
func (c *Contact) CreatedBefore(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// Clone returns a deep copy so in-memory stores never share mutable state
// with callers.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Email != nil {
		v := *c.Email
		cp.Email = &v
	}
	if c.PhoneNumber != nil {
		v := *c.PhoneNumber
		cp.PhoneNumber = &v
	}
	if c.LinkedID != nil {
		v := *c.LinkedID
		cp.LinkedID = &v
	}
	if c.DeletedAt != nil {
		v := *c.DeletedAt
		cp.DeletedAt = &v
	}
	return &cp
}

// NewContact describes a record to insert. The store assigns ID.
type NewContact struct {
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
	CreatedAt      time.Time
}

// Identity is the reconciled view of one cluster.
type Identity struct {
	PrimaryContactID    int64
	Emails              []string
	PhoneNumbers        []string
	SecondaryContactIDs []int64
}

// IdentifyRequest is the incoming (email, phone) pair. Nil means absent.
type IdentifyRequest struct {
	Email       *string
	PhoneNumber *string
}
