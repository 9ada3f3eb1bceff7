package handler

import (
	"time"

	"linkid/internal/contact/models"
)

// IdentifyResponse is the HTTP response for POST /identify.
type IdentifyResponse struct {
	Contact IdentityResponse `json:"contact"`
}

// IdentityResponse is the consolidated view of one cluster.
type IdentityResponse struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// ContactResponse is one persisted record as listed by GET /contacts.
type ContactResponse struct {
	ID             int64      `json:"id"`
	Email          *string    `json:"email"`
	PhoneNumber    *string    `json:"phoneNumber"`
	LinkedID       *int64     `json:"linkedId"`
	LinkPrecedence string     `json:"linkPrecedence"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt"`
}

// FromIdentity converts a reconciled identity to its HTTP response.
func FromIdentity(identity *models.Identity) *IdentifyResponse {
	resp := &IdentifyResponse{Contact: IdentityResponse{
		PrimaryContactID:    identity.PrimaryContactID,
		Emails:              identity.Emails,
		PhoneNumbers:        identity.PhoneNumbers,
		SecondaryContactIDs: identity.SecondaryContactIDs,
	}}
	if resp.Contact.Emails == nil {
		resp.Contact.Emails = []string{}
	}
	if resp.Contact.PhoneNumbers == nil {
		resp.Contact.PhoneNumbers = []string{}
	}
	if resp.Contact.SecondaryContactIDs == nil {
		resp.Contact.SecondaryContactIDs = []int64{}
	}
	return resp
}

// FromContacts converts stored contacts to the list response.
func FromContacts(contacts []*models.Contact) []ContactResponse {
	out := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, ContactResponse{
			ID:             c.ID,
			Email:          c.Email,
			PhoneNumber:    c.PhoneNumber,
			LinkedID:       c.LinkedID,
			LinkPrecedence: string(c.LinkPrecedence),
			CreatedAt:      c.CreatedAt,
			UpdatedAt:      c.UpdatedAt,
			DeletedAt:      c.DeletedAt,
		})
	}
	return out
}
