package service

import (
	"linkid/internal/contact/models"
	"linkid/pkg/platform/strings"
)

// assembleIdentity projects a cluster into the identify response. The
// primary's values come first, then every other member's in cluster order.
func assembleIdentity(primary *models.Contact, members []*models.Contact) *models.Identity {
	emails := make([]string, 0, len(members))
	phones := make([]string, 0, len(members))
	secondaries := make([]int64, 0, len(members))

	if primary.Email != nil {
		emails = append(emails, *primary.Email)
	}
	if primary.PhoneNumber != nil {
		phones = append(phones, *primary.PhoneNumber)
	}
	for _, c := range members {
		if c.ID == primary.ID {
			continue
		}
		secondaries = append(secondaries, c.ID)
		if c.Email != nil {
			emails = append(emails, *c.Email)
		}
		if c.PhoneNumber != nil {
			phones = append(phones, *c.PhoneNumber)
		}
	}

	return &models.Identity{
		PrimaryContactID:    primary.ID,
		Emails:              strings.Dedupe(emails),
		PhoneNumbers:        strings.Dedupe(phones),
		SecondaryContactIDs: secondaries,
	}
}
