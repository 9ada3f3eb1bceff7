package service

import (
	"context"
	"fmt"
	"time"

	"linkid/internal/contact/models"
)

// createPrimary records a request that matched nothing as a new cluster.
func createPrimary(ctx context.Context, store Store, req models.IdentifyRequest, now time.Time) (*models.Contact, error) {
	created, err := store.Create(ctx, models.NewContact{
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		LinkPrecedence: models.LinkPrecedencePrimary,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("create primary contact: %w", err)
	}
	return created, nil
}

// hasNewEvidence reports whether the request carries an email or phone the
// cluster has not seen yet.
func hasNewEvidence(members []*models.Contact, req models.IdentifyRequest) bool {
	emailKnown := req.Email == nil
	phoneKnown := req.PhoneNumber == nil
	for _, c := range members {
		if !emailKnown && c.Email != nil && *c.Email == *req.Email {
			emailKnown = true
		}
		if !phoneKnown && c.PhoneNumber != nil && *c.PhoneNumber == *req.PhoneNumber {
			phoneKnown = true
		}
	}
	return !emailKnown || !phoneKnown
}

// appendEvidence writes at most one secondary carrying both submitted values
// when either of them is new to the cluster. It returns nil when the request
// adds nothing.
func appendEvidence(ctx context.Context, store Store, cluster *resolvedCluster, req models.IdentifyRequest, now time.Time) (*models.Contact, error) {
	if !hasNewEvidence(cluster.members, req) {
		return nil, nil
	}
	linked := cluster.primary.ID
	created, err := store.Create(ctx, models.NewContact{
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		LinkedID:       &linked,
		LinkPrecedence: models.LinkPrecedenceSecondary,
		CreatedAt:      notBefore(now, cluster.members),
	})
	if err != nil {
		return nil, fmt.Errorf("create secondary contact: %w", err)
	}
	return created, nil
}

// notBefore returns now, or the latest member creation time when the local
// clock is behind it. A new secondary must never predate its primary.
func notBefore(now time.Time, members []*models.Contact) time.Time {
	for _, c := range members {
		if c.CreatedAt.After(now) {
			now = c.CreatedAt
		}
	}
	return now
}
