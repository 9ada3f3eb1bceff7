package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"linkid/internal/contact/models"
	dErrors "linkid/pkg/domain-errors"
	"linkid/pkg/platform/sentinel"
)

// resolvedCluster is the post-merge state of every record related to the request.
type resolvedCluster struct {
	primary  *models.Contact
	members  []*models.Contact // cluster order: created_at, then id
	relinked []int64
	demoted  []int64 // former primaries among relinked
}

func invariantViolation(format string, args ...any) error {
	return dErrors.Wrap(fmt.Errorf(format, args...), dErrors.CodeInvariantViolation, "contact graph invariant violated")
}

// anchorIDs maps each matched contact to the primary it belongs to.
// The result is sorted ascending and free of duplicates.
func anchorIDs(matches []*models.Contact) ([]int64, error) {
	ids := make([]int64, 0, len(matches))
	for _, c := range matches {
		anchor, err := c.AnchorID()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "contact graph invariant violated")
		}
		ids = append(ids, anchor)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func anchorLockKeys(anchors []int64) []string {
	keys := make([]string, len(anchors))
	for i, id := range anchors {
		keys[i] = "contact:" + strconv.FormatInt(id, 10)
	}
	return keys
}

// resolve expands matches into their full clusters, elects the earliest
// record as the true primary, and relinks everything else onto it.
// A cluster with a single anchor that is already earliest causes no writes.
func resolve(ctx context.Context, store Store, req models.IdentifyRequest, matches []*models.Contact, now time.Time) (*resolvedCluster, error) {
	anchors, err := anchorIDs(matches)
	if err != nil {
		return nil, err
	}

	if err := store.LockKeys(ctx, anchorLockKeys(anchors)); err != nil {
		return nil, fmt.Errorf("lock anchor contacts: %w", err)
	}

	// The matches were read before the anchor locks were held; a concurrent
	// merge touching other values of these clusters may have moved them.
	fresh, err := store.FindByEmailOrPhone(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("re-read matching contacts: %w", err)
	}
	freshAnchors, err := anchorIDs(fresh)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(anchors, freshAnchors) {
		return nil, fmt.Errorf("anchor primaries changed while locking: %w", sentinel.ErrConflict)
	}

	members, err := store.FindClusters(ctx, anchors)
	if err != nil {
		return nil, fmt.Errorf("find clusters: %w", err)
	}
	if err := checkCluster(anchors, members); err != nil {
		return nil, err
	}

	primary := electPrimary(members)
	if !primary.IsPrimary() {
		return nil, invariantViolation("earliest contact %d in cluster is not a primary", primary.ID)
	}

	var relink, demoted []int64
	for _, c := range members {
		if c.ID == primary.ID {
			continue
		}
		if c.IsPrimary() {
			demoted = append(demoted, c.ID)
		}
		if c.IsPrimary() || *c.LinkedID != primary.ID {
			relink = append(relink, c.ID)
		}
	}

	if len(relink) > 0 {
		if err := store.Relink(ctx, relink, primary.ID, now); err != nil {
			return nil, fmt.Errorf("relink contacts to %d: %w", primary.ID, err)
		}
		for _, c := range members {
			if slices.Contains(relink, c.ID) {
				c.LinkPrecedence = models.LinkPrecedenceSecondary
				linked := primary.ID
				c.LinkedID = &linked
				c.UpdatedAt = now
			}
		}
	}

	return &resolvedCluster{primary: primary, members: members, relinked: relink, demoted: demoted}, nil
}

// checkCluster verifies the pre-operation state the merge depends on:
// every anchor is present as a primary and every secondary points at one.
func checkCluster(anchors []int64, members []*models.Contact) error {
	seen := make(map[int64]bool, len(anchors))
	for _, c := range members {
		if _, err := c.AnchorID(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "contact graph invariant violated")
		}
		if c.IsPrimary() {
			seen[c.ID] = true
		}
	}
	for _, id := range anchors {
		if !seen[id] {
			return invariantViolation("anchor contact %d is not a live primary", id)
		}
	}
	return nil
}

// electPrimary returns the earliest-created member, ties broken by id.
func electPrimary(members []*models.Contact) *models.Contact {
	earliest := members[0]
	for _, c := range members[1:] {
		if c.CreatedBefore(earliest) {
			earliest = c
		}
	}
	return earliest
}
