package service

import (
	"context"
	"fmt"
	"sort"

	"linkid/internal/contact/models"
	dErrors "linkid/pkg/domain-errors"
	"linkid/pkg/platform/strings"
)

// normalizeRequest trims both values and rejects requests carrying neither.
// It runs before any store access.
func normalizeRequest(req models.IdentifyRequest) (models.IdentifyRequest, error) {
	out := models.IdentifyRequest{
		Email:       strings.TrimToNil(req.Email),
		PhoneNumber: strings.TrimToNil(req.PhoneNumber),
	}
	if out.Email == nil && out.PhoneNumber == nil {
		return out, dErrors.New(dErrors.CodeBadRequest, "email or phoneNumber is required")
	}
	return out, nil
}

// valueLockKeys returns the advisory lock keys for the incoming values so
// that two requests sharing a value never reconcile concurrently.
func valueLockKeys(req models.IdentifyRequest) []string {
	keys := make([]string, 0, 2)
	if req.Email != nil {
		keys = append(keys, "email:"+*req.Email)
	}
	if req.PhoneNumber != nil {
		keys = append(keys, "phone:"+*req.PhoneNumber)
	}
	sort.Strings(keys)
	return keys
}

// match locks the request's values and returns every contact sharing one.
func match(ctx context.Context, store Store, req models.IdentifyRequest) ([]*models.Contact, error) {
	if err := store.LockKeys(ctx, valueLockKeys(req)); err != nil {
		return nil, fmt.Errorf("lock contact values: %w", err)
	}
	matches, err := store.FindByEmailOrPhone(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("find matching contacts: %w", err)
	}
	return matches, nil
}
