package service

import (
	"context"
	"time"

	"linkid/internal/contact/models"
)

// Store is the persistence port the reconciliation engine runs against.
// Every method is called inside a RunInTx boundary and must join it.
type Store interface {
	// LockKeys serializes concurrent operations that touch the same keys
	// until the surrounding transaction ends. Keys arrive sorted.
	LockKeys(ctx context.Context, keys []string) error
	// FindByEmailOrPhone returns live contacts whose email equals email or
	// whose phone equals phone. Nil arguments are ignored.
	FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]*models.Contact, error)
	// FindClusters returns contacts whose id or linked id is in primaryIDs,
	// ordered by created_at then id.
	FindClusters(ctx context.Context, primaryIDs []int64) ([]*models.Contact, error)
	// Relink marks ids as secondaries of primaryID.
	Relink(ctx context.Context, ids []int64, primaryID int64, now time.Time) error
	// Create inserts a new contact and returns it with its assigned id.
	Create(ctx context.Context, c models.NewContact) (*models.Contact, error)
	// AppendEvents records change events for asynchronous publication.
	AppendEvents(ctx context.Context, events []models.Event) error
}

// ContactStoreTx provides a transactional boundary for contact store mutations.
// Implementations may wrap a database transaction or, in-memory, a coarse lock.
// Either everything fn wrote commits or nothing does.
type ContactStoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// Reader serves read-only listings outside the reconciliation transaction.
type Reader interface {
	ListAll(ctx context.Context) ([]*models.Contact, error)
}
