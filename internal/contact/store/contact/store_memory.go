package contact

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"linkid/internal/contact/models"
	"linkid/internal/contact/service"
	dErrors "linkid/pkg/domain-errors"
)

// defaultTxTimeout is the maximum duration for a contact transaction.
const defaultTxTimeout = 5 * time.Second

// InMemory is a process-local contact store. A single lock serializes whole
// transactions; a failed transaction leaves no trace because it runs against
// a copy that is only swapped in on success.
type InMemory struct {
	mu      sync.Mutex
	state   *memState
	timeout time.Duration

	// relayMu serializes outbox relays; it is never held together with mu
	// while a batch is being published.
	relayMu sync.Mutex
}

type memState struct {
	contacts     []*models.Contact // id order
	nextID       int64
	outbox       []*models.OutboxEntry
	nextOutboxID int64
}

// NewInMemory creates an empty in-memory contact store.
func NewInMemory() *InMemory {
	return &InMemory{
		state:   &memState{nextID: 1, nextOutboxID: 1},
		timeout: defaultTxTimeout,
	}
}

func (st *memState) clone() *memState {
	cp := &memState{
		contacts:     make([]*models.Contact, len(st.contacts)),
		nextID:       st.nextID,
		outbox:       make([]*models.OutboxEntry, len(st.outbox)),
		nextOutboxID: st.nextOutboxID,
	}
	for i, c := range st.contacts {
		cp.contacts[i] = c.Clone()
	}
	for i, e := range st.outbox {
		entry := *e
		entry.Event.ContactIDs = slices.Clone(e.Event.ContactIDs)
		entry.Event.MergedPrimaryIDs = slices.Clone(e.Event.MergedPrimaryIDs)
		cp.outbox[i] = &entry
	}
	return cp
}

// RunInTx runs fn against a private copy of the store and commits it only
// when fn succeeds.
func (s *InMemory) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	working := s.state.clone()
	if err := fn(&memTx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// ListAll returns all contacts ordered by created_at descending, newest id first on ties.
func (s *InMemory) ListAll(_ context.Context) ([]*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Contact, 0, len(s.state.contacts))
	for _, c := range s.state.contacts {
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Contact) int {
		if b.CreatedBefore(a) {
			return -1
		}
		if a.CreatedBefore(b) {
			return 1
		}
		return 0
	})
	return out, nil
}

// Seed inserts fully specified contacts, bypassing reconciliation. Used to
// load fixtures and to reproduce historical states in tests.
func (s *InMemory) Seed(contacts ...*models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contacts {
		cp := c.Clone()
		if cp.ID == 0 {
			cp.ID = s.state.nextID
		}
		if cp.ID >= s.state.nextID {
			s.state.nextID = cp.ID + 1
		}
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = cp.CreatedAt
		}
		s.state.contacts = append(s.state.contacts, cp)
	}
	slices.SortFunc(s.state.contacts, func(a, b *models.Contact) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// Get returns a copy of the contact with id, or nil.
func (s *InMemory) Get(id int64) *models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.contacts {
		if c.ID == id {
			return c.Clone()
		}
	}
	return nil
}

// Count returns the number of stored contacts.
func (s *InMemory) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.contacts)
}

// memTx is the transactional view handed to the service.
type memTx struct {
	state *memState
}

// LockKeys is a no-op: the store lock already serializes transactions.
func (t *memTx) LockKeys(_ context.Context, _ []string) error {
	return nil
}

func (t *memTx) FindByEmailOrPhone(_ context.Context, email, phone *string) ([]*models.Contact, error) {
	var out []*models.Contact
	for _, c := range t.state.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if c.LinkedID != nil && t.softDeleted(*c.LinkedID) {
			continue
		}
		emailMatch := email != nil && c.Email != nil && *c.Email == *email
		phoneMatch := phone != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phone
		if emailMatch || phoneMatch {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (t *memTx) softDeleted(id int64) bool {
	for _, c := range t.state.contacts {
		if c.ID == id {
			return c.DeletedAt != nil
		}
	}
	return false
}

func (t *memTx) FindClusters(_ context.Context, primaryIDs []int64) ([]*models.Contact, error) {
	var out []*models.Contact
	for _, c := range t.state.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if slices.Contains(primaryIDs, c.ID) || (c.LinkedID != nil && slices.Contains(primaryIDs, *c.LinkedID)) {
			out = append(out, c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Contact) int {
		if a.CreatedBefore(b) {
			return -1
		}
		if b.CreatedBefore(a) {
			return 1
		}
		return 0
	})
	return out, nil
}

func (t *memTx) Relink(_ context.Context, ids []int64, primaryID int64, now time.Time) error {
	for _, c := range t.state.contacts {
		if slices.Contains(ids, c.ID) {
			linked := primaryID
			c.LinkedID = &linked
			c.LinkPrecedence = models.LinkPrecedenceSecondary
			c.UpdatedAt = now
		}
	}
	return nil
}

func (t *memTx) Create(_ context.Context, nc models.NewContact) (*models.Contact, error) {
	c := &models.Contact{
		ID:             t.state.nextID,
		LinkPrecedence: nc.LinkPrecedence,
		CreatedAt:      nc.CreatedAt,
		UpdatedAt:      nc.CreatedAt,
	}
	if nc.Email != nil {
		v := *nc.Email
		c.Email = &v
	}
	if nc.PhoneNumber != nil {
		v := *nc.PhoneNumber
		c.PhoneNumber = &v
	}
	if nc.LinkedID != nil {
		v := *nc.LinkedID
		c.LinkedID = &v
	}
	t.state.nextID++
	t.state.contacts = append(t.state.contacts, c)
	return c.Clone(), nil
}

func (t *memTx) AppendEvents(_ context.Context, events []models.Event) error {
	for _, e := range events {
		e.ContactIDs = slices.Clone(e.ContactIDs)
		e.MergedPrimaryIDs = slices.Clone(e.MergedPrimaryIDs)
		t.state.outbox = append(t.state.outbox, &models.OutboxEntry{
			ID:        t.state.nextOutboxID,
			Event:     e,
			CreatedAt: e.OccurredAt,
		})
		t.state.nextOutboxID++
	}
	return nil
}

// ProcessOutbox hands up to limit unpublished entries, oldest first, to fn
// and marks them published when fn succeeds. The store lock is released while
// fn runs, so a slow publish never stalls transactions.
func (s *InMemory) ProcessOutbox(ctx context.Context, limit int, fn func(ctx context.Context, entries []models.OutboxEntry) error) (int, error) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	entries := s.pendingOutbox(limit)
	if len(entries) == 0 {
		return 0, nil
	}
	if err := fn(ctx, entries); err != nil {
		return 0, err
	}

	ids := make(map[int64]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.state.outbox {
		if ids[e.ID] {
			published := now
			e.PublishedAt = &published
		}
	}
	return len(entries), nil
}

func (s *InMemory) pendingOutbox(limit int) []models.OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []models.OutboxEntry
	for _, e := range s.state.outbox {
		if len(entries) == limit {
			break
		}
		if e.PublishedAt == nil {
			entry := *e
			entry.Event.ContactIDs = slices.Clone(e.Event.ContactIDs)
			entry.Event.MergedPrimaryIDs = slices.Clone(e.Event.MergedPrimaryIDs)
			entries = append(entries, entry)
		}
	}
	return entries
}

// Outbox returns a copy of every outbox entry in insertion order.
func (s *InMemory) Outbox() []models.OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OutboxEntry, len(s.state.outbox))
	for i, e := range s.state.outbox {
		out[i] = *e
	}
	return out
}
