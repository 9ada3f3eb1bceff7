package contact

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"linkid/internal/contact/models"
	"linkid/internal/contact/service"
	dErrors "linkid/pkg/domain-errors"
	"linkid/pkg/platform/sentinel"
	txcontext "linkid/pkg/platform/tx"
)

const contactColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

// PostgresStore persists contacts in PostgreSQL.
// This store is pure I/O: merge decisions belong to the service.
type PostgresStore struct {
	db        *sql.DB
	isolation sql.IsolationLevel
	timeout   time.Duration
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithIsolation sets the isolation level of reconciliation transactions.
// The default is read committed, so statements issued after an advisory lock
// is granted see the rows committed by its previous holder.
func WithIsolation(level sql.IsolationLevel) PostgresOption {
	return func(s *PostgresStore) {
		s.isolation = level
	}
}

// WithTxTimeout bounds transactions whose context carries no deadline.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed contact store.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:        db,
		isolation: sql.LevelReadCommitted,
		timeout:   defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx opens a database transaction, hands fn a store bound to it, and
// commits when fn succeeds. Advisory locks taken by fn end with the transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.isolation})
	if err != nil {
		return fmt.Errorf("begin contact transaction: %w", classifyError(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&postgresTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit contact transaction: %w", classifyError(err))
	}
	return nil
}

// ListAll returns every contact, newest first.
func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts ORDER BY created_at DESC, id DESC`
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", classifyError(err))
	}
	defer rows.Close()
	return scanContacts(rows)
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ProcessOutbox claims up to limit unpublished events, hands them to fn, and
// marks them published in the same transaction. Rows claimed by a concurrent
// relay are skipped.
func (s *PostgresStore) ProcessOutbox(ctx context.Context, limit int, fn func(ctx context.Context, entries []models.OutboxEntry) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox transaction: %w", classifyError(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()
	txCtx := txcontext.WithTx(ctx, tx)

	entries, err := s.claimOutbox(txCtx, limit)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := fn(ctx, entries); err != nil {
		return 0, err
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := s.markPublished(txCtx, ids, time.Now()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox transaction: %w", classifyError(err))
	}
	return len(entries), nil
}

func (s *PostgresStore) claimOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	query := `
		SELECT id, payload, created_at
		FROM contact_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox entries: %w", classifyError(err))
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		var (
			entry   models.OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Event); err != nil {
			return nil, fmt.Errorf("decode outbox entry %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) markPublished(ctx context.Context, ids []int64, now time.Time) error {
	query := `UPDATE contact_outbox SET published_at = $1 WHERE id = ANY($2)`
	if _, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, query, now, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox entries published: %w", classifyError(err))
	}
	return nil
}

// postgresTx implements service.Store inside one database transaction.
type postgresTx struct {
	q txcontext.Querier
}

// LockKeys takes a transaction-scoped advisory lock per key, in the order given.
func (t *postgresTx) LockKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := t.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("advisory lock %q: %w", key, classifyError(err))
		}
	}
	return nil
}

// FindByEmailOrPhone skips soft-deleted rows and secondaries whose primary
// was soft-deleted.
func (t *postgresTx) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts c
		WHERE c.deleted_at IS NULL
		  AND (c.email = $1 OR c.phone_number = $2)
		  AND NOT EXISTS (
		      SELECT 1 FROM contacts p WHERE p.id = c.linked_id AND p.deleted_at IS NOT NULL)
		ORDER BY created_at, id
	`
	rows, err := t.q.QueryContext(ctx, query, email, phone)
	if err != nil {
		return nil, fmt.Errorf("find contacts by email or phone: %w", classifyError(err))
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (t *postgresTx) FindClusters(ctx context.Context, primaryIDs []int64) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE deleted_at IS NULL
		  AND (id = ANY($1) OR linked_id = ANY($1))
		ORDER BY created_at, id
	`
	rows, err := t.q.QueryContext(ctx, query, pq.Array(primaryIDs))
	if err != nil {
		return nil, fmt.Errorf("find contact clusters: %w", classifyError(err))
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (t *postgresTx) Relink(ctx context.Context, ids []int64, primaryID int64, now time.Time) error {
	query := `
		UPDATE contacts
		SET link_precedence = 'secondary', linked_id = $1, updated_at = $2
		WHERE id = ANY($3) AND deleted_at IS NULL
	`
	result, err := t.q.ExecContext(ctx, query, primaryID, now, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("relink contacts: %w", classifyError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("relink contacts rows affected: %w", err)
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("relinked %d of %d contacts: %w", n, len(ids), sentinel.ErrConflict)
	}
	return nil
}

func (t *postgresTx) Create(ctx context.Context, nc models.NewContact) (*models.Contact, error) {
	query := `
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + contactColumns
	c, err := scanContact(t.q.QueryRowContext(ctx, query,
		nc.Email,
		nc.PhoneNumber,
		nc.LinkedID,
		string(nc.LinkPrecedence),
		nc.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", classifyError(err))
	}
	return c, nil
}

func (t *postgresTx) AppendEvents(ctx context.Context, events []models.Event) error {
	query := `
		INSERT INTO contact_outbox (event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal contact event: %w", err)
		}
		if _, err := t.q.ExecContext(ctx, query, string(e.Type), e.AggregateID, payload, e.OccurredAt); err != nil {
			return fmt.Errorf("insert outbox entry: %w", classifyError(err))
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c          models.Contact
		precedence string
	)
	if err := row.Scan(
		&c.ID,
		&c.Email,
		&c.PhoneNumber,
		&c.LinkedID,
		&precedence,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.DeletedAt,
	); err != nil {
		return nil, err
	}
	c.LinkPrecedence = models.LinkPrecedence(precedence)
	return &c, nil
}

func scanContacts(rows *sql.Rows) ([]*models.Contact, error) {
	var contacts []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", classifyError(err))
	}
	return contacts, nil
}
