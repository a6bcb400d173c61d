package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/postcaster/golang_services/internal/content/domain"
)

// insertChunkSize caps the number of rows written by one INSERT statement.
const insertChunkSize = 25

// PgxPool is the subset of *pgxpool.Pool used by the store; pgxmock satisfies it too.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Tables names the two backing tables.
type Tables struct {
	Content   string
	Scheduled string
}

// PgContentStore keeps both backlogs in Postgres. Rows are read back as
// loosely typed records and decoded by the domain package, so a malformed
// row surfaces as a DecodeError instead of a scan failure.
type PgContentStore struct {
	db        PgxPool
	content   string
	scheduled string
	logger    *slog.Logger
}

func NewPgContentStore(db PgxPool, tables Tables, logger *slog.Logger) *PgContentStore {
	return &PgContentStore{
		db:        db,
		content:   pgx.Identifier{tables.Content}.Sanitize(),
		scheduled: pgx.Identifier{tables.Scheduled}.Sanitize(),
		logger:    logger.With("component", "content_store_pg"),
	}
}

// EnsureSchema creates the backing tables if they do not exist yet. The fire
// window is kept as text so the at-rest format stays an ISO-8601 string.
func (s *PgContentStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.content + ` (uuid TEXT PRIMARY KEY, post TEXT)`,
		`CREATE TABLE IF NOT EXISTS ` + s.scheduled + ` (uuid TEXT PRIMARY KEY, post TEXT, time TEXT, recurring BOOLEAN)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PgContentStore) table(c domain.Collection) (string, error) {
	switch c {
	case domain.CollectionImmediate:
		return s.content, nil
	case domain.CollectionScheduled:
		return s.scheduled, nil
	default:
		return "", fmt.Errorf("unknown collection %q", c)
	}
}

func (s *PgContentStore) selectQuery(c domain.Collection) (string, error) {
	table, err := s.table(c)
	if err != nil {
		return "", err
	}
	if c == domain.CollectionScheduled {
		return `SELECT uuid, post, time, recurring FROM ` + table, nil
	}
	return `SELECT uuid, post FROM ` + table, nil
}

// ScanAll returns every record of the collection in store order.
func (s *PgContentStore) ScanAll(ctx context.Context, c domain.Collection) ([]domain.Record, error) {
	query, err := s.selectQuery(c)
	if err != nil {
		return nil, &domain.StoreError{Op: "scan", Collection: c, Err: err}
	}
	return s.scan(ctx, "scan", c, query)
}

// ScanLimit returns at most n records of the collection in store order.
func (s *PgContentStore) ScanLimit(ctx context.Context, c domain.Collection, n int) ([]domain.Record, error) {
	query, err := s.selectQuery(c)
	if err != nil {
		return nil, &domain.StoreError{Op: "scan_limit", Collection: c, Err: err}
	}
	return s.scan(ctx, "scan_limit", c, query+` LIMIT $1`, n)
}

func (s *PgContentStore) scan(ctx context.Context, op string, c domain.Collection, query string, args ...any) ([]domain.Record, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error scanning collection", "error", err, "collection", c, "op", op)
		return nil, &domain.StoreError{Op: op, Collection: c, Err: err}
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var key, body, fire sql.NullString
		var recurring sql.NullBool
		dest := []any{&key, &body}
		if c == domain.CollectionScheduled {
			dest = append(dest, &fire, &recurring)
		}
		if err := rows.Scan(dest...); err != nil {
			s.logger.ErrorContext(ctx, "Error scanning content row", "error", err, "collection", c)
			return nil, &domain.StoreError{Op: op, Collection: c, Err: err}
		}

		rec := domain.Record{}
		if key.Valid {
			rec[domain.AttrKey] = key.String
		}
		if body.Valid {
			rec[domain.AttrBody] = body.String
		}
		if fire.Valid {
			rec[domain.AttrTime] = fire.String
		}
		if recurring.Valid {
			rec[domain.AttrRecurring] = recurring.Bool
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.ErrorContext(ctx, "Error iterating content rows", "error", err, "collection", c)
		return nil, &domain.StoreError{Op: op, Collection: c, Err: err}
	}

	s.logger.DebugContext(ctx, "Scanned collection", "collection", c, "op", op, "count", len(records))
	return records, nil
}

// Delete removes key from the collection; a missing key is not an error.
func (s *PgContentStore) Delete(ctx context.Context, c domain.Collection, key string) error {
	table, err := s.table(c)
	if err != nil {
		return &domain.StoreError{Op: "delete", Collection: c, Err: err}
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM `+table+` WHERE uuid = $1`, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting record", "error", err, "collection", c, "key", key)
		return &domain.StoreError{Op: "delete", Collection: c, Err: err}
	}
	if tag.RowsAffected() == 0 {
		s.logger.InfoContext(ctx, "Record already deleted", "collection", c, "key", key)
		return nil
	}
	s.logger.InfoContext(ctx, "Record deleted", "collection", c, "key", key)
	return nil
}

// CreateItems adds posts to the immediate backlog, each under a fresh key.
// Rows are written in chunks inside a single transaction.
func (s *PgContentStore) CreateItems(ctx context.Context, bodies []string) ([]domain.ContentItem, error) {
	items := make([]domain.ContentItem, 0, len(bodies))
	for _, b := range bodies {
		items = append(items, domain.ContentItem{Key: uuid.NewString(), Body: b})
	}
	if len(items) == 0 {
		return items, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, &domain.StoreError{Op: "insert", Collection: domain.CollectionImmediate, Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for start := 0; start < len(items); start += insertChunkSize {
		end := min(start+insertChunkSize, len(items))
		chunk := items[start:end]

		placeholders := make([]string, 0, len(chunk))
		args := make([]any, 0, 2*len(chunk))
		for i, item := range chunk {
			placeholders = append(placeholders, fmt.Sprintf("($%d, $%d)", 2*i+1, 2*i+2))
			args = append(args, item.Key, item.Body)
		}
		query := `INSERT INTO ` + s.content + ` (uuid, post) VALUES ` + strings.Join(placeholders, ", ")
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			s.logger.ErrorContext(ctx, "Error inserting posts chunk", "error", err, "chunk_start", start, "chunk_size", len(chunk))
			return nil, &domain.StoreError{Op: "insert", Collection: domain.CollectionImmediate, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &domain.StoreError{Op: "insert", Collection: domain.CollectionImmediate, Err: err}
	}
	s.logger.InfoContext(ctx, "Posts added to backlog", "count", len(items))
	return items, nil
}

// ListItems returns every well-formed backlog item; malformed rows are logged and skipped.
func (s *PgContentStore) ListItems(ctx context.Context) ([]domain.ContentItem, error) {
	records, err := s.ScanAll(ctx, domain.CollectionImmediate)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ContentItem, 0, len(records))
	for _, rec := range records {
		item, err := domain.DecodeContentItem(rec)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed backlog record", "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateItem replaces the body of a backlog item.
func (s *PgContentStore) UpdateItem(ctx context.Context, key, body string) error {
	tag, err := s.db.Exec(ctx, `UPDATE `+s.content+` SET post = $1 WHERE uuid = $2`, body, key)
	if err != nil {
		return &domain.StoreError{Op: "update", Collection: domain.CollectionImmediate, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	s.logger.InfoContext(ctx, "Backlog post updated", "key", key)
	return nil
}

// CreateScheduled stores a new scheduled item under a fresh key.
func (s *PgContentStore) CreateScheduled(ctx context.Context, body string, fireWindow time.Time, recurring bool) (domain.ScheduledItem, error) {
	item := domain.ScheduledItem{Key: uuid.NewString(), Body: body, FireWindow: fireWindow, Recurring: recurring}
	_, err := s.db.Exec(ctx,
		`INSERT INTO `+s.scheduled+` (uuid, post, time, recurring) VALUES ($1, $2, $3, $4)`,
		item.Key, item.Body, item.FireWindow.Format(time.RFC3339), item.Recurring,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating scheduled post", "error", err)
		return domain.ScheduledItem{}, &domain.StoreError{Op: "insert", Collection: domain.CollectionScheduled, Err: err}
	}
	s.logger.InfoContext(ctx, "Scheduled post created", "key", item.Key, "hour", item.FireWindow.Hour(), "recurring", item.Recurring)
	return item, nil
}

// ListScheduled returns every well-formed scheduled item.
func (s *PgContentStore) ListScheduled(ctx context.Context) ([]domain.ScheduledItem, error) {
	records, err := s.ScanAll(ctx, domain.CollectionScheduled)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ScheduledItem, 0, len(records))
	for _, rec := range records {
		item, err := domain.DecodeScheduledItem(rec)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed scheduled record", "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// DeleteScheduled removes a scheduled item, reporting ErrNotFound when absent.
// This is the only path by which a recurring item leaves the store.
func (s *PgContentStore) DeleteScheduled(ctx context.Context, key string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.scheduled+` WHERE uuid = $1`, key)
	if err != nil {
		return &domain.StoreError{Op: "delete", Collection: domain.CollectionScheduled, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping checks connectivity for health probes.
func (s *PgContentStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping content store: %w", err)
	}
	return nil
}

