package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/horken7/your-mail-buddy/internal/model"
)

// memoryDSN keeps the batch in process memory. A file path would persist
// state past the session, which this store must never do.
const memoryDSN = ":memory:"

// SQLiteStore implements Store on an in-memory SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// itemRow mirrors one batch_items row.
type itemRow struct {
	ID         string         `db:"id"`
	Position   int            `db:"position"`
	Sender     string         `db:"sender"`
	Recipient  string         `db:"recipient"`
	SentAt     sql.NullString `db:"sent_at"`
	Subject    string         `db:"subject"`
	Body       string         `db:"body"`
	State      string         `db:"state"`
	Importance sql.NullInt64  `db:"importance"`
	Summary    string         `db:"summary"`
	DraftReply string         `db:"draft_reply"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

const itemColumns = `id, position, sender, recipient, sent_at, subject, body,
	state, importance, summary, draft_reply, updated_at`

// NewSQLiteStore opens a fresh in-memory database and runs the schema
// migrations. Every call yields an independent, empty batch.
func NewSQLiteStore() (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", memoryDSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close drops the database and everything in it.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ReplaceBatch deletes the previous batch and inserts msgs in one
// transaction, numbering them in the order given.
func (s *SQLiteStore) ReplaceBatch(ctx context.Context, msgs []model.Message) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM batch_items"); err != nil {
		return fmt.Errorf("clearing batch: %w", err)
	}

	const query = `
		INSERT INTO batch_items (
			id, position, sender, recipient, sent_at, subject, body, state, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, m := range msgs {
		_, err := stmt.ExecContext(ctx,
			m.ID, i, m.Sender, m.Recipient, sentAtValue(m.SentAt),
			m.Subject, m.Body, string(model.StateFetched), now,
		)
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// Items returns the batch in fetch order.
func (s *SQLiteStore) Items(ctx context.Context) ([]model.BatchItem, error) {
	return s.selectItems(ctx, "SELECT "+itemColumns+" FROM batch_items ORDER BY position")
}

// Ranked returns the batch ordered by importance descending.
func (s *SQLiteStore) Ranked(ctx context.Context) ([]model.BatchItem, error) {
	return s.selectItems(ctx, "SELECT "+itemColumns+` FROM batch_items
		ORDER BY COALESCE(importance, -1) DESC, position ASC`)
}

func (s *SQLiteStore) selectItems(ctx context.Context, query string) ([]model.BatchItem, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("querying batch: %w", err)
	}

	items := make([]model.BatchItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toItem())
	}
	return items, nil
}

// Get retrieves a single batch item by message id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.BatchItem, error) {
	var r itemRow
	err := s.db.GetContext(ctx, &r, "SELECT "+itemColumns+" FROM batch_items WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", id, err)
	}

	item := r.toItem()
	return &item, nil
}

// SetVerdict records the analysis result and moves the item to the
// analyzed state.
func (s *SQLiteStore) SetVerdict(ctx context.Context, id string, v model.Verdict) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_items
		SET importance = ?, summary = ?, draft_reply = ?, state = ?, updated_at = ?
		WHERE id = ?`,
		int(v.Importance), v.Summary, v.DraftReply, string(model.StateAnalyzed),
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording verdict for %s: %w", id, err)
	}
	return requireOne(res, id)
}

// SetState updates the lifecycle state of one item.
func (s *SQLiteStore) SetState(ctx context.Context, id string, state model.ItemState) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE batch_items SET state = ?, updated_at = ? WHERE id = ?",
		string(state), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting state of %s: %w", id, err)
	}
	return requireOne(res, id)
}

// Delete removes one item from the batch.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM batch_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", id, err)
	}
	return requireOne(res, id)
}

// Len returns the number of items in the batch.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM batch_items"); err != nil {
		return 0, fmt.Errorf("counting batch: %w", err)
	}
	return n, nil
}

// Clear empties the batch.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM batch_items"); err != nil {
		return fmt.Errorf("clearing batch: %w", err)
	}
	return nil
}

func (r itemRow) toItem() model.BatchItem {
	item := model.BatchItem{
		Message: model.Message{
			ID:        r.ID,
			Sender:    r.Sender,
			Recipient: r.Recipient,
			Subject:   r.Subject,
			Body:      r.Body,
		},
		State:    model.ItemState(r.State),
		Position: r.Position,
	}
	if r.SentAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, r.SentAt.String); err == nil {
			item.Message.SentAt = t
		}
	}
	if r.Importance.Valid {
		item.Verdict = &model.Verdict{
			Importance: model.Importance(r.Importance.Int64),
			Summary:    r.Summary,
			DraftReply: r.DraftReply,
		}
	}
	return item
}

func requireOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// sentAtValue keeps the Date header's own offset so the sender's wall
// clock survives the round trip. The zero time maps to NULL.
func sentAtValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
