// Package sqldb is a database/sql conversation store over SQLite or PostgreSQL.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/storage"
	"github.com/tjfontaine/scene-gateway/internal/storage/dialect"
)

// Store is a SQL implementation of ConversationStore that supports multiple
// database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ storage.ConversationStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // sqlite or postgres
	DSN    string
}

// New opens the database and creates the schema if it does not exist.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSQLite opens a SQLite store at dsn.
func NewSQLite(dsn string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dsn})
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	created_at ` + ts + ` NOT NULL,
	updated_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS turns (
	id ` + s.dialect.AutoIncrementClause() + `,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	user_text TEXT NOT NULL,
	assistant_text TEXT NOT NULL,
	directive TEXT,
	created_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

type turnRow struct {
	storage.Turn
	Directive sql.NullString `db:"directive"`
}

func (s *Store) SaveTurn(ctx context.Context, turn *storage.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	var directive sql.NullString
	if turn.Directive != nil {
		b, err := json.Marshal(turn.Directive)
		if err != nil {
			return fmt.Errorf("failed to marshal directive: %w", err)
		}
		directive = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := s.dialect.Rebind(`INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?) ` +
		s.dialect.UpsertClause("id", []string{"updated_at"}))
	if _, err := tx.ExecContext(ctx, upsert, turn.ConversationID, turn.CreatedAt, turn.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	insert := s.dialect.Rebind(`INSERT INTO turns (conversation_id, user_text, assistant_text, directive, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		turn.ConversationID, turn.UserText, turn.AssistantText, directive, turn.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	return tx.Commit()
}

func (s *Store) LastDirective(ctx context.Context, conversationID string) (*domain.Directive, error) {
	query := s.dialect.Rebind(`SELECT directive FROM turns
		WHERE conversation_id = ? AND directive IS NOT NULL
		ORDER BY id DESC LIMIT 1`)

	var raw string
	err := s.db.GetContext(ctx, &raw, query, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query directive: %w", err)
	}

	var d domain.Directive
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal directive: %w", err)
	}
	return &d, nil
}

func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]storage.Turn, error) {
	query := `SELECT conversation_id, user_text, assistant_text, directive, created_at
		FROM turns WHERE conversation_id = ? ORDER BY id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []turnRow
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	slices.Reverse(rows)

	turns := make([]storage.Turn, 0, len(rows))
	for _, r := range rows {
		t := r.Turn
		if r.Directive.Valid {
			var d domain.Directive
			if err := json.Unmarshal([]byte(r.Directive.String), &d); err != nil {
				return nil, fmt.Errorf("failed to unmarshal directive: %w", err)
			}
			t.Directive = &d
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
