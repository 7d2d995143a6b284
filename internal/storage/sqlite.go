package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/promptvault/promptvault/internal/core"
)

// SQLite persists prompts in a single-file database. Each version is one
// row holding the full JSON document plus the columns List filters on.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite-backed store.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	// WAL mode allows readers to proceed while a write is in flight.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent saves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS prompts (
		id         TEXT NOT NULL,
		version    TEXT NOT NULL,
		status     TEXT NOT NULL,
		tags       TEXT NOT NULL DEFAULT '',
		document   TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_prompts_status ON prompts(status);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLite) Save(ctx context.Context, p *core.Prompt) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return &WriteError{PromptID: p.ID, Op: "save", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompts (id, version, status, tags, document, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			status = excluded.status,
			tags = excluded.tags,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, p.ID, p.Version, string(p.Status), strings.Join(p.Metadata.Tags, " "), string(doc), time.Now().Unix())
	if err != nil {
		return &WriteError{PromptID: p.ID, Op: "save", Err: err}
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, id, version string) (*core.Prompt, error) {
	if version == "" {
		numbers, err := s.versionsOf(ctx, id)
		if err != nil {
			return nil, err
		}
		version = latestVersion(numbers)
		if version == "" {
			return nil, core.NewNotFoundError(id, "")
		}
	}

	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM prompts WHERE id = ? AND version = ?`, id, version,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError(id, version)
	}
	if err != nil {
		return nil, &ReadError{PromptID: id, Err: err}
	}

	var p core.Prompt
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, &ReadError{PromptID: id, Err: fmt.Errorf("decoding %s@%s: %w", id, version, err)}
	}
	return &p, nil
}

func (s *SQLite) Delete(ctx context.Context, id, version string) error {
	var (
		res sql.Result
		err error
	)
	if version == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ? AND version = ?`, id, version)
	}
	if err != nil {
		return &WriteError{PromptID: id, Op: "delete", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewNotFoundError(id, version)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, f Filter) ([]*core.Prompt, error) {
	ids, err := s.allIDs(ctx)
	if err != nil {
		return nil, err
	}

	var out []*core.Prompt
	for _, id := range ids {
		p, err := s.Load(ctx, id, "")
		if err != nil {
			continue
		}
		if matches(p, f) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLite) Versions(ctx context.Context, id string) ([]string, error) {
	numbers, err := s.versionsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return sortVersions(numbers), nil
}

func (s *SQLite) Exists(ctx context.Context, id, version string) (bool, error) {
	var query string
	args := []any{id}
	if version == "" {
		query = `SELECT COUNT(*) FROM prompts WHERE id = ?`
	} else {
		query = `SELECT COUNT(*) FROM prompts WHERE id = ? AND version = ?`
		args = append(args, version)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, &ReadError{PromptID: id, Err: err}
	}
	return n > 0, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) versionsOf(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM prompts WHERE id = ?`, id)
	if err != nil {
		return nil, &ReadError{PromptID: id, Err: err}
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &ReadError{PromptID: id, Err: err}
		}
		numbers = append(numbers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &ReadError{PromptID: id, Err: err}
	}
	if len(numbers) == 0 {
		return nil, core.NewNotFoundError(id, "")
	}
	return numbers, nil
}

func (s *SQLite) allIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT id FROM prompts ORDER BY id`)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &ReadError{Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
