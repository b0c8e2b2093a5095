package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteTurnStore struct {
	db *sql.DB
}

var _ TurnStore = &SQLiteTurnStore{}

func NewSQLiteTurnStore(dsn string) (*SQLiteTurnStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite turn store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteTurnStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteTurnStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteTurnStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite turn store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_turns (
			session_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			user_message TEXT NOT NULL DEFAULT '',
			response TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (session_id, turn_id)
		);`,
		`CREATE INDEX IF NOT EXISTS chat_turns_by_session ON chat_turns(session_id, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS chat_turns_by_created ON chat_turns(created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite turn store: migrate")
		}
	}
	return nil
}

func (s *SQLiteTurnStore) Save(ctx context.Context, rec TurnRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite turn store: db is nil")
	}
	if ctx == nil {
		return errors.New("sqlite turn store: ctx is nil")
	}
	if err := validateRecord(rec); err != nil {
		return errors.Wrap(err, "sqlite")
	}
	if rec.CreatedAtMs <= 0 {
		rec.CreatedAtMs = time.Now().UnixMilli()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_turns(session_id, turn_id, mode, user_message, response, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, turn_id) DO UPDATE SET
			mode = excluded.mode,
			user_message = excluded.user_message,
			response = excluded.response,
			created_at_ms = MIN(chat_turns.created_at_ms, excluded.created_at_ms)
	`, rec.SessionID, rec.TurnID, rec.Mode, rec.UserMessage, rec.Response, rec.CreatedAtMs); err != nil {
		return errors.Wrap(err, "sqlite turn store: upsert")
	}
	return nil
}

func (s *SQLiteTurnStore) List(ctx context.Context, q TurnQuery) ([]TurnRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite turn store: db is nil")
	}
	if ctx == nil {
		return nil, errors.New("sqlite turn store: ctx is nil")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	clauses := []string{}
	args := []any{}
	if v := strings.TrimSpace(q.SessionID); v != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.Mode); v != "" {
		clauses = append(clauses, "mode = ?")
		args = append(args, v)
	}
	if q.SinceMs > 0 {
		clauses = append(clauses, "created_at_ms >= ?")
		args = append(args, q.SinceMs)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT session_id, turn_id, mode, user_message, response, created_at_ms
		FROM chat_turns
		%s
		ORDER BY created_at_ms DESC, rowid DESC
		LIMIT ?
	`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite turn store: query")
	}
	defer func() { _ = rows.Close() }()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		if err := rows.Scan(&rec.SessionID, &rec.TurnID, &rec.Mode, &rec.UserMessage, &rec.Response, &rec.CreatedAtMs); err != nil {
			return nil, errors.Wrap(err, "sqlite turn store: scan")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite turn store: rows")
	}
	return out, nil
}

func (s *SQLiteTurnStore) DeleteSession(ctx context.Context, sessionID string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite turn store: db is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("sqlite turn store: sessionID is empty")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_turns WHERE session_id = ?`, sessionID); err != nil {
		return errors.Wrap(err, "sqlite turn store: delete session")
	}
	return nil
}

// SQLiteTurnDSNForFile builds a DSN for a file-backed store.
func SQLiteTurnDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite turn store: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

// Open returns a SQLite store for a non-empty dsn and a memory store otherwise.
func Open(dsn string) (TurnStore, error) {
	return OpenWithMemoryLimit(dsn, DefaultMemoryTurnLimit)
}

// OpenWithMemoryLimit is Open with the retention of the memory fallback set
// to memoryLimit turns.
func OpenWithMemoryLimit(dsn string, memoryLimit int) (TurnStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewBoundedMemoryTurnStore(memoryLimit), nil
	}
	return NewSQLiteTurnStore(dsn)
}
