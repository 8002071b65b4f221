package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karimd18/project-C-case-study/errors"
	_ "modernc.org/sqlite"
)

var _ Repository = (*SQLite)(nil)

// SQLite implements Repository on a single SQLite file. Timestamps are
// stored as unix nanoseconds; turns live in their own table and keep
// insertion order through an autoincrement key.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_owner ON chat_sessions(owner_user_id, updated_at);

	CREATE TABLE IF NOT EXISTS chat_turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id, seq);

	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		owner_user_id TEXT,
		user_input TEXT NOT NULL,
		json_output TEXT NOT NULL,
		action_title TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		settings_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateSession(ctx context.Context, ownerID, title string) (*ChatSession, error) {
	if title == "" {
		title = DefaultSessionTitle
	}
	now := s.now().UTC()
	session := &ChatSession{
		ID:          newID(),
		OwnerUserID: ownerID,
		Title:       title,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, owner_user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, ownerID, title, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (s *SQLite) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	if !validID(id) {
		return nil, nil
	}

	var session ChatSession
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_user_id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.OwnerUserID, &session.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	session.UpdatedAt = time.Unix(0, updatedAt).UTC()

	turns, err := s.loadTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Turns = turns
	return &session, nil
}

func (s *SQLite) loadTurns(ctx context.Context, sessionID string) ([]ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM chat_turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []ChatTurn
	for rows.Next() {
		var turn ChatTurn
		var role string
		var ts int64
		if err := rows.Scan(&role, &turn.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.Role = Role(role)
		turn.Timestamp = time.Unix(0, ts).UTC()
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// AppendTurn inserts the turn and refreshes updated_at in one transaction.
func (s *SQLite) AppendTurn(ctx context.Context, id string, role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	if !validID(id) {
		return fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().UnixNano()
	result, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		id, string(role), content, now); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) RenameSession(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, s.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	return nil
}

// ListSessionsForOwner returns the owner's sessions, most recently updated
// first. Turns are included.
func (s *SQLite) ListSessionsForOwner(ctx context.Context, ownerID string) ([]*ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_user_id, title, created_at, updated_at FROM chat_sessions
		 WHERE owner_user_id = ? ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	sessions := make([]*ChatSession, 0)
	for rows.Next() {
		var session ChatSession
		var createdAt, updatedAt int64
		if err := rows.Scan(&session.ID, &session.OwnerUserID, &session.Title, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		session.CreatedAt = time.Unix(0, createdAt).UTC()
		session.UpdatedAt = time.Unix(0, updatedAt).UTC()
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	rows.Close()

	for _, session := range sessions {
		if session.Turns, err = s.loadTurns(ctx, session.ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) AppendRecord(ctx context.Context, record *HistoryRecord) error {
	if record.ID == "" {
		record.ID = newID()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}

	var owner interface{}
	if record.OwnerUserID != "" {
		owner = record.OwnerUserID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, owner_user_id, user_input, json_output, action_title, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, owner, record.RawUserInput, record.SerializedResponse, record.ActionTitle,
		record.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// ListAll returns records newest first.
func (s *SQLite) ListAll(ctx context.Context) ([]*HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_user_id, user_input, json_output, action_title, created_at
		 FROM history ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]*HistoryRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLite) GetByID(ctx context.Context, id string) (*HistoryRecord, error) {
	if !validID(id) {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_user_id, user_input, json_output, action_title, created_at
		 FROM history WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*HistoryRecord, error) {
	var rec HistoryRecord
	var owner sql.NullString
	var ts int64
	if err := row.Scan(&rec.ID, &owner, &rec.RawUserInput, &rec.SerializedResponse, &rec.ActionTitle, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan history row: %w", err)
	}
	rec.OwnerUserID = owner.String
	rec.Timestamp = time.Unix(0, ts).UTC()
	return &rec, nil
}

func (s *SQLite) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	settings, err := json.Marshal(user.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, role, settings_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Role, string(settings), user.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Email, errors.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `email = ?`, email)
}

func (s *SQLite) GetUserByID(ctx context.Context, id string) (*User, error) {
	if !validID(id) {
		return nil, nil
	}
	return s.getUser(ctx, `id = ?`, id)
}

func (s *SQLite) getUser(ctx context.Context, where string, arg string) (*User, error) {
	var user User
	var settings string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, settings_json, created_at FROM users WHERE `+where, arg,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &settings, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &user.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return &user, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
