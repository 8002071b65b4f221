// Package store defines the persistence contracts consumed by the slide
// pipeline and the HTTP layer, with an in-memory and a SQLite implementation.
//
// Lookups by id return (nil, nil) when the id is unknown or malformed;
// absence is not an error. Mutations of an unknown id return an error
// wrapping errors.ErrNotFound.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTitle is the title a session carries until it is renamed.
const DefaultSessionTitle = "New Conversation"

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatTurn is one message in a session. Turns are append-only.
type ChatTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession is a conversation owned by a user.
type ChatSession struct {
	ID          string     `json:"id"`
	OwnerUserID string     `json:"userId"`
	Title       string     `json:"title"`
	Turns       []ChatTurn `json:"messages"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// HistoryRecord is an immutable log entry for one rendered slide.
type HistoryRecord struct {
	ID                 string    `json:"id"`
	OwnerUserID        string    `json:"userId,omitempty"`
	RawUserInput       string    `json:"userInput"`
	SerializedResponse string    `json:"jsonOutput"`
	ActionTitle        string    `json:"slideHeader"`
	Timestamp          time.Time `json:"timestamp"`
}

// User is a registered account.
type User struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	Role         string            `json:"role"`
	Settings     map[string]string `json:"settings"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// SessionStore persists chat sessions and their turns.
type SessionStore interface {
	CreateSession(ctx context.Context, ownerID, title string) (*ChatSession, error)
	GetSession(ctx context.Context, id string) (*ChatSession, error)
	AppendTurn(ctx context.Context, id string, role Role, content string) error
	RenameSession(ctx context.Context, id, title string) error
	ListSessionsForOwner(ctx context.Context, ownerID string) ([]*ChatSession, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
}

// HistoryStore is an append-only log of rendered slides.
type HistoryStore interface {
	AppendRecord(ctx context.Context, record *HistoryRecord) error
	ListAll(ctx context.Context) ([]*HistoryRecord, error)
	GetByID(ctx context.Context, id string) (*HistoryRecord, error)
}

// UserStore persists accounts. Emails are unique.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// Repository is the full storage backend.
type Repository interface {
	SessionStore
	HistoryStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}

// validID reports whether id is a well-formed identifier. Every id handed
// out by this package is a UUID.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func newID() string {
	return uuid.NewString()
}
