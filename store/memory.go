package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/karimd18/project-C-case-study/errors"
)

var _ Repository = (*Memory)(nil)

// Memory is a process-local Repository. Values are copied in and out so
// callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*ChatSession
	history  []*HistoryRecord
	users    map[string]*User
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*ChatSession),
		users:    make(map[string]*User),
		now:      time.Now,
	}
}

func (m *Memory) CreateSession(_ context.Context, ownerID, title string) (*ChatSession, error) {
	if title == "" {
		title = DefaultSessionTitle
	}
	now := m.now().UTC()
	s := &ChatSession{
		ID:          newID(),
		OwnerUserID: ownerID,
		Title:       title,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return copySession(s), nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (m *Memory) AppendTurn(_ context.Context, id string, role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	now := m.now().UTC()
	s.Turns = append(s.Turns, ChatTurn{Role: role, Content: content, Timestamp: now})
	s.UpdatedAt = now
	return nil
}

func (m *Memory) RenameSession(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	s.Title = title
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) ListSessionsForOwner(_ context.Context, ownerID string) ([]*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ChatSession, 0)
	for _, s := range m.sessions {
		if s.OwnerUserID == ownerID {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *Memory) AppendRecord(_ context.Context, record *HistoryRecord) error {
	if record.ID == "" {
		record.ID = newID()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = m.now().UTC()
	}
	rec := *record

	m.mu.Lock()
	m.history = append(m.history, &rec)
	m.mu.Unlock()
	return nil
}

// ListAll returns records newest first.
func (m *Memory) ListAll(_ context.Context) ([]*HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*HistoryRecord, 0, len(m.history))
	for i := len(m.history) - 1; i >= 0; i-- {
		rec := *m.history[i]
		out = append(out, &rec)
	}
	return out, nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.history {
		if r.ID == id {
			rec := *r
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateUser(_ context.Context, user *User) error {
	key := strings.ToLower(user.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.ToLower(u.Email) == key {
			return fmt.Errorf("user %s: %w", user.Email, errors.ErrConflict)
		}
	}
	if user.ID == "" {
		user.ID = newID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now().UTC()
	}
	m.users[user.ID] = copyUser(user)
	return nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*User, error) {
	key := strings.ToLower(email)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.ToLower(u.Email) == key {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (m *Memory) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if u, ok := m.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func copySession(s *ChatSession) *ChatSession {
	out := *s
	out.Turns = append([]ChatTurn(nil), s.Turns...)
	return &out
}

func copyUser(u *User) *User {
	out := *u
	if u.Settings != nil {
		out.Settings = make(map[string]string, len(u.Settings))
		for k, v := range u.Settings {
			out.Settings[k] = v
		}
	}
	return &out
}
