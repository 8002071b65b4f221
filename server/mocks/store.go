package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/karimd18/project-C-case-study/store"
)

// FlakyStore wraps a Repository and fails the operations named in Fail.
// Operation names are the method names, e.g. "AppendRecord".
type FlakyStore struct {
	store.Repository

	mu   sync.Mutex
	fail map[string]bool
}

var _ store.Repository = (*FlakyStore)(nil)

// NewFlakyStore wraps repo. The listed operations fail from the start.
func NewFlakyStore(repo store.Repository, failing ...string) *FlakyStore {
	f := &FlakyStore{Repository: repo, fail: make(map[string]bool)}
	for _, op := range failing {
		f.fail[op] = true
	}
	return f
}

// Fail toggles failure of op.
func (f *FlakyStore) Fail(op string, failing bool) {
	f.mu.Lock()
	f.fail[op] = failing
	f.mu.Unlock()
}

func (f *FlakyStore) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[op] {
		return fmt.Errorf("injected %s failure", op)
	}
	return nil
}

func (f *FlakyStore) CreateSession(ctx context.Context, ownerID, title string) (*store.ChatSession, error) {
	if err := f.check("CreateSession"); err != nil {
		return nil, err
	}
	return f.Repository.CreateSession(ctx, ownerID, title)
}

func (f *FlakyStore) GetSession(ctx context.Context, id string) (*store.ChatSession, error) {
	if err := f.check("GetSession"); err != nil {
		return nil, err
	}
	return f.Repository.GetSession(ctx, id)
}

func (f *FlakyStore) AppendTurn(ctx context.Context, id string, role store.Role, content string) error {
	if err := f.check("AppendTurn"); err != nil {
		return err
	}
	return f.Repository.AppendTurn(ctx, id, role, content)
}

func (f *FlakyStore) RenameSession(ctx context.Context, id, title string) error {
	if err := f.check("RenameSession"); err != nil {
		return err
	}
	return f.Repository.RenameSession(ctx, id, title)
}

func (f *FlakyStore) AppendRecord(ctx context.Context, record *store.HistoryRecord) error {
	if err := f.check("AppendRecord"); err != nil {
		return err
	}
	return f.Repository.AppendRecord(ctx, record)
}
