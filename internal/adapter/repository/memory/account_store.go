package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

var (
	_ usecase.AccountStore      = (*AccountStore)(nil)
	_ usecase.AccountRepository = (*AccountStore)(nil)
	_ usecase.AccountGroup      = (*accountGroup)(nil)
)

// entry pairs an account with its lock. The lock is a one-slot channel so
// that waiting on it can be abandoned when a context ends.
type entry struct {
	lock    chan struct{}
	account *domain.Account
}

// AccountStore keeps accounts in memory with one lock per account.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*entry
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*entry),
	}
}

// Create adds a new account.
func (s *AccountStore) Create(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountExists, account.ID)
	}

	s.accounts[account.ID] = &entry{
		lock:    make(chan struct{}, 1),
		account: account.Clone(),
	}
	return nil
}

// GetByID returns the last committed state of an account.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	return e.account.Clone(), nil
}

// List returns accounts ordered by id.
func (s *AccountStore) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return []*domain.Account{}, nil
	}
	ids = ids[offset:]
	if limit < len(ids) {
		ids = ids[:limit]
	}

	accounts := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, s.accounts[id].account.Clone())
	}
	return accounts, nil
}

// Acquire locks every account in ids in ascending id order.
func (s *AccountStore) Acquire(ctx context.Context, ids []string) (usecase.AccountGroup, error) {
	ids = domain.CanonicalIDs(ids)
	if len(ids) == 0 {
		return nil, domain.NewValidationError("account_id", "no accounts to lock")
	}

	// Accounts are never deleted, so existence can be checked before locking.
	entries := make(map[string]*entry, len(ids))
	s.mu.RLock()
	for _, id := range ids {
		e, ok := s.accounts[id]
		if !ok {
			s.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
		entries[id] = e
	}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, waitError(err, ids[0])
	}

	held := make([]*entry, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		select {
		case e.lock <- struct{}{}:
			held = append(held, e)
		case <-ctx.Done():
			release(held)
			return nil, waitError(ctx.Err(), id)
		}
	}

	return &accountGroup{
		store:   s,
		ids:     ids,
		entries: entries,
		held:    held,
		staged:  make(map[string]*domain.Account, len(ids)),
	}, nil
}

func waitError(err error, id string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: waiting for account %s", domain.ErrBusy, id)
	}
	return err
}

func release(held []*entry) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i].lock
	}
}

// accountGroup is not safe for concurrent use.
type accountGroup struct {
	store   *AccountStore
	ids     []string
	entries map[string]*entry
	held    []*entry
	staged  map[string]*domain.Account
	done    bool
}

// Get returns the staged state of id, or its committed state if nothing is staged.
func (g *accountGroup) Get(id string) (*domain.Account, error) {
	if g.done {
		return nil, domain.ErrGroupDone
	}

	e, ok := g.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotLocked, id)
	}

	if acc, ok := g.staged[id]; ok {
		return acc.Clone(), nil
	}

	g.store.mu.RLock()
	defer g.store.mu.RUnlock()
	return e.account.Clone(), nil
}

// Put stages account for commit.
func (g *accountGroup) Put(account *domain.Account) error {
	if g.done {
		return domain.ErrGroupDone
	}
	if _, ok := g.entries[account.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotLocked, account.ID)
	}
	g.staged[account.ID] = account.Clone()
	return nil
}

// Commit publishes every staged account at once and releases the locks.
func (g *accountGroup) Commit(ctx context.Context) error {
	if g.done {
		return domain.ErrGroupDone
	}
	defer g.finish()

	for id, acc := range g.staged {
		if acc.Balance.IsNegative() {
			return domain.NewStoreError("commit", fmt.Errorf("account %s balance %s violates non-negative constraint", id, acc.Balance))
		}
	}

	g.store.mu.Lock()
	for id, acc := range g.staged {
		g.entries[id].account = acc
	}
	g.store.mu.Unlock()

	return nil
}

// Abort drops staged state and releases the locks. It is a no-op once the
// group has finished.
func (g *accountGroup) Abort(ctx context.Context) error {
	if g.done {
		return nil
	}
	g.finish()
	return nil
}

func (g *accountGroup) finish() {
	g.done = true
	g.staged = nil
	release(g.held)
	g.held = nil
}
