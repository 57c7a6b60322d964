package contract

import (
	"context"
	"sync"

	"xdao.co/imagevault/account"
)

// Record is one stored file entry.
type Record struct {
	Name        string
	Description string
	URI         string
}

// Grant is one entry in an owner's access list.
type Grant struct {
	User    account.Account
	Allowed bool
}

// State is the contract's storage. Engine serializes mutations, so
// implementations only need to make each method atomic.
type State interface {
	// Height returns the block number of the last committed transaction.
	Height(ctx context.Context) (uint64, error)
	Records(ctx context.Context, owner account.Account) ([]Record, error)
	// Access returns owner's access list in insertion order.
	Access(ctx context.Context, owner account.Account) ([]Grant, error)
	AppendRecord(ctx context.Context, block uint64, owner account.Account, rec Record) error
	// SetAccess flips an existing entry, or appends one when allowed is true.
	// Revoking an absent entry leaves the list unchanged. Height advances either way.
	SetAccess(ctx context.Context, block uint64, owner, user account.Account, allowed bool) error
	Close() error
}

// MemState is an in-memory State.
type MemState struct {
	mu      sync.RWMutex
	height  uint64
	records map[account.Account][]Record
	access  map[account.Account][]Grant
}

var _ State = (*MemState)(nil)

func NewMemState() *MemState {
	return &MemState{
		records: map[account.Account][]Record{},
		access:  map[account.Account][]Grant{},
	}
}

func (m *MemState) Height(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height, nil
}

func (m *MemState) Records(_ context.Context, owner account.Account) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record{}, m.records[owner]...), nil
}

func (m *MemState) Access(_ context.Context, owner account.Account) ([]Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Grant{}, m.access[owner]...), nil
}

func (m *MemState) AppendRecord(_ context.Context, block uint64, owner account.Account, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[owner] = append(m.records[owner], rec)
	m.height = block
	return nil
}

func (m *MemState) SetAccess(_ context.Context, block uint64, owner, user account.Account, allowed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = block
	list := m.access[owner]
	for i := range list {
		if list[i].User == user {
			list[i].Allowed = allowed
			return nil
		}
	}
	if allowed {
		m.access[owner] = append(list, Grant{User: user, Allowed: true})
	}
	return nil
}

func (m *MemState) Close() error { return nil }
