// Package ledgertest provides in-process ledgers and deterministic signers for tests.
package ledgertest

import (
	"context"
	"sync"
	"testing"

	"xdao.co/imagevault/keys"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/ledger/contract"
)

// Signer returns a deterministic ed25519 signer whose seed is n repeated.
func Signer(t testing.TB, n byte) keys.Signer {
	t.Helper()
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = n
	}
	s, err := keys.NewSigner(keys.Ed25519, seed)
	if err != nil {
		t.Fatalf("ledgertest: NewSigner: %v", err)
	}
	return s
}

// NewEngine returns a reference contract over in-memory state.
func NewEngine(t testing.TB) *contract.Engine {
	t.Helper()
	e, err := contract.New(context.Background(), contract.NewMemState())
	if err != nil {
		t.Fatalf("ledgertest: contract.New: %v", err)
	}
	return e
}

// Backend wraps a ledger.Backend, counting traffic and injecting failures.
type Backend struct {
	Inner ledger.Backend

	mu          sync.Mutex
	calls       int
	transacts   int
	callErr     error
	transactErr error
	callFails   int
}

var _ ledger.Backend = (*Backend)(nil)

// Wrap returns a counting Backend around inner.
func Wrap(inner ledger.Backend) *Backend { return &Backend{Inner: inner} }

// FailCalls makes every Call return err until cleared with nil.
func (b *Backend) FailCalls(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callErr, b.callFails = err, -1
}

// FailNextCalls makes the next n Calls return err.
func (b *Backend) FailNextCalls(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callErr, b.callFails = err, n
}

// FailTransacts makes every Transact return err until cleared with nil.
func (b *Backend) FailTransacts(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transactErr = err
}

// Counts returns the number of Calls and Transacts seen.
func (b *Backend) Counts() (calls, transacts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, b.transacts
}

func (b *Backend) Call(ctx context.Context, env ledger.Envelope) (ledger.Rows, error) {
	b.mu.Lock()
	b.calls++
	err := b.callErr
	switch {
	case err == nil:
	case b.callFails > 0:
		b.callFails--
		if b.callFails == 0 {
			b.callErr = nil
		}
	case b.callFails == 0:
		err = nil
	}
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.Inner.Call(ctx, env)
}

func (b *Backend) Transact(ctx context.Context, env ledger.Envelope) (ledger.Receipt, error) {
	b.mu.Lock()
	b.transacts++
	err := b.transactErr
	b.mu.Unlock()
	if err != nil {
		return ledger.Receipt{}, err
	}
	return b.Inner.Transact(ctx, env)
}
