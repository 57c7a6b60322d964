// Package access keeps the session account's grant list in sync with the ledger.
//
// The ledger enforces access; the list held here is a read model for display.
// It is replaced wholesale by each successful fetch and never patched locally.
package access

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/session"
)

// Sync manages grants owned by the session account.
type Sync struct {
	session *session.Session
	logger  *zap.Logger

	mu     sync.Mutex
	grants []model.AccessGrant
	synced bool
	stale  bool
}

type Option func(*Sync)

func WithLogger(l *zap.Logger) Option {
	return func(s *Sync) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(s *session.Session, opts ...Option) *Sync {
	a := &Sync{session: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("access")
	return a
}

// ListGrants fetches the access list in ledger order and replaces the read model.
func (a *Sync) ListGrants(ctx context.Context) ([]model.AccessGrant, error) {
	if err := a.session.Err(); err != nil {
		return nil, err
	}
	rows, err := a.session.Contract().ShareAccess(ctx)
	if err != nil {
		return nil, ledger.CallError(err, ledger.MethodShareAccess)
	}
	grants, err := model.CoerceGrants(rows)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// A session invalidated while the call was in flight must not refill the cache.
	if err := a.session.Err(); err != nil {
		return nil, err
	}
	a.grants, a.synced, a.stale = grants, true, false
	return clone(grants), nil
}

// Grants returns the last fetched list. fresh is false before the first fetch,
// after a confirmed mutation whose refresh failed, and once the session is
// invalidated, when the list is also empty.
func (a *Sync) Grants() (grants []model.AccessGrant, fresh bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.Err() != nil {
		return nil, false
	}
	return clone(a.grants), a.synced && !a.stale
}

// Reset drops the read model.
func (a *Sync) Reset() {
	a.mu.Lock()
	a.grants, a.synced, a.stale = nil, false, false
	a.mu.Unlock()
}

// Grant gives grantee read access to the session account's records.
func (a *Sync) Grant(ctx context.Context, grantee string) error {
	return a.mutate(ctx, ledger.MethodAllow, grantee)
}

// Revoke withdraws grantee's read access. The ledger keeps the entry, inactive.
func (a *Sync) Revoke(ctx context.Context, grantee string) error {
	return a.mutate(ctx, ledger.MethodDisAllow, grantee)
}

func (a *Sync) mutate(ctx context.Context, method, grantee string) error {
	acct, err := account.Parse(grantee)
	if err != nil {
		return model.MarkWrap(err, model.ErrInvalidInput, "access: grantee")
	}
	if err := a.session.Err(); err != nil {
		return err
	}

	var receipt ledger.Receipt
	if method == ledger.MethodAllow {
		receipt, err = a.session.Contract().Allow(ctx, acct)
	} else {
		receipt, err = a.session.Contract().DisAllow(ctx, acct)
	}
	if err != nil {
		return ledger.TransactError(err, method)
	}
	a.logger.Info("access changed",
		zap.String("method", method),
		zap.Stringer("owner", a.session.Account()),
		zap.Stringer("grantee", acct),
		zap.String("tx", receipt.TxID),
		zap.Uint64("block", receipt.Block),
	)

	// The mutation is confirmed; a failed refresh only leaves the read model stale.
	if _, err := a.ListGrants(ctx); err != nil {
		a.mu.Lock()
		a.stale = true
		a.mu.Unlock()
		a.logger.Warn("refresh after confirmed change failed", zap.String("method", method), zap.Error(err))
	}
	return nil
}

func clone(g []model.AccessGrant) []model.AccessGrant {
	if g == nil {
		return nil
	}
	return append([]model.AccessGrant(nil), g...)
}
