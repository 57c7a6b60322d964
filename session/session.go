// Package session binds the process to one account.
//
// A Session is immutable once bound. When the provider reports that the active
// identity changed the session is invalidated as a whole; it is never patched to
// point at a different account. Callers discard everything they derived from it
// and bind again.
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/keys"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/provider"
)

// ErrNoProvider is returned by Bind when no identity provider is configured.
var ErrNoProvider = errors.Mark(errors.New("session: no identity provider"), model.ErrProviderUnavailable)

// Session is one account's authenticated call handle.
type Session struct {
	id       string
	account  account.Account
	signer   keys.Signer
	contract *ledger.Contract

	once        sync.Once
	invalidated chan struct{}
	cancel      context.CancelFunc
}

// ID is unique per bind.
func (s *Session) ID() string { return s.id }

func (s *Session) Account() account.Account { return s.account }

func (s *Session) Signer() keys.Signer { return s.signer }

// Contract is the ledger call handle signing as Account.
func (s *Session) Contract() *ledger.Contract { return s.contract }

// Invalidated is closed once the session must no longer be used.
func (s *Session) Invalidated() <-chan struct{} { return s.invalidated }

// Err returns model.ErrSessionInvalidated after invalidation, nil before.
func (s *Session) Err() error {
	select {
	case <-s.invalidated:
		return model.ErrSessionInvalidated
	default:
		return nil
	}
}

// Close invalidates the session and stops watching the provider.
func (s *Session) Close() { s.invalidate() }

func (s *Session) invalidate() {
	s.once.Do(func() {
		close(s.invalidated)
		s.cancel()
	})
}

// Binder creates sessions.
type Binder struct {
	provider provider.Provider
	backend  ledger.Backend
	logger   *zap.Logger
}

type Option func(*Binder)

func WithLogger(l *zap.Logger) Option {
	return func(b *Binder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBinder returns a Binder. A nil provider makes every Bind fail with ErrNoProvider.
func NewBinder(p provider.Provider, backend ledger.Backend, opts ...Option) *Binder {
	b := &Binder{provider: p, backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("session")
	return b
}

// Bind requests the active account and a signer for it.
//
// A failed Bind leaves nothing behind; retrying is a fresh Bind.
func (b *Binder) Bind(ctx context.Context) (*Session, error) {
	if b.provider == nil {
		return nil, ErrNoProvider
	}
	if b.backend == nil {
		return nil, errors.New("session: missing ledger backend")
	}

	// Subscribe before asking so a switch during the handshake is not missed.
	watchCtx, cancel := context.WithCancel(context.Background())
	changes := b.provider.AccountsChanged(watchCtx)

	accounts, err := b.provider.RequestAccounts(ctx)
	if err != nil {
		cancel()
		return nil, providerError(err, "request accounts")
	}
	if len(accounts) == 0 {
		cancel()
		return nil, model.Markf(model.ErrProviderUnavailable, "session: provider exposed no accounts")
	}
	signer, err := b.provider.Signer(ctx)
	if err != nil {
		cancel()
		return nil, providerError(err, "get signer")
	}
	if !signer.Account().Equal(accounts[0]) {
		cancel()
		return nil, model.Markf(model.ErrProviderUnavailable,
			"session: active account changed during bind (%s, then %s)", accounts[0], signer.Account())
	}

	s := &Session{
		id:          uuid.NewString(),
		account:     signer.Account(),
		signer:      signer,
		contract:    ledger.Bind(b.backend, signer),
		invalidated: make(chan struct{}),
		cancel:      cancel,
	}
	go b.watch(s, changes)

	b.logger.Info("bound",
		zap.String("session", s.id),
		zap.Stringer("account", s.account),
	)
	return s, nil
}

func (b *Binder) watch(s *Session, changes <-chan []account.Account) {
	select {
	case accounts, ok := <-changes:
		if !ok {
			// The provider stopped watching. The session stays usable until
			// the caller closes it.
			return
		}
		b.logger.Info("accounts changed, invalidating session",
			zap.String("session", s.id),
			zap.Stringer("account", s.account),
			zap.Int("accounts", len(accounts)),
		)
		s.invalidate()
	case <-s.invalidated:
	}
}

// providerError keeps a provider's own mark and defaults to ProviderUnavailable.
func providerError(err error, op string) error {
	err = errors.Wrapf(err, "session: %s", op)
	if errors.Is(err, model.ErrUserRejected) || errors.Is(err, model.ErrProviderUnavailable) {
		return err
	}
	return errors.Mark(err, model.ErrProviderUnavailable)
}
