// Package keyring implements provider.Provider over a local keys.KeyStore.
//
// The active account is the one named by the store's active marker. Switching it
// (for example with "vault keys use") is observed through an fsnotify watch on the
// store directory and reported as an accountsChanged notification.
package keyring

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/keys"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/provider"
)

// ConnectFunc approves exposing acct to the caller. Returning false declines.
type ConnectFunc func(ctx context.Context, acct account.Account) bool

// SignFunc approves one signature by acct over message. Returning false declines.
type SignFunc func(ctx context.Context, acct account.Account, message []byte) bool

type Options struct {
	Store *keys.KeyStore

	// Connect and Sign are optional approval hooks; nil approves.
	Connect ConnectFunc
	Sign    SignFunc

	Logger *zap.Logger
}

// Keyring is a provider.Provider backed by a key store.
type Keyring struct {
	store   *keys.KeyStore
	connect ConnectFunc
	sign    SignFunc
	logger  *zap.Logger
}

var _ provider.Provider = (*Keyring)(nil)

func New(opts Options) (*Keyring, error) {
	if opts.Store == nil {
		return nil, errors.New("keyring: missing key store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keyring{
		store:   opts.Store,
		connect: opts.Connect,
		sign:    opts.Sign,
		logger:  logger.Named("keyring"),
	}, nil
}

func (k *Keyring) RequestAccounts(ctx context.Context) ([]account.Account, error) {
	signer, err := k.active()
	if err != nil {
		return nil, err
	}
	acct := signer.Account()
	if k.connect != nil && !k.connect(ctx, acct) {
		return nil, errors.Mark(errors.Newf("keyring: connection to %s declined", acct), model.ErrUserRejected)
	}
	return []account.Account{acct}, nil
}

func (k *Keyring) Signer(ctx context.Context) (keys.Signer, error) {
	signer, err := k.active()
	if err != nil {
		return nil, err
	}
	if k.sign == nil {
		return signer, nil
	}
	return &approvingSigner{Signer: signer, approve: k.sign}, nil
}

func (k *Keyring) active() (keys.Signer, error) {
	if _, err := os.Stat(k.store.Directory); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "keyring: key store %s", k.store.Directory), model.ErrProviderUnavailable)
	}
	signer, err := k.store.ActiveSigner()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "keyring"), model.ErrProviderUnavailable)
	}
	return signer, nil
}

// current returns the active account, or the zero account when there is none.
func (k *Keyring) current() account.Account {
	signer, err := k.store.ActiveSigner()
	if err != nil {
		return ""
	}
	return signer.Account()
}

func (k *Keyring) AccountsChanged(ctx context.Context) <-chan []account.Account {
	out := make(chan []account.Account, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		k.logger.Warn("cannot watch key store", zap.Error(err))
		close(out)
		return out
	}
	if err := watcher.Add(k.store.Directory); err != nil {
		k.logger.Warn("cannot watch key store", zap.String("dir", k.store.Directory), zap.Error(err))
		_ = watcher.Close()
		close(out)
		return out
	}

	last := k.current()
	activePath := filepath.Clean(k.store.ActivePath())

	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != activePath {
					continue
				}
				if !(event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Write) ||
					event.Has(fsnotify.Remove) ||
					event.Has(fsnotify.Rename)) {
					continue
				}
				next := k.current()
				if next == last {
					continue
				}
				k.logger.Info("active account changed",
					zap.Stringer("from", last),
					zap.Stringer("to", next),
				)
				last = next
				var accounts []account.Account
				if !next.IsZero() {
					accounts = []account.Account{next}
				}
				select {
				case out <- accounts:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				k.logger.Warn("key store watch error", zap.Error(err))

			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// approvingSigner asks for approval before every signature.
type approvingSigner struct {
	keys.Signer
	approve SignFunc
}

func (s *approvingSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if !s.approve(ctx, s.Account(), message) {
		return nil, errors.Mark(errors.Newf("keyring: signature by %s declined", s.Account()), model.ErrUserRejected)
	}
	return s.Signer.Sign(ctx, message)
}
