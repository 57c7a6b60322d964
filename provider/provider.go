// Package provider defines the identity and signing capability a session is bound
// through.
//
// A Provider owns the user's keys. The core never sees key material; it asks for
// the active accounts, obtains a Signer for the first one, and listens for the
// provider to report that the active identity changed.
package provider

import (
	"context"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/keys"
)

// Provider is an external identity/signing capability.
//
// Errors returned by RequestAccounts and Signer should be marked with
// model.ErrProviderUnavailable or model.ErrUserRejected so callers can tell a
// missing capability from an explicit decline.
type Provider interface {
	// RequestAccounts asks for the accounts the user exposes, active account first.
	RequestAccounts(ctx context.Context) ([]account.Account, error)

	// Signer returns a signer for the active account.
	Signer(ctx context.Context) (keys.Signer, error)

	// AccountsChanged delivers the new account list each time the active identity
	// changes. The channel is closed when ctx is done or the provider can no
	// longer watch for changes.
	AccountsChanged(ctx context.Context) <-chan []account.Account
}
