package keyring

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/keys"
	"xdao.co/imagevault/model"
)

func newStore(t *testing.T, names ...string) (*keys.KeyStore, map[string]account.Account) {
	t.Helper()
	ks, err := keys.CreateKeyStore(t.TempDir())
	require.NoError(t, err)
	accts := map[string]account.Account{}
	for i, name := range names {
		acct, _, err := ks.InitializeRootKey(name, keys.Ed25519, bytes.Repeat([]byte{byte(i + 1)}, keys.SeedSize), false)
		require.NoError(t, err)
		accts[name] = acct
	}
	return ks, accts
}

func TestKeyringUnavailable(t *testing.T) {
	ctx := context.Background()

	missing := &keys.KeyStore{Directory: filepath.Join(t.TempDir(), "nope")}
	k, err := New(Options{Store: missing})
	require.NoError(t, err)
	_, err = k.RequestAccounts(ctx)
	require.True(t, errors.Is(err, model.ErrProviderUnavailable), "%v", err)

	ks, _ := newStore(t, "alice")
	k, err = New(Options{Store: ks})
	require.NoError(t, err)
	_, err = k.Signer(ctx)
	require.True(t, errors.Is(err, model.ErrProviderUnavailable), "no active account: %v", err)
}

func TestKeyringActiveAccount(t *testing.T) {
	ctx := context.Background()
	ks, accts := newStore(t, "alice")
	require.NoError(t, ks.SetActive("alice"))

	k, err := New(Options{Store: ks})
	require.NoError(t, err)
	got, err := k.RequestAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []account.Account{accts["alice"]}, got)

	signer, err := k.Signer(ctx)
	require.NoError(t, err)
	require.Equal(t, accts["alice"], signer.Account())
}

func TestKeyringApprovalHooks(t *testing.T) {
	ctx := context.Background()
	ks, _ := newStore(t, "alice")
	require.NoError(t, ks.SetActive("alice"))

	k, err := New(Options{
		Store:   ks,
		Connect: func(context.Context, account.Account) bool { return false },
	})
	require.NoError(t, err)
	_, err = k.RequestAccounts(ctx)
	require.True(t, errors.Is(err, model.ErrUserRejected), "%v", err)

	var prompts int
	k, err = New(Options{
		Store: ks,
		Sign: func(_ context.Context, _ account.Account, msg []byte) bool {
			prompts++
			return !bytes.Equal(msg, []byte("no"))
		},
	})
	require.NoError(t, err)
	signer, err := k.Signer(ctx)
	require.NoError(t, err)

	sig, err := signer.Sign(ctx, []byte("yes"))
	require.NoError(t, err)
	require.True(t, keys.Verify(signer.Scheme(), signer.PublicKey(), []byte("yes"), sig))

	_, err = signer.Sign(ctx, []byte("no"))
	require.True(t, errors.Is(err, model.ErrUserRejected), "%v", err)
	require.Equal(t, 2, prompts)
}

func TestKeyringAccountsChanged(t *testing.T) {
	ks, accts := newStore(t, "alice", "bob")
	require.NoError(t, ks.SetActive("alice"))

	k, err := New(Options{Store: ks})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes := k.AccountsChanged(ctx)

	// Re-selecting the same account is not a change.
	require.NoError(t, ks.SetActive("alice"))
	require.NoError(t, ks.SetActive("bob"))

	select {
	case got := <-changes:
		require.Equal(t, []account.Account{accts["bob"]}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for accountsChanged")
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestKeyringAccountsChangedWithoutStore(t *testing.T) {
	k, err := New(Options{Store: &keys.KeyStore{Directory: filepath.Join(t.TempDir(), "nope")}})
	require.NoError(t, err)
	_, ok := <-k.AccountsChanged(context.Background())
	require.False(t, ok)
}
