package access

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/ledger/ledgertest"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/provider/providertest"
	"xdao.co/imagevault/session"
)

func newSync(t *testing.T) (*Sync, *ledgertest.Backend) {
	t.Helper()
	backend := ledgertest.Wrap(ledgertest.NewEngine(t))
	s, err := session.NewBinder(providertest.New(ledgertest.Signer(t, 0xA)), backend).Bind(context.Background())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return New(s), backend
}

func grantee(t *testing.T, n byte) account.Account {
	return ledgertest.Signer(t, n).Account()
}

func TestListGrantsIdempotent(t *testing.T) {
	ctx := context.Background()
	a, _ := newSync(t)

	first, err := a.ListGrants(ctx)
	require.NoError(t, err)
	require.Empty(t, first)

	require.NoError(t, a.Grant(ctx, grantee(t, 0xB).String()))
	require.NoError(t, a.Grant(ctx, grantee(t, 0xC).String()))

	first, err = a.ListGrants(ctx)
	require.NoError(t, err)
	second, err := a.ListGrants(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGrantRevokeRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, _ := newSync(t)
	x := grantee(t, 0xB)

	require.NoError(t, a.Grant(ctx, x.String()))
	grants, fresh := a.Grants()
	require.True(t, fresh)
	require.Equal(t, []model.AccessGrant{{Grantee: x, Active: true}}, grants)

	require.NoError(t, a.Revoke(ctx, x.String()))
	grants, _ = a.Grants()
	require.Equal(t, []model.AccessGrant{{Grantee: x, Active: false}}, grants, "revoke keeps the entry")

	require.NoError(t, a.Grant(ctx, x.String()))
	grants, _ = a.Grants()
	require.Equal(t, []model.AccessGrant{{Grantee: x, Active: true}}, grants, "re-grant reactivates, never duplicates")
}

func TestGrantsKeepLedgerOrder(t *testing.T) {
	ctx := context.Background()
	a, _ := newSync(t)

	order := []account.Account{grantee(t, 0xE), grantee(t, 0xB), grantee(t, 0xD)}
	for _, g := range order {
		require.NoError(t, a.Grant(ctx, g.String()))
	}
	grants, err := a.ListGrants(ctx)
	require.NoError(t, err)
	got := make([]account.Account, 0, len(grants))
	for _, g := range grants {
		got = append(got, g.Grantee)
	}
	require.Equal(t, order, got)
}

func TestRevokeUnknownGranteeAddsNothing(t *testing.T) {
	ctx := context.Background()
	a, _ := newSync(t)
	require.NoError(t, a.Revoke(ctx, grantee(t, 0xB).String()))
	grants, err := a.ListGrants(ctx)
	require.NoError(t, err)
	require.Empty(t, grants)
}

func TestInvalidGranteeMakesNoCall(t *testing.T) {
	ctx := context.Background()
	a, backend := newSync(t)

	for _, bad := range []string{"", "0xBBB", "not an address", "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"} {
		require.Equal(t, model.CodeInvalidInput, model.KindOf(a.Grant(ctx, bad)), bad)
		require.Equal(t, model.CodeInvalidInput, model.KindOf(a.Revoke(ctx, bad)), bad)
	}
	calls, transacts := backend.Counts()
	require.Zero(t, calls+transacts)
}

func TestRejectedTransactionKeepsReadModel(t *testing.T) {
	ctx := context.Background()
	a, backend := newSync(t)
	x := grantee(t, 0xB)
	require.NoError(t, a.Grant(ctx, x.String()))
	before, _ := a.Grants()

	backend.FailTransacts(errors.New("transaction not confirmed"))
	err := a.Revoke(ctx, x.String())
	require.Equal(t, model.CodeLedgerRejected, model.KindOf(err))
	require.Equal(t, model.AdviceRetry, model.AdviceFor(err))

	after, fresh := a.Grants()
	require.True(t, fresh)
	require.Equal(t, before, after)
}

func TestFailedRefreshMarksStale(t *testing.T) {
	ctx := context.Background()
	a, backend := newSync(t)
	x := grantee(t, 0xB)

	_, err := a.ListGrants(ctx)
	require.NoError(t, err)

	backend.FailNextCalls(1, errors.New("rpc timeout"))
	require.NoError(t, a.Grant(ctx, x.String()), "the grant itself was confirmed")
	grants, fresh := a.Grants()
	require.False(t, fresh)
	require.Empty(t, grants)

	grants, err = a.ListGrants(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.AccessGrant{{Grantee: x, Active: true}}, grants)
	_, fresh = a.Grants()
	require.True(t, fresh)
}

func TestListGrantsUnavailable(t *testing.T) {
	a, backend := newSync(t)
	backend.FailCalls(errors.New("connection refused"))
	_, err := a.ListGrants(context.Background())
	require.Equal(t, model.CodeLedgerUnavailable, model.KindOf(err))
}

// closingBackend invalidates a session during the next Call.
type closingBackend struct {
	ledger.Backend
	close func()
}

func (b *closingBackend) Call(ctx context.Context, env ledger.Envelope) (ledger.Rows, error) {
	rows, err := b.Backend.Call(ctx, env)
	if b.close != nil {
		b.close()
	}
	return rows, err
}

func TestInvalidationDropsReadModel(t *testing.T) {
	ctx := context.Background()
	backend := &closingBackend{Backend: ledgertest.NewEngine(t)}
	s, err := session.NewBinder(providertest.New(ledgertest.Signer(t, 0xA)), backend).Bind(ctx)
	require.NoError(t, err)
	a := New(s)

	require.NoError(t, a.Grant(ctx, grantee(t, 0xB).String()))
	grants, fresh := a.Grants()
	require.Len(t, grants, 1)
	require.True(t, fresh)

	a.Reset()
	grants, fresh = a.Grants()
	require.Empty(t, grants)
	require.False(t, fresh)

	backend.close = s.Close
	_, err = a.ListGrants(ctx)
	require.True(t, errors.Is(err, model.ErrSessionInvalidated), "%v", err)
	grants, fresh = a.Grants()
	require.Empty(t, grants, "a fetch finishing after invalidation is not cached")
	require.False(t, fresh)
}
