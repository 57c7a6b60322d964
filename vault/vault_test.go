package vault

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/ledger/ledgertest"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/provider/providertest"
	"xdao.co/imagevault/storage/bundle"
	"xdao.co/imagevault/storage/testkit"
)

func open(t *testing.T, p *providertest.Provider) *Client {
	t.Helper()
	opts := Options{Ledger: ledgertest.NewEngine(t), Store: testkit.NewMemCAS()}
	if p != nil {
		opts.Provider = p
	}
	c, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, c *Client, acct account.Account) *Unit {
	t.Helper()
	var u *Unit
	require.Eventually(t, func() bool {
		cur, err := c.Current()
		if err != nil || !cur.Account().Equal(acct) {
			return false
		}
		u = cur
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return u
}

func TestOpenWithoutProviderIsLoading(t *testing.T) {
	c := open(t, nil)
	require.Equal(t, StateLoading, c.State())
	_, err := c.Current()
	require.True(t, errors.Is(err, ErrLoading))
	require.Equal(t, model.CodeProviderUnavailable, model.KindOf(err))
}

func TestLoadingUntilProviderReportsAccount(t *testing.T) {
	p := providertest.New(nil)
	c := open(t, p)
	require.Equal(t, StateLoading, c.State())
	require.GreaterOrEqual(t, p.Subscribers(), 1, "subscribed before Open returns")

	// A single report right after Open is enough: it cannot fall between the
	// failed first bind and the subscription.
	alice := ledgertest.Signer(t, 0xA)
	p.Switch(alice)
	waitFor(t, c, alice.Account())
}

func TestSwitchAfterFailedRebindIsNotLost(t *testing.T) {
	alice := ledgertest.Signer(t, 0xA)
	bob := ledgertest.Signer(t, 0xB)
	p := providertest.New(alice)
	c := open(t, p)
	waitFor(t, c, alice.Account())

	p.Switch(nil)
	require.Eventually(t, func() bool { return c.State() == StateLoading }, 5*time.Second, 10*time.Millisecond)
	p.Switch(bob)
	waitFor(t, c, bob.Account())
}

func TestRejectedConnectIsRetriedExplicitly(t *testing.T) {
	ctx := context.Background()
	p := providertest.New(ledgertest.Signer(t, 0xA))
	p.SetReject(true)
	c := open(t, p)

	_, err := c.Current()
	require.Equal(t, model.CodeUserRejected, model.KindOf(err))
	require.True(t, errors.Is(err, ErrLoading))

	p.SetReject(false)
	u, err := c.Connect(ctx)
	require.NoError(t, err)
	again, err := c.Connect(ctx)
	require.NoError(t, err)
	require.Same(t, u, again, "connecting while bound keeps the unit")
}

func TestAccountSwitchNeverLeaksRecords(t *testing.T) {
	ctx := context.Background()
	alice := ledgertest.Signer(t, 0xA)
	bob := ledgertest.Signer(t, 0xB)
	p := providertest.New(alice)
	c := open(t, p)

	first := waitFor(t, c, alice.Account())
	_, err := first.Publish(ctx, "cat.png", "a cat", []byte("alice's cat"), "image/png")
	require.NoError(t, err)
	_, fresh := first.CachedFiles()
	require.False(t, fresh, "publish makes the cached list stale")
	recs, err := first.Files(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NoError(t, first.Grant(ctx, bob.Account().String()))
	before, _ := first.Grants()
	require.Len(t, before, 1)

	p.Switch(bob)
	second := waitFor(t, c, bob.Account())
	require.NotSame(t, first, second)

	require.True(t, errors.Is(first.Err(), model.ErrSessionInvalidated))
	_, err = first.Files(ctx)
	require.True(t, errors.Is(err, model.ErrSessionInvalidated), "a discarded unit cannot query")
	cached, fresh := first.CachedFiles()
	require.Empty(t, cached, "discarding drops cached records")
	require.False(t, fresh)
	oldGrants, fresh := first.Grants()
	require.Empty(t, oldGrants, "discarding drops the cached access list")
	require.False(t, fresh)

	cached, fresh = second.CachedFiles()
	require.Empty(t, cached)
	require.False(t, fresh)
	grants, _ := second.Grants()
	require.Empty(t, grants)

	mine, err := second.Files(ctx)
	require.NoError(t, err)
	require.Empty(t, mine, "bob's own gallery never shows alice's records")

	shared, err := second.Search(ctx, alice.Account().String())
	require.NoError(t, err)
	require.Len(t, shared, 1)
	require.Equal(t, alice.Account(), shared[0].Owner)
}

func TestSearchWithoutGrantIsDenied(t *testing.T) {
	ctx := context.Background()
	c := open(t, providertest.New(ledgertest.Signer(t, 0xB)))
	u, err := c.Current()
	require.NoError(t, err)
	_, err = u.Search(ctx, ledgertest.Signer(t, 0xA).Account().String())
	require.Equal(t, model.CodeAccessDenied, model.KindOf(err))
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	alice := ledgertest.Signer(t, 0xA)
	c := open(t, providertest.New(alice))
	u, err := c.Current()
	require.NoError(t, err)

	rec, err := u.Publish(ctx, "cat.png", "a cat", []byte("alice's cat"), "image/png")
	require.NoError(t, err)
	data, err := u.Download(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, "alice's cat", string(data))

	var buf bytes.Buffer
	require.NoError(t, u.Export(ctx, &buf))

	idx, err := bundle.Import(ctx, &buf, testkit.NewMemCAS(), bundle.ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, alice.Account().String(), idx.Owner)
	require.Len(t, idx.Records, 1)
	require.Equal(t, "cat.png", idx.Records[0].Name)
}

func TestClose(t *testing.T) {
	c := open(t, providertest.New(ledgertest.Signer(t, 0xA)))
	u, err := c.Current()
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Equal(t, StateClosed, c.State())
	require.True(t, errors.Is(u.Err(), model.ErrSessionInvalidated))
	_, err = c.Connect(context.Background())
	require.True(t, errors.Is(err, ErrClosed))
}

func TestImportRepublishesUnderSessionAccount(t *testing.T) {
	ctx := context.Background()
	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte("pixels")...)

	alice := ledgertest.Signer(t, 0xA)
	src, err := open(t, providertest.New(alice)).Current()
	require.NoError(t, err)
	_, err = src.Publish(ctx, "cat.png", "a cat", png, "image/png")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, &buf))

	bob := ledgertest.Signer(t, 0xB)
	dst, err := open(t, providertest.New(bob)).Current()
	require.NoError(t, err)
	recs, err := dst.Import(ctx, &buf, bundle.ImportOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, bob.Account(), recs[0].Owner)

	files, err := dst.Files(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := dst.Download(ctx, files[0])
	require.NoError(t, err)
	require.Equal(t, png, data)

	_, err = dst.Import(ctx, bytes.NewReader([]byte("not a tar")), bundle.ImportOptions{})
	require.True(t, errors.Is(err, model.ErrInvalidInput), "got %v", err)
}
