package sqlstate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/ledger/contract"
	"xdao.co/imagevault/ledger/ledgertest"
	"xdao.co/imagevault/model"
)

func openTemp(t *testing.T, path string) *State {
	t.Helper()
	s, err := Open(Config{Path: path, PoolSize: 2})
	require.NoError(t, err)
	return s
}

func TestSQLState_ContractSuite(t *testing.T) {
	ledgertest.RunStateSuite(t, func(t *testing.T) contract.State {
		return openTemp(t, filepath.Join(t.TempDir(), "ledger.db"))
	})
}

func TestSQLState_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	alice := ledgertest.Signer(t, 0xA)
	bob := ledgertest.Signer(t, 0xB)

	e, err := contract.New(ctx, openTemp(t, path))
	require.NoError(t, err)
	c := ledger.Bind(e, alice)
	_, err = c.Add(ctx, alice.Account(), "cat.png", "a cat", "ipfs://cat")
	require.NoError(t, err)
	_, err = c.Allow(ctx, bob.Account())
	require.NoError(t, err)
	last, err := c.DisAllow(ctx, ledgertest.Signer(t, 0xC).Account())
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e, err = contract.New(ctx, openTemp(t, path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.Equal(t, last.Block, e.Height(), "no-op revocations still advance the height")

	rows, err := ledger.Bind(e, bob).Display(ctx, alice.Account())
	require.NoError(t, err)
	recs, err := model.CoerceRecords(alice.Account(), rows)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "cat.png", recs[0].Name)
}
