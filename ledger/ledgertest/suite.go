package ledgertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/ledger/contract"
	"xdao.co/imagevault/model"
)

// RunStateSuite exercises contract semantics over a fresh State per subtest.
func RunStateSuite(t *testing.T, newState func(t *testing.T) contract.State) {
	ctx := context.Background()

	newContracts := func(t *testing.T) (*contract.Engine, *ledger.Contract, *ledger.Contract, *ledger.Contract) {
		e, err := contract.New(ctx, newState(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = e.Close() })
		return e,
			ledger.Bind(e, Signer(t, 0xA)),
			ledger.Bind(e, Signer(t, 0xB)),
			ledger.Bind(e, Signer(t, 0xC))
	}

	t.Run("AddAndDisplayOwn", func(t *testing.T) {
		_, alice, _, _ := newContracts(t)
		rows, err := alice.Display(ctx, alice.Account())
		require.NoError(t, err)
		require.Empty(t, rows, "an owner with no files sees an empty list, not a revert")

		_, err = alice.Add(ctx, alice.Account(), "cat.png", "a cat", "ipfs://cat")
		require.NoError(t, err)
		_, err = alice.Add(ctx, alice.Account(), "dog.png", "a dog", "ipfs://dog")
		require.NoError(t, err)

		rows, err = alice.Display(ctx, alice.Account())
		require.NoError(t, err)
		recs, err := model.CoerceRecords(alice.Account(), rows)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		require.Equal(t, "cat.png", recs[0].Name)
		require.Equal(t, "ipfs://dog", recs[1].ContentRef)
	})

	t.Run("AddForAnotherOwnerReverts", func(t *testing.T) {
		_, alice, bob, _ := newContracts(t)
		_, err := bob.Add(ctx, alice.Account(), "x", "y", "ipfs://z")
		reason, ok := ledger.RevertReason(err)
		require.True(t, ok, "%v", err)
		require.Equal(t, contract.ReasonNotOwner, reason)
	})

	t.Run("DisplayRequiresGrant", func(t *testing.T) {
		_, alice, bob, carol := newContracts(t)
		_, err := alice.Add(ctx, alice.Account(), "cat.png", "a cat", "ipfs://cat")
		require.NoError(t, err)

		_, err = bob.Display(ctx, alice.Account())
		reason, ok := ledger.RevertReason(err)
		require.True(t, ok)
		require.Equal(t, contract.ReasonNoAccess, reason)

		_, err = alice.Allow(ctx, bob.Account())
		require.NoError(t, err)
		rows, err := bob.Display(ctx, alice.Account())
		require.NoError(t, err)
		require.Len(t, rows, 1)

		_, err = carol.Display(ctx, alice.Account())
		require.True(t, ledger.IsRevert(err), "grants are per viewer")

		_, err = alice.DisAllow(ctx, bob.Account())
		require.NoError(t, err)
		_, err = bob.Display(ctx, alice.Account())
		require.True(t, ledger.IsRevert(err))
	})

	t.Run("AccessListSemantics", func(t *testing.T) {
		_, alice, bob, carol := newContracts(t)

		// Revoking an unknown grantee does not create an entry.
		_, err := alice.DisAllow(ctx, carol.Account())
		require.NoError(t, err)
		rows, err := alice.ShareAccess(ctx)
		require.NoError(t, err)
		require.Empty(t, rows)

		for _, step := range []func() (ledger.Receipt, error){
			func() (ledger.Receipt, error) { return alice.Allow(ctx, bob.Account()) },
			func() (ledger.Receipt, error) { return alice.Allow(ctx, carol.Account()) },
			func() (ledger.Receipt, error) { return alice.DisAllow(ctx, bob.Account()) },
			func() (ledger.Receipt, error) { return alice.Allow(ctx, bob.Account()) },
		} {
			_, err := step()
			require.NoError(t, err)
		}

		rows, err = alice.ShareAccess(ctx)
		require.NoError(t, err)
		grants, err := model.CoerceGrants(rows)
		require.NoError(t, err)
		require.Equal(t, []model.AccessGrant{
			{Grantee: bob.Account(), Active: true},
			{Grantee: carol.Account(), Active: true},
		}, grants, "re-granting flips the existing entry in place")

		rows, err = bob.ShareAccess(ctx)
		require.NoError(t, err)
		require.Empty(t, rows, "access lists are scoped to the caller")
	})

	t.Run("ReceiptsAdvanceBlocks", func(t *testing.T) {
		e, alice, bob, _ := newContracts(t)
		r1, err := alice.Allow(ctx, bob.Account())
		require.NoError(t, err)
		r2, err := alice.DisAllow(ctx, bob.Account())
		require.NoError(t, err)
		require.NotEqual(t, r1.TxID, r2.TxID)
		require.Equal(t, r1.Block+1, r2.Block)
		require.Equal(t, r2.Block, e.Height())
	})
}
