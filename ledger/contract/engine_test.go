package contract_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/ledger/contract"
	"xdao.co/imagevault/ledger/ledgertest"
)

func TestEngine_MemState(t *testing.T) {
	ledgertest.RunStateSuite(t, func(t *testing.T) contract.State { return contract.NewMemState() })
}

func TestEngineRejectsMalformedEnvelopes(t *testing.T) {
	ctx := context.Background()
	e := ledgertest.NewEngine(t)
	s := ledgertest.Signer(t, 1)

	env, err := ledger.Seal(ctx, s, "selfdestruct")
	require.NoError(t, err)
	_, err = e.Transact(ctx, env)
	reason, _ := ledger.RevertReason(err)
	require.Equal(t, contract.ReasonUnknownMethod, reason)

	env, err = ledger.Seal(ctx, s, ledger.MethodDisplay)
	require.NoError(t, err)
	_, err = e.Call(ctx, env)
	reason, _ = ledger.RevertReason(err)
	require.Equal(t, contract.ReasonArity, reason)

	env, err = ledger.Seal(ctx, s, ledger.MethodAllow, "0x123")
	require.NoError(t, err)
	_, err = e.Transact(ctx, env)
	reason, _ = ledger.RevertReason(err)
	require.Equal(t, contract.ReasonBadAddress, reason)

	env, err = ledger.Seal(ctx, s, ledger.MethodShareAccess)
	require.NoError(t, err)
	env.Sig[0] ^= 0xff
	_, err = e.Call(ctx, env)
	require.True(t, errors.Is(err, ledger.ErrBadSignature))
}

func TestWithNilLogger(t *testing.T) {
	ctx := context.Background()
	var e *contract.Engine
	require.NotPanics(t, func() {
		var err error
		e, err = contract.New(ctx, contract.NewMemState(), contract.WithLogger(nil))
		require.NoError(t, err)
	})
	s := ledgertest.Signer(t, 1)
	env, err := ledger.Seal(ctx, s, ledger.MethodAllow, ledgertest.Signer(t, 2).Account().String())
	require.NoError(t, err)
	_, err = e.Transact(ctx, env)
	require.NoError(t, err)
}
