package ledger_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/keys"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/ledger/ledgertest"
	"xdao.co/imagevault/model"
)

func TestSealVerifies(t *testing.T) {
	for _, scheme := range []keys.Scheme{keys.Ed25519, keys.Dilithium3} {
		t.Run(string(scheme), func(t *testing.T) {
			seed := make([]byte, keys.SeedSize)
			seed[0] = 7
			s, err := keys.NewSigner(scheme, seed)
			require.NoError(t, err)

			env, err := ledger.Seal(context.Background(), s, ledger.MethodDisplay, s.Account().String())
			require.NoError(t, err)
			require.NotEmpty(t, env.ID)

			from, err := env.Sender()
			require.NoError(t, err)
			require.Equal(t, s.Account(), from)
		})
	}
}

func TestEnvelopeSurvivesCBOR(t *testing.T) {
	s := ledgertest.Signer(t, 1)
	env, err := ledger.Seal(context.Background(), s, ledger.MethodShareAccess)
	require.NoError(t, err)

	b, err := ledger.Marshal(env)
	require.NoError(t, err)
	var back ledger.Envelope
	require.NoError(t, ledger.Unmarshal(b, &back))
	require.NoError(t, back.Verify(), "zero-arg envelopes must verify after a round trip")
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := ledgertest.Signer(t, 1)
	other := ledgertest.Signer(t, 2)
	env, err := ledger.Seal(context.Background(), s, ledger.MethodAllow, other.Account().String())
	require.NoError(t, err)

	tampered := env
	tampered.Method = ledger.MethodDisAllow
	assert.True(t, errors.Is(tampered.Verify(), ledger.ErrBadSignature))

	spoofed := env
	spoofed.From = other.Account().String()
	assert.True(t, errors.Is(spoofed.Verify(), ledger.ErrBadSignature))

	swapped := env
	swapped.PubKey = other.PublicKey()
	swapped.From = other.Account().String()
	assert.True(t, errors.Is(swapped.Verify(), ledger.ErrBadSignature))
}

func TestRevertHelpers(t *testing.T) {
	err := errors.Wrap(ledger.Revert(ledger.MethodDisplay, "You don't have access"), "query")
	require.True(t, ledger.IsRevert(err))
	reason, ok := ledger.RevertReason(err)
	require.True(t, ok)
	require.Equal(t, "You don't have access", reason)
	require.False(t, ledger.IsRevert(errors.New("eof")))
}

func TestErrorClassification(t *testing.T) {
	declined := errors.Mark(errors.New("declined"), model.ErrUserRejected)
	revert := ledger.Revert(ledger.MethodDisplay, "You don't have access")
	down := errors.New("connection refused")

	require.Nil(t, ledger.TransactError(nil, ledger.MethodAdd))
	require.Nil(t, ledger.CallError(nil, ledger.MethodDisplay))

	require.Equal(t, model.CodeLedgerRejected, model.KindOf(ledger.TransactError(revert, ledger.MethodAdd)))
	require.Equal(t, model.CodeLedgerRejected, model.KindOf(ledger.TransactError(down, ledger.MethodAdd)))
	err := ledger.TransactError(declined, ledger.MethodAllow)
	require.Equal(t, model.CodeUserRejected, model.KindOf(err))
	require.True(t, errors.Is(err, model.ErrLedgerRejected))

	require.Equal(t, model.CodeAccessDenied, model.KindOf(ledger.CallError(revert, ledger.MethodDisplay)))
	require.Equal(t, model.CodeLedgerUnavailable, model.KindOf(ledger.CallError(down, ledger.MethodDisplay)))
	require.Equal(t, model.CodeUserRejected, model.KindOf(ledger.CallError(declined, ledger.MethodDisplay)))
}
