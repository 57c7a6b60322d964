package ledger

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/keys"
)

// Contract entry points.
const (
	MethodAdd         = "add"
	MethodDisplay     = "display"
	MethodShareAccess = "shareAccess"
	MethodAllow       = "allow"
	MethodDisAllow    = "disAllow"
)

// ErrBadSignature is returned when an envelope's signature or sender does not verify.
var ErrBadSignature = errors.New("ledger: bad signature")

// Envelope is one signed call or transaction.
type Envelope struct {
	ID     string   `cbor:"id"`
	Method string   `cbor:"method"`
	Args   []string `cbor:"args"`
	From   string   `cbor:"from"`
	Scheme string   `cbor:"scheme"`
	PubKey []byte   `cbor:"pubkey"`
	Sig    []byte   `cbor:"sig,omitempty"`
}

// SigningBytes returns the deterministic encoding of e with Sig cleared.
func (e Envelope) SigningBytes() ([]byte, error) {
	e.Sig = nil
	e.Args = append([]string{}, e.Args...)
	return Marshal(e)
}

// Sender returns the verified sender of e.
func (e Envelope) Sender() (account.Account, error) {
	if err := e.Verify(); err != nil {
		return "", err
	}
	return account.Parse(e.From)
}

// Verify checks that Sig verifies under PubKey and that From is PubKey's account.
func (e Envelope) Verify() error {
	from, err := account.Parse(e.From)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "ledger: sender"), ErrBadSignature)
	}
	if !from.Equal(account.FromPublicKey(e.PubKey)) {
		return errors.Wrapf(ErrBadSignature, "sender %s does not own the signing key", from)
	}
	msg, err := e.SigningBytes()
	if err != nil {
		return err
	}
	if !keys.Verify(keys.Scheme(e.Scheme), e.PubKey, msg, e.Sig) {
		return errors.Wrapf(ErrBadSignature, "%s %s", e.Method, e.ID)
	}
	return nil
}

// Seal builds and signs an envelope for method.
func Seal(ctx context.Context, signer keys.Signer, method string, args ...string) (Envelope, error) {
	e := Envelope{
		ID:     uuid.NewString(),
		Method: method,
		Args:   append([]string{}, args...),
		From:   signer.Account().String(),
		Scheme: string(signer.Scheme()),
		PubKey: signer.PublicKey(),
	}
	msg, err := e.SigningBytes()
	if err != nil {
		return Envelope{}, err
	}
	sig, err := signer.Sign(ctx, msg)
	if err != nil {
		return Envelope{}, err
	}
	e.Sig = sig
	return e, nil
}
