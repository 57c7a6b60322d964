package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/sha3"

	"xdao.co/imagevault/account"
)

// Scheme names a signature scheme.
type Scheme string

const (
	// Ed25519 signs sha256(message).
	Ed25519 Scheme = "ed25519"
	// Dilithium3 signs sha3-256(message).
	Dilithium3 Scheme = "dilithium3"
)

// ParseScheme accepts a scheme name; empty selects Ed25519.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case "", Ed25519:
		return Ed25519, nil
	case Dilithium3:
		return Dilithium3, nil
	default:
		return "", errors.Newf("unsupported key scheme %q", s)
	}
}

// Signer signs ledger envelopes on behalf of one account.
type Signer interface {
	Account() account.Account
	Scheme() Scheme
	PublicKey() []byte
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// NewSigner builds a signer from a seed.
func NewSigner(scheme Scheme, seed []byte) (Signer, error) {
	if len(seed) != SeedSize {
		return nil, errors.Newf("expected seed length of %d bytes, got %d", SeedSize, len(seed))
	}
	switch scheme {
	case Ed25519, "":
		priv := ed25519.NewKeyFromSeed(seed)
		pub := priv.Public().(ed25519.PublicKey)
		return &ed25519Signer{priv: priv, pub: pub, acct: account.FromPublicKey(pub)}, nil
	case Dilithium3:
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		pk, sk := mode3.NewKeyFromSeed(&s)
		pub := pk.Bytes()
		return &dilithiumSigner{priv: sk, pub: pub, acct: account.FromPublicKey(pub)}, nil
	default:
		return nil, errors.Newf("unsupported key scheme %q", scheme)
	}
}

// Verify checks sig over message for the given scheme and public key.
func Verify(scheme Scheme, pub, message, sig []byte) bool {
	switch scheme {
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize {
			return false
		}
		digest := sha256.Sum256(message)
		return ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig)
	case Dilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return false
		}
		digest := sha3.Sum256(message)
		return mode3.Verify(&pk, digest[:], sig)
	default:
		return false
	}
}

type ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	acct account.Account
}

func (s *ed25519Signer) Account() account.Account { return s.acct }
func (s *ed25519Signer) Scheme() Scheme           { return Ed25519 }
func (s *ed25519Signer) PublicKey() []byte        { return append([]byte(nil), s.pub...) }

func (s *ed25519Signer) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(message)
	return ed25519.Sign(s.priv, digest[:]), nil
}

type dilithiumSigner struct {
	priv *mode3.PrivateKey
	pub  []byte
	acct account.Account
}

func (s *dilithiumSigner) Account() account.Account { return s.acct }
func (s *dilithiumSigner) Scheme() Scheme           { return Dilithium3 }
func (s *dilithiumSigner) PublicKey() []byte        { return append([]byte(nil), s.pub...) }

func (s *dilithiumSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha3.Sum256(message)
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digest[:], sig)
	return sig, nil
}
