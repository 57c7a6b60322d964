package keys

import (
	"context"
	"testing"

	"xdao.co/imagevault/account"
)

func TestSignersVerify(t *testing.T) {
	for _, scheme := range []Scheme{Ed25519, Dilithium3} {
		t.Run(string(scheme), func(t *testing.T) {
			s, err := NewSigner(scheme, seq(1))
			if err != nil {
				t.Fatalf("NewSigner: %v", err)
			}
			if s.Scheme() != scheme {
				t.Fatalf("scheme: got %q want %q", s.Scheme(), scheme)
			}
			if s.Account() != account.FromPublicKey(s.PublicKey()) {
				t.Fatalf("account does not match public key")
			}

			msg := []byte("hello")
			sig, err := s.Sign(context.Background(), msg)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if !Verify(scheme, s.PublicKey(), msg, sig) {
				t.Fatalf("signature did not verify")
			}
			if Verify(scheme, s.PublicKey(), []byte("hellO"), sig) {
				t.Fatalf("signature verified over a different message")
			}

			again, err := NewSigner(scheme, seq(1))
			if err != nil {
				t.Fatalf("NewSigner: %v", err)
			}
			if again.Account() != s.Account() {
				t.Fatalf("expected deterministic account for a seed")
			}
		})
	}
}

func TestVerifyRejectsSchemeMismatch(t *testing.T) {
	s, err := NewSigner(Ed25519, seq(3))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	sig, err := s.Sign(context.Background(), []byte("m"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(Dilithium3, s.PublicKey(), []byte("m"), sig) {
		t.Fatalf("expected dilithium3 verification of an ed25519 key to fail")
	}
	if Verify("rsa", s.PublicKey(), []byte("m"), sig) {
		t.Fatalf("expected unknown scheme to fail")
	}
}

func TestSignHonorsContext(t *testing.T) {
	s, err := NewSigner(Ed25519, seq(4))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Sign(ctx, []byte("m")); err == nil {
		t.Fatalf("expected canceled context to fail")
	}
}
