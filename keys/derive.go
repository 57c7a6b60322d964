package keys

import (
	"crypto/sha256"

	"github.com/cockroachdb/errors"
)

// SeedSize is the seed length for every supported scheme.
const SeedSize = 32

// DeriveRoleSeed deterministically derives a role-specific seed from a root seed.
// The derived seed is used with the root key's scheme.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, errors.Newf("root seed must be %d bytes", SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("imagevault-keyring-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	sum := h.Sum(nil)
	out := make([]byte, SeedSize)
	copy(out, sum[:SeedSize])
	return out, nil
}
