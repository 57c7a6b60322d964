// Package account defines the ledger account identifier shared by file owners and
// grantees.
//
// Accounts use the ledger's address format: "0x" followed by 40 hex digits. The
// canonical form carries an EIP-55 mixed-case checksum.
package account

import (
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/sha3"
)

// Size is the length of an account address in bytes.
const Size = 20

// ErrMalformed is returned by Parse for anything that is not a ledger address.
var ErrMalformed = errors.New("account: malformed address")

// ErrChecksum is returned by Parse for mixed-case input with a bad checksum.
var ErrChecksum = errors.New("account: bad address checksum")

// Account is a checksummed ledger address. The zero value is not a valid account.
type Account string

// Parse validates s and returns its canonical checksummed form.
//
// All-lowercase and all-uppercase hex digits are accepted without a checksum.
// Mixed case must match the EIP-55 checksum exactly.
func Parse(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2+2*Size || (s[:2] != "0x" && s[:2] != "0X") {
		return "", errors.Wrapf(ErrMalformed, "%q", s)
	}
	digits := s[2:]
	if _, err := hex.DecodeString(digits); err != nil {
		return "", errors.Wrapf(ErrMalformed, "%q", s)
	}
	canonical := checksum(strings.ToLower(digits))
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) {
		if string(canonical) != "0x"+digits {
			return "", errors.Wrapf(ErrChecksum, "%q", s)
		}
	}
	return canonical, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Account {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsValid reports whether s parses as an account.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// FromBytes returns the account for a raw 20-byte address.
func FromBytes(b []byte) (Account, error) {
	if len(b) != Size {
		return "", errors.Wrapf(ErrMalformed, "expected %d bytes, got %d", Size, len(b))
	}
	return checksum(hex.EncodeToString(b)), nil
}

// FromPublicKey derives an account from public key bytes: the trailing 20 bytes of
// their Keccak-256 digest.
func FromPublicKey(pub []byte) Account {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(pub)
	sum := h.Sum(nil)
	return checksum(hex.EncodeToString(sum[len(sum)-Size:]))
}

func (a Account) String() string { return string(a) }

// IsZero reports whether a is the zero value.
func (a Account) IsZero() bool { return a == "" }

// Equal compares two accounts ignoring letter case.
func (a Account) Equal(b Account) bool { return strings.EqualFold(string(a), string(b)) }

// Bytes returns the raw 20-byte address. It returns nil for a malformed account.
func (a Account) Bytes() []byte {
	if len(a) != 2+2*Size {
		return nil
	}
	b, err := hex.DecodeString(string(a[2:]))
	if err != nil {
		return nil
	}
	return b
}

// Short renders the account as its first and last five characters, for banners.
func (a Account) Short() string {
	s := string(a)
	if len(s) <= 10 {
		return s
	}
	return s[:5] + "..." + s[len(s)-5:]
}

// checksum applies EIP-55 casing to 40 lowercase hex digits.
func checksum(lower string) Account {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(lower))
	sum := h.Sum(nil)

	out := make([]byte, 0, 2+len(lower))
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if c >= 'a' && c <= 'f' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return Account(out)
}
