package keys

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"xdao.co/imagevault/account"
)

// ActiveFile is the name of the active-account marker inside the store directory.
const ActiveFile = "active"

// ErrNoActive is returned when no account has been selected.
var ErrNoActive = errors.New("keys: no active account")

// KeyStore is a simple local-first key store.
//
// EXPERIMENTAL: layout and file formats may change.
//
// Layout:
//
//	<dir>/<name>/root.key         "<scheme>:<hex seed>" (bare hex is ed25519)
//	<dir>/<name>/roles/<role>.key derived from root.key, same scheme
//	<dir>/active                  "<name>" or "<name>/<role>"
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Identifier string          `json:"identifier" yaml:"identifier"`
	Scheme     Scheme          `json:"scheme" yaml:"scheme"`
	Account    account.Account `json:"account" yaml:"account"`
	Roles      []RoleEntry     `json:"roles,omitempty" yaml:"roles,omitempty"`
	Active     bool            `json:"active,omitempty" yaml:"active,omitempty"`
}

type RoleEntry struct {
	Role    string          `json:"role" yaml:"role"`
	Account account.Account `json:"account" yaml:"account"`
	Active  bool            `json:"active,omitempty" yaml:"active,omitempty"`
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".imagevault", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) roleKeyPath(identifier, role string) string {
	return filepath.Join(ks.Directory, identifier, "roles", role+".key")
}

// ActivePath returns the path of the active-account marker.
func (ks *KeyStore) ActivePath() string {
	return filepath.Join(ks.Directory, ActiveFile)
}

func checkName(kind, s string) error {
	if s == "" {
		return errors.Newf("%s cannot be empty", kind)
	}
	for _, char := range s {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return errors.Newf("invalid character %q in %s", char, kind)
	}
	return nil
}

func CheckKeyName(identifier string) error { return checkName("identifier", identifier) }

func CheckRole(role string) error { return checkName("role", role) }

// ParseRef splits "name" or "name/role".
func ParseRef(ref string) (name, role string, err error) {
	ref = strings.TrimSpace(ref)
	name, role, _ = strings.Cut(ref, "/")
	if err := CheckKeyName(name); err != nil {
		return "", "", err
	}
	if strings.Contains(ref, "/") {
		if err := CheckRole(role); err != nil {
			return "", "", err
		}
	}
	return name, role, nil
}

// ParseKey decodes a key file body.
func ParseKey(body string) (Scheme, []byte, error) {
	body = strings.TrimSpace(body)
	schemeName, seedHex, found := strings.Cut(body, ":")
	if !found {
		schemeName, seedHex = "", body
	}
	scheme, err := ParseScheme(schemeName)
	if err != nil {
		return "", nil, err
	}
	seed, err := ParseSeedHex(seedHex)
	if err != nil {
		return "", nil, err
	}
	return scheme, seed, nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	if len(data) != SeedSize {
		return nil, errors.Newf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) saveKey(filePath string, scheme Scheme, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return errors.Newf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(string(scheme) + ":" + hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) loadKey(filePath string) (Scheme, []byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", nil, err
	}
	scheme, seed, err := ParseKey(string(data))
	if err != nil {
		return "", nil, errors.Wrapf(err, "%s", filePath)
	}
	return scheme, seed, nil
}

// InitializeRootKey stores seed as the root key of identifier and returns its account.
func (ks *KeyStore) InitializeRootKey(identifier string, scheme Scheme, seed []byte, overwrite bool) (account.Account, string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", "", err
	}
	signer, err := NewSigner(scheme, seed)
	if err != nil {
		return "", "", err
	}
	filePath := ks.rootKeyPath(identifier)
	if err := ks.saveKey(filePath, signer.Scheme(), seed, overwrite); err != nil {
		return "", "", err
	}
	return signer.Account(), filePath, nil
}

// GenerateRootKey creates a fresh root key from r (crypto/rand when nil).
func (ks *KeyStore) GenerateRootKey(identifier string, scheme Scheme, r io.Reader) (account.Account, string, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return "", "", errors.Wrap(err, "generate seed")
	}
	return ks.InitializeRootKey(identifier, scheme, seed, false)
}

// DeriveKeyFromRole derives and stores a role key under from.
func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (account.Account, string, error) {
	if err := CheckKeyName(from); err != nil {
		return "", "", err
	}
	if err := CheckRole(role); err != nil {
		return "", "", err
	}
	scheme, rootSeed, err := ks.loadKey(ks.rootKeyPath(from))
	if err != nil {
		return "", "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return "", "", err
	}
	signer, err := NewSigner(scheme, roleSeed)
	if err != nil {
		return "", "", err
	}
	filePath := ks.roleKeyPath(from, role)
	if err := ks.saveKey(filePath, scheme, roleSeed, overwrite); err != nil {
		return "", "", err
	}
	return signer.Account(), filePath, nil
}

// LoadSigner loads the signer for "name" or "name/role".
func (ks *KeyStore) LoadSigner(ref string) (Signer, error) {
	name, role, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	path := ks.rootKeyPath(name)
	if role != "" {
		path = ks.roleKeyPath(name, role)
	}
	scheme, seed, err := ks.loadKey(path)
	if err != nil {
		return nil, err
	}
	return NewSigner(scheme, seed)
}

// SetActive selects the account that providers built on this store expose.
func (ks *KeyStore) SetActive(ref string) error {
	if _, err := ks.LoadSigner(ref); err != nil {
		return err
	}
	if err := os.MkdirAll(ks.Directory, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(ks.Directory, ".active-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(strings.TrimSpace(ref) + "\n"); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), ks.ActivePath())
}

// Active returns the active ref, or ErrNoActive.
func (ks *KeyStore) Active() (string, error) {
	data, err := os.ReadFile(ks.ActivePath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoActive
		}
		return "", err
	}
	ref := strings.TrimSpace(string(data))
	if ref == "" {
		return "", ErrNoActive
	}
	return ref, nil
}

// ActiveSigner loads the signer named by the active marker.
func (ks *KeyStore) ActiveSigner() (Signer, error) {
	ref, err := ks.Active()
	if err != nil {
		return nil, err
	}
	return ks.LoadSigner(ref)
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	active, _ := ks.Active()

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() && CheckKeyName(entry.Name()) == nil {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []KeyEntry
	for _, identifier := range identifiers {
		root, err := ks.LoadSigner(identifier)
		if err != nil {
			continue
		}
		entry := KeyEntry{
			Identifier: identifier,
			Scheme:     root.Scheme(),
			Account:    root.Account(),
			Active:     active == identifier,
		}
		roleEntries, rerr := os.ReadDir(filepath.Join(ks.Directory, identifier, "roles"))
		if rerr == nil {
			var roles []string
			for _, roleEntry := range roleEntries {
				if !roleEntry.IsDir() && strings.HasSuffix(roleEntry.Name(), ".key") {
					roles = append(roles, strings.TrimSuffix(roleEntry.Name(), ".key"))
				}
			}
			sort.Strings(roles)
			for _, role := range roles {
				ref := identifier + "/" + role
				s, err := ks.LoadSigner(ref)
				if err != nil {
					continue
				}
				entry.Roles = append(entry.Roles, RoleEntry{Role: role, Account: s.Account(), Active: active == ref})
			}
		}
		result = append(result, entry)
	}
	return result, nil
}
