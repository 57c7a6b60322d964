package keys

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestKeyStoreRootAndRoles(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	require.NoError(t, err)

	acct, path, err := ks.InitializeRootKey("alice", Dilithium3, seq(9), false)
	require.NoError(t, err)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(body), "dilithium3:"))

	_, _, err = ks.InitializeRootKey("alice", Dilithium3, seq(9), false)
	require.Error(t, err, "existing key must not be overwritten")

	roleAcct, _, err := ks.DeriveKeyFromRole("alice", "gallery", false)
	require.NoError(t, err)
	require.NotEqual(t, acct, roleAcct)

	s, err := ks.LoadSigner("alice/gallery")
	require.NoError(t, err)
	require.Equal(t, roleAcct, s.Account())
	require.Equal(t, Dilithium3, s.Scheme())

	keys, err := ks.ListKeys()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, acct, keys[0].Account)
	require.Equal(t, []RoleEntry{{Role: "gallery", Account: roleAcct}}, keys[0].Roles)
}

func TestKeyStoreBareHexIsEd25519(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bob"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bob", "root.key"), []byte(strings.Repeat("ab", SeedSize)+"\n"), 0o600))

	ks := &KeyStore{Directory: dir}
	s, err := ks.LoadSigner("bob")
	require.NoError(t, err)
	require.Equal(t, Ed25519, s.Scheme())
}

func TestKeyStoreActive(t *testing.T) {
	ks := &KeyStore{Directory: t.TempDir()}
	_, err := ks.Active()
	require.True(t, errors.Is(err, ErrNoActive))

	require.Error(t, ks.SetActive("ghost"), "unknown accounts cannot be activated")

	acct, _, err := ks.GenerateRootKey("alice", Ed25519, nil)
	require.NoError(t, err)
	require.NoError(t, ks.SetActive("alice"))

	ref, err := ks.Active()
	require.NoError(t, err)
	require.Equal(t, "alice", ref)

	s, err := ks.ActiveSigner()
	require.NoError(t, err)
	require.Equal(t, acct, s.Account())
}

func TestParseRef(t *testing.T) {
	name, role, err := ParseRef("alice/gallery")
	require.NoError(t, err)
	require.Equal(t, "alice", name)
	require.Equal(t, "gallery", role)

	for _, bad := range []string{"", "a b", "alice/", "alice/x/y"} {
		_, _, err := ParseRef(bad)
		require.Error(t, err, bad)
	}
}
