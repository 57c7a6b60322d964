package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/model"
	"xdao.co/imagevault/storage/casregistry"

	_ "xdao.co/imagevault/storage/localfs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, DefaultLedgerTarget, c.Ledger.Target)
	require.Equal(t, 5*time.Second, c.Ledger.DialTimeout)
	require.Equal(t, "first", c.Store.WritePolicy)
	require.Len(t, c.Store.Backends, 1)
	require.Equal(t, "pinning", c.Store.Backends[0].Name)
	require.Equal(t, DefaultPinningAPI, c.Store.Backends[0].Config["api"])
	require.Equal(t, "info", c.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
keystore: `+filepath.Join(dir, "keys")+`
ledger:
  target: ledger.internal:7790
  dial_timeout: 2s
store:
  write_policy: all
  gateway: https://gateway.pinata.cloud
  backends:
    - name: localfs
      id: cache
      config: {dir: `+filepath.Join(dir, "cas")+`}
    - name: localfs
      id: mirror
      config: {dir: `+filepath.Join(dir, "mirror")+`}
log:
  level: debug
  development: true
`)
	t.Setenv("IMAGEVAULT_LEDGER_TARGET", "127.0.0.1:9999")

	c, err := Load(New(), path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", c.Ledger.Target, "env overrides file")
	require.Equal(t, 2*time.Second, c.Ledger.DialTimeout)
	require.Equal(t, "all", c.Store.WritePolicy)
	require.Equal(t, "https://gateway.pinata.cloud", c.Store.Gateway)
	require.Len(t, c.Store.Backends, 2)
	require.Equal(t, "mirror", c.Store.Backends[1].ID)
	require.True(t, c.Log.Development)

	logger, err := c.Logger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	cas, closeFn, err := c.OpenStore(casregistry.UsageClient)
	require.NoError(t, err)
	require.NotNil(t, cas)
	require.NoError(t, closeFn())

	require.Equal(t, filepath.Join(dir, "keys"), c.KeyStoreHandle().Directory)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad target", body: "ledger: {target: nowhere}\n"},
		{name: "bad policy", body: "store: {write_policy: some}\n"},
		{name: "bad gateway", body: "store: {gateway: 'not a url'}\n"},
		{name: "bad level", body: "log: {level: loud}\n"},
		{name: "duplicate backends", body: "store:\n  backends:\n    - {name: localfs, config: {dir: /a}}\n    - {name: localfs, config: {dir: /b}}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(New(), writeConfig(t, tt.body))
			require.Error(t, err)
			require.Equal(t, model.CodeInvalidInput, model.KindOf(err), "%v", err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDialLedgerIsLazyWithoutTimeout(t *testing.T) {
	c := Config{Ledger: LedgerConfig{Target: "127.0.0.1:1", Timeout: time.Second}}
	client, err := c.DialLedger()
	require.NoError(t, err)
	require.Equal(t, time.Second, client.Timeout)
	require.NoError(t, client.Close())
}
