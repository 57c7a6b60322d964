package casconfig_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casconfig"
	"xdao.co/imagevault/storage/casregistry"
	_ "xdao.co/imagevault/storage/localfs"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  casconfig.Config
		ok   bool
	}{
		{name: "empty", cfg: casconfig.Config{}},
		{name: "bad policy", cfg: casconfig.Config{WritePolicy: "some", Backends: []casconfig.BackendConfig{{Name: "localfs"}}}},
		{name: "missing name", cfg: casconfig.Config{Backends: []casconfig.BackendConfig{{ID: "x"}}}},
		{name: "duplicate id", cfg: casconfig.Config{Backends: []casconfig.BackendConfig{{Name: "localfs"}, {Name: "ipfs", ID: "localfs"}}}},
		{name: "ok", cfg: casconfig.Config{WritePolicy: "all", Backends: []casconfig.BackendConfig{{Name: "localfs"}, {Name: "localfs", ID: "b"}}}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestOpenPolicies(t *testing.T) {
	cfg := casconfig.Config{Backends: []casconfig.BackendConfig{
		{Name: "localfs", ID: "a", Config: map[string]string{"dir": t.TempDir()}},
		{Name: "localfs", ID: "b", Config: map[string]string{"dir": t.TempDir()}},
	}}

	cas, closeFn, err := cfg.Open(casregistry.UsageClient, "")
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.IsType(t, storage.MultiCAS{}, cas)

	cfg.WritePolicy = "all"
	cas, _, err = cfg.Open(casregistry.UsageClient, "b")
	require.NoError(t, err)
	rep, ok := cas.(storage.ReplicatingCAS)
	require.True(t, ok)
	require.Equal(t, "b", rep.Backends[0].Name)

	_, _, err = cfg.Open(casregistry.UsageClient, "zzz")
	require.Error(t, err)
}
