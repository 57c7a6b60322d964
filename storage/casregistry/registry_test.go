package casregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/testkit"
)

func TestRegisterAndOpen(t *testing.T) {
	var got map[string]string
	MustRegister(Backend{
		Name:     "test-mem",
		Usage:    UsageDaemon,
		Settings: []Setting{{Key: "label", Required: true}},
		Open: func(settings map[string]string) (storage.CAS, func() error, error) {
			got = settings
			return testkit.NewMemCAS(), nil, nil
		},
	})

	require.Error(t, Register(Backend{Name: "test-mem", Usage: UsageDaemon, Open: func(map[string]string) (storage.CAS, func() error, error) { return nil, nil, nil }}))
	require.Contains(t, Names(UsageDaemon), "test-mem")
	require.NotContains(t, Names(UsageClient), "test-mem")

	_, _, err := Open("test-mem", UsageClient, map[string]string{"label": "x"})
	require.Error(t, err, "usage mismatch")

	_, _, err = Open("test-mem", UsageDaemon, nil)
	require.ErrorContains(t, err, `missing setting "label"`)

	cas, _, err := Open("test-mem", UsageDaemon, map[string]string{"label": "x"})
	require.NoError(t, err)
	require.NotNil(t, cas)
	require.Equal(t, "x", got["label"])

	_, _, err = Open("nope", UsageDaemon, nil)
	require.Error(t, err)
}

func TestRegisterValidates(t *testing.T) {
	require.Error(t, Register(Backend{}))
	require.Error(t, Register(Backend{Name: "x", Usage: UsageClient}))
	require.Error(t, Register(Backend{Name: "x", Open: func(map[string]string) (storage.CAS, func() error, error) { return nil, nil, nil }}))
}
