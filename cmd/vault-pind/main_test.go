package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/grpccas"
	"xdao.co/imagevault/storage/localfs"
	"xdao.co/imagevault/storage/pinning"
)

func TestServeSharesOneStore(t *testing.T) {
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	srv := &pinning.Server{CAS: cas, APIKey: "k", APISecret: "s"}
	go func() { done <- serve(ctx, srv, lis, grpcLis, zap.NewNop()) }()

	api := "http://" + lis.Addr().String()
	pin, err := pinning.New(pinning.Options{API: api, APIKey: "k", APISecret: "s"})
	require.NoError(t, err)

	var id cid.Cid
	require.Eventually(t, func() bool {
		got, err := pin.Put(context.Background(), []byte("a cat"))
		if err != nil {
			return false
		}
		id = got
		return true
	}, 5*time.Second, 20*time.Millisecond)

	rpc, err := grpccas.Dial(grpcLis.Addr().String(), grpccas.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer rpc.Close()
	other, err := rpc.Put(context.Background(), []byte("a dog"))
	require.NoError(t, err)

	got, err := pin.Get(context.Background(), other)
	require.NoError(t, err)
	require.True(t, bytes.Equal([]byte("a dog"), got))
	require.True(t, cas.Has(context.Background(), other))
	require.Equal(t, id.String(), mustPut(t, cas, []byte("a cat")))

	wrong, err := pinning.New(pinning.Options{API: api, APIKey: "k", APISecret: "wrong"})
	require.NoError(t, err)
	_, err = wrong.Put(context.Background(), []byte("a cow"))
	require.Error(t, err)

	cancel()
	require.NoError(t, <-done)
}

func mustPut(t *testing.T, cas storage.CAS, data []byte) string {
	t.Helper()
	id, err := cas.Put(context.Background(), data)
	require.NoError(t, err)
	return id.String()
}

func TestStartRejectsUnknownBackend(t *testing.T) {
	v := viper.New()
	v.Set("backend", "nope")
	v.Set("listen", "127.0.0.1:0")
	err := start(context.Background(), v, nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, context.Canceled))
}

func TestListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"--list-backends"}, &out, &errOut))
	require.Contains(t, out.String(), "localfs")
	require.NotContains(t, out.String(), "pinning\t")
}
