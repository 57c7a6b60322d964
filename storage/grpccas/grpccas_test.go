package grpccas

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casregistry"
	"xdao.co/imagevault/storage/localfs"
	"xdao.co/imagevault/storage/testkit"
)

func serve(t *testing.T, cas storage.CAS) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterCASServer(srv, &Server{CAS: cas})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	client := NewClient(cc)
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCCAS_LocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		cas, err := localfs.New(t.TempDir())
		if err != nil {
			t.Fatalf("localfs.New: %v", err)
		}
		return serve(t, cas)
	})
}

func TestGRPCCAS_ServerDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	mem := testkit.NewMemCAS()
	client := serve(t, mem)

	payload := []byte("hello grpccas")
	id, err := client.Put(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, cidutil.CIDv1RawSHA256(payload), id.String())

	mem.Corrupt(id, []byte("not the cat"))
	_, err = client.Get(ctx, id)
	require.True(t, errors.Is(err, storage.ErrCIDMismatch), "%v", err)
}

func TestGRPCCAS_BackendFailureIsUnavailable(t *testing.T) {
	mem := testkit.NewMemCAS()
	mem.FailPut = errors.New("disk full")
	client := serve(t, mem)

	_, err := client.Put(context.Background(), []byte("x"))
	require.True(t, errors.Is(err, storage.ErrUnavailable), "%v", err)
}

func TestGRPCCAS_Registered(t *testing.T) {
	require.Contains(t, casregistry.Names(casregistry.UsageClient), "grpc")

	_, _, err := casregistry.Open("grpc", casregistry.UsageClient, map[string]string{})
	require.Error(t, err, "target is required")

	_, _, err = casregistry.Open("grpc", casregistry.UsageClient, map[string]string{
		"target": "127.0.0.1:1", "dial-timeout": "soon",
	})
	require.Error(t, err)
}
