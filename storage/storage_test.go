package storage_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/testkit"
)

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{testkit.NewMemCAS(), testkit.NewMemCAS()}}
	})
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: testkit.NewMemCAS()},
			{Name: "b", CAS: testkit.NewMemCAS()},
		}}
	})
}

func TestMultiCASFallsBackInOrder(t *testing.T) {
	ctx := context.Background()
	first, second := testkit.NewMemCAS(), testkit.NewMemCAS()
	id, err := second.Put(ctx, []byte("only in second"))
	require.NoError(t, err)

	m := storage.MultiCAS{Adapters: []storage.CAS{first, second}}
	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "only in second", string(got))

	_, err = m.Put(ctx, []byte("new"))
	require.NoError(t, err)
	require.Equal(t, 1, first.Puts)
	require.Equal(t, 1, second.Puts, "MultiCAS writes only to the first adapter")
}

func TestReplicatingCASWritesAll(t *testing.T) {
	ctx := context.Background()
	a, b := testkit.NewMemCAS(), testkit.NewMemCAS()
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: a}, {Name: "b", CAS: b}}}

	id, per, err := r.PutAll(ctx, []byte("cat"))
	require.NoError(t, err)
	require.Equal(t, cidutil.CIDv1RawSHA256([]byte("cat")), id.String())
	require.Len(t, per, 2)
	require.True(t, a.Has(ctx, id))
	require.True(t, b.Has(ctx, id))
}

func TestReplicatingCASPropagatesBackendFailure(t *testing.T) {
	ctx := context.Background()
	bad := testkit.NewMemCAS()
	bad.FailPut = errors.Mark(errors.New("503"), storage.ErrUnavailable)
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "ok", CAS: testkit.NewMemCAS()}, {Name: "bad", CAS: bad}}}

	_, err := r.Put(ctx, []byte("cat"))
	require.True(t, errors.Is(err, storage.ErrUnavailable))
}
