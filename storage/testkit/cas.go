package testkit

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

// RunCASConformance checks the storage.CAS contract for backends that mint
// CIDv1 raw + sha2-256 identifiers.
func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("a cat, in png")

		id, err := cas.Put(ctx, want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}

		if cas.Has(ctx, id) {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = cas.Get(ctx, id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := cas.Put(ctx, b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(ctx, id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(ctx, undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}

// MemCAS is an in-memory storage.CAS that counts calls. It is safe for concurrent use.
type MemCAS struct {
	mu    sync.Mutex
	blobs map[string][]byte

	Puts, Gets int
	// FailPut, when set, is returned by every Put.
	FailPut error
}

// NewMemCAS returns an empty MemCAS.
func NewMemCAS() *MemCAS {
	return &MemCAS{blobs: map[string][]byte{}}
}

func (m *MemCAS) Put(ctx context.Context, b []byte) (cid.Cid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	if m.FailPut != nil {
		return cid.Undef, m.FailPut
	}
	id, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return cid.Undef, err
	}
	m.blobs[id.String()] = append([]byte(nil), b...)
	return id, nil
}

func (m *MemCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, ok := m.blobs[id.String()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemCAS) Has(ctx context.Context, id cid.Cid) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !id.Defined() {
		return false
	}
	_, ok := m.blobs[id.String()]
	return ok
}

// Calls returns the total number of Put and Get calls.
func (m *MemCAS) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Puts + m.Gets
}

// Corrupt replaces the bytes stored under id.
func (m *MemCAS) Corrupt(id cid.Cid, b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id.String()] = b
}
