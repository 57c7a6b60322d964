package cidutil

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
)

func TestURIRoundTrip(t *testing.T) {
	id, err := CIDv1RawSHA256CID([]byte("a cat"))
	require.NoError(t, err)

	for _, gateway := range []string{"", "https://gateway.pinata.cloud", "http://127.0.0.1:7781/"} {
		ref := URI(gateway, id)
		got, err := ParseURI(ref)
		require.NoError(t, err, ref)
		require.Equal(t, id, got, ref)
	}
	require.Equal(t, "ipfs://"+id.String(), URI("", id))
	require.Equal(t, "https://gateway.pinata.cloud/ipfs/"+id.String(), URI("https://gateway.pinata.cloud/", id))
}

func TestParseURIGatewayVariants(t *testing.T) {
	const v0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	id, err := ParseURI("https://gateway.pinata.cloud/ipfs/" + v0 + "/readme")
	require.NoError(t, err)
	require.Equal(t, v0, id.String())
	require.False(t, Verifiable(id))
	require.True(t, Verify(id, []byte("anything")))
}

func TestParseURIRejects(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/cat.png", "ipfs://not-a-cid", "ftp://x/ipfs/y"} {
		_, err := ParseURI(ref)
		require.True(t, errors.Is(err, ErrNotContentURI), ref)
	}
}

func TestVerifyRawBlocks(t *testing.T) {
	data := []byte("raw block")
	id, err := CIDv1RawSHA256CID(data)
	require.NoError(t, err)
	require.True(t, Verifiable(id))
	require.True(t, Verify(id, data))
	require.False(t, Verify(id, []byte("tampered")))
	require.False(t, Verifiable(cid.Undef))
}
