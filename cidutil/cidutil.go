package cidutil

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Scheme is the URI scheme used for content references without a gateway.
const Scheme = "ipfs"

// ErrNotContentURI is returned when a URI does not name a CID.
var ErrNotContentURI = errors.New("cidutil: not a content uri")

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Verifiable reports whether bytes fetched for id can be checked locally. Only raw
// blocks hash to their CID directly; chunked dag-pb objects (CIDv0 pins) cannot.
func Verifiable(id cid.Cid) bool {
	return id.Defined() && id.Prefix().Codec == cid.Raw
}

// Verify checks data against id when id is Verifiable. It returns false only on a
// definite mismatch.
func Verify(id cid.Cid, data []byte) bool {
	if !Verifiable(id) {
		return true
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}

// URI renders a content reference for id. With an empty gateway the result is
// "ipfs://<cid>"; otherwise "<gateway>/ipfs/<cid>".
func URI(gateway string, id cid.Cid) string {
	gateway = strings.TrimRight(strings.TrimSpace(gateway), "/")
	if gateway == "" {
		return Scheme + "://" + id.String()
	}
	return gateway + "/ipfs/" + id.String()
}

// ParseURI extracts the CID from a content reference produced by URI or by a
// public gateway ("https://host/ipfs/<cid>[/...]").
func ParseURI(ref string) (cid.Cid, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return cid.Undef, errors.Wrapf(ErrNotContentURI, "%q", ref)
	}
	var raw string
	switch u.Scheme {
	case Scheme:
		raw = u.Host
		if raw == "" {
			raw = strings.TrimPrefix(u.Opaque, "//")
		}
	case "http", "https":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := 0; i+1 < len(parts); i++ {
			if parts[i] == "ipfs" {
				raw = parts[i+1]
				break
			}
		}
	}
	if raw == "" {
		return cid.Undef, errors.Wrapf(ErrNotContentURI, "%q", ref)
	}
	id, err := cid.Decode(raw)
	if err != nil {
		return cid.Undef, errors.Wrapf(ErrNotContentURI, "%q: %v", ref, err)
	}
	return id, nil
}
