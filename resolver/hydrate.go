package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"

	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/storage"
)

var ErrMissingCAS = errors.Mark(errors.New("resolver: missing CAS for content download"), model.ErrStoreFailure)

// Download fetches the bytes behind rec.ContentRef.
//
// Raw-codec references are verified against the returned bytes. Other codecs
// are chunked DAG objects whose bytes cannot be checked locally and are
// returned as served.
func (r *Resolver) Download(ctx context.Context, rec model.FileRecord) ([]byte, error) {
	id, err := cidutil.ParseURI(rec.ContentRef)
	if err != nil {
		return nil, model.MarkWrap(err, model.ErrInvalidInput, "resolver: content ref")
	}
	return r.hydrate(ctx, id)
}

func (r *Resolver) hydrate(ctx context.Context, id cid.Cid) ([]byte, error) {
	if r.cas == nil {
		return nil, ErrMissingCAS
	}
	b, err := r.cas.Get(ctx, id)
	if err != nil {
		return nil, model.MarkWrap(err, model.ErrStoreFailure, "resolver: download "+id.String())
	}
	if !cidutil.Verify(id, b) {
		return nil, model.MarkWrap(storage.ErrCIDMismatch, model.ErrStoreFailure, "resolver: download "+id.String())
	}
	return b, nil
}
