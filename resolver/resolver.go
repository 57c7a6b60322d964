// Package resolver answers "which files of account X may this session see".
//
// The ledger decides visibility. A query is one display call; a revert is
// AccessDenied and an empty reply is an empty gallery. The two are never
// conflated. Content bytes are not fetched at query time (see Download).
package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/session"
	"xdao.co/imagevault/storage"
)

// Resolver resolves record queries for one session.
type Resolver struct {
	session *session.Session
	cas     storage.CAS
	logger  *zap.Logger
}

type Options struct {
	// CAS serves Download. Set either CAS or CASAdapters, not both.
	CAS storage.CAS
	// CASAdapters are consulted in order.
	CASAdapters []storage.CAS

	Logger *zap.Logger
}

func New(s *session.Session, opts Options) (*Resolver, error) {
	cas, err := casFromOptions(opts.CAS, opts.CASAdapters)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{session: s, cas: cas, logger: logger.Named("resolver")}, nil
}

// Query returns target's records as visible to viewer, in ledger order.
//
// viewer must be the session account: the ledger authenticates the caller by
// signature, so a query can only be asked as oneself.
func (r *Resolver) Query(ctx context.Context, viewer, target account.Account) ([]model.FileRecord, error) {
	if err := r.session.Err(); err != nil {
		return nil, err
	}
	if !viewer.Equal(r.session.Account()) {
		return nil, model.Markf(model.ErrInvalidInput,
			"resolver: viewer %s is not the session account %s", viewer, r.session.Account())
	}
	if _, err := account.Parse(target.String()); err != nil {
		return nil, model.MarkWrap(err, model.ErrInvalidInput, "resolver: target")
	}

	rows, err := r.session.Contract().Display(ctx, target)
	if err != nil {
		err = ledger.CallError(err, ledger.MethodDisplay)
		r.logger.Debug("query refused",
			zap.Stringer("viewer", viewer),
			zap.Stringer("target", target),
			zap.String("kind", string(model.KindOf(err))),
		)
		return nil, err
	}
	recs, err := model.CoerceRecords(target, rows)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.FileRecord{}
	}
	return recs, nil
}

// Files returns the session account's own records.
func (r *Resolver) Files(ctx context.Context) ([]model.FileRecord, error) {
	me := r.session.Account()
	return r.Query(ctx, me, me)
}

// Search returns the records of target, given as typed by a user.
func (r *Resolver) Search(ctx context.Context, target string) ([]model.FileRecord, error) {
	acct, err := account.Parse(target)
	if err != nil {
		return nil, model.MarkWrap(err, model.ErrInvalidInput, "resolver: search")
	}
	return r.Query(ctx, r.session.Account(), acct)
}

func casFromOptions(single storage.CAS, adapters []storage.CAS) (storage.CAS, error) {
	if single != nil && len(adapters) > 0 {
		return nil, errors.New("resolver: specify either CAS or CASAdapters, not both")
	}
	if single != nil {
		return single, nil
	}
	if len(adapters) > 0 {
		return storage.MultiCAS{Adapters: adapters}, nil
	}
	return nil, nil
}
