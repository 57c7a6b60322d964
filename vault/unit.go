package vault

import (
	"context"
	"io"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"xdao.co/imagevault/access"
	"xdao.co/imagevault/account"
	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/publish"
	"xdao.co/imagevault/resolver"
	"xdao.co/imagevault/session"
	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/bundle"
)

// Unit is one bound session together with every cache derived from it. It is
// never rebound: an identity change discards the whole Unit.
type Unit struct {
	session   *session.Session
	store     storage.CAS
	publisher *publish.Publisher
	access    *access.Sync
	resolver  *resolver.Resolver
	logger    *zap.Logger

	mu         sync.Mutex
	files      []model.FileRecord
	filesFresh bool
}

func newUnit(s *session.Session, store storage.CAS, gateway string, logger *zap.Logger) (*Unit, error) {
	r, err := resolver.New(s, resolver.Options{CAS: store, Logger: logger})
	if err != nil {
		return nil, err
	}
	return &Unit{
		session:   s,
		store:     store,
		publisher: publish.New(s, store, publish.Options{Gateway: gateway, Logger: logger}),
		access:    access.New(s, access.WithLogger(logger)),
		resolver:  r,
		logger:    logger,
	}, nil
}

func (u *Unit) Account() account.Account { return u.session.Account() }

func (u *Unit) Session() *session.Session { return u.session }

// Err returns model.ErrSessionInvalidated once the Unit has been discarded.
func (u *Unit) Err() error { return u.session.Err() }

// Publish publishes a file owned by the session account.
func (u *Unit) Publish(ctx context.Context, name, description string, data []byte, mimeType string) (model.FileRecord, error) {
	rec, err := u.publisher.Publish(ctx, publish.Request{
		Owner:       u.Account().String(),
		Name:        name,
		Description: description,
		MimeType:    mimeType,
		Data:        data,
	})
	if err != nil {
		return rec, err
	}
	u.mu.Lock()
	u.filesFresh = false
	u.mu.Unlock()
	return rec, nil
}

// Files re-fetches the session account's own records.
func (u *Unit) Files(ctx context.Context) ([]model.FileRecord, error) {
	recs, err := u.resolver.Files(ctx)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.session.Err(); err != nil {
		return nil, err
	}
	u.files, u.filesFresh = recs, true
	return append([]model.FileRecord(nil), recs...), nil
}

// CachedFiles returns the last Files result. fresh is false before the first
// fetch and after a publish.
func (u *Unit) CachedFiles() (recs []model.FileRecord, fresh bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session.Err() != nil {
		return nil, false
	}
	return append([]model.FileRecord(nil), u.files...), u.filesFresh
}

// Search returns the records of target visible to the session account.
func (u *Unit) Search(ctx context.Context, target string) ([]model.FileRecord, error) {
	return u.resolver.Search(ctx, target)
}

func (u *Unit) Download(ctx context.Context, rec model.FileRecord) ([]byte, error) {
	if err := u.Err(); err != nil {
		return nil, err
	}
	return u.resolver.Download(ctx, rec)
}

func (u *Unit) ListGrants(ctx context.Context) ([]model.AccessGrant, error) {
	return u.access.ListGrants(ctx)
}

func (u *Unit) Grants() ([]model.AccessGrant, bool) { return u.access.Grants() }

func (u *Unit) Grant(ctx context.Context, grantee string) error { return u.access.Grant(ctx, grantee) }

func (u *Unit) Revoke(ctx context.Context, grantee string) error { return u.access.Revoke(ctx, grantee) }

// Export writes the session account's gallery as a bundle.
func (u *Unit) Export(ctx context.Context, w io.Writer) error {
	recs, err := u.Files(ctx)
	if err != nil {
		return err
	}
	if err := bundle.Export(ctx, w, u.store, u.Account(), recs); err != nil {
		return model.MarkWrap(err, model.ErrStoreFailure, "vault: export")
	}
	return nil
}

// Import stores the blocks of a bundle and publishes each of its records under
// the session account. The bundle's owner is ignored. Records published before
// a failure stay published.
func (u *Unit) Import(ctx context.Context, r io.Reader, opts bundle.ImportOptions) ([]model.FileRecord, error) {
	if err := u.Err(); err != nil {
		return nil, err
	}
	idx, err := bundle.Import(ctx, r, u.store, opts)
	if err != nil {
		return nil, model.MarkWrap(err, model.ErrInvalidInput, "vault: import")
	}
	out := make([]model.FileRecord, 0, len(idx.Records))
	for _, ir := range idx.Records {
		id, err := cidutil.ParseURI(ir.ContentRef)
		if err != nil {
			return out, model.MarkWrap(err, model.ErrInvalidInput, "vault: import "+ir.Name)
		}
		data, err := u.store.Get(ctx, id)
		if err != nil {
			return out, model.MarkWrap(err, model.ErrStoreFailure, "vault: import "+ir.Name)
		}
		rec, err := u.Publish(ctx, ir.Name, ir.Description, data, mimetype.Detect(data).String())
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (u *Unit) discard() {
	u.session.Close()
	u.mu.Lock()
	u.files, u.filesFresh = nil, false
	u.mu.Unlock()
	u.access.Reset()
}
