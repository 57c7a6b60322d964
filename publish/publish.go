// Package publish stores file bytes in the content store and registers the
// resulting record on the ledger.
//
// The two steps are not atomic. Content stored before a failed registration
// stays in the store unregistered; publishing the same bytes again is cheap
// because the store is content-addressed.
package publish

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/session"
	"xdao.co/imagevault/storage"
)

// ImagePrefix is the media-type prefix every published file must carry.
const ImagePrefix = "image/"

// ErrInvalidMime is returned for content that is not an image.
var ErrInvalidMime = errors.Mark(errors.New("publish: content type is not an image"), model.ErrInvalidInput)

// Request is one file to publish.
type Request struct {
	Owner       string `validate:"required,account"`
	Name        string `validate:"required"`
	Description string `validate:"required"`
	MimeType    string `validate:"required,image_mime"`
	Data        []byte `validate:"required,min=1"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("account", func(fl validator.FieldLevel) bool {
		return account.IsValid(fl.Field().String())
	})
	_ = v.RegisterValidation("image_mime", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(fl.Field().String())), ImagePrefix)
	})
	return v
}

// Validate checks r without touching the network.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "MimeType" {
				return errors.Wrapf(ErrInvalidMime, "%q", r.MimeType)
			}
		}
	}
	return errors.Mark(errors.Wrap(err, "publish"), model.ErrInvalidInput)
}

type Options struct {
	// Gateway, when set, makes content refs gateway URLs instead of ipfs:// URIs.
	Gateway string
	Logger  *zap.Logger
}

// Publisher holds no mutable state and is safe for concurrent use.
type Publisher struct {
	session *session.Session
	store   storage.CAS
	gateway string
	logger  *zap.Logger
}

func New(s *session.Session, store storage.CAS, opts Options) *Publisher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		session: s,
		store:   store,
		gateway: opts.Gateway,
		logger:  logger.Named("publish"),
	}
}

// Publish uploads r.Data and registers it under r.Owner.
//
// On success, cached record lists for r.Owner are stale.
func (p *Publisher) Publish(ctx context.Context, r Request) (model.FileRecord, error) {
	if err := r.Validate(); err != nil {
		return model.FileRecord{}, err
	}
	if err := p.session.Err(); err != nil {
		return model.FileRecord{}, err
	}
	owner, err := account.Parse(r.Owner)
	if err != nil {
		return model.FileRecord{}, model.MarkWrap(err, model.ErrInvalidInput, "publish")
	}

	id, err := p.store.Put(ctx, r.Data)
	if err != nil {
		return model.FileRecord{}, model.MarkWrap(err, model.ErrStoreFailure, "publish: upload")
	}
	rec := model.FileRecord{
		Owner:       owner,
		Name:        r.Name,
		Description: r.Description,
		ContentRef:  cidutil.URI(p.gateway, id),
	}

	receipt, err := p.session.Contract().Add(ctx, rec.Owner, rec.Name, rec.Description, rec.ContentRef)
	if err != nil {
		p.logger.Warn("registration failed, content left unregistered",
			zap.Stringer("owner", owner),
			zap.Stringer("cid", id),
			zap.Error(err),
		)
		return model.FileRecord{}, ledger.TransactError(err, ledger.MethodAdd)
	}

	p.logger.Info("published",
		zap.Stringer("owner", owner),
		zap.String("name", rec.Name),
		zap.Stringer("cid", id),
		zap.String("tx", receipt.TxID),
		zap.Uint64("block", receipt.Block),
	)
	return rec, nil
}
