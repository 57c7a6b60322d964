// Package contract is the reference registry contract: an append-only file list
// per owner plus a per-owner access list, evaluated against authenticated callers.
package contract

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/model"
)

// Revert reasons.
const (
	ReasonNoAccess      = "You don't have access"
	ReasonNotOwner      = "only the owner can add files"
	ReasonBadAddress    = "invalid address"
	ReasonArity         = "wrong number of arguments"
	ReasonUnknownMethod = "unknown method"
)

// Engine evaluates envelopes against a State. All calls are linearizable.
type Engine struct {
	mu     sync.RWMutex
	state  State
	height uint64
	logger *zap.Logger
}

var _ ledger.Backend = (*Engine)(nil)

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.Named("contract")
		}
	}
}

// New returns an engine over state, resuming at the state's height.
func New(ctx context.Context, state State, opts ...Option) (*Engine, error) {
	e := &Engine{state: state, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	h, err := state.Height(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "contract: read height")
	}
	e.height = h
	return e, nil
}

// Height returns the last committed block.
func (e *Engine) Height() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.height
}

// Close closes the underlying state.
func (e *Engine) Close() error { return e.state.Close() }

func (e *Engine) Call(ctx context.Context, env ledger.Envelope) (ledger.Rows, error) {
	caller, err := env.Sender()
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch env.Method {
	case ledger.MethodDisplay:
		if len(env.Args) != 1 {
			return nil, ledger.Revert(env.Method, ReasonArity)
		}
		user, err := account.Parse(env.Args[0])
		if err != nil {
			return nil, ledger.Revert(env.Method, ReasonBadAddress)
		}
		if user != caller {
			ok, err := e.allowed(ctx, user, caller)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ledger.Revert(env.Method, ReasonNoAccess)
			}
		}
		recs, err := e.state.Records(ctx, user)
		if err != nil {
			return nil, errors.Wrap(err, "contract: read records")
		}
		rows := make(ledger.Rows, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, map[string]any{
				model.FieldName:        r.Name,
				model.FieldDescription: r.Description,
				model.FieldURI:         r.URI,
			})
		}
		return rows, nil

	case ledger.MethodShareAccess:
		if len(env.Args) != 0 {
			return nil, ledger.Revert(env.Method, ReasonArity)
		}
		grants, err := e.state.Access(ctx, caller)
		if err != nil {
			return nil, errors.Wrap(err, "contract: read access")
		}
		rows := make(ledger.Rows, 0, len(grants))
		for _, g := range grants {
			rows = append(rows, map[string]any{
				model.FieldUser:   g.User.String(),
				model.FieldAccess: g.Allowed,
			})
		}
		return rows, nil

	default:
		return nil, ledger.Revert(env.Method, ReasonUnknownMethod)
	}
}

func (e *Engine) Transact(ctx context.Context, env ledger.Envelope) (ledger.Receipt, error) {
	caller, err := env.Sender()
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	block := e.height + 1
	switch env.Method {
	case ledger.MethodAdd:
		if len(env.Args) != 4 {
			return ledger.Receipt{}, ledger.Revert(env.Method, ReasonArity)
		}
		owner, err := account.Parse(env.Args[0])
		if err != nil {
			return ledger.Receipt{}, ledger.Revert(env.Method, ReasonBadAddress)
		}
		if owner != caller {
			return ledger.Receipt{}, ledger.Revert(env.Method, ReasonNotOwner)
		}
		rec := Record{Name: env.Args[1], Description: env.Args[2], URI: env.Args[3]}
		if err := e.state.AppendRecord(ctx, block, owner, rec); err != nil {
			return ledger.Receipt{}, errors.Wrap(err, "contract: append record")
		}

	case ledger.MethodAllow, ledger.MethodDisAllow:
		if len(env.Args) != 1 {
			return ledger.Receipt{}, ledger.Revert(env.Method, ReasonArity)
		}
		user, err := account.Parse(env.Args[0])
		if err != nil {
			return ledger.Receipt{}, ledger.Revert(env.Method, ReasonBadAddress)
		}
		if err := e.state.SetAccess(ctx, block, caller, user, env.Method == ledger.MethodAllow); err != nil {
			return ledger.Receipt{}, errors.Wrap(err, "contract: set access")
		}

	default:
		return ledger.Receipt{}, ledger.Revert(env.Method, ReasonUnknownMethod)
	}

	e.height = block
	e.logger.Debug("committed",
		zap.String("tx", env.ID),
		zap.String("method", env.Method),
		zap.Stringer("from", caller),
		zap.Uint64("block", block),
	)
	return ledger.Receipt{TxID: env.ID, Block: block}, nil
}

func (e *Engine) allowed(ctx context.Context, owner, viewer account.Account) (bool, error) {
	grants, err := e.state.Access(ctx, owner)
	if err != nil {
		return false, errors.Wrap(err, "contract: read access")
	}
	for _, g := range grants {
		if g.User == viewer {
			return g.Allowed, nil
		}
	}
	return false, nil
}
