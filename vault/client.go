// Package vault ties the session binder and the three session-scoped components
// into one client that survives identity changes.
//
// The client holds at most one Unit. When the provider reports an identity
// change the Unit is discarded first, so nothing cached for the old account is
// reachable, and then a fresh Unit is bound. While no Unit is bound the client
// is Loading.
package vault

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/provider"
	"xdao.co/imagevault/session"
	"xdao.co/imagevault/storage"
)

type State int

const (
	StateLoading State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrLoading is returned by Current while no session is bound.
	ErrLoading = errors.Mark(errors.New("vault: loading"), model.ErrProviderUnavailable)
	ErrClosed  = errors.New("vault: closed")
)

type Options struct {
	Provider provider.Provider
	Ledger   ledger.Backend
	Store    storage.CAS
	// Gateway is passed to the publisher for content refs.
	Gateway string
	Logger  *zap.Logger
}

type Client struct {
	provider provider.Provider
	binder   *session.Binder
	store    storage.CAS
	gateway  string
	logger   *zap.Logger

	bindMu sync.Mutex

	mu      sync.Mutex
	unit    *Unit
	lastErr error
	closed  bool

	// changes is one provider subscription held for the client's lifetime.
	changes <-chan []account.Account
	kick    chan struct{}
	cancel  context.CancelFunc
	done   chan struct{}
}

// Open binds a first Unit and starts following identity changes. A failed first
// bind is not an error: the client starts Loading and binds once the provider
// reports an account.
func Open(ctx context.Context, opts Options) (*Client, error) {
	if opts.Ledger == nil {
		return nil, errors.New("vault: missing ledger backend")
	}
	if opts.Store == nil {
		return nil, errors.New("vault: missing content store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		provider: opts.Provider,
		binder:   session.NewBinder(opts.Provider, opts.Ledger, session.WithLogger(logger)),
		store:    opts.Store,
		gateway:  opts.Gateway,
		logger:   logger.Named("vault"),
		kick:     make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	// Subscribe before the first bind so a switch during it is not missed.
	if opts.Provider != nil {
		c.changes = opts.Provider.AccountsChanged(runCtx)
	}
	if _, err := c.Connect(ctx); err != nil {
		c.logger.Warn("not connected", zap.String("kind", string(model.KindOf(err))), zap.Error(err))
	}
	go c.run(runCtx)
	return c, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return StateClosed
	case c.unit == nil:
		return StateLoading
	default:
		return StateReady
	}
}

// Current returns the bound Unit. While Loading it returns an error marked
// ProviderUnavailable, or the last bind failure.
func (c *Client) Current() (*Unit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return nil, ErrClosed
	case c.unit != nil:
		return c.unit, nil
	case c.lastErr != nil:
		return nil, errors.Mark(errors.Wrap(c.lastErr, "vault"), ErrLoading)
	default:
		return nil, ErrLoading
	}
}

// Connect returns the bound Unit, binding a fresh one if there is none.
func (c *Client) Connect(ctx context.Context) (*Unit, error) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrClosed
	case c.unit != nil && c.unit.Err() == nil:
		u := c.unit
		c.mu.Unlock()
		return u, nil
	}
	stale := c.unit
	c.mu.Unlock()
	if stale != nil {
		c.discard(stale)
	}

	u, err := c.bind(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if u != nil {
			u.discard()
		}
		return nil, ErrClosed
	}
	c.unit, c.lastErr = u, err
	if err != nil {
		return nil, err
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
	c.logger.Info("ready", zap.Stringer("account", u.Account()), zap.String("session", u.session.ID()))
	return u, nil
}

func (c *Client) bind(ctx context.Context) (*Unit, error) {
	s, err := c.binder.Bind(ctx)
	if err != nil {
		return nil, err
	}
	u, err := newUnit(s, c.store, c.gateway, c.logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return u, nil
}

// discard drops u if it is still current.
func (c *Client) discard(u *Unit) {
	c.mu.Lock()
	if c.unit == u {
		c.unit = nil
		c.lastErr = nil
	}
	c.mu.Unlock()
	u.discard()
	c.logger.Info("session discarded", zap.Stringer("account", u.Account()), zap.String("session", u.session.ID()))
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	changes := c.changes
	for {
		c.mu.Lock()
		u := c.unit
		c.mu.Unlock()

		if u != nil {
			// The session follows identity changes itself; drain them here so the
			// subscription only carries what arrives while Loading.
			select {
			case <-u.session.Invalidated():
				c.discard(u)
			case _, ok := <-changes:
				if !ok {
					changes = nil
				}
				continue
			case <-ctx.Done():
				return
			}
		} else if !c.waitForAccounts(ctx, &changes) {
			return
		}

		if _, err := c.Connect(ctx); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			c.logger.Warn("rebind failed", zap.String("kind", string(model.KindOf(err))), zap.Error(err))
		}
	}
}

// waitForAccounts blocks while Loading until the provider reports an account
// change or Connect is called. It returns false when ctx is done. A closed
// subscription is set to nil.
func (c *Client) waitForAccounts(ctx context.Context, changes *<-chan []account.Account) bool {
	for {
		select {
		case _, ok := <-*changes:
			if !ok {
				*changes = nil
				continue
			}
			return true
		case <-c.kick:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// Close discards the current Unit and stops following the provider.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	u := c.unit
	c.unit = nil
	c.mu.Unlock()

	c.cancel()
	<-c.done
	if u != nil {
		u.discard()
	}
	return nil
}
