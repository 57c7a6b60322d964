// Package providertest provides a programmable in-memory provider.Provider.
package providertest

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/keys"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/provider"
)

// Provider exposes one switchable signer.
type Provider struct {
	mu          sync.Mutex
	signer      keys.Signer
	unavailable bool
	reject      bool
	requests    int
	subs        map[chan []account.Account]struct{}
}

var _ provider.Provider = (*Provider)(nil)

// New returns a provider whose active account is signer's.
func New(signer keys.Signer) *Provider {
	return &Provider{signer: signer, subs: map[chan []account.Account]struct{}{}}
}

// Switch changes the active signer and notifies every subscriber.
func (p *Provider) Switch(signer keys.Signer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signer = signer
	accounts := p.accountsLocked()
	for ch := range p.subs {
		// A pending notification already forces a rebind that reads the
		// current account, so a full buffer can drop this one.
		select {
		case ch <- accounts:
		default:
		}
	}
}

// SetUnavailable makes RequestAccounts and Signer fail with ProviderUnavailable.
func (p *Provider) SetUnavailable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = v
}

// SetReject makes RequestAccounts fail with UserRejected.
func (p *Provider) SetReject(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reject = v
}

// Requests returns the number of RequestAccounts calls.
func (p *Provider) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Subscribers returns the number of live AccountsChanged channels.
func (p *Provider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Provider) RequestAccounts(ctx context.Context) ([]account.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	switch {
	case p.unavailable || p.signer == nil:
		return nil, errors.Mark(errors.New("providertest: no provider"), model.ErrProviderUnavailable)
	case p.reject:
		return nil, errors.Mark(errors.New("providertest: connection declined"), model.ErrUserRejected)
	}
	return p.accountsLocked(), nil
}

func (p *Provider) Signer(ctx context.Context) (keys.Signer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unavailable || p.signer == nil {
		return nil, errors.Mark(errors.New("providertest: no provider"), model.ErrProviderUnavailable)
	}
	return p.signer, nil
}

func (p *Provider) AccountsChanged(ctx context.Context) <-chan []account.Account {
	ch := make(chan []account.Account, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, ch)
		close(ch)
	}()
	return ch
}

func (p *Provider) accountsLocked() []account.Account {
	if p.signer == nil {
		return nil
	}
	return []account.Account{p.signer.Account()}
}
