package ledger

import (
	"context"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/keys"
)

// Contract is a call handle bound to one signer.
type Contract struct {
	backend Backend
	signer  keys.Signer
}

// Bind returns a handle that signs every envelope with signer.
func Bind(backend Backend, signer keys.Signer) *Contract {
	return &Contract{backend: backend, signer: signer}
}

// Account returns the account the handle signs for.
func (c *Contract) Account() account.Account { return c.signer.Account() }

// Add registers a file record for owner.
func (c *Contract) Add(ctx context.Context, owner account.Account, name, description, uri string) (Receipt, error) {
	return c.transact(ctx, MethodAdd, owner.String(), name, description, uri)
}

// Display returns user's records as seen by the caller.
func (c *Contract) Display(ctx context.Context, user account.Account) (Rows, error) {
	return c.call(ctx, MethodDisplay, user.String())
}

// ShareAccess returns the caller's access list.
func (c *Contract) ShareAccess(ctx context.Context) (Rows, error) {
	return c.call(ctx, MethodShareAccess)
}

// Allow grants user read access to the caller's records.
func (c *Contract) Allow(ctx context.Context, user account.Account) (Receipt, error) {
	return c.transact(ctx, MethodAllow, user.String())
}

// DisAllow revokes user's read access.
func (c *Contract) DisAllow(ctx context.Context, user account.Account) (Receipt, error) {
	return c.transact(ctx, MethodDisAllow, user.String())
}

func (c *Contract) call(ctx context.Context, method string, args ...string) (Rows, error) {
	env, err := Seal(ctx, c.signer, method, args...)
	if err != nil {
		return nil, err
	}
	return c.backend.Call(ctx, env)
}

func (c *Contract) transact(ctx context.Context, method string, args ...string) (Receipt, error) {
	env, err := Seal(ctx, c.signer, method, args...)
	if err != nil {
		return Receipt{}, err
	}
	return c.backend.Transact(ctx, env)
}
