package model

import "xdao.co/imagevault/account"

// FileRecord is a published file's metadata plus its content reference.
type FileRecord struct {
	Owner       account.Account `json:"owner" yaml:"owner"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	ContentRef  string          `json:"contentRef" yaml:"contentRef"`
}

// AccessGrant records whether Grantee currently has read visibility into the
// owner's records. Revocation flips Active; entries are never removed.
type AccessGrant struct {
	Grantee account.Account `json:"grantee" yaml:"grantee"`
	Active  bool            `json:"active" yaml:"active"`
}

// Status renders the grant the way the access list displays it.
func (g AccessGrant) Status() string {
	if g.Active {
		return "granted"
	}
	return "revoked"
}
