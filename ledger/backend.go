package ledger

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Rows is a loosely typed read reply.
type Rows = []map[string]any

// Receipt confirms a committed transaction.
type Receipt struct {
	TxID  string `cbor:"txid" json:"txid"`
	Block uint64 `cbor:"block" json:"block"`
}

// Backend is the ledger's call surface. Implementations must be linearizable:
// a Call issued after a Transact returns observes that transaction.
type Backend interface {
	Call(ctx context.Context, env Envelope) (Rows, error)
	Transact(ctx context.Context, env Envelope) (Receipt, error)
}

// RevertError is a contract-level refusal.
type RevertError struct {
	Method string
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("ledger: %s reverted: %s", e.Method, e.Reason)
}

// Revert returns a *RevertError.
func Revert(method, reason string) error {
	return &RevertError{Method: method, Reason: reason}
}

// IsRevert reports whether err carries a contract revert.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// RevertReason returns the revert reason carried by err, if any.
func RevertReason(err error) (string, bool) {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
