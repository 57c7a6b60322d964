package ledger

import (
	"github.com/cockroachdb/errors"

	"xdao.co/imagevault/model"
)

// TransactError classifies a failed transaction. Every failure is LedgerRejected:
// the transaction was reverted, declined at signing, or never confirmed. A
// decline keeps its UserRejected mark.
func TransactError(err error, method string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "ledger: %s", method), model.ErrLedgerRejected)
}

// CallError classifies a failed read. A revert means the contract refused the
// caller (AccessDenied); anything else means the read did not come back
// (LedgerUnavailable). Provider and decline marks are kept.
func CallError(err error, method string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, "ledger: %s", method)
	switch {
	case errors.Is(err, model.ErrUserRejected), errors.Is(err, model.ErrProviderUnavailable):
		return wrapped
	case IsRevert(err):
		return errors.Mark(wrapped, model.ErrAccessDenied)
	default:
		return errors.Mark(wrapped, model.ErrLedgerUnavailable)
	}
}
