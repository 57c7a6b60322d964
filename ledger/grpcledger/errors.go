package grpcledger

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/imagevault/ledger"
)

// toStatus maps backend errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if reason, ok := ledger.RevertReason(err); ok {
		return status.Error(codes.FailedPrecondition, reason)
	}
	if errors.Is(err, ledger.ErrBadSignature) {
		return status.Error(codes.PermissionDenied, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus maps gRPC status codes back onto ledger errors.
func fromStatus(method string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return ledger.Revert(method, st.Message())
	case codes.PermissionDenied:
		return errors.Wrap(ledger.ErrBadSignature, st.Message())
	default:
		return errors.Wrapf(err, "ledger rpc %s", method)
	}
}
