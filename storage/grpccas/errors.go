package grpccas

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/imagevault/storage"
)

// mapErr converts a storage error into a gRPC status.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts a gRPC status back into a storage error.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.Mark(err, storage.ErrUnavailable)
	}

	switch st.Code() {
	case codes.NotFound:
		return errors.Wrap(storage.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return errors.Wrap(storage.ErrInvalidCID, st.Message())
	case codes.DataLoss:
		return errors.Wrap(storage.ErrCIDMismatch, st.Message())
	case codes.ResourceExhausted:
		return errors.Wrap(storage.ErrTooLarge, st.Message())
	default:
		// Transport failures and server faults alike leave the object unreachable.
		return errors.Mark(errors.Wrap(err, "grpc cas"), storage.ErrUnavailable)
	}
}
