package grpcledger

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/imagevault/ledger"
)

// Server exposes a ledger.Backend over the Ledger gRPC service.
type Server struct {
	UnimplementedLedgerServer
	Backend ledger.Backend
	Logger  *zap.Logger
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) decode(in *wrapperspb.BytesValue) (ledger.Envelope, error) {
	var env ledger.Envelope
	if s == nil || s.Backend == nil {
		return env, status.Error(codes.FailedPrecondition, "missing backend")
	}
	if err := ledger.Unmarshal(in.GetValue(), &env); err != nil {
		return env, status.Error(codes.InvalidArgument, "malformed envelope")
	}
	return env, nil
}

func (s *Server) Call(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	env, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	rows, err := s.Backend.Call(ctx, env)
	if err != nil {
		s.logger().Debug("call failed", zap.String("method", env.Method), zap.String("from", env.From), zap.Error(err))
		return nil, toStatus(err)
	}
	b, err := ledger.Marshal(rows)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Transact(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	env, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	receipt, err := s.Backend.Transact(ctx, env)
	if err != nil {
		s.logger().Info("transaction rejected", zap.String("method", env.Method), zap.String("from", env.From), zap.Error(err))
		return nil, toStatus(err)
	}
	s.logger().Info("transaction committed",
		zap.String("tx", receipt.TxID),
		zap.String("method", env.Method),
		zap.Uint64("block", receipt.Block),
	)
	b, err := ledger.Marshal(receipt)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(b), nil
}
