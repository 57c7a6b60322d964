// Package grpcledger carries ledger.Backend calls over gRPC.
package grpcledger

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/imagevault/ledger"
)

// Client implements ledger.Backend over the Ledger gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client LedgerClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ ledger.Backend = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		dialOpts = append(dialOpts, grpc.WithBlock())
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial ledger %s", target)
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewLedgerClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Call(ctx context.Context, env ledger.Envelope) (ledger.Rows, error) {
	in, err := encode(env)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Call(ctx, in)
	if err != nil {
		return nil, fromStatus(env.Method, err)
	}
	var rows ledger.Rows
	if err := ledger.Unmarshal(reply.GetValue(), &rows); err != nil {
		return nil, errors.Wrap(err, "decode call reply")
	}
	return rows, nil
}

func (c *Client) Transact(ctx context.Context, env ledger.Envelope) (ledger.Receipt, error) {
	in, err := encode(env)
	if err != nil {
		return ledger.Receipt{}, err
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Transact(ctx, in)
	if err != nil {
		return ledger.Receipt{}, fromStatus(env.Method, err)
	}
	var receipt ledger.Receipt
	if err := ledger.Unmarshal(reply.GetValue(), &receipt); err != nil {
		return ledger.Receipt{}, errors.Wrap(err, "decode receipt")
	}
	return receipt, nil
}

func encode(env ledger.Envelope) (*wrapperspb.BytesValue, error) {
	b, err := ledger.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	return wrapperspb.Bytes(b), nil
}

func (c *Client) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}
