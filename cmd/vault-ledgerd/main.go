// Command vault-ledgerd serves the file registry contract over gRPC.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/imagevault/config"
	"xdao.co/imagevault/ledger/contract"
	"xdao.co/imagevault/ledger/grpcledger"
	"xdao.co/imagevault/ledger/sqlstate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, errOut io.Writer) int {
	v := viper.New()
	cmd := rootCmd(v)
	cmd.SetArgs(args)
	cmd.SetOut(errOut)
	cmd.SetErr(errOut)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "vault-ledgerd: %v\n", err)
		return 1
	}
	return 0
}

func rootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vault-ledgerd",
		Short:         "Serve the file registry ledger",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return start(cmd.Context(), v)
		},
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	f := cmd.Flags()
	f.String("listen", config.DefaultLedgerTarget, "listen address")
	f.String("db", filepath.Join(home, config.Dir, "ledger.db"), "sqlite database path")
	f.Bool("mem", false, "keep ledger state in memory only")
	f.Int("pool-size", 4, "sqlite connection pool size")
	f.Bool("dev", false, "development logging")

	v.SetEnvPrefix(config.EnvPrefix + "_LEDGERD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func start(ctx context.Context, v *viper.Viper) error {
	logger, err := newLogger(v.GetBool("dev"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	engine, closeState, err := openEngine(ctx, v, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeState(); err != nil {
			logger.Error("close state", zap.Error(err))
		}
	}()

	lis, err := net.Listen("tcp", v.GetString("listen"))
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	return serve(ctx, lis, engine, logger)
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openEngine(ctx context.Context, v *viper.Viper, logger *zap.Logger) (*contract.Engine, func() error, error) {
	if v.GetBool("mem") {
		e, err := contract.New(ctx, contract.NewMemState(), contract.WithLogger(logger))
		return e, func() error { return nil }, err
	}
	path := v.GetString("db")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, errors.Wrap(err, "create database directory")
	}
	state, err := sqlstate.Open(sqlstate.Config{Path: path, PoolSize: v.GetInt("pool-size"), Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	e, err := contract.New(ctx, state, contract.WithLogger(logger))
	if err != nil {
		_ = state.Close()
		return nil, nil, err
	}
	return e, state.Close, nil
}

// serve runs the gRPC ledger on lis until ctx is done.
func serve(ctx context.Context, lis net.Listener, engine *contract.Engine, logger *zap.Logger) error {
	srv := grpc.NewServer()
	grpcledger.RegisterLedgerServer(srv, &grpcledger.Server{Backend: engine, Logger: logger})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	logger.Info("listening", zap.String("addr", lis.Addr().String()))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
