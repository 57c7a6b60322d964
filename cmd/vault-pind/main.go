// Command vault-pind is a self-hosted pinning service. It accepts uploads on
// the pinning API, serves content under /ipfs/<cid>, and can expose the same
// store over gRPC.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/imagevault/config"
	"xdao.co/imagevault/storage/casregistry"
	"xdao.co/imagevault/storage/grpccas"
	"xdao.co/imagevault/storage/pinning"

	_ "xdao.co/imagevault/storage/ipfs"
	_ "xdao.co/imagevault/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	cmd := rootCmd(viper.New(), out)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "vault-pind: %v\n", err)
		return 1
	}
	return 0
}

func rootCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	var settings map[string]string
	cmd := &cobra.Command{
		Use:           "vault-pind",
		Short:         "Serve a pinning API over a content store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if v.GetBool("list-backends") {
				for _, b := range casregistry.List(casregistry.UsageDaemon) {
					fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
				}
				return nil
			}
			return start(cmd.Context(), v, settings)
		},
	}
	f := cmd.Flags()
	f.String("listen", strings.TrimPrefix(config.DefaultPinningAPI, "http://"), "pinning API listen address")
	f.String("grpc-listen", "", "also serve the store over gRPC on this address")
	f.String("backend", "localfs", "content store backend")
	f.StringToStringVar(&settings, "setting", nil, "backend setting key=value (repeatable)")
	f.String("api-key", "", "required upload API key")
	f.String("api-secret", "", "required upload API secret")
	f.Int("max-size", pinning.DefaultMaxSize, "largest accepted upload in bytes")
	f.Bool("list-backends", false, "list supported backends and exit")
	f.Bool("dev", false, "development logging")

	v.SetEnvPrefix(config.EnvPrefix + "_PIND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func start(ctx context.Context, v *viper.Viper, settings map[string]string) error {
	logger := zap.NewNop()
	var err error
	if v.GetBool("dev") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cas, closeFn, err := casregistry.Open(v.GetString("backend"), casregistry.UsageDaemon, settings)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}

	lis, err := net.Listen("tcp", v.GetString("listen"))
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	var grpcLis net.Listener
	if addr := v.GetString("grpc-listen"); addr != "" {
		if grpcLis, err = net.Listen("tcp", addr); err != nil {
			_ = lis.Close()
			return errors.Wrap(err, "grpc listen")
		}
	}
	srv := &pinning.Server{
		CAS:       cas,
		APIKey:    v.GetString("api-key"),
		APISecret: v.GetString("api-secret"),
		MaxSize:   v.GetInt("max-size"),
		Logger:    logger.Named("pinning"),
	}
	return serve(ctx, srv, lis, grpcLis, logger)
}

// serve runs the pinning API on lis and, when grpcLis is non-nil, the gRPC
// store service. Both stop when ctx is done or either one fails.
func serve(ctx context.Context, srv *pinning.Server, lis, grpcLis net.Listener, logger *zap.Logger) error {
	errCh := make(chan error, 2)

	app := srv.App()
	go func() { errCh <- errors.Wrap(app.Listener(lis), "pinning api") }()
	logger.Info("pinning api listening", zap.String("addr", lis.Addr().String()))

	var gs *grpc.Server
	if grpcLis != nil {
		gs = grpc.NewServer()
		grpccas.RegisterCASServer(gs, &grpccas.Server{CAS: srv.CAS, Logger: logger.Named("grpccas")})
		go func() { errCh <- errors.Wrap(gs.Serve(grpcLis), "grpc store") }()
		logger.Info("grpc store listening", zap.String("addr", grpcLis.Addr().String()))
	}

	var err error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server stopped", zap.Error(err))
	}
	if gs != nil {
		gs.GracefulStop()
	}
	return errors.CombineErrors(err, app.Shutdown())
}
