// Command vault publishes images to a content store, registers them on the
// ledger, and manages who may see them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"

	"xdao.co/imagevault/model"

	_ "xdao.co/imagevault/storage/grpccas"
	_ "xdao.co/imagevault/storage/ipfs"
	_ "xdao.co/imagevault/storage/localfs"
	_ "xdao.co/imagevault/storage/pinning"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line. Exit codes: 0 success, 1 failure, 2 input
// that must be corrected.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	a := newApp(in, out, errOut)
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	if a.closeFn != nil {
		err = errors.CombineErrors(err, a.closeFn())
	}
	if err == nil {
		return 0
	}
	ce := model.ToCoded(err)
	fmt.Fprintf(errOut, "error: %s\n", ce.Error())
	if ce.Advice != "" {
		fmt.Fprintf(errOut, "advice: %s\n", ce.Advice)
	}
	if ce.Code == model.CodeInvalidInput {
		return 2
	}
	return 1
}
