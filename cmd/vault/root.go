package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/config"
	"xdao.co/imagevault/ledger"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/provider/keyring"
	"xdao.co/imagevault/storage/casregistry"
	"xdao.co/imagevault/vault"
)

type app struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	v      *viper.Viper
	cfg    config.Config
	logger *zap.Logger

	configPath string
	output     string
	yes        bool

	closeFn func() error
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{in: bufio.NewReader(in), out: out, errOut: errOut, v: config.New(), logger: zap.NewNop()}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vault",
		Short:         "Publish images and share them through the ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.imagevault/config.yaml)")
	pf.StringVarP(&a.output, "output", "o", "text", "output format: text or yaml")
	pf.BoolVarP(&a.yes, "yes", "y", false, "approve every transaction without prompting")
	pf.String("keystore", "", "key store directory")
	pf.String("ledger-target", "", "ledger daemon host:port")

	root.AddCommand(
		a.whoamiCmd(),
		a.publishCmd(),
		a.filesCmd(),
		a.searchCmd(),
		a.downloadCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.grantsCmd(),
		a.grantCmd(),
		a.revokeCmd(),
		a.keysCmd(),
		a.backendsCmd(),
		a.casCmd(),
	)
	return root
}

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"keystore":      "keystore",
	"ledger-target": "ledger.target",
}

func (a *app) load(cmd *cobra.Command) error {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			a.v.Set(key, f.Value.String())
		}
	})
	if a.output != "text" && a.output != "yaml" {
		return model.Markf(model.ErrInvalidInput, "unknown output format %q", a.output)
	}
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if cfg.Log.Development || cfg.Log.Level == "debug" {
		logger, err := cfg.Logger()
		if err != nil {
			return err
		}
		a.logger = logger
	}
	return nil
}

// openVault connects to the ledger and the store and binds the active account.
func (a *app) openVault(ctx context.Context) (*vault.Unit, error) {
	client, err := a.cfg.DialLedger()
	if err != nil {
		return nil, err
	}
	store, closeStore, err := a.cfg.OpenStore(casregistry.UsageClient)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	ring, err := keyring.New(keyring.Options{
		Store:  a.cfg.KeyStoreHandle(),
		Sign:   a.approve,
		Logger: a.logger,
	})
	if err != nil {
		_ = client.Close()
		_ = closeStore()
		return nil, err
	}
	vc, err := vault.Open(ctx, vault.Options{
		Provider: ring,
		Ledger:   client,
		Store:    store,
		Gateway:  a.cfg.Store.Gateway,
		Logger:   a.logger,
	})
	if err != nil {
		_ = client.Close()
		_ = closeStore()
		return nil, err
	}
	a.closeFn = func() error {
		return errors.CombineErrors(vc.Close(), errors.CombineErrors(closeStore(), client.Close()))
	}

	u, err := vc.Current()
	if err != nil {
		fmt.Fprintln(a.errOut, "Loading... (no active account: run `vault keys init` and `vault keys use`)")
		return nil, err
	}
	fmt.Fprintf(a.errOut, "Connected account: %s\n", u.Account().Short())
	return u, nil
}

// approve lets reads through and asks before every transaction.
func (a *app) approve(ctx context.Context, acct account.Account, message []byte) bool {
	var env ledger.Envelope
	if err := ledger.Unmarshal(message, &env); err != nil {
		return false
	}
	switch env.Method {
	case ledger.MethodDisplay, ledger.MethodShareAccess:
		return true
	}
	if a.yes {
		return true
	}
	fmt.Fprintf(a.errOut, "Sign %s(%s) as %s? [y/N] ", env.Method, strings.Join(env.Args, ", "), acct.Short())
	line, _ := a.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
