package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/keys"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/storage/casregistry"
)

func (a *app) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the local key store",
	}
	cmd.AddCommand(a.keysInitCmd(), a.keysDeriveCmd(), a.keysListCmd(), a.keysUseCmd())
	return cmd
}

func (a *app) keysInitCmd() *cobra.Command {
	var scheme, seedHex string
	var force, use bool
	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create a root key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := a.cfg.KeyStoreHandle()
			s, err := keys.ParseScheme(scheme)
			if err != nil {
				return model.MarkWrap(err, model.ErrInvalidInput, "keys init")
			}
			var (
				acct account.Account
				path string
			)
			if seedHex != "" {
				seed, err := keys.ParseSeedHex(seedHex)
				if err != nil {
					return model.MarkWrap(err, model.ErrInvalidInput, "keys init")
				}
				acct, path, err = ks.InitializeRootKey(args[0], s, seed, force)
				if err != nil {
					return model.MarkWrap(err, model.ErrInvalidInput, "keys init")
				}
			} else {
				acct, path, err = ks.GenerateRootKey(args[0], s, nil)
				if err != nil {
					return model.MarkWrap(err, model.ErrInvalidInput, "keys init")
				}
			}
			if use {
				if err := ks.SetActive(args[0]); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.errOut, "wrote %s\n", path)
			fmt.Fprintln(a.out, acct)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&scheme, "scheme", string(keys.Ed25519), "signature scheme: ed25519 or dilithium3")
	f.StringVar(&seedHex, "seed-hex", "", "32-byte seed as hex (default: random)")
	f.BoolVar(&force, "force", false, "overwrite an existing key (with --seed-hex)")
	f.BoolVar(&use, "use", false, "make the new key active")
	return cmd
}

func (a *app) keysDeriveCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "derive <name> <role>",
		Short: "Derive a role key from a root key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, path, err := a.cfg.KeyStoreHandle().DeriveKeyFromRole(args[0], args[1], force)
			if err != nil {
				return model.MarkWrap(err, model.ErrInvalidInput, "keys derive")
			}
			fmt.Fprintf(a.errOut, "wrote %s\n", path)
			fmt.Fprintln(a.out, acct)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing role key")
	return cmd
}

func (a *app) keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keys and their accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.cfg.KeyStoreHandle().ListKeys()
			if err != nil {
				return err
			}
			return a.emit(entries, func() {
				for _, e := range entries {
					fmt.Fprintf(a.out, "%s%s\t%s\t%s\n", marker(e.Active), e.Identifier, e.Scheme, e.Account)
					for _, r := range e.Roles {
						fmt.Fprintf(a.out, "%s%s/%s\t%s\t%s\n", marker(r.Active), e.Identifier, r.Role, e.Scheme, r.Account)
					}
				}
			})
		},
	}
}

func marker(active bool) string {
	if active {
		return "* "
	}
	return "  "
}

func (a *app) keysUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name[/role]>",
		Short: "Select the active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := a.cfg.KeyStoreHandle()
			if err := ks.SetActive(args[0]); err != nil {
				return model.MarkWrap(err, model.ErrInvalidInput, "keys use")
			}
			signer, err := ks.LoadSigner(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "active: %s (%s)\n", args[0], signer.Account().Short())
			return nil
		},
	}
}

func (a *app) backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the content store backends built into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := casregistry.List(casregistry.UsageClient)
			type view struct {
				Name        string   `yaml:"name"`
				Description string   `yaml:"description"`
				Settings    []string `yaml:"settings"`
			}
			out := make([]view, 0, len(list))
			for _, b := range list {
				v := view{Name: b.Name, Description: b.Description}
				for _, s := range b.Settings {
					key := s.Key
					if s.Required {
						key += " (required)"
					}
					v.Settings = append(v.Settings, key)
				}
				out = append(out, v)
			}
			return a.emit(out, func() {
				for _, v := range out {
					fmt.Fprintf(a.out, "%s\t%s\n", v.Name, v.Description)
					if len(v.Settings) > 0 {
						fmt.Fprintf(a.out, "\t%s\n", strings.Join(v.Settings, ", "))
					}
				}
			})
		},
	}
}
