package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) grantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grants",
		Short: "List the accounts you have shared your files with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			grants, err := u.ListGrants(cmd.Context())
			if err != nil {
				return err
			}
			return a.printGrants(grants, true)
		},
	}
}

func (a *app) grantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <account>",
		Short: "Let an account see your files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			if err := u.Grant(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.errOut, "granted %s\n", args[0])
			grants, fresh := u.Grants()
			return a.printGrants(grants, fresh)
		},
	}
}

func (a *app) revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <account>",
		Short: "Stop an account from seeing your files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			if err := u.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.errOut, "revoked %s\n", args[0])
			grants, fresh := u.Grants()
			return a.printGrants(grants, fresh)
		},
	}
}
