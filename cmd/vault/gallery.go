package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"xdao.co/imagevault/model"
	"xdao.co/imagevault/storage/bundle"
)

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the connected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			acct := u.Account()
			return a.emit(map[string]string{"account": acct.String(), "short": acct.Short()}, func() {
				fmt.Fprintln(a.out, acct)
			})
		},
	}
}

// sniffMime returns the detected MIME type of data without parameters.
func sniffMime(data []byte) string {
	m := mimetype.Detect(data)
	return m.String()
}

func (a *app) publishCmd() *cobra.Command {
	var name, description, mime string
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Upload an image and register it on the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return model.MarkWrap(err, model.ErrInvalidInput, "read image")
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			if mime == "" {
				mime = sniffMime(data)
			}
			u, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := u.Publish(cmd.Context(), name, description, data, mime)
			if err != nil {
				return err
			}
			return a.emit(rec, func() {
				fmt.Fprintf(a.out, "published %s\t%s\n", rec.Name, rec.ContentRef)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "file name (default: base name of <file>)")
	f.StringVar(&description, "description", "", "file description")
	f.StringVar(&mime, "mime", "", "MIME type (default: detected from content)")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func (a *app) filesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List your published files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			recs, err := u.Files(cmd.Context())
			if err != nil {
				return err
			}
			return a.printRecords(recs)
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <account>",
		Short: "List another account's files, if they granted you access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			recs, err := u.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printRecords(recs)
		},
	}
}

func (a *app) downloadCmd() *cobra.Command {
	var owner, out string
	cmd := &cobra.Command{
		Use:   "download <name>",
		Short: "Fetch a file's content by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := a.openVault(ctx)
			if err != nil {
				return err
			}
			var recs []model.FileRecord
			if owner == "" {
				recs, err = u.Files(ctx)
			} else {
				recs, err = u.Search(ctx, owner)
			}
			if err != nil {
				return err
			}
			var found *model.FileRecord
			for i := range recs {
				if recs[i].Name == args[0] {
					found = &recs[i]
					break
				}
			}
			if found == nil {
				return model.Markf(model.ErrInvalidInput, "no file named %q", args[0])
			}
			data, err := u.Download(ctx, *found)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Base(found.Name)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return errors.Wrapf(err, "write %s", out)
			}
			fmt.Fprintf(a.errOut, "wrote %d bytes to %s\n", len(data), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner account (default: yours)")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: file name)")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write your files and their content to a bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := u.Export(cmd.Context(), &buf); err != nil {
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return errors.Wrapf(err, "write %s", out)
			}
			fmt.Fprintf(a.errOut, "wrote bundle %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "vault.tar", "bundle path")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var ignoreUnknown bool
	cmd := &cobra.Command{
		Use:   "import <bundle>",
		Short: "Publish every file in a bundle under your account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return model.MarkWrap(err, model.ErrInvalidInput, "open bundle")
			}
			defer f.Close()

			u, err := a.openVault(ctx)
			if err != nil {
				return err
			}
			published, err := u.Import(ctx, f, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
			if err != nil {
				return err
			}
			return a.printRecords(published)
		},
	}
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "skip unrecognized bundle entries")
	return cmd
}
