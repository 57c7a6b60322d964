package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casregistry"
)

// casCmd talks to the configured content store directly, without the ledger.
func (a *app) casCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cas",
		Short: "Put and get raw blocks in the configured content store",
	}
	cmd.AddCommand(a.casPutCmd(), a.casGetCmd())
	return cmd
}

func (a *app) openStore() (storage.CAS, error) {
	store, closeStore, err := a.cfg.OpenStore(casregistry.UsageClient)
	if err != nil {
		return nil, err
	}
	prev := a.closeFn
	a.closeFn = func() error {
		err := closeStore()
		if prev != nil {
			err = errors.CombineErrors(prev(), err)
		}
		return err
	}
	return store, nil
}

func (a *app) casPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file|->",
		Short: "Store a file and print its content reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return model.MarkWrap(err, model.ErrInvalidInput, "read input")
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			id, err := store.Put(cmd.Context(), data)
			if err != nil {
				return model.MarkWrap(err, model.ErrStoreFailure, "put")
			}
			fmt.Fprintln(a.out, cidutil.URI(a.cfg.Store.Gateway, id))
			return nil
		},
	}
}

func (a *app) casGetCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get <cid|ref>",
		Short: "Fetch a block by CID or content reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cid.Decode(args[0])
			if err != nil {
				if id, err = cidutil.ParseURI(args[0]); err != nil {
					return model.MarkWrap(err, model.ErrInvalidInput, "get")
				}
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			data, err := store.Get(cmd.Context(), id)
			if err != nil {
				return model.MarkWrap(err, model.ErrStoreFailure, "get")
			}
			if !cidutil.Verify(id, data) {
				return errors.Mark(errors.Wrapf(storage.ErrCIDMismatch, "get %s", id), model.ErrStoreFailure)
			}
			if out == "" || out == "-" {
				_, err = a.out.Write(data)
				return err
			}
			return errors.Wrapf(os.WriteFile(out, data, 0o644), "write %s", out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "-", "output path")
	return cmd
}
