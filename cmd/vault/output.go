package main

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"xdao.co/imagevault/model"
)

func (a *app) emit(v any, text func()) error {
	if a.output == "yaml" {
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	text()
	return nil
}

func (a *app) printRecords(recs []model.FileRecord) error {
	return a.emit(recs, func() {
		if len(recs) == 0 {
			fmt.Fprintln(a.out, "no files")
			return
		}
		for i, r := range recs {
			fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\n", i+1, r.Name, r.Description, r.ContentRef)
		}
	})
}

func (a *app) printGrants(grants []model.AccessGrant, fresh bool) error {
	type view struct {
		Grants []model.AccessGrant `yaml:"grants"`
		Stale  bool                `yaml:"stale,omitempty"`
	}
	return a.emit(view{Grants: grants, Stale: !fresh}, func() {
		if !fresh {
			fmt.Fprintln(a.out, "warning: access list may be out of date")
		}
		if len(grants) == 0 {
			fmt.Fprintln(a.out, "no grants")
			return
		}
		for _, g := range grants {
			fmt.Fprintf(a.out, "%s\t%s\n", g.Grantee, g.Status())
		}
	})
}
