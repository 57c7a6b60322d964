// Package bundle exports a gallery (file records plus their content blocks) as a
// deterministic TAR archive, and imports one back into a CAS.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

// IndexFile is the name of the gallery index entry.
const IndexFile = "index.json"

var epoch0 = time.Unix(0, 0).UTC()

// Index is the gallery index stored alongside the blocks. It is informational:
// the ledger stays authoritative for the records it lists.
type Index struct {
	Version int           `json:"version"`
	Owner   string        `json:"owner"`
	Records []IndexRecord `json:"records"`
}

type IndexRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ContentRef  string `json:"contentRef"`
	CID         string `json:"cid"`
	Size        int    `json:"size"`
}

// Export writes records and their content blocks to w.
//
// Entry order is lexicographic and TAR headers are normalized, so the same
// gallery always produces the same bytes. Records are listed in the order given.
// Raw blocks are validated against their CIDs.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, owner account.Account, records []model.FileRecord) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}

	idx := Index{Version: FormatVersion, Owner: owner.String(), Records: make([]IndexRecord, 0, len(records))}
	blocks := map[string][]byte{}
	for _, rec := range records {
		id, err := cidutil.ParseURI(rec.ContentRef)
		if err != nil {
			return errors.Wrapf(err, "bundle: record %q", rec.Name)
		}
		key := id.String()
		b, ok := blocks[key]
		if !ok {
			b, err = cas.Get(ctx, id)
			if err != nil {
				return errors.Wrapf(err, "bundle: record %q", rec.Name)
			}
			if !cidutil.Verify(id, b) {
				return storage.ErrCIDMismatch
			}
			blocks[key] = b
		}
		idx.Records = append(idx.Records, IndexRecord{
			Name:        rec.Name,
			Description: rec.Description,
			ContentRef:  rec.ContentRef,
			CID:         key,
			Size:        len(b),
		})
	}

	names := make([]string, 0, len(blocks))
	for k := range blocks {
		names = append(names, k)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	for _, k := range names {
		if err := writeFile(tw, "blocks/"+k, blocks[k]); err != nil {
			_ = tw.Close()
			return err
		}
	}
	b, err := json.Marshal(idx)
	if err != nil {
		_ = tw.Close()
		return err
	}
	if err := writeFile(tw, IndexFile, append(b, '\n')); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Import reads a bundle from r, stores every block in cas, and returns the index.
// Blocks must be raw so their bytes can be checked against the entry name.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (*Index, error) {
	if cas == nil {
		return nil, errors.New("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var idx *Index

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return nil, errors.Newf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return nil, errors.Newf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == IndexFile {
			var parsed Index
			if err := json.NewDecoder(tr).Decode(&parsed); err != nil {
				return nil, errors.Wrap(err, "bundle: decode index")
			}
			idx = &parsed
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return nil, errors.Newf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if derr != nil || !cidutil.Verifiable(id) {
			return nil, storage.ErrInvalidCID
		}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return nil, rerr
		}
		if !cidutil.Verify(id, payload) {
			return nil, storage.ErrCIDMismatch
		}

		key := id.String()
		if _, ok := seen[key]; ok {
			return nil, errors.Newf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		putID, perr := cas.Put(ctx, payload)
		if perr != nil {
			return nil, perr
		}
		if putID.String() != key {
			return nil, storage.ErrCIDMismatch
		}
	}

	if idx == nil {
		idx = &Index{Version: FormatVersion}
	}
	for _, rec := range idx.Records {
		if _, ok := seen[rec.CID]; !ok {
			return nil, errors.Newf("bundle: index references missing block %s (%q)", rec.CID, rec.Name)
		}
	}
	return idx, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
