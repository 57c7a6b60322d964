package ipfs

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"

	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casregistry"
)

// CAS is a content-addressable store backed by the local Kubo "ipfs" CLI.
//
// It operates on the local IPFS repo and does not require a daemon. Blocks are
// stored raw with CIDv1 + sha2-256 so CIDs match cidutil.CIDv1RawSHA256CID, and
// every read is verified against the requested CID.
type CAS struct {
	bin string
	env []string
	pin bool
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
	// Pin pins blocks on Put.
	Pin bool
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env, pin: opts.Pin}
}

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI",
		Usage:       casregistry.UsageClient | casregistry.UsageDaemon,
		Settings: []casregistry.Setting{
			{Key: "bin", Usage: "path to the ipfs binary"},
			{Key: "repo", Usage: "IPFS_PATH for the repo"},
			{Key: "pin", Usage: "pin blocks on put (true/false)"},
		},
		Open: func(settings map[string]string) (storage.CAS, func() error, error) {
			opts := Options{Bin: settings["bin"], Pin: settings["pin"] == "true"}
			if repo := settings["repo"]; repo != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+repo)
			}
			return New(opts), nil, nil
		},
	})
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	args := []string{
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--cid-version=1",
	}
	if c.pin {
		args = append(args, "--pin=true")
	}
	out, err := c.run(ctx, data, append(args, "/dev/stdin")...)
	if err != nil {
		return cid.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, errors.Wrap(err, "ipfs: unexpected block put output")
	}
	if got.String() != id.String() {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Verify(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.run(ctx, nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (c *CAS) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, errors.Mark(errors.Newf("ipfs: %v", err), storage.ErrUnavailable)
		}
		return nil, errors.Newf("ipfs: %s", s)
	}
	return nil, errors.Mark(errors.Wrap(err, "ipfs"), storage.ErrUnavailable)
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found")
}
