package ipfs

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"

	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/testkit"
)

func TestIPFS_Conformance(t *testing.T) {
	bin, err := exec.LookPath("ipfs")
	if err != nil {
		t.Skip("ipfs binary not installed")
	}
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		repo := filepath.Join(t.TempDir(), "repo")
		initCmd := exec.Command(bin, "init", "--profile=test")
		initCmd.Env = []string{"IPFS_PATH=" + repo}
		if out, err := initCmd.CombinedOutput(); err != nil {
			t.Skipf("ipfs init failed: %v: %s", err, out)
		}
		return New(Options{Bin: bin, Env: []string{"IPFS_PATH=" + repo}})
	})
}

func TestMissingBinaryIsUnavailable(t *testing.T) {
	c := New(Options{Bin: filepath.Join(t.TempDir(), "no-such-ipfs")})
	_, err := c.run(t.Context(), nil, "version")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("got %v want ErrUnavailable", err)
	}
}

func TestIsLikelyNotFound(t *testing.T) {
	if !isLikelyNotFound(errors.New("ipfs: block was not found locally (offline)")) {
		t.Fatalf("expected not found")
	}
	if isLikelyNotFound(errors.New("ipfs: repo locked")) {
		t.Fatalf("unexpected not found")
	}
	if isLikelyNotFound(nil) {
		t.Fatalf("nil is not not-found")
	}
}
