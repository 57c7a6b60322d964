package pinning

import (
	"io"
	"strings"
)

func bodyOf(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }
