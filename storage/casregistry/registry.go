package casregistry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"xdao.co/imagevault/storage"
)

// Setting documents one backend configuration key.
type Setting struct {
	Key      string
	Usage    string
	Required bool
}

// Backend is a build-time plugin that can open a storage.CAS implementation.
//
// Backends register themselves in init():
//
//	casregistry.MustRegister(casregistry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Settings    []Setting

	// Open constructs the CAS from backend-specific settings. It returns an
	// optional close function.
	Open func(settings map[string]string) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return errors.New("casregistry: backend name is required")
	}
	if b.Open == nil {
		return errors.Newf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return errors.Newf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return errors.Newf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend if it exists and matches usage. Required settings
// are checked before the backend's Open is called.
func Open(name string, usage Usage, settings map[string]string) (storage.CAS, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, errors.Newf("unknown backend %q (have %v)", name, Names(usage))
	}
	if !b.Usage.allows(usage) {
		return nil, nil, errors.Newf("backend %q not supported in this binary", name)
	}
	for _, s := range b.Settings {
		if s.Required && settings[s.Key] == "" {
			return nil, nil, errors.Newf("backend %q: missing setting %q", name, s.Key)
		}
	}
	if settings == nil {
		settings = map[string]string{}
	}
	return b.Open(settings)
}
