package casconfig

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casregistry"
)

// Config describes how to open one or more CAS backends via casregistry.
// Callers still need to link desired backends via blank imports.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to all backends and require CID equality (see storage.ReplicatingCAS)
//
// Example (YAML):
//
//	write_policy: first
//	backends:
//	  - name: pinning
//	    config: {api: "https://api.pinata.cloud", gateway: "https://gateway.pinata.cloud"}
//	  - name: localfs
//	    id: cache
//	    config: {dir: /tmp/cas}
type Config struct {
	WritePolicy string          `mapstructure:"write_policy" yaml:"write_policy,omitempty" validate:"omitempty,oneof=first all"`
	Backends    []BackendConfig `mapstructure:"backends" yaml:"backends" validate:"required,min=1,dive"`
}

type BackendConfig struct {
	// Name is the casregistry backend name to open (e.g. "pinning", "localfs", "ipfs").
	Name string `mapstructure:"name" yaml:"name" validate:"required"`
	// ID is an optional stable alias used for identification and per-backend CID maps.
	// If empty, Name is used.
	ID     string            `mapstructure:"id" yaml:"id,omitempty"`
	Config map[string]string `mapstructure:"config" yaml:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "casconfig")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if _, ok := seen[b.id()]; ok {
			return errors.Newf("casconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	return nil
}

// Open opens a CAS per config.
//
// If preferredBackend is non-empty, backends are reordered so preferredBackend
// is first (and thus used for writes when WritePolicy=="first").
func (c Config) Open(usage casregistry.Usage, preferredBackend string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferredBackend != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferredBackend || ordered[i].ID == preferredBackend {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, errors.Newf("casconfig: preferred backend %q not found in config", preferredBackend)
		}
		if idx != 0 {
			b := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = b
		}
	}

	named := make([]storage.NamedCAS, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	closeAll := func() error {
		var err error
		for i := len(closers) - 1; i >= 0; i-- {
			err = errors.CombineErrors(err, closers[i]())
		}
		return err
	}
	for _, b := range ordered {
		cas, closeFn, err := casregistry.Open(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, errors.Wrapf(err, "casconfig: backend %q", b.id())
		}
		named = append(named, storage.NamedCAS{Name: b.id(), CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}

	switch c.WritePolicy {
	case "", "first":
		adapters := make([]storage.CAS, 0, len(named))
		for _, n := range named {
			adapters = append(adapters, n.CAS)
		}
		return storage.MultiCAS{Adapters: adapters}, closeAll, nil
	case "all":
		return storage.ReplicatingCAS{Backends: named}, closeAll, nil
	default:
		return nil, nil, errors.Newf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}
