// Package config loads client and daemon configuration.
//
// Values come from, in increasing precedence: defaults, a YAML file
// (default ~/.imagevault/config.yaml), IMAGEVAULT_* environment variables, and
// command-line flags bound by the caller. Only this package and cmd/ know
// about viper; everything else takes plain option structs.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xdao.co/imagevault/keys"
	"xdao.co/imagevault/ledger/grpcledger"
	"xdao.co/imagevault/model"
	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casconfig"
	"xdao.co/imagevault/storage/casregistry"
)

const (
	EnvPrefix = "IMAGEVAULT"

	// Dir is the per-user directory under $HOME.
	Dir = ".imagevault"

	DefaultLedgerTarget = "127.0.0.1:7790"
	DefaultPinningAPI   = "http://127.0.0.1:7781"
)

type Config struct {
	KeyStore string       `mapstructure:"keystore" yaml:"keystore" validate:"required"`
	Ledger   LedgerConfig `mapstructure:"ledger" yaml:"ledger"`
	Store    StoreConfig  `mapstructure:"store" yaml:"store"`
	Log      LogConfig    `mapstructure:"log" yaml:"log"`
}

type LedgerConfig struct {
	Target      string        `mapstructure:"target" yaml:"target" validate:"required,hostname_port"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" validate:"gte=0"`
	// Timeout bounds each RPC when non-zero.
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty" validate:"gte=0"`
	MaxMsgBytes int           `mapstructure:"max_msg_bytes" yaml:"max_msg_bytes,omitempty" validate:"gte=0"`
}

type StoreConfig struct {
	casconfig.Config `mapstructure:",squash" yaml:",inline"`

	// Gateway, when set, makes published content refs gateway URLs.
	Gateway string `mapstructure:"gateway" yaml:"gateway,omitempty" validate:"omitempty,url"`
	// Preferred names the backend that receives writes.
	Preferred string `mapstructure:"preferred" yaml:"preferred,omitempty"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

var validate = validator.New()

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	ks, err := keys.GetDefaultDirectory()
	if err != nil {
		ks = filepath.Join(home, Dir, "keys")
	}
	v.SetDefault("keystore", ks)
	v.SetDefault("ledger.target", DefaultLedgerTarget)
	v.SetDefault("ledger.dial_timeout", 5*time.Second)
	v.SetDefault("ledger.timeout", time.Duration(0))
	v.SetDefault("ledger.max_msg_bytes", 0)
	v.SetDefault("store.write_policy", "first")
	v.SetDefault("store.gateway", "")
	v.SetDefault("store.preferred", "")
	v.SetDefault("store.backends", []map[string]any{
		{"name": "pinning", "config": map[string]any{"api": DefaultPinningAPI}},
	})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(home, Dir))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or the default location when empty) into v and decodes it.
// A missing default file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "config: read")
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "config: decode")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "config"), model.ErrInvalidInput)
	}
	if err := c.Store.Config.Validate(); err != nil {
		return errors.Mark(err, model.ErrInvalidInput)
	}
	return nil
}

// Logger builds the process logger.
func (c Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Log.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
			return nil, errors.Wrapf(err, "config: log.level %q", c.Log.Level)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

// KeyStoreHandle returns the configured key store.
func (c Config) KeyStoreHandle() *keys.KeyStore {
	return &keys.KeyStore{Directory: c.KeyStore}
}

// OpenStore opens the configured CAS stack.
func (c Config) OpenStore(usage casregistry.Usage) (storage.CAS, func() error, error) {
	cas, closeFn, err := c.Store.Config.Open(usage, c.Store.Preferred)
	if err != nil {
		return nil, nil, errors.Mark(err, model.ErrStoreFailure)
	}
	return cas, closeFn, nil
}

// DialLedger connects to the configured ledger daemon.
func (c Config) DialLedger() (*grpcledger.Client, error) {
	client, err := grpcledger.Dial(c.Ledger.Target, grpcledger.DialOptions{
		Timeout:     c.Ledger.DialTimeout,
		MaxMsgBytes: c.Ledger.MaxMsgBytes,
	})
	if err != nil {
		return nil, errors.Mark(err, model.ErrLedgerUnavailable)
	}
	client.Timeout = c.Ledger.Timeout
	return client, nil
}
