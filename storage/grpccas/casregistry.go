package grpccas

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casregistry"
)

const defaultDialTimeout = 5 * time.Second

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to vault-pind --grpc-addr)",
		Usage:       casregistry.UsageClient,
		Settings: []casregistry.Setting{
			{Key: "target", Usage: "gRPC target host:port", Required: true},
			{Key: "dial-timeout", Usage: "dial timeout (default 5s)"},
			{Key: "timeout", Usage: "per-RPC timeout; empty means none"},
			{Key: "max-msg-bytes", Usage: "max message size in bytes (send+recv); 0 uses grpc defaults"},
		},
		Open: func(settings map[string]string) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(settings["target"])
			dialTimeout, err := durationSetting(settings, "dial-timeout", defaultDialTimeout)
			if err != nil {
				return nil, nil, err
			}
			timeout, err := durationSetting(settings, "timeout", 0)
			if err != nil {
				return nil, nil, err
			}
			maxMsg := 0
			if v := strings.TrimSpace(settings["max-msg-bytes"]); v != "" {
				if maxMsg, err = strconv.Atoi(v); err != nil {
					return nil, nil, errors.Wrapf(err, "grpc: max-msg-bytes %q", v)
				}
			}
			client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}

func durationSetting(settings map[string]string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(settings[key])
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "grpc: %s %q", key, v)
	}
	return d, nil
}
