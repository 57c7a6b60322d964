package localfs

import (
	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageClient | casregistry.UsageDaemon,
		Settings: []casregistry.Setting{
			{Key: "dir", Usage: "CAS root directory", Required: true},
		},
		Open: func(settings map[string]string) (storage.CAS, func() error, error) {
			cas, err := New(settings["dir"])
			return cas, nil, err
		},
	})
}
