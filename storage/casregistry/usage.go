package casregistry

// Usage restricts which programs should accept a given backend.
//
// Backends are linked at build time: a backend registers itself via init() and is
// enabled in a binary by importing the backend package (often as a blank import).
type Usage uint8

const (
	// UsageClient indicates the backend is available to the vault client.
	UsageClient Usage = 1 << iota
	// UsageDaemon indicates the backend is available to long-running daemons (vault-pind).
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
