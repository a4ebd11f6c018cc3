package store

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Backends accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendNATS   = "nats"
)

// Config selects and configures a backend.
type Config struct {
	Backend string        `koanf:"backend"`
	Dir     string        `koanf:"dir"`
	NATSURL string        `koanf:"nats_url"`
	Bucket  string        `koanf:"bucket"`
	TTL     time.Duration `koanf:"ttl"`
}

// Open returns the configured store and a function releasing its resources.
func Open(cfg Config) (Store, func(), error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), func() {}, nil
	case BackendFile:
		fs, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	case BackendNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("buildfile-agent"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		ns, err := NewNATSStore(nc, cfg.Bucket, cfg.TTL)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return ns, nc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
