package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/petasbytes/buildfile-agent/internal/session"
)

// NATSStore keeps state in a JetStream key-value bucket, so several service
// replicas can serve steps of the same conversation.
type NATSStore struct {
	kv nats.KeyValue
}

// NewNATSStore binds to bucket, creating it with ttl when it does not exist.
func NewNATSStore(nc *nats.Conn, bucket string, ttl time.Duration) (*NATSStore, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "build-file agent session state",
			TTL:         ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", bucket, err)
	}
	return &NATSStore{kv: kv}, nil
}

func (n *NATSStore) Load(_ context.Context, id string) (session.State, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	entry, err := n.kv.Get(id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", id, err)
	}
	var s session.State
	if err := json.Unmarshal(entry.Value(), &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if s == nil {
		s = session.State{}
	}
	return s, nil
}

func (n *NATSStore) Save(_ context.Context, id string, s session.State) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	b, err := json.Marshal(s.Clone())
	if err != nil {
		return err
	}
	if _, err := n.kv.Put(id, b); err != nil {
		return fmt.Errorf("kv put %s: %w", id, err)
	}
	return nil
}

func (n *NATSStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := n.kv.Delete(id); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", id, err)
	}
	return nil
}
