// Package store persists session state between steps, keyed by conversation ID.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/petasbytes/buildfile-agent/internal/session"
)

// ErrNotFound is returned by Load when no state exists for an ID.
var ErrNotFound = errors.New("session not found")

// Store loads and saves session state. Implementations are safe for concurrent use.
type Store interface {
	Load(ctx context.Context, id string) (session.State, error)
	Save(ctx context.Context, id string, s session.State) error
	// Delete removes the state for id. Deleting a missing ID is not an error.
	Delete(ctx context.Context, id string) error
}

// IDs double as file names and NATS KV keys.
var idRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_=-]{0,127}$`)

// ValidateID rejects IDs that are unsafe as file names or KV keys.
func ValidateID(id string) error {
	if !idRe.MatchString(id) {
		return fmt.Errorf("invalid conversation id %q", id)
	}
	return nil
}
