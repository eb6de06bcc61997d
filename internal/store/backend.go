package store

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned by a Backend that has never been saved to.
var ErrNoSnapshot = errors.New("snapshot not found")

// Backend persists the encoded snapshot as one opaque blob.
// Every Save fully replaces the previous snapshot.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// HealthChecker is implemented by backends that can report connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
