// Package backend provides the durable key/value storage contract the
// memory subsystem persists through, plus filesystem, Redis and
// in-memory implementations.
//
// Paths are slash-separated virtual paths (e.g. "/memories/semantic_memory.json").
// The memory subsystem takes no locks around backend calls; concurrent
// external mutation of the same paths is not coordinated here.
package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no data exists at the path.
var ErrNotFound = errors.New("backend: path not found")

// Backend is the persistence collaborator consumed by the long-term
// memory store and the legacy memory middleware.
type Backend interface {
	// Read returns the data stored at path, or ErrNotFound.
	Read(ctx context.Context, path string) (string, error)

	// Write stores data at path, replacing any previous value.
	Write(ctx context.Context, path string, data string) error

	// Exists reports whether any data is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// IsNotFound reports whether err indicates a missing path.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
