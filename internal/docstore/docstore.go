// Package docstore implements the document side of the sync on MongoDB,
// plus an in-memory store with the same upsert semantics.
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// Options describes how to reach the document store.
type Options struct {
	Provider string // "mongo" or "memory"
	URI      string // takes precedence over the fields below
	Host     string
	Port     int
	User     string
	Password string
	AuthDB   string
	Database string
	Timeout  time.Duration

	ConnectRetries int
	ConnectBackoff time.Duration
}

// Open connects to the configured document store.
func Open(ctx context.Context, opts Options) (provider.DocumentStore, error) {
	switch opts.Provider {
	case "mongo", "mongodb", "":
		return OpenMongo(ctx, opts)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: unknown document provider %q", types.ErrInvalidConfig, opts.Provider)
}

func persistErr(collection string, err error) error {
	return &types.PersistenceError{Store: "document", Op: "upsert " + collection, Err: err}
}
