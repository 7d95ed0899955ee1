package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/interbox/payments-backend/pkg/config"
	filestore "github.com/interbox/payments-backend/pkg/storage/file"
	"github.com/interbox/payments-backend/pkg/storage/blob"
)

// Store is the append-only ledger surface. A file holds one JSON array;
// Append adds a single item to the end of it.
type Store interface {
	Read(ctx context.Context, file string) ([]json.RawMessage, error)
	Write(ctx context.Context, file string, items []json.RawMessage) error
	Append(ctx context.Context, file string, item json.RawMessage) error
	Exists(ctx context.Context, file string) (bool, error)
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New selects a backend from configuration: local files in dev, a networked
// blob endpoint everywhere a durable shared store is needed.
func New(cfg config.LedgerConfig) (Store, error) {
	switch cfg.Backend {
	case config.LedgerBackendFile, "":
		return filestore.New(cfg.Dir)
	case config.LedgerBackendBlob:
		return blob.New(blob.Options{
			BaseURL: cfg.BlobURL,
			Token:   cfg.BlobToken,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
