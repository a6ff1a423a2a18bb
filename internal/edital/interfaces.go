package edital

import (
	"context"
	"io"
	"time"
)

// Fetcher returns best-effort plain text for a source locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (string, error)
}

// Recorder upserts a record by its natural key.
type Recorder interface {
	Upsert(ctx context.Context, record Record) (UpsertResult, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
