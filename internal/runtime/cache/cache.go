package cache

import (
	"context"
	"time"
)

// Entry is one cached complaint draft.
type Entry struct {
	Complaint string    `json:"complaint"`
	Model     string    `json:"model,omitempty"`
	StoredAt  time.Time `json:"storedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DraftCache stores generated complaint text keyed by the normalized case
// summary digest. Entries are only written after a successful generation.
type DraftCache interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
