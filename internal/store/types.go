package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("subscriber not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process map (tests, throwaway runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Subscriber is one recipient identity plus its category opt-in set.
//
// Identity is the natural key (the Telegram chat id as a decimal string);
// ID is a store-assigned surrogate. Categories is ordered and never
// contains duplicates. CreatedAt is set once at creation.
type Subscriber struct {
	ID         int64
	Identity   string
	Categories []string
	CreatedAt  time.Time
}

// Store is the persistence API consumed by the subscription engine and
// the fanout dispatcher.
type Store interface {
	// FindByIdentity returns the subscriber with the given identity.
	FindByIdentity(ctx context.Context, identity string) (Subscriber, bool, error)

	// Upsert inserts the subscriber unless one with the same identity
	// exists, and returns the stored record either way. Creation is
	// idempotent: calling it twice never yields two rows.
	Upsert(ctx context.Context, s Subscriber) (Subscriber, error)

	// UpdateCategories replaces the category set of an existing subscriber.
	UpdateCategories(ctx context.Context, identity string, categories []string) error

	// Delete removes the subscriber (hard delete). Unknown identities are a no-op.
	Delete(ctx context.Context, identity string) error

	// ListSubscribed returns subscribers whose set contains category or "all".
	// For category=="all" it returns every subscriber with a non-empty set.
	ListSubscribed(ctx context.Context, category string) ([]Subscriber, error)

	// Dedup is used by the feed poller to remember already-relayed items.
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}
