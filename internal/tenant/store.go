package tenant

import "context"

// Store resolves a tenant snapshot by tenant id or by the number the
// caller dialed. Implementations may cache internally; the cache layer in
// cache.go adds a TTL in front regardless.
type Store interface {
	ByTenantID(ctx context.Context, tenantID string) (Snapshot, bool, error)
	ByDialedNumber(ctx context.Context, number string) (Snapshot, bool, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise an
// in-memory store seeded with nothing (every lookup misses and the
// generic snapshot is served).
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
