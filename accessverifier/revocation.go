package accessverifier

import (
	"context"
	"fmt"

	"hsmauthd/storage"
)

// RevocationChecker reports whether a device id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, deviceID string) (bool, error)
}

// StoreRevocationChecker checks device revocation against a KeyValueStore
// where a present key means the device has been revoked.
type StoreRevocationChecker struct {
	store storage.KeyValueStore
}

// NewStoreRevocationChecker wraps store as a RevocationChecker.
func NewStoreRevocationChecker(store storage.KeyValueStore) *StoreRevocationChecker {
	return &StoreRevocationChecker{store: store}
}

func (c *StoreRevocationChecker) IsRevoked(ctx context.Context, deviceID string) (bool, error) {
	ok, err := c.store.Exists(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("accessverifier: check revocation for %s: %w", deviceID, err)
	}
	return ok, nil
}

var _ RevocationChecker = (*StoreRevocationChecker)(nil)
