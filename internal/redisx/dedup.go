package redisx

import (
	"context"
	"fmt"
)

// Claim marks eventID as seen by service and reports whether this caller is
// the first to see it.
func Claim(ctx context.Context, kv KV, service, eventID string) (bool, error) {
	return kv.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup)
}

// Forget drops a claim so that a failed event can be processed again.
func Forget(ctx context.Context, kv KV, service, eventID string) error {
	return kv.Delete(ctx, fmt.Sprintf(KeyDedup, service, eventID))
}
