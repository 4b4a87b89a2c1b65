// Package session keeps short-lived per-user interaction state such as card
// business data and quick-select contexts.
package session

import (
	"context"
	"strings"
	"time"
)

// Store is a byte-valued key store with per-entry TTL. A ttl <= 0 never
// expires.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Take returns and removes the value in one step so only one caller
	// observes it.
	Take(ctx context.Context, key string) (value []byte, found bool, err error)
}

// CardKey is the session key of an interactive card instance.
func CardKey(userID, cardID string) string {
	return join("card", userID, cardID)
}

// SelectKey is the session key of a user's numbered quick-select context.
func SelectKey(userID string) string {
	return join("select", userID)
}

func join(parts ...string) string {
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ":")
}
