package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// SetJSON stores v encoded as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "session: encode %s failed", key)
	}
	return s.Set(ctx, key, raw, ttl)
}

// GetJSON decodes the value of key into v. found is false when the key is
// missing or expired.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "session: decode %s failed", key)
	}
	return true, nil
}
