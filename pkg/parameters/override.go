package parameters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const overrideKeyPrefix = "eos:setup:http-override:"

// OverrideTracker records, per setup field, whether an HTTP write is
// still within its TTL window and should be treated by the UI as
// externally authoritative.
// Backed by Redis key expiry rather than a database column so "is this
// active right now" is a cheap EXISTS.
type OverrideTracker struct {
	client *redis.Client
}

// NewOverrideTracker wraps an existing Redis client.
func NewOverrideTracker(client *redis.Client) *OverrideTracker {
	return &OverrideTracker{client: client}
}

// MarkActive sets fieldID as HTTP-override-active for ttl.
func (t *OverrideTracker) MarkActive(ctx context.Context, fieldID string, ttl time.Duration) error {
	return t.client.Set(ctx, overrideKeyPrefix+fieldID, time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// IsActive reports whether fieldID is currently within its override TTL.
func (t *OverrideTracker) IsActive(ctx context.Context, fieldID string) (bool, error) {
	n, err := t.client.Exists(ctx, overrideKeyPrefix+fieldID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LastMarkedAt returns the timestamp the field was last marked active, if
// the TTL hasn't expired yet.
func (t *OverrideTracker) LastMarkedAt(ctx context.Context, fieldID string) (*time.Time, error) {
	raw, err := t.client.Get(ctx, overrideKeyPrefix+fieldID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// Clear removes an active override ahead of its natural expiry.
func (t *OverrideTracker) Clear(ctx context.Context, fieldID string) error {
	return t.client.Del(ctx, overrideKeyPrefix+fieldID).Err()
}
