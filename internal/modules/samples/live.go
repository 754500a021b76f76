// README: Redis live mirror: latest demand/supply snapshot per cell.
package samples

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const liveKeyPrefix = "roam:live:"

// RedisLiveMirror mirrors the most recent sample per cell into Redis so
// host processes (map overlays and the like) can read live state
// without touching the engine. Entries expire with the recency window.
type RedisLiveMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLiveMirror(client *redis.Client, ttl time.Duration) *RedisLiveMirror {
	return &RedisLiveMirror{client: client, ttl: ttl}
}

type livePayload struct {
	Timestamp  time.Time `json:"timestamp"`
	Passengers int       `json:"passengers"`
	Drivers    int       `json:"drivers"`
	Source     string    `json:"source"`
}

func (m *RedisLiveMirror) Publish(ctx context.Context, sample DemandSupplySample) error {
	payload, err := json.Marshal(livePayload{
		Timestamp:  sample.Timestamp,
		Passengers: sample.Passengers,
		Drivers:    sample.Drivers,
		Source:     string(sample.Source),
	})
	if err != nil {
		return fmt.Errorf("marshal live sample: %w", err)
	}
	if err := m.client.Set(ctx, liveKeyPrefix+sample.CellKey, payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("set live sample: %w", err)
	}
	return nil
}

var _ LiveMirror = (*RedisLiveMirror)(nil)
