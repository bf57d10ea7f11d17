// Package shadow keeps the last heartbeat of each remote in Redis,
// so the display side can inspect a remote without listening on the bus.
package shadow

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robotalks/touchremote/pkg/remote/msgs"
)

// KeyPrefix namespaces shadow keys.
const KeyPrefix = "touchremote:shadow:"

// DefaultTTL expires shadows of remotes gone silent.
const DefaultTTL = 24 * time.Hour

// Store writes heartbeat shadows.
type Store struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewStore creates a Store from a URL like redis://host:6379/0.
func NewStore(rawURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{Client: redis.NewClient(opts), TTL: ttl}, nil
}

// Key returns the hash key of a device.
func Key(deviceID string) string {
	return KeyPrefix + deviceID
}

// Fields flattens a heartbeat into hash fields.
func Fields(hb *msgs.Heartbeat) map[string]interface{} {
	return map[string]interface{}{
		"timestamp":      hb.Timestamp,
		"wifi_connected": strconv.FormatBool(hb.WifiConnected),
		"mqtt_connected": strconv.FormatBool(hb.MQTTConnected),
		"current_page":   hb.CurrentPage,
		"last_command":   hb.LastCommand,
		"uptime":         hb.Uptime,
		"ts":             time.Now().Unix(),
	}
}

// Record stores a heartbeat and refreshes the expiry.
func (s *Store) Record(ctx context.Context, hb *msgs.Heartbeat) error {
	key := Key(hb.DeviceID)
	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, key, Fields(hb))
	pipe.Expire(ctx, key, s.TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Load reads the shadow of a device, empty when none.
func (s *Store) Load(ctx context.Context, deviceID string) (map[string]string, error) {
	return s.Client.HGetAll(ctx, Key(deviceID)).Result()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.Client.Close()
}
