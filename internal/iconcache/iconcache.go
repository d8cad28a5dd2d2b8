// Package iconcache keeps broadcast owner profile image URLs so the Helix
// users endpoint is not hit for every announcement.
package iconcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/momentum-mod/livestreams/internal/domain"
)

const keyPrefix = "livestreams:icon:"

func key(ownerID string) string {
	return fmt.Sprintf("%s%s", keyPrefix, ownerID)
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, ownerID string) (string, error) {
	u, err := r.client.Get(ctx, key(ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read icon for %s: %w", ownerID, err)
	}
	return u, nil
}

func (r *Redis) Set(ctx context.Context, ownerID, iconURL string) error {
	if err := r.client.SetEX(ctx, key(ownerID), iconURL, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store icon for %s: %w", ownerID, err)
	}
	return nil
}

type entry struct {
	url     string
	expires time.Time
}

// Memory is the fallback used when no REDIS_URL is configured.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: map[string]entry{}, now: time.Now}
}

func (m *Memory) Get(_ context.Context, ownerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[ownerID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, ownerID)
		return "", domain.ErrNotFound
	}
	return e.url, nil
}

func (m *Memory) Set(_ context.Context, ownerID, iconURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[ownerID] = entry{url: iconURL, expires: m.now().Add(m.ttl)}
	return nil
}
