// Package prefs persists the viewer's selected tab.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Tab string

const (
	TabDashboard Tab = "dashboard"
	TabRider     Tab = "rider"
	TabDriver    Tab = "driver"

	DefaultTab = TabDashboard
)

// Key under which the selection is stored.
const Key = "activeTab"

var ErrInvalidTab = errors.New("invalid tab")

func ParseTab(s string) (Tab, error) {
	switch t := Tab(s); t {
	case TabDashboard, TabRider, TabDriver:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTab, s)
}

type Store interface {
	ActiveTab(ctx context.Context) (Tab, error)
	SetActiveTab(ctx context.Context, t Tab) error
}

type MemoryStore struct {
	mu  sync.Mutex
	tab Tab
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{tab: DefaultTab} }

func (m *MemoryStore) ActiveTab(context.Context) (Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tab, nil
}

func (m *MemoryStore) SetActiveTab(_ context.Context, t Tab) error {
	if _, err := ParseTab(string(t)); err != nil {
		return err
	}
	m.mu.Lock()
	m.tab = t
	m.mu.Unlock()
	return nil
}

// KV is the subset of *redis.Client used by RedisStore.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type RedisStore struct {
	kv  KV
	key string
}

// NewRedisStore stores the tab under prefix+Key.
func NewRedisStore(kv KV, prefix string) *RedisStore {
	return &RedisStore{kv: kv, key: prefix + Key}
}

// NewRedisClient connects to addr and checks it answers.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}

// ActiveTab returns DefaultTab when nothing or something unrecognised is
// stored.
func (r *RedisStore) ActiveTab(ctx context.Context) (Tab, error) {
	v, err := r.kv.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return DefaultTab, nil
	}
	if err != nil {
		return DefaultTab, fmt.Errorf("read %s: %w", r.key, err)
	}
	t, err := ParseTab(v)
	if err != nil {
		return DefaultTab, nil
	}
	return t, nil
}

func (r *RedisStore) SetActiveTab(ctx context.Context, t Tab) error {
	if _, err := ParseTab(string(t)); err != nil {
		return err
	}
	if err := r.kv.Set(ctx, r.key, string(t), 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", r.key, err)
	}
	return nil
}
