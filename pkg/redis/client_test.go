package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/imobcrm/crm-backend/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "ingest:key", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
	require.EqualValues(t, 1, count)
	require.Len(t, mock.expireCalls, 1)
	require.Equal(t, "crm:rate_limit:ingest:key", mock.expireCalls[0].key)

	allowed, count, err = client.FixedWindowAllow(ctx, "ingest:key", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
	require.EqualValues(t, 2, count)
	require.Len(t, mock.expireCalls, 1, "expire is only set on the first hit")

	allowed, _, err = client.FixedWindowAllow(ctx, "ingest:key", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.AccessSessionKey("jti-1")

	require.NoError(t, client.Set(ctx, key, "refresh-token", 10*time.Minute))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "refresh-token", got)

	ok, err := client.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestSetNXDedupes(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.DedupeKey("followup", "client-1", "2025-03-01")

	first, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	require.True(t, first)

	second, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	require.False(t, second)
}

func TestReleaseIfOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("stale-lead-archiver")

	_, err := client.SetNX(ctx, key, "worker-a", time.Minute)
	require.NoError(t, err)

	released, err := client.ReleaseIfOwner(ctx, key, "worker-b")
	require.NoError(t, err)
	require.False(t, released)

	released, err = client.ReleaseIfOwner(ctx, key, "worker-a")
	require.NoError(t, err)
	require.True(t, released)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	require.Error(t, client.Ping(context.Background()))
	_, err := client.Get(context.Background(), "k")
	require.Error(t, err)
	require.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "crm:idempotency:warehouse:evt-1", client.IdempotencyKey("warehouse", "evt-1"))
	require.Equal(t, "crm:rate_limit:login", client.RateLimitKey("login"))
	require.Equal(t, "crm:counter:hits", client.CounterKey("hits"))
	require.Equal(t, "crm:session:access:abc", client.AccessSessionKey("abc"))
	require.Equal(t, "crm:dedupe:followup:c1", client.DedupeKey("followup", "c1", " "))
	require.Equal(t, "crm:lock:job", client.LockKey("job"))
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	_, err := optionsFromConfig(configWith("", ""))
	require.Error(t, err)

	opts, err := optionsFromConfig(configWith("", "localhost:6379"))
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)

	opts, err = optionsFromConfig(configWith("redis://localhost:6380/2", ""))
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: ttl})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Eval only understands the compare-and-delete script.
func (m *mockCmdable) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected eval arity"))
	}
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func configWith(url, addr string) config.RedisConfig {
	return config.RedisConfig{URL: url, Address: addr}
}
