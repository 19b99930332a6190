package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/config"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestManager(t *testing.T) (*Manager, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	manager, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60})
	require.NoError(t, err)
	return manager, store
}

func TestNewManagerValidatesTTL(t *testing.T) {
	_, err := NewManager(newMemoryStore(), config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	require.Error(t, err)
	_, err = NewManager(nil, config.JWTConfig{ExpirationMinutes: 1, RefreshTokenTTLMinutes: 30})
	require.Error(t, err)
}

func TestManagerGenerateAndRotate(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := manager.Generate(ctx, userID, "access-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	has, err := manager.HasSession(ctx, "access-123")
	require.NoError(t, err)
	require.True(t, has)

	_, _, err = manager.Rotate(ctx, userID, "access-123", "wrong")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = manager.Rotate(ctx, uuid.New(), "access-123", token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken, "token is bound to its user")

	newAccessID, newToken, err := manager.Rotate(ctx, userID, "access-123", token)
	require.NoError(t, err)
	require.NotEqual(t, "access-123", newAccessID)
	require.NotEqual(t, token, newToken)
	require.NotContains(t, store.data, store.AccessSessionKey("access-123"))

	_, _, err = manager.Rotate(ctx, userID, "access-123", token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken, "rotated session cannot be reused")
}

func TestManagerRevoke(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Generate(ctx, uuid.New(), "access-9")
	require.NoError(t, err)
	require.NoError(t, manager.Revoke(ctx, "access-9"))

	has, err := manager.HasSession(ctx, "access-9")
	require.NoError(t, err)
	require.False(t, has)
	require.Error(t, manager.Revoke(ctx, " "))
}
