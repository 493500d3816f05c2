package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	c := Disabled()
	ctx := context.Background()

	assert.False(t, c.Available())
	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}))
	var out map[string]int
	assert.False(t, c.Get(ctx, "k", &out))
	assert.Nil(t, out)
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.Close())

	var nilCache *Cache
	assert.False(t, nilCache.Available())
}

func TestNewWithoutAddress(t *testing.T) {
	c, err := New(context.Background(), "", "", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, c.Available())
}

func TestNewUnreachable(t *testing.T) {
	c, err := New(context.Background(), "127.0.0.1:1", "", 0, time.Minute)
	require.Error(t, err)
	require.NotNil(t, c)
	assert.False(t, c.Available())
}

func TestUnreachableClientDegradesToMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	c := NewWithClient(client, 0)
	defer c.Close()

	assert.True(t, c.Available())
	var out map[string]int
	assert.False(t, c.Get(context.Background(), "k", &out))
	assert.Error(t, c.Set(context.Background(), "k", 1))
}

func TestKey(t *testing.T) {
	a := Key("prediction", "/data/a.csv", "technical_fork")
	b := Key("prediction", "/data/a.csv", "stars")
	c := Key("prediction", "/data/a.csv", "technical_fork")

	assert.True(t, strings.HasPrefix(a, "opensoda:prediction:"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
	assert.NotEqual(t, Key("prediction", "a", "bc"), Key("prediction", "ab", "c"))
}
