package session

import (
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityGetOrCreateIsIdempotent(t *testing.T) {
	identity := NewIdentity(NewMemoryStore())

	first, err := identity.GetOrCreate()
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.True(t, strings.HasPrefix(first, "session-"))

	for i := 0; i < 5; i++ {
		again, err := identity.GetOrCreate()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestIdentitySharesTokenAcrossInstancesOfOneScope(t *testing.T) {
	store := NewMemoryStore()

	first, err := NewIdentity(store).GetOrCreate()
	require.NoError(t, err)

	// A fresh Identity over the same store models a page reload.
	second, err := NewIdentity(store).GetOrCreate()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIdentityCurrentDoesNotCreate(t *testing.T) {
	identity := NewIdentity(NewMemoryStore())

	_, ok := identity.Current()
	assert.False(t, ok)

	token, err := identity.GetOrCreate()
	require.NoError(t, err)

	current, ok := identity.Current()
	require.True(t, ok)
	assert.Equal(t, token, current)
}

func TestGateTriggersExactlyOncePerScope(t *testing.T) {
	store := NewMemoryStore()
	gate := NewGate(store)

	assert.True(t, gate.ShouldTrigger())
	for i := 0; i < 10; i++ {
		assert.False(t, gate.ShouldTrigger())
	}

	// A new Gate over the same store (reload) must stay latched.
	assert.False(t, NewGate(store).ShouldTrigger())
}

func TestGateResetReturnsToInitialState(t *testing.T) {
	gate := NewGate(NewMemoryStore())

	require.True(t, gate.ShouldTrigger())
	require.False(t, gate.ShouldTrigger())

	require.NoError(t, gate.Reset())
	assert.True(t, gate.ShouldTrigger())
}

func TestGateMarkTriggeredSuppressesAutomaticRun(t *testing.T) {
	gate := NewGate(NewMemoryStore())
	gate.MarkTriggered()
	assert.False(t, gate.ShouldTrigger())
}

type failingStore struct{}

func (failingStore) Get(string) (string, bool, error) { return "", false, assert.AnError }
func (failingStore) Set(string, string) error         { return assert.AnError }
func (failingStore) Delete(string) error              { return assert.AnError }

func TestGateFallsBackToAlwaysTriggerWhenStoreFails(t *testing.T) {
	gate := NewGate(failingStore{})

	assert.True(t, gate.ShouldTrigger())
	assert.True(t, gate.ShouldTrigger())
}

func TestRedisStoreSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)

	open := func() *RedisStore {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return NewRedisStore(rdb, "console", 0)
	}

	gate := NewGate(open())
	require.True(t, gate.ShouldTrigger())

	// New client, new gate: same Redis scope, so the latch must hold.
	reloaded := NewGate(open())
	assert.False(t, reloaded.ShouldTrigger())

	require.NoError(t, reloaded.Reset())
	assert.True(t, NewGate(open()).ShouldTrigger())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := NewRedisStore(rdb, "console", 0)

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("k", "v"))
	value, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", value)

	require.NoError(t, store.Delete("k"))
	_, ok, err = store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}
