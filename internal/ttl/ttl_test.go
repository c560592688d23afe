package ttl_test

import (
	"testing"

	"github.com/lsmkit/stratum/internal/ttl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_SetAndCheckExpiry(t *testing.T) {
	ix := ttl.New()
	ix.SetExpiry([]byte("key1"), 100)

	assert.False(t, ix.IsExpired([]byte("key1"), 50))
	assert.True(t, ix.IsExpired([]byte("key1"), 150))
	assert.True(t, ix.IsExpired([]byte("key1"), 100), "expiry is inclusive at the boundary")
}

func TestIndex_NoExpiryNeverExpires(t *testing.T) {
	ix := ttl.New()
	assert.False(t, ix.IsExpired([]byte("no-ttl"), 999999))

	_, ok := ix.Expiry([]byte("no-ttl"))
	assert.False(t, ok)
}

func TestIndex_RemoveExpiry(t *testing.T) {
	ix := ttl.New()
	ix.SetExpiry([]byte("key1"), 100)
	require.Equal(t, 1, ix.Len())

	ix.RemoveExpiry([]byte("key1"))
	assert.Equal(t, 0, ix.Len())
	assert.False(t, ix.IsExpired([]byte("key1"), 999))
}

func TestIndex_CollectExpired(t *testing.T) {
	ix := ttl.New()
	ix.SetExpiry([]byte("expired1"), 0)
	ix.SetExpiry([]byte("expired2"), 10)
	ix.SetExpiry([]byte("active"), 1000)

	expired := ix.CollectExpired(50)
	require.Len(t, expired, 2)

	names := map[string]bool{}
	for _, k := range expired {
		names[string(k)] = true
	}
	assert.True(t, names["expired1"])
	assert.True(t, names["expired2"])
}

func TestIndex_PurgeExpired(t *testing.T) {
	ix := ttl.New()
	ix.SetExpiry([]byte("old1"), 0)
	ix.SetExpiry([]byte("old2"), 0)
	ix.SetExpiry([]byte("fresh"), 1000)

	require.Equal(t, 3, ix.Len())
	purged := ix.PurgeExpired(50)
	assert.Equal(t, 2, purged)
	assert.Equal(t, 1, ix.Len())

	assert.False(t, ix.IsExpired([]byte("fresh"), 50))
}

func TestIndex_RemainingTTL(t *testing.T) {
	ix := ttl.New()
	ix.SetExpiry([]byte("key1"), 100)

	remaining, ok := ix.RemainingTTL([]byte("key1"), 40)
	require.True(t, ok)
	assert.Equal(t, int64(60), remaining)

	remaining, ok = ix.RemainingTTL([]byte("key1"), 150)
	require.True(t, ok)
	assert.Equal(t, int64(0), remaining)

	_, ok = ix.RemainingTTL([]byte("no-ttl"), 10)
	assert.False(t, ok)
}

func TestIndex_SetExpiryReplacesPrior(t *testing.T) {
	ix := ttl.New()
	ix.SetExpiry([]byte("key1"), 100)
	ix.SetExpiry([]byte("key1"), 200)

	expiresAt, ok := ix.Expiry([]byte("key1"))
	require.True(t, ok)
	assert.Equal(t, int64(200), expiresAt)
	assert.Equal(t, 1, ix.Len())

	// The reverse index for the stale instant must have been cleaned up
	// too, or a later CollectExpired(100) would wrongly resurface key1.
	expired := ix.CollectExpired(100)
	assert.Empty(t, expired)
}
