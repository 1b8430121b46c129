package pagecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	_, err := New(Config{MaxSize: 0})
	assert.Error(t, err)
}

func TestGetSet_RoundTrip(t *testing.T) {
	c, err := New(Config{MaxSize: 2})
	require.NoError(t, err)

	key := Key{PathID: "p1", Index: 0}
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, []byte("page0"))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("page0"), got)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestEviction_LRUOnOversize(t *testing.T) {
	c, err := New(Config{MaxSize: 1})
	require.NoError(t, err)

	k1 := Key{PathID: "p1", Index: 0}
	k2 := Key{PathID: "p1", Index: 1}
	c.Set(k1, []byte("a"))
	c.Set(k2, []byte("b"))

	_, ok := c.Get(k1)
	assert.False(t, ok, "k1 should have been evicted once capacity was exceeded")
	got, ok := c.Get(k2)
	require.True(t, ok)
	assert.Equal(t, []byte("b"), got)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidate_RemovesEntry(t *testing.T) {
	c, err := New(Config{MaxSize: 4})
	require.NoError(t, err)

	key := Key{PathID: "p1", Index: 0}
	c.Set(key, []byte("x"))
	c.Invalidate(key)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestGet_ExpiresByTTL(t *testing.T) {
	c, err := New(Config{MaxSize: 4, DefaultTTL: time.Millisecond})
	require.NoError(t, err)

	key := Key{PathID: "p1", Index: 0}
	c.Set(key, []byte("x"))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestGet_NoTTLNeverExpires(t *testing.T) {
	c, err := New(Config{MaxSize: 4})
	require.NoError(t, err)

	key := Key{PathID: "p1", Index: 0}
	c.Set(key, []byte("x"))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(key)
	assert.True(t, ok)
}
