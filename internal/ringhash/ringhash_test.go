package ringhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufscache/pkg/worker"
)

func mustIdentities(hosts ...string) []worker.Identity {
	ids := make([]worker.Identity, 0, len(hosts))
	for _, h := range hosts {
		ids = append(ids, worker.NewIdentityFromHostname(h))
	}
	return ids
}

func TestBuild_VirtualNodeCount(t *testing.T) {
	t.Run("exactly V*|W| entries absent collisions", func(t *testing.T) {
		ids := mustIdentities("h1", "h2", "h3")
		r := Build(ids, 5)
		assert.Equal(t, 15, r.Len())
	})

	t.Run("v less than 1 clamps to 1", func(t *testing.T) {
		ids := mustIdentities("h1")
		r := Build(ids, 0)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("entries are sorted ascending", func(t *testing.T) {
		ids := mustIdentities("h1", "h2", "h3", "h4")
		r := Build(ids, 5)
		keys := r.Keys()
		require.Len(t, keys, 20)
		for i := 1; i < len(keys); i++ {
			assert.LessOrEqual(t, keys[i-1], keys[i])
		}
	})
}

func TestCeil_Wraparound(t *testing.T) {
	ids := mustIdentities("h1", "h2", "h3")
	r := Build(ids, 5)
	keys := r.Keys()
	require.NotEmpty(t, keys)

	t.Run("k below every key resolves to the first entry's owner", func(t *testing.T) {
		id, ok := r.Ceil(keys[0] - 1)
		assert.True(t, ok)
		assert.Equal(t, r.entries[0].identity, id)
	})

	t.Run("k at or above the max key wraps to the smallest key", func(t *testing.T) {
		maxKey := keys[len(keys)-1]
		id, ok := r.Ceil(maxKey)
		assert.True(t, ok)
		wantID, _ := r.Ceil(keys[0] - 1)
		assert.Equal(t, wantID, id)
	})

	t.Run("empty ring returns false", func(t *testing.T) {
		empty := Build(nil, 5)
		_, ok := empty.Ceil(0)
		assert.False(t, ok)
	})
}

func TestVirtualNodeKey_Deterministic(t *testing.T) {
	id := worker.NewIdentityFromHostname("h1")
	k1 := VirtualNodeKey(id, 0)
	k2 := VirtualNodeKey(id, 0)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, VirtualNodeKey(id, 1))
}

func TestLookupKey_VariesByAttempt(t *testing.T) {
	k1 := LookupKey("s3://bucket/obj", 1)
	k2 := LookupKey("s3://bucket/obj", 2)
	assert.NotEqual(t, k1, k2)
}
