package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufscache/internal/errs"
	"ufscache/pkg/worker"
)

func TestNew_RejectsContradictoryConfig(t *testing.T) {
	t.Run("neither source configured", func(t *testing.T) {
		_, err := New(Source{}, 5)
		assert.ErrorIs(t, err, errs.ErrConfig)
	})

	t.Run("hashNodePerWorker below 1", func(t *testing.T) {
		_, err := New(Source{StaticHosts: []string{"h1"}}, 0)
		assert.ErrorIs(t, err, errs.ErrConfig)
	})
}

func TestNew_StaticThreeHostRing(t *testing.T) {
	mgr, err := New(Source{StaticHosts: []string{"h1", "h2", "h3"}, WorkerHTTPPort: 28080}, 5)
	require.NoError(t, err)
	defer mgr.Close()

	snap := mgr.cur.Load()
	require.NotNil(t, snap)
	assert.Equal(t, 15, snap.ring.Len())

	addrs := mgr.Select("s3://b/x", 3)
	assert.Len(t, addrs, 3)

	hosts := map[string]bool{}
	for _, a := range addrs {
		hosts[a.Host] = true
	}
	assert.Equal(t, map[string]bool{"h1": true, "h2": true, "h3": true}, hosts)
}

func TestSelect_CountExceedsWorkers(t *testing.T) {
	mgr, err := New(Source{StaticHosts: []string{"h1", "h2"}, WorkerHTTPPort: 28080}, 5)
	require.NoError(t, err)
	defer mgr.Close()

	addrs := mgr.Select("s3://b/x", 10)
	assert.Len(t, addrs, 2)
}

func TestSelect_Deterministic(t *testing.T) {
	mgr, err := New(Source{StaticHosts: []string{"h1", "h2", "h3"}, WorkerHTTPPort: 28080}, 5)
	require.NoError(t, err)
	defer mgr.Close()

	a1 := mgr.Select("s3://bucket/obj", 1)
	a2 := mgr.Select("s3://bucket/obj", 1)
	require.Len(t, a1, 1)
	require.Len(t, a2, 1)
	assert.Equal(t, a1[0], a2[0])
}

func TestDiff_DetectsIdentitySetAndAddressChanges(t *testing.T) {
	mgr, err := New(Source{StaticHosts: []string{"h1", "h2"}, WorkerHTTPPort: 28080}, 5)
	require.NoError(t, err)
	defer mgr.Close()

	snapBefore := mgr.cur.Load()

	t.Run("identical membership is not a diff", func(t *testing.T) {
		fresh := map[worker.Identity]worker.NetAddress{}
		for id, addr := range snapBefore.ids {
			fresh[id] = addr
		}
		assert.False(t, mgr.diff(fresh))
	})

	t.Run("an added identity is a diff", func(t *testing.T) {
		fresh := map[worker.Identity]worker.NetAddress{}
		for id, addr := range snapBefore.ids {
			fresh[id] = addr
		}
		fresh[worker.NewIdentityFromHostname("h3")] = worker.DefaultNetAddress()
		assert.True(t, mgr.diff(fresh))
	})

	t.Run("a changed address is a diff", func(t *testing.T) {
		fresh := map[worker.Identity]worker.NetAddress{}
		for id, addr := range snapBefore.ids {
			addr.HTTPServerPort = addr.HTTPServerPort + 1
			fresh[id] = addr
		}
		assert.True(t, mgr.diff(fresh))
	})
}

func TestDiff_NoOpRefreshLeavesSnapshotReferenceInPlace(t *testing.T) {
	mgr, err := New(Source{StaticHosts: []string{"h1"}, WorkerHTTPPort: 28080}, 5)
	require.NoError(t, err)
	defer mgr.Close()

	before := mgr.cur.Load()

	fresh := map[worker.Identity]worker.NetAddress{}
	for id, addr := range before.ids {
		fresh[id] = addr
	}
	assert.False(t, mgr.diff(fresh), "identical fetch result must not be treated as a diff")

	after := mgr.cur.Load()
	assert.Same(t, before, after)
}
