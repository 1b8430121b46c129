// Package ring owns the client's current view of cluster membership: a
// consistent-hash Ring paired with an identity-to-address map, refreshed
// from a registry.Client or a static host list and swapped atomically so
// readers never observe a partially-updated ring.
package ring

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ufscache/internal/errs"
	"ufscache/internal/registry"
	"ufscache/internal/ringhash"
	"ufscache/internal/telemetry"
	"ufscache/pkg/worker"
)

// maxSelectAttempts bounds the number of ring probes select() performs
// before giving up on gathering the requested worker count.
const maxSelectAttempts = 100

// Source configures where the manager's membership comes from. Exactly one
// of the two must be set.
type Source struct {
	// StaticHosts, when non-empty, is used as-is: one WorkerEntity is
	// synthesized per host via worker.FromHostAndPort.
	StaticHosts []string
	// WorkerHTTPPort is the HTTP port paired with every StaticHosts entry.
	WorkerHTTPPort int

	// Registry, when non-nil, is polled for membership instead.
	Registry *registry.Client
	// RefreshInterval is the background refresh period; <= 0 disables the
	// background loop (an initial synchronous fetch still happens).
	RefreshInterval time.Duration
}

// snapshot is the atomically-swapped pair a Manager publishes.
type snapshot struct {
	ring *ringhash.Ring
	ids  map[worker.Identity]worker.NetAddress
}

// Manager owns the current (ring, identity map) pair and keeps it coherent
// with its configured Source.
type Manager struct {
	src Source
	v   int // hashNodePerWorker

	cur atomic.Pointer[snapshot]

	refreshMu sync.Mutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	metrics *telemetry.Metrics
}

// SetMetrics attaches a Metrics sink. Safe to call once before any
// background refresh starts; nil disables instrumentation (the default).
func (m *Manager) SetMetrics(t *telemetry.Metrics) {
	m.metrics = t
}

// New constructs a Manager, performing the initial synchronous population.
// Exactly one of src.StaticHosts or src.Registry must be set; hashNodePerWorker
// must be >= 1.
func New(src Source, hashNodePerWorker int) (*Manager, error) {
	haveStatic := len(src.StaticHosts) > 0
	haveRegistry := src.Registry != nil
	if haveStatic == haveRegistry {
		return nil, fmt.Errorf("%w: exactly one of static hosts or registry must be configured", errs.ErrConfig)
	}
	if hashNodePerWorker < 1 {
		return nil, fmt.Errorf("%w: hashNodePerWorker must be >= 1", errs.ErrConfig)
	}

	m := &Manager{src: src, v: hashNodePerWorker, stopCh: make(chan struct{})}

	if haveStatic {
		entities := make([]worker.Entity, 0, len(src.StaticHosts))
		for _, h := range src.StaticHosts {
			entities = append(entities, worker.FromHostAndPort(h, src.WorkerHTTPPort))
		}
		m.publish(entities)
		return m, nil
	}

	entities, err := src.Registry.Fetch(context.Background())
	if err != nil {
		return nil, err
	}
	m.publish(entities)

	if src.RefreshInterval > 0 {
		m.wg.Add(1)
		go m.refreshLoop(src.RefreshInterval)
	}
	return m, nil
}

// publish builds a fresh ring+identity-map from entities and swaps it in
// unconditionally. Callers that need diffing (the refresh loop) compare
// first and only call publish when a change is detected.
func (m *Manager) publish(entities []worker.Entity) {
	ids := make(map[worker.Identity]worker.NetAddress, len(entities))
	identities := make([]worker.Identity, 0, len(entities))
	for _, e := range entities {
		ids[e.Identity] = e.Address
		identities = append(identities, e.Identity)
	}
	// Deterministic insertion order makes virtual-node collision tie-breaks
	// reproducible across runs with the same membership set.
	sort.Slice(identities, func(i, j int) bool {
		return string(identities[i].Identifier[:]) < string(identities[j].Identifier[:])
	})
	snap := &snapshot{
		ring: ringhash.Build(identities, m.v),
		ids:  ids,
	}
	m.cur.Store(snap)
	if m.metrics != nil {
		m.metrics.KnownWorkers.Set(float64(len(ids)))
	}
}

// diff reports whether fresh differs from the currently published snapshot:
// either the identity set changed, or some identity's address changed.
func (m *Manager) diff(fresh map[worker.Identity]worker.NetAddress) bool {
	snap := m.cur.Load()
	if snap == nil {
		return true
	}
	if len(snap.ids) != len(fresh) {
		return true
	}
	for id, addr := range fresh {
		old, ok := snap.ids[id]
		if !ok || old != addr {
			return true
		}
	}
	return false
}

func (m *Manager) refreshLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.refreshOnce()
		case <-m.stopCh:
			return
		}
	}
}

// refreshOnce performs a single registry fetch and, if membership changed,
// swaps in a new ring. Errors and empty results are logged and do not
// propagate: the background loop never dies from a transient registry
// hiccup.
func (m *Manager) refreshOnce() {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	start := time.Now()
	entities, err := m.src.Registry.Fetch(context.Background())
	if m.metrics != nil {
		m.metrics.RingRefreshDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		log.Printf("ring: background refresh failed: %v", err)
		if m.metrics != nil {
			m.metrics.RingRefreshTotal.WithLabelValues("error").Inc()
		}
		return
	}

	fresh := make(map[worker.Identity]worker.NetAddress, len(entities))
	for _, e := range entities {
		fresh[e.Identity] = e.Address
	}
	if !m.diff(fresh) {
		if m.metrics != nil {
			m.metrics.RingRefreshTotal.WithLabelValues("unchanged").Inc()
		}
		return
	}
	m.publish(entities)
	if m.metrics != nil {
		m.metrics.RingRefreshTotal.WithLabelValues("changed").Inc()
	}
}

// Close stops the background refresh loop, if any, and waits for it to
// exit. Safe to call multiple times.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

// Select returns up to count distinct worker addresses for path, using the
// consistent-hash ring. If count >= the number of known workers, all
// workers are returned (order unspecified). Otherwise it probes successive
// attempts (lookup keys over (path, 1), (path, 2), ...) until count
// distinct workers are gathered or an internal attempt cap is reached.
func (m *Manager) Select(path string, count int) []worker.NetAddress {
	start := time.Now()
	result := m.selectLocked(path, count)
	if m.metrics != nil {
		m.metrics.SelectDurationSeconds.Observe(time.Since(start).Seconds())
		if len(result) < count {
			m.metrics.SelectMissesTotal.Inc()
		}
	}
	return result
}

func (m *Manager) selectLocked(path string, count int) []worker.NetAddress {
	snap := m.cur.Load()
	if snap == nil || snap.ring.Len() == 0 {
		return nil
	}

	if count >= len(snap.ids) {
		out := make([]worker.NetAddress, 0, len(snap.ids))
		for _, addr := range snap.ids {
			out = append(out, addr)
		}
		return out
	}

	seen := make(map[worker.Identity]bool, count)
	result := make([]worker.NetAddress, 0, count)
	for attempt := 1; attempt <= maxSelectAttempts && len(result) < count; attempt++ {
		key := ringhash.LookupKey(path, uint32(attempt))
		id, ok := snap.ring.Ceil(key)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		addr, ok := snap.ids[id]
		if !ok {
			// Raced with a refresh that dropped this identity; skip silently.
			continue
		}
		result = append(result, addr)
	}
	return result
}
