// Package client is the public facade of the UFS page-cache client: it
// composes membership discovery, consistent-hash routing, the page I/O
// engine, and the load job controller into the small set of operations an
// application actually calls.
package client

import (
	"context"
	"fmt"
	"time"

	"ufscache/internal/errs"
	"ufscache/internal/loadjob"
	"ufscache/internal/pagecache"
	"ufscache/internal/pageio"
	"ufscache/internal/pathid"
	"ufscache/internal/registry"
	"ufscache/internal/ring"
	"ufscache/internal/telemetry"
)

// pathIDCacheSize bounds the path-id memoization table; a client touching
// more distinct paths than this simply recomputes digests more often.
const pathIDCacheSize = 4096

// Client is a UFS page-cache client instance. Each Client owns its own ring
// manager, HTTP connection pool, and background refresh task; there is no
// process-wide shared state between Client instances.
type Client struct {
	cfg     Config
	pageSz  int64
	ring    *ring.Manager
	io      *pageio.Engine
	load    *loadjob.Controller
	hasher  *pathid.Hasher
	metrics *telemetry.Metrics
}

// New constructs a Client from cfg, performing the initial synchronous
// membership population. It fails with ErrConfig for contradictory options,
// or ErrRegistryUnavailable/ErrRegistryEmpty/ErrWorkerInfoParse if an
// etcd-backed registry is configured and the first fetch fails.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	pageSz, err := parsePageSize(cfg.PageSize)
	if err != nil {
		return nil, err
	}

	hasher, err := pathid.NewHasher(pathIDCacheSize)
	if err != nil {
		return nil, err
	}

	src := ring.Source{
		WorkerHTTPPort:  cfg.WorkerHTTPPort,
		RefreshInterval: cfg.refreshInterval(),
	}
	if len(cfg.WorkerHosts) > 0 {
		src.StaticHosts = cfg.WorkerHosts
	} else {
		var creds *registry.Credentials
		if cfg.EtcdUsername != "" {
			creds = &registry.Credentials{User: cfg.EtcdUsername, Password: cfg.EtcdPassword}
		}
		src.Registry = registry.New(cfg.EtcdHosts, cfg.EtcdPort, cfg.ClusterName, creds)
	}

	mgr, err := ring.New(src, cfg.HashNodePerWorker)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.New()
	mgr.SetMetrics(metrics)

	engine := pageio.New(pageSz, cfg.Concurrency)
	engine.SetMetrics(metrics)

	if cfg.PageCacheSize > 0 {
		cache, err := pagecache.New(pagecache.Config{
			MaxSize:    cfg.PageCacheSize,
			DefaultTTL: time.Duration(cfg.PageCacheTTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrConfig, err)
		}
		engine.SetCache(cache)
	}

	loadCtl := loadjob.New(nil)
	loadCtl.SetMetrics(metrics)

	return &Client{
		cfg:     cfg,
		pageSz:  pageSz,
		ring:    mgr,
		io:      engine,
		load:    loadCtl,
		hasher:  hasher,
		metrics: metrics,
	}, nil
}

// Metrics returns the client's Prometheus metrics, for embedding
// applications that want to expose /metrics themselves.
func (c *Client) Metrics() *telemetry.Metrics {
	return c.metrics
}

// Close stops the client's background membership refresh task, if any.
func (c *Client) Close() {
	c.ring.Close()
}

// preferredWorker resolves the single worker that owns path on the current
// ring, failing with ErrRouting if routing does not yield exactly one.
func (c *Client) preferredWorker(path string) (pageio.Target, error) {
	addrs := c.ring.Select(path, 1)
	if len(addrs) != 1 {
		return pageio.Target{}, fmt.Errorf("%w: expected 1 worker for %q, got %d", errs.ErrRouting, path, len(addrs))
	}
	return pageio.Target{Host: addrs[0].Host, Port: addrs[0].HTTPServerPort}, nil
}

// List returns the UFS directory listing for path.
func (c *Client) List(ctx context.Context, path string) ([]pageio.ListEntry, error) {
	if err := pathid.Validate(path); err != nil {
		return nil, err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return nil, err
	}
	return c.io.List(ctx, t, path)
}

// Stat returns file status metadata for path.
func (c *Client) Stat(ctx context.Context, path string) (pageio.ListEntry, error) {
	if err := pathid.Validate(path); err != nil {
		return pageio.ListEntry{}, err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return pageio.ListEntry{}, err
	}
	return c.io.Stat(ctx, t, path)
}

// Read reads the full contents of path.
func (c *Client) Read(ctx context.Context, path string) ([]byte, error) {
	id, err := c.hasher.PathID(path)
	if err != nil {
		return nil, err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return nil, err
	}
	return c.io.Read(ctx, t, id)
}

// ReadRange reads length bytes of path starting at offset. length == -1
// means "read to end of file": Stat is consulted first to compute the
// effective length.
func (c *Client) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", errs.ErrInvalidArgument, offset)
	}
	id, err := c.hasher.PathID(path)
	if err != nil {
		return nil, err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return nil, err
	}

	if length < 0 {
		if length != -1 {
			return nil, fmt.Errorf("%w: negative length %d (only -1 is meaningful)", errs.ErrInvalidArgument, length)
		}
		info, err := c.io.Stat(ctx, t, path)
		if err != nil {
			return nil, err
		}
		length = info.Length - offset
		if length < 0 {
			return nil, fmt.Errorf("%w: offset %d beyond file length %d", errs.ErrInvalidArgument, offset, info.Length)
		}
	}

	return c.io.ReadRangeBytes(ctx, t, id, offset, length)
}

// WritePage writes one full page (len(data) must equal the configured page
// size) of path at index.
func (c *Client) WritePage(ctx context.Context, path string, index int64, data []byte) error {
	if int64(len(data)) != c.pageSz {
		return fmt.Errorf("%w: page write requires exactly %d bytes, got %d", errs.ErrInvalidArgument, c.pageSz, len(data))
	}
	id, err := c.hasher.PathID(path)
	if err != nil {
		return err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return err
	}
	return c.io.WritePage(ctx, t, id, index, data)
}

// SubmitLoad starts a load job for path, reporting whether it was accepted.
// Calling it repeatedly for the same path is idempotent: each call simply
// reports the server's current acceptance decision without changing any
// client-side state.
func (c *Client) SubmitLoad(ctx context.Context, path string, verbose bool) (bool, error) {
	if err := pathid.Validate(path); err != nil {
		return false, err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return false, err
	}
	return c.load.Submit(ctx, t, path, verbose)
}

// StopLoad requests early termination of path's load job.
func (c *Client) StopLoad(ctx context.Context, path string) (bool, error) {
	if err := pathid.Validate(path); err != nil {
		return false, err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return false, err
	}
	return c.load.Stop(ctx, t, path)
}

// LoadProgress polls path's current load job state.
func (c *Client) LoadProgress(ctx context.Context, path string, verbose bool) (loadjob.State, string, error) {
	if err := pathid.Validate(path); err != nil {
		return "", "", err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return "", "", err
	}
	return c.load.Progress(ctx, t, path, verbose)
}

// Load submits a load job for path and blocks until it reaches a terminal
// state or timeout elapses (timeout <= 0 means no deadline). It reports true
// only if the job reaches SUCCEEDED.
func (c *Client) Load(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	if err := pathid.Validate(path); err != nil {
		return false, err
	}
	t, err := c.preferredWorker(path)
	if err != nil {
		return false, err
	}
	ok, err := c.load.Submit(ctx, t, path, false)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return c.load.WaitUntilDone(ctx, t, path, timeout)
}
