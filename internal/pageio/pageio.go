// Package pageio implements the page-addressed HTTP data plane: translating
// byte ranges of a UFS path into page GET/POST requests against a chosen
// worker, assembling the results into a byte stream, and detecting
// end-of-file.
package pageio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ufscache/internal/errs"
	"ufscache/internal/pagecache"
	"ufscache/internal/telemetry"
)

// DefaultConcurrency is the HTTP connection pool size used when the caller
// does not configure one.
const DefaultConcurrency = 64

// Engine issues page reads and writes against cache workers over HTTP.
type Engine struct {
	pageSize   int64
	httpClient *http.Client
	// writeClient bypasses the shared pooled transport so a burst of page
	// writes cannot head-of-line block concurrent reads.
	writeClient *http.Client

	metrics *telemetry.Metrics
	cache   *pagecache.Cache
}

// SetMetrics attaches a Metrics sink. nil disables instrumentation (the
// default).
func (e *Engine) SetMetrics(t *telemetry.Metrics) {
	e.metrics = t
}

// SetCache attaches an optional read-through page cache. Only full-page
// reads (not sub-page ranges) are cached, since a range read's cache key
// would need to encode offset and length and the hit rate for arbitrary
// ranges is low. A page write invalidates its own cache entry.
func (e *Engine) SetCache(c *pagecache.Cache) {
	e.cache = c
}

// New creates an Engine for the given page size and HTTP pool size
// (concurrency). concurrency <= 0 falls back to DefaultConcurrency.
func New(pageSize int64, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	pooled := &http.Transport{
		MaxIdleConns:        concurrency,
		MaxIdleConnsPerHost: concurrency,
		MaxConnsPerHost:     concurrency,
	}
	unpooled := &http.Transport{
		MaxIdleConns:        concurrency,
		MaxIdleConnsPerHost: concurrency,
	}
	return &Engine{
		pageSize:    pageSize,
		httpClient:  &http.Client{Transport: pooled},
		writeClient: &http.Client{Transport: unpooled},
	}
}

// Target identifies the worker a request is addressed to.
type Target struct {
	Host string
	Port int
}

func (t Target) baseURL() string {
	return fmt.Sprintf("http://%s:%d", t.Host, t.Port)
}

// ListEntry is one element of a list/stat JSON response.
type ListEntry struct {
	Type                    string `json:"mType"`
	Name                    string `json:"mName"`
	Path                    string `json:"mPath"`
	UfsPath                 string `json:"mUfsPath"`
	LastModificationTimeMs  int64  `json:"mLastModificationTimeMs"`
	HumanReadableFileSize   string `json:"mHumanReadableFileSize"`
	Length                  int64  `json:"mLength"`
}

// List issues GET /v1/files?path=<ufs> and decodes the JSON array response.
func (e *Engine) List(ctx context.Context, t Target, ufsPath string) ([]ListEntry, error) {
	return e.listOrStat(ctx, t, "/v1/files", ufsPath)
}

// Stat issues GET /v1/info?path=<ufs> and decodes the JSON array response,
// returning its first element.
func (e *Engine) Stat(ctx context.Context, t Target, ufsPath string) (ListEntry, error) {
	entries, err := e.listOrStat(ctx, t, "/v1/info", ufsPath)
	if err != nil {
		return ListEntry{}, err
	}
	if len(entries) == 0 {
		return ListEntry{}, fmt.Errorf("%w: empty stat response for %s", errs.ErrFileStatus, ufsPath)
	}
	return entries[0], nil
}

func (e *Engine) listOrStat(ctx context.Context, t Target, route, ufsPath string) ([]ListEntry, error) {
	u := fmt.Sprintf("%s%s?path=%s", t.baseURL(), route, queryEscape(ufsPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFileStatus, err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFileStatus, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d from %s", errs.ErrFileStatus, resp.StatusCode, u)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFileStatus, err)
	}
	entries, err := decodeListEntries(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFileStatus, err)
	}
	return entries, nil
}

// pageURL builds the full-page or sub-range page GET URL.
func pageURL(t Target, pathID string, index int64, offset, length *int64) string {
	u := fmt.Sprintf("%s/v1/file/%s/page/%d", t.baseURL(), pathID, index)
	if offset == nil && length == nil {
		return u
	}
	return fmt.Sprintf("%s?offset=%d&length=%d", u, *offset, *length)
}

// readPage issues a single page GET, optionally scoped to [offset, offset+length).
func (e *Engine) readPage(ctx context.Context, t Target, pathID string, index int64, offset, length *int64) ([]byte, error) {
	kind := "full"
	if offset != nil {
		kind = "range"
	}

	cacheKey := pagecache.Key{PathID: pathID, Index: index}
	if kind == "full" && e.cache != nil {
		if body, ok := e.cache.Get(cacheKey); ok {
			return body, nil
		}
	}

	start := time.Now()
	body, err := e.doReadPage(ctx, t, pathID, index, offset, length)
	if e.metrics != nil {
		e.metrics.PageReadDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.PageReadsTotal.WithLabelValues(status).Inc()
		e.metrics.BytesReadTotal.Add(float64(len(body)))
	}
	if kind == "full" && err == nil && e.cache != nil {
		e.cache.Set(cacheKey, body)
	}
	return body, err
}

func (e *Engine) doReadPage(ctx context.Context, t Target, pathID string, index int64, offset, length *int64) ([]byte, error) {
	u := pageURL(t, pathID, index, offset, length)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, u)
	}
	return io.ReadAll(resp.Body)
}

// ReadFull reads path sequentially from page 0 until end of file, calling
// yield with each non-empty page body in ascending index order. A page is
// terminal when its body is shorter than the configured page size
// (including empty, at a page boundary).
//
// A failure reading page 0 is returned as ErrPageRead. A failure reading any
// later page stops the stream and returns nil: the server does not
// distinguish end-of-file from a transport error on pages past the first.
func (e *Engine) ReadFull(ctx context.Context, t Target, pathID string, yield func([]byte) error) error {
	for index := int64(0); ; index++ {
		body, err := e.readPage(ctx, t, pathID, index, nil, nil)
		if err != nil {
			if index == 0 {
				return fmt.Errorf("%w: %v", errs.ErrPageRead, err)
			}
			return nil
		}
		if len(body) == 0 {
			return nil
		}
		if err := yield(body); err != nil {
			return err
		}
		if int64(len(body)) < e.pageSize {
			return nil
		}
	}
}

// Read reads the full file into memory via ReadFull.
func (e *Engine) Read(ctx context.Context, t Target, pathID string) ([]byte, error) {
	var buf bytes.Buffer
	err := e.ReadFull(ctx, t, pathID, func(b []byte) error {
		_, werr := buf.Write(b)
		return werr
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rangePlan describes, for each page index touched by a [offset,offset+length)
// read, the sub-range to request from that page.
type rangePlan struct {
	startIndex int64
	startOff   int64
	endIndex   int64
	endReadTo  int64 // exclusive end offset within the end page
}

func planRange(offset, length int64, pageSize int64) rangePlan {
	last := offset + length - 1
	return rangePlan{
		startIndex: offset / pageSize,
		startOff:   offset % pageSize,
		endIndex:   last / pageSize,
		endReadTo:  (last % pageSize) + 1,
	}
}

func (p rangePlan) offsetLengthFor(index, pageSize int64) (int64, int64) {
	switch {
	case index == p.startIndex && index == p.endIndex:
		return p.startOff, p.endReadTo - p.startOff
	case index == p.startIndex:
		return p.startOff, pageSize - p.startOff
	case index == p.endIndex:
		return 0, p.endReadTo
	default:
		return 0, pageSize
	}
}

// ReadRange reads [offset, offset+length) from path, calling yield with each
// page's contribution in ascending page-index order. length == 0 returns
// immediately without issuing I/O. A failure reading the first touched page
// is returned as ErrPageRead; a failure on a later page truncates the
// stream silently, matching ReadFull's trailing-page behavior.
func (e *Engine) ReadRange(ctx context.Context, t Target, pathID string, offset, length int64, yield func([]byte) error) error {
	if length == 0 {
		return nil
	}
	plan := planRange(offset, length, e.pageSize)
	for index := plan.startIndex; index <= plan.endIndex; index++ {
		off, l := plan.offsetLengthFor(index, e.pageSize)
		body, err := e.readPage(ctx, t, pathID, index, &off, &l)
		if err != nil {
			if index == plan.startIndex {
				return fmt.Errorf("%w: %v", errs.ErrPageRead, err)
			}
			return nil
		}
		if err := yield(body); err != nil {
			return err
		}
		if index == plan.endIndex || int64(len(body)) < l {
			return nil
		}
	}
	return nil
}

// Read the requested range fully into memory.
func (e *Engine) ReadRangeBytes(ctx context.Context, t Target, pathID string, offset, length int64) ([]byte, error) {
	var buf bytes.Buffer
	err := e.ReadRange(ctx, t, pathID, offset, length, func(b []byte) error {
		_, werr := buf.Write(b)
		return werr
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePage writes a full page of data (len(data) must equal the configured
// page size) to path's page at index. It uses a dedicated HTTP client so
// writes cannot head-of-line block concurrent reads on the shared pool.
func (e *Engine) WritePage(ctx context.Context, t Target, pathID string, index int64, data []byte) error {
	start := time.Now()
	err := e.doWritePage(ctx, t, pathID, index, data)
	if e.metrics != nil {
		e.metrics.PageWriteDuration.Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.PageWritesTotal.WithLabelValues(status).Inc()
		if err == nil {
			e.metrics.BytesWrittenTotal.Add(float64(len(data)))
		}
	}
	if err == nil && e.cache != nil {
		e.cache.Invalidate(pagecache.Key{PathID: pathID, Index: index})
	}
	return err
}

func (e *Engine) doWritePage(ctx context.Context, t Target, pathID string, index int64, data []byte) error {
	u := fmt.Sprintf("%s/v1/file/%s/page/%d", t.baseURL(), pathID, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPageWrite, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := e.writeClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPageWrite, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d from %s", errs.ErrPageWrite, resp.StatusCode, u)
	}
	return nil
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}

// decodeListEntries unmarshals a /v1/files or /v1/info JSON array response.
func decodeListEntries(raw []byte) ([]ListEntry, error) {
	var entries []ListEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
