// Package loadjob implements the load job control protocol: submitting a
// warm-cache job for a UFS path to a worker, polling its progress, and
// requesting early termination.
package loadjob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ufscache/internal/errs"
	"ufscache/internal/pageio"
	"ufscache/internal/telemetry"
)

// PollInterval is the interval waitUntilDone sleeps between progress polls,
// matching the worker's own load-progress cadence.
const PollInterval = 10 * time.Second

// State is the closed set of load job states a worker reports.
type State string

const (
	StateRunning    State = "RUNNING"
	StateVerifying  State = "VERIFYING"
	StateStopped    State = "STOPPED"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// normalizeState maps a raw jobState response to one of the closed states.
// Any state string containing "FAILED" (the worker sometimes embeds an
// exception message alongside the literal state) normalizes to StateFailed.
// A string that is neither a FAILED-variant nor one of the other defined
// states is not a job outcome the client knows how to interpret and is
// reported as ErrLoadProtocol rather than silently treated as a failure.
func normalizeState(raw string) (State, error) {
	if strings.Contains(raw, "FAILED") {
		return StateFailed, nil
	}
	switch raw {
	case string(StateRunning), string(StateVerifying), string(StateStopped), string(StateSucceeded):
		return State(raw), nil
	default:
		return "", fmt.Errorf("%w: unrecognized jobState %q", errs.ErrLoadProtocol, raw)
	}
}

// Controller drives the load job protocol against a single worker target.
type Controller struct {
	httpClient *http.Client
	metrics    *telemetry.Metrics
}

// New creates a Controller using the given HTTP client. If client is nil, a
// default client is used.
func New(client *http.Client) *Controller {
	if client == nil {
		client = http.DefaultClient
	}
	return &Controller{httpClient: client}
}

// SetMetrics attaches a Metrics sink. nil disables instrumentation (the
// default).
func (c *Controller) SetMetrics(t *telemetry.Metrics) {
	c.metrics = t
}

func opURL(t pageio.Target, path, opType string, verbose bool, extra string) string {
	u := fmt.Sprintf("http://%s:%d/v1/load?path=%s&opType=%s", t.Host, t.Port, url.QueryEscape(path), opType)
	if verbose {
		u += "&verbose=true"
	}
	if extra != "" {
		u += extra
	}
	return u
}

// submitStopResponse mirrors the JSON body of a submit/stop reply.
type submitStopResponse struct {
	Success bool `json:"success"`
}

// progressResponse mirrors the JSON body of a progress reply. JobState is
// the only field the controller relies on; everything else passes through
// to the caller as the raw response body.
type progressResponse struct {
	JobState *string `json:"jobState"`
}

// Submit starts a load job for path on the target worker, reporting whether
// the submission was accepted.
func (c *Controller) Submit(ctx context.Context, t pageio.Target, path string, verbose bool) (bool, error) {
	body, err := c.do(ctx, opURL(t, path, "submit", verbose, ""))
	if err != nil {
		return false, fmt.Errorf("%w: submit: %v", errs.ErrLoad, err)
	}
	var resp submitStopResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return false, fmt.Errorf("%w: submit: malformed response: %v", errs.ErrLoad, err)
	}
	return resp.Success, nil
}

// Stop requests early termination of path's load job, reporting whether the
// stop request was accepted.
func (c *Controller) Stop(ctx context.Context, t pageio.Target, path string) (bool, error) {
	body, err := c.do(ctx, opURL(t, path, "stop", false, ""))
	if err != nil {
		return false, fmt.Errorf("%w: stop: %v", errs.ErrLoad, err)
	}
	var resp submitStopResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return false, fmt.Errorf("%w: stop: malformed response: %v", errs.ErrLoad, err)
	}
	return resp.Success, nil
}

// Progress polls path's current load job state. raw is the unmodified
// response body, useful for surfacing verbose diagnostics to a caller.
func (c *Controller) Progress(ctx context.Context, t pageio.Target, path string, verbose bool) (State, string, error) {
	body, err := c.do(ctx, opURL(t, path, "progress", verbose, ""))
	if err != nil {
		return "", "", fmt.Errorf("%w: progress: %v", errs.ErrLoadProtocol, err)
	}
	var resp progressResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil || resp.JobState == nil {
		return "", "", fmt.Errorf("%w: progress: response missing jobState", errs.ErrLoadProtocol)
	}
	state, err := normalizeState(*resp.JobState)
	if err != nil {
		return "", "", err
	}
	if c.metrics != nil {
		c.metrics.LoadPollsTotal.WithLabelValues(string(state)).Inc()
	}
	return state, body, nil
}

func (c *Controller) do(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d from %s", resp.StatusCode, u)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// WaitUntilDone polls Progress every PollInterval until the job reaches a
// terminal state (SUCCEEDED, STOPPED, FAILED) or timeout elapses (timeout <=
// 0 means no deadline beyond ctx). It reports true only on SUCCEEDED.
func (c *Controller) WaitUntilDone(ctx context.Context, t pageio.Target, path string, timeout time.Duration) (bool, error) {
	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		state, _, err := c.Progress(ctx, t, path, false)
		if err != nil {
			return false, err
		}
		switch state {
		case StateSucceeded:
			if c.metrics != nil {
				c.metrics.LoadJobsTotal.WithLabelValues("succeeded").Inc()
			}
			return true, nil
		case StateStopped, StateFailed:
			if c.metrics != nil {
				c.metrics.LoadJobsTotal.WithLabelValues(strings.ToLower(string(state))).Inc()
			}
			return false, nil
		}

		// Decide before sleeping: once the remaining budget can't cover
		// another full poll interval, give up rather than sleep partway
		// and get cut off by the deadline mid-wait.
		if hasDeadline && time.Until(deadline) < PollInterval {
			return false, nil
		}

		select {
		case <-time.After(PollInterval):
			continue
		case <-ctx.Done():
			return false, fmt.Errorf("%w: %v", errs.ErrLoad, ctx.Err())
		}
	}
}
