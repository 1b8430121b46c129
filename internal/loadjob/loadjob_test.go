package loadjob

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufscache/internal/errs"
	"ufscache/internal/pageio"
)

func targetFor(t *testing.T, s *httptest.Server) pageio.Target {
	t.Helper()
	u, err := url.Parse(s.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return pageio.Target{Host: u.Hostname(), Port: port}
}

func TestNormalizeState(t *testing.T) {
	t.Run("substring FAILED normalizes regardless of extra text", func(t *testing.T) {
		state, err := normalizeState("FAILED: java.io.IOException")
		require.NoError(t, err)
		assert.Equal(t, StateFailed, state)
	})
	t.Run("known states pass through", func(t *testing.T) {
		state, err := normalizeState("RUNNING")
		require.NoError(t, err)
		assert.Equal(t, StateRunning, state)

		state, err = normalizeState("SUCCEEDED")
		require.NoError(t, err)
		assert.Equal(t, StateSucceeded, state)
	})
	t.Run("unrecognized states are a protocol error", func(t *testing.T) {
		_, err := normalizeState("BOGUS")
		assert.ErrorIs(t, err, errs.ErrLoadProtocol)
	})
}

func TestSubmitAndStop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/load", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("opType") {
		case "submit", "stop":
			fmt.Fprint(w, `{"success": true}`)
		}
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	c := New(nil)
	target := targetFor(t, s)

	ok, err := c.Submit(context.Background(), target, "s3://b/x", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Stop(context.Background(), target, "s3://b/x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProgress_ReachesSucceededWithinThreePolls(t *testing.T) {
	var poll int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/load", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("opType") {
		case "submit":
			fmt.Fprint(w, `{"success": true}`)
		case "progress":
			n := atomic.AddInt32(&poll, 1)
			switch {
			case n == 1:
				fmt.Fprint(w, `{"jobState": "RUNNING"}`)
			case n == 2:
				fmt.Fprint(w, `{"jobState": "VERIFYING"}`)
			default:
				fmt.Fprint(w, `{"jobState": "SUCCEEDED"}`)
			}
		}
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	c := New(nil)
	// WaitUntilDone sleeps the fixed 10s PollInterval between polls, so this
	// test drives the RUNNING -> VERIFYING -> SUCCEEDED sequence through
	// direct Progress calls instead of waiting out real poll ticks.
	target := targetFor(t, s)
	_, err := c.Submit(context.Background(), target, "s3://b/x", false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		state, _, err := c.Progress(context.Background(), target, "s3://b/x", false)
		require.NoError(t, err)
		if state == StateSucceeded {
			return
		}
	}
	t.Fatal("expected SUCCEEDED within 3 polls")
}

func TestWaitUntilDone_ContextTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/load", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("opType") == "progress" {
			fmt.Fprint(w, `{"jobState": "RUNNING"}`)
		}
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	c := New(nil)
	target := targetFor(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// PollInterval (10s) exceeds the context deadline, so WaitUntilDone must
	// observe ctx.Done() on its first select without ever ticking.
	ok, err := c.WaitUntilDone(ctx, target, "s3://b/x", 0)
	assert.False(t, ok)
	assert.Error(t, err)
}
