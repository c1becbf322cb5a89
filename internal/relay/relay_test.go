package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmarkapp/leafmark-sync/internal/errors"
	"github.com/leafmarkapp/leafmark-sync/internal/relay/server"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fastOpts keeps retry backoff out of test runtime.
func fastOpts() Options {
	return Options{RetryBase: time.Millisecond, RetryMax: 3}
}

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := server.New(server.Config{RequestsPerSecond: 1000, PollHold: 200 * time.Millisecond}, discard())
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return ts
}

func TestBlobPutGetRoundTrip(t *testing.T) {
	ts := newRelayServer(t)
	c := NewBlobClient(ts.URL, fastOpts(), discard())
	ctx := context.Background()

	payload := []byte("sealed snapshot bytes")
	handle, err := c.Put(ctx, payload)
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	got, err := c.Get(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBlobGetUnknownHandleIsNotFound(t *testing.T) {
	ts := newRelayServer(t)
	c := NewBlobClient(ts.URL, fastOpts(), discard())

	_, err := c.Get(context.Background(), "blob-expired")
	require.Error(t, err)
	// Terminal, not transient: the user must re-pair.
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.False(t, errors.Is(err, errors.ErrDownloadError))
}

func TestBlobPutSurfacesRelayBusy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewBlobClient(srv.URL, fastOpts(), discard())
	_, err := c.Put(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRelayBusy))
	assert.Equal(t, int32(3), calls.Load(), "should retry to the ceiling before surfacing")
}

func TestBlobGetRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("eventually"))
	}))
	defer srv.Close()

	c := NewBlobClient(srv.URL, fastOpts(), discard())
	got, err := c.Get(context.Background(), "blob-x")
	require.NoError(t, err)
	assert.Equal(t, []byte("eventually"), got)
}

func TestSignalPublishPoll(t *testing.T) {
	ts := newRelayServer(t)
	c := NewSignalClient(ts.URL, time.Second, fastOpts(), discard())
	ctx := context.Background()

	require.NoError(t, c.Publish(ctx, "top-1", "blob-reply"))

	msg, err := c.Poll(ctx, "top-1")
	require.NoError(t, err)
	assert.Equal(t, "blob-reply", msg)
}

func TestSignalPublishSurfacesRelayBusy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewSignalClient(srv.URL, time.Second, fastOpts(), discard())
	err := c.Publish(context.Background(), "top-1", "blob-reply")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRelayBusy), "publish exhaustion carries the same code as upload exhaustion")
	assert.Equal(t, int32(3), calls.Load(), "should retry to the ceiling before surfacing")
}

func TestSignalPollTimeoutSentinel(t *testing.T) {
	ts := newRelayServer(t)
	c := NewSignalClient(ts.URL, time.Second, fastOpts(), discard())

	_, err := c.Poll(context.Background(), "top-empty")
	require.ErrorIs(t, err, ErrPollTimeout, "empty round must be re-issuable, not fatal")
}

func TestSignalPollHonorsCancellation(t *testing.T) {
	ts := newRelayServer(t)
	c := NewSignalClient(ts.URL, 30*time.Second, fastOpts(), discard())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.Poll(ctx, "top-never")
	require.ErrorIs(t, err, context.Canceled)
}
