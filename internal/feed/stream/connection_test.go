package stream

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpulse/feedpulse/internal/platform/logger"
)

// waitFor drains signals until one of the wanted kind arrives.
func waitFor(t *testing.T, signals <-chan Signal, kind SignalKind) Signal {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				t.Fatalf("signal channel closed while waiting for %s", kind)
			}
			if sig.Kind == kind {
				return sig
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s signal", kind)
		}
	}
}

func TestManagerConnectAndReceive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		f := w.(http.Flusher)
		fmt.Fprint(w, "event: connection\ndata: {\"status\":\"ok\"}\n\n")
		fmt.Fprint(w, "event: notification\nid: ev-1\ndata: {\"Id\":\"n1\",\"Title\":\"hello\"}\n\n")
		f.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	m := NewManager(Config{
		URL:                  srv.URL,
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}, logger.NewNop())
	m.Start()
	defer m.Disconnect()

	waitFor(t, m.Signals(), SignalOpened)
	assert.True(t, m.IsConnected())
	assert.Equal(t, 0, m.Attempts())

	sig := waitFor(t, m.Signals(), SignalMessage)
	require.NotNil(t, sig.Event)
	assert.Equal(t, "connection", sig.Event.Name)

	sig = waitFor(t, m.Signals(), SignalMessage)
	require.NotNil(t, sig.Event)
	assert.Equal(t, "notification", sig.Event.Name)
	assert.Equal(t, "ev-1", sig.Event.ID)
}

func TestManagerSendsCredentialHeaders(t *testing.T) {
	var gotCookie atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie.Store(r.Header.Get("Cookie"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Cookie", "session=abc123")
	m := NewManager(Config{URL: srv.URL, Header: header}, logger.NewNop())
	m.Start()
	defer m.Disconnect()

	waitFor(t, m.Signals(), SignalOpened)
	assert.Equal(t, "session=abc123", gotCookie.Load())
}

func TestManagerResumeHeader(t *testing.T) {
	var lastEventID atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastEventID.Store(r.Header.Get("Last-Event-ID"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	m := NewManager(Config{
		URL:    srv.URL,
		Resume: func() string { return "ev-42" },
	}, logger.NewNop())
	m.Start()
	defer m.Disconnect()

	waitFor(t, m.Signals(), SignalOpened)
	assert.Equal(t, "ev-42", lastEventID.Load())
}

func TestManagerBackoffGrowth(t *testing.T) {
	m := NewManager(Config{
		URL:                  "http://localhost:0",
		ReconnectInterval:    time.Second,
		MaxReconnectAttempts: 3,
	}, logger.NewNop())

	delay, ok := m.nextDelay()
	require.True(t, ok)
	assert.Equal(t, time.Second, delay)

	delay, ok = m.nextDelay()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)

	delay, ok = m.nextDelay()
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, delay)

	// No further slot once the cap is reached
	_, ok = m.nextDelay()
	assert.False(t, ok)
	assert.Equal(t, 3, m.Attempts())

	// A successful open resets the counter
	m.resetAttempts()
	delay, ok = m.nextDelay()
	require.True(t, ok)
	assert.Equal(t, time.Second, delay)
}

func TestManagerReconnectExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewManager(Config{
		URL:                  srv.URL,
		ReconnectInterval:    5 * time.Millisecond,
		MaxReconnectAttempts: 2,
	}, logger.NewNop())
	m.Start()
	defer m.Disconnect()

	// Initial failure plus two scheduled retries, then a hard stop.
	waitFor(t, m.Signals(), SignalErrored)
	waitFor(t, m.Signals(), SignalErrored)
	waitFor(t, m.Signals(), SignalErrored)

	require.Eventually(t, func() bool {
		return m.State() == StateExhausted
	}, 2*time.Second, 5*time.Millisecond)

	attempts := hits.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, attempts, hits.Load(), "no further attempt once exhausted")
	assert.Equal(t, 2, m.Attempts())
}

func TestManagerManualReconnectLeavesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewManager(Config{
		URL:                  srv.URL,
		ReconnectInterval:    5 * time.Millisecond,
		MaxReconnectAttempts: 1,
	}, logger.NewNop())
	m.Start()
	defer m.Disconnect()

	waitFor(t, m.Signals(), SignalErrored)
	waitFor(t, m.Signals(), SignalErrored)
	require.Eventually(t, func() bool {
		return m.State() == StateExhausted
	}, 2*time.Second, 5*time.Millisecond)

	m.Reconnect()

	// Reconnect resets the counter and tries again immediately.
	waitFor(t, m.Signals(), SignalErrored)
}

func TestManagerDisconnectCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	m := NewManager(Config{URL: srv.URL}, logger.NewNop())
	m.Start()
	waitFor(t, m.Signals(), SignalOpened)

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	// Channel drains to a close signal and then closes for good.
	sawClosed := false
	for sig := range m.Signals() {
		if sig.Kind == SignalClosed {
			sawClosed = true
		}
	}
	assert.True(t, sawClosed)

	// Idempotent
	m.Disconnect()
}

func TestManagerDisconnectCancelsPendingReconnect(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewManager(Config{
		URL:                  srv.URL,
		ReconnectInterval:    time.Hour,
		MaxReconnectAttempts: 5,
	}, logger.NewNop())
	m.Start()

	waitFor(t, m.Signals(), SignalErrored)
	require.Eventually(t, func() bool {
		return m.State() == StateReconnecting
	}, 2*time.Second, time.Millisecond)

	before := hits.Load()
	m.Disconnect()
	assert.Equal(t, before, hits.Load(), "pending reconnect timer must not fire")
	assert.Equal(t, StateDisconnected, m.State())
}
