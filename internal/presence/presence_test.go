package presence

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// newTestServer accepts presence connections and holds them open until
// closed is flipped.
func newTestServer(t *testing.T, closed *atomic.Bool) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusGoingAway, "server shutting down")

		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				if closed.Load() {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMonitorReportsOnlineThenOffline(t *testing.T) {
	var closed atomic.Bool
	srv := newTestServer(t, &closed)

	var online, offline atomic.Int32
	m := NewMonitor(Config{
		URL:          wsURL(srv),
		PingInterval: 20 * time.Millisecond,
		RedialMax:    50 * time.Millisecond,
		Logger:       log.New(os.Stderr, "[presence-test] ", 0),
		OnChange: func(s State) {
			if s == StateOnline {
				online.Add(1)
			} else {
				offline.Add(1)
			}
		},
	})

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, "online", func() bool { return online.Load() >= 1 })
	if m.State() != StateOnline {
		t.Errorf("State() = %v, want online", m.State())
	}

	closed.Store(true)
	waitFor(t, "offline after drop", func() bool { return offline.Load() >= 1 })

	// The server keeps accepting, so the monitor should redial and come
	// back online.
	closed.Store(false)
	waitFor(t, "reconnect", func() bool { return online.Load() >= 2 })
}

func TestMonitorRetriesWhileServerUnreachable(t *testing.T) {
	var online atomic.Int32
	m := NewMonitor(Config{
		URL:          "ws://127.0.0.1:1", // nothing listening
		PingInterval: 20 * time.Millisecond,
		RedialMax:    30 * time.Millisecond,
		Logger:       log.New(os.Stderr, "[presence-test] ", 0),
		OnChange: func(s State) {
			if s == StateOnline {
				online.Add(1)
			}
		},
	})

	m.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	m.Stop()

	if online.Load() != 0 {
		t.Error("reported online with no server listening")
	}
	if m.State() != StateOffline {
		t.Errorf("State() = %v, want offline", m.State())
	}
}

func TestMonitorStopIsClean(t *testing.T) {
	var closed atomic.Bool
	srv := newTestServer(t, &closed)

	m := NewMonitor(Config{
		URL:          wsURL(srv),
		PingInterval: 20 * time.Millisecond,
		Logger:       log.New(os.Stderr, "[presence-test] ", 0),
	})
	m.Start(context.Background())

	waitFor(t, "online", func() bool { return m.State() == StateOnline })
	m.Stop() // must not hang or panic
}
