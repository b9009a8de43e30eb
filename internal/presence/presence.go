// Package presence maintains a lightweight WebSocket connection to the
// server and reports connectivity transitions.
//
// The sync engine never busy-retries after a network failure; it waits
// for this monitor to report that connectivity is back. The socket also
// lets the server nudge the device without a poll loop.
package presence

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// State of the connection to the server.
type State int

const (
	// StateOffline means the server is unreachable.
	StateOffline State = iota
	// StateOnline means the socket is up and answering pings.
	StateOnline
)

// Config holds monitor configuration.
type Config struct {
	// URL of the presence WebSocket endpoint (ws:// or wss://).
	URL string

	// PingInterval between liveness probes (default 30s).
	PingInterval time.Duration

	// RedialMax caps the exponential redial backoff (default 30s).
	RedialMax time.Duration

	// OnChange is called on every offline->online and online->offline
	// transition. Called from the monitor goroutine; keep it fast.
	OnChange func(state State)

	// Logger for monitor activity.
	Logger *log.Logger
}

// Monitor watches connectivity to the server.
type Monitor struct {
	config Config

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor. Use Start to begin watching.
func NewMonitor(config Config) *Monitor {
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.RedialMax <= 0 {
		config.RedialMax = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[presence] ", log.LstdFlags)
	}
	return &Monitor{config: config, state: StateOffline}
}

// State returns the last observed connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the dial/ping loop. Returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop shuts the monitor down and waits for its goroutine.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	if changed && m.config.OnChange != nil {
		m.config.OnChange(s)
	}
}

// run dials, holds the connection with pings, and redials with
// exponential backoff after a drop.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := m.dial(ctx)
		if err != nil {
			m.setState(StateOffline)
			m.config.Logger.Printf("Dial failed, retrying in %v: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > m.config.RedialMax {
				backoff = m.config.RedialMax
			}
			continue
		}

		backoff = time.Second
		m.setState(StateOnline)
		m.hold(ctx, conn)
		m.setState(StateOffline)
	}
}

func (m *Monitor) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, m.config.URL, nil)
	return conn, err
}

// hold pings the connection until it drops or the context ends.
func (m *Monitor) hold(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Drain server frames; we only care that the connection is alive.
	readCtx := conn.CloseRead(ctx)

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readCtx.Done():
			if ctx.Err() == nil {
				m.config.Logger.Printf("Connection dropped")
			}
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					m.config.Logger.Printf("Ping failed: %v", err)
				}
				return
			}
		}
	}
}
