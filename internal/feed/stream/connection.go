package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/feedpulse/feedpulse/internal/platform/logger"
)

// State describes the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateExhausted is the terminal state after maxReconnectAttempts
	// consecutive failures. It is distinguishable from a normal transient
	// disconnect so callers can surface it; only a manual Reconnect leaves it.
	StateExhausted State = "exhausted"
)

// SignalKind tags the lifecycle signals a Manager publishes.
type SignalKind string

const (
	SignalOpened  SignalKind = "opened"
	SignalMessage SignalKind = "message"
	SignalErrored SignalKind = "errored"
	SignalClosed  SignalKind = "closed"
)

// Signal is one lifecycle event. Event is set for SignalMessage, Err for
// SignalErrored.
type Signal struct {
	Kind  SignalKind
	Event *Event
	Err   error
}

// Config holds connection configuration.
type Config struct {
	URL                  string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int

	// Header carries ambient credentials (session cookie, bearer token).
	Header http.Header

	// HTTPClient, when set, must not carry a client-level timeout: the
	// stream is a deliberately long-lived request.
	HTTPClient *http.Client

	// Resume, when set, supplies the Last-Event-ID header for reconnects.
	Resume func() string
}

// Manager owns one live stream connection. It reconnects with exponential
// backoff on failure and publishes lifecycle signals on a channel; it has no
// knowledge of notification semantics.
type Manager struct {
	cfg     Config
	client  *http.Client
	log     logger.Logger
	signals chan Signal

	mu       sync.Mutex
	state    State
	attempts int
	cancel   context.CancelFunc

	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager creates a manager. Start must be called to open the connection.
func NewManager(cfg Config, log logger.Logger) *Manager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 3 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Manager{
		cfg:     cfg,
		client:  client,
		log:     log,
		signals: make(chan Signal, 256),
		state:   StateDisconnected,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start opens the connection and begins publishing signals. The signal
// channel is closed once the manager has fully shut down.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.run()
	})
}

// Signals returns the lifecycle signal channel.
func (m *Manager) Signals() <-chan Signal {
	return m.signals
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the stream is currently open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Attempts returns the current reconnect-attempt counter.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Disconnect permanently shuts the manager down: suppresses any further
// auto-reconnect, cancels a pending reconnect timer, closes the transport
// and emits a close signal. Safe to call more than once; blocks until the
// run loop has released every resource.
func (m *Manager) Disconnect() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.cancelStream()
	})
	m.wg.Wait()
}

// Reconnect tears down the current transport, resets the attempt counter and
// reconnects immediately, bypassing any pending backoff.
func (m *Manager) Reconnect() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
	m.cancelStream()
}

func (m *Manager) run() {
	defer m.wg.Done()
	defer close(m.signals)

	for {
		if m.stopped() {
			m.setState(StateDisconnected)
			m.emitFinal(Signal{Kind: SignalClosed})
			return
		}

		m.setState(StateConnecting)
		err := m.stream()
		if err == nil || m.stopped() {
			m.setState(StateDisconnected)
			m.emitFinal(Signal{Kind: SignalClosed})
			return
		}

		m.setState(StateDisconnected)
		m.emit(Signal{Kind: SignalErrored, Err: err})
		m.log.Warn("stream connection lost", "error", err, "attempts", m.Attempts())

		delay, ok := m.nextDelay()
		if !ok {
			m.setState(StateExhausted)
			m.log.Error("stream reconnect attempts exhausted",
				"max_attempts", m.cfg.MaxReconnectAttempts)
			select {
			case <-m.done:
				m.setState(StateDisconnected)
				m.emitFinal(Signal{Kind: SignalClosed})
				return
			case <-m.kick:
				m.resetAttempts()
				continue
			}
		}

		m.setState(StateReconnecting)
		m.log.Info("stream reconnect scheduled", "delay", delay, "attempt", m.Attempts())

		timer := time.NewTimer(delay)
		select {
		case <-m.done:
			timer.Stop()
			m.setState(StateDisconnected)
			m.emitFinal(Signal{Kind: SignalClosed})
			return
		case <-m.kick:
			timer.Stop()
			m.resetAttempts()
		case <-timer.C:
		}
	}
}

// stream opens the connection and pumps events until the transport fails or
// the manager is stopped. It returns nil only on a manual stop.
func (m *Manager) stream() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.setCancel(cancel)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for key, values := range m.cfg.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if m.cfg.Resume != nil {
		if id := m.cfg.Resume(); id != "" {
			req.Header.Set("Last-Event-ID", id)
		}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if m.stopped() {
			return nil
		}
		return fmt.Errorf("failed to connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}

	m.onOpen()

	dec := NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if m.stopped() {
				return nil
			}
			return fmt.Errorf("stream read failed: %w", err)
		}
		m.emit(Signal{Kind: SignalMessage, Event: ev})
	}
}

// onOpen resets the reconnect counter and announces the open connection.
func (m *Manager) onOpen() {
	m.mu.Lock()
	m.state = StateConnected
	m.attempts = 0
	m.mu.Unlock()

	m.log.Info("stream connected", "url", m.cfg.URL)
	m.emit(Signal{Kind: SignalOpened})
}

// nextDelay reserves the next reconnect slot. The Nth scheduled delay is
// reconnectInterval * 2^(N-1); once N reaches the cap no further slot is
// handed out.
func (m *Manager) nextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		return 0, false
	}
	m.attempts++
	return m.cfg.ReconnectInterval * (1 << (m.attempts - 1)), true
}

func (m *Manager) resetAttempts() {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) setCancel(cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
}

func (m *Manager) cancelStream() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) stopped() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// emit delivers a signal, giving up if the manager is being torn down so the
// run loop can never block on a departed consumer.
func (m *Manager) emit(s Signal) {
	select {
	case m.signals <- s:
	case <-m.done:
	}
}

// emitFinal is best-effort delivery for the close signal after done is set.
func (m *Manager) emitFinal(s Signal) {
	select {
	case m.signals <- s:
	default:
	}
}
